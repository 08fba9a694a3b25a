// Package visibility decides which listings a caller may see.
package visibility

import (
	"net/url"
	"strings"

	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Filter narrows the public listing view. Nil fields impose no constraint.
type Filter struct {
	CategoryID *uuid.UUID
	Condition  *enums.ListingCondition
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	return f.CategoryID == nil && f.Condition == nil && f.MinPrice == nil && f.MaxPrice == nil
}

// Matches reports whether l satisfies every present field of f. Price bounds
// are inclusive.
func (f Filter) Matches(l models.Listing) bool {
	if f.CategoryID != nil && l.CategoryID != *f.CategoryID {
		return false
	}
	if f.Condition != nil && l.Condition != *f.Condition {
		return false
	}
	if f.MinPrice != nil && l.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && l.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	return true
}

// Apply returns the listings matching f, keeping their input order.
func Apply(listings []models.Listing, f Filter) []models.Listing {
	out := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if f.Matches(l) {
			out = append(out, l)
		}
	}
	return out
}

// IsPublic is the visibility predicate: only approved listings are public.
func IsPublic(l models.Listing) bool {
	return l.Status == enums.ListingStatusApproved
}

// EnsureListingVisible returns NotFound unless the listing is public or the
// identity owns it or moderates. A nil identity is an anonymous caller.
func EnsureListingVisible(l *models.Listing, id *auth.Identity) error {
	if l == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	if IsPublic(*l) {
		return nil
	}
	if id != nil && (id.IsAdmin() || id.UID == l.OwnerID) {
		return nil
	}
	return pkgerrors.NotFound("listing", l.ID.String())
}

// Scope applies f as SQL predicates on the listings table.
func Scope(f Filter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.CategoryID != nil {
			db = db.Where("category_id = ?", *f.CategoryID)
		}
		if f.Condition != nil {
			db = db.Where("condition = ?", *f.Condition)
		}
		if f.MinPrice != nil {
			db = db.Where("price >= ?", *f.MinPrice)
		}
		if f.MaxPrice != nil {
			db = db.Where("price <= ?", *f.MaxPrice)
		}
		return db
	}
}

// PublicScope restricts a listings query to the public view.
func PublicScope(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", enums.ListingStatusApproved)
}

// ParseFilter reads categoryId, condition, minPrice and maxPrice from query
// parameters. Blank values are treated as absent.
func ParseFilter(q url.Values) (Filter, error) {
	var f Filter

	if raw := strings.TrimSpace(q.Get("categoryId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Filter{}, pkgerrors.InvalidInput("categoryId", "categoryId must be a uuid")
		}
		f.CategoryID = &id
	}
	if raw := strings.TrimSpace(q.Get("condition")); raw != "" {
		cond, err := enums.ParseListingCondition(raw)
		if err != nil {
			return Filter{}, pkgerrors.InvalidInput("condition", "condition must be new or used")
		}
		f.Condition = &cond
	}

	var err error
	if f.MinPrice, err = parsePrice(q, "minPrice"); err != nil {
		return Filter{}, err
	}
	if f.MaxPrice, err = parsePrice(q, "maxPrice"); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func parsePrice(q url.Values, field string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(q.Get(field))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, pkgerrors.InvalidInput(field, field+" must be a non-negative number")
	}
	return &d, nil
}
