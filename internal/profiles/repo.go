package profiles

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Repository is the Profile Store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Get returns gorm.ErrRecordNotFound when uid has no profile.
func (r *Repository) Get(ctx context.Context, uid uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, "uid = ?", uid).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// derivedComplete evaluates completeness against the row as it will be after
// the conflict update: the incoming value when written, the stored one
// otherwise. Merges never clear a field, so a non-null incoming value is
// never staler than the stored one.
const derivedComplete = "COALESCE(excluded.display_name, profiles.display_name) IS NOT NULL" +
	" AND COALESCE(excluded.role, profiles.role) IS NOT NULL"

// UpsertMerge inserts rec.Profile or, when the uid exists, overwrites only
// rec.Columns.
func (r *Repository) UpsertMerge(ctx context.Context, rec Reconciled) error {
	profile := rec.Profile
	set := clause.AssignmentColumns(rec.Columns)
	if rec.DeriveComplete {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: "profile_complete"},
			Value:  gorm.Expr(derivedComplete),
		})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uid"}},
			DoUpdates: set,
		}).
		Create(&profile).Error
}

// ListByRole pages through profiles with the given role, newest first.
func (r *Repository) ListByRole(ctx context.Context, role enums.ProfileRole, cursor *pagination.Cursor, limit int) ([]models.Profile, error) {
	var rows []models.Profile
	err := r.db.WithContext(ctx).
		Where("role = ?", role).
		Scopes(pagination.Keyset("uid", cursor, limit)).
		Find(&rows).Error
	return rows, err
}
