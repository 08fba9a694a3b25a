package profiles

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Update is a partial profile write. Nil and blank values mean "not supplied".
type Update struct {
	Email       *string
	DisplayName *string
	PhoneNumber *string
	Role        *enums.ProfileRole
	PhotoURL    *string
	// Complete, when set, overrides the derived completeness.
	Complete *bool
}

// Reconciled is the next persisted state plus the columns the write owns.
type Reconciled struct {
	Profile models.Profile
	// Columns lists the columns to overwrite when the row already exists.
	// created_at is never included, and profile_complete only when the
	// update carries an explicit flag.
	Columns []string
	// DeriveComplete asks the store to recompute profile_complete from the
	// merged row on conflict. Set whenever the update has no explicit flag.
	DeriveComplete bool
	Created        bool
}

// Reconcile merges u into existing (nil when the profile does not exist yet).
func Reconcile(uid uuid.UUID, existing *models.Profile, u Update, now time.Time) Reconciled {
	var prev models.Profile
	if existing != nil {
		prev = *existing
	}

	next := models.Profile{
		UID:         uid,
		Email:       firstNonEmpty(u.Email, prev.Email),
		DisplayName: firstNonEmpty(u.DisplayName, prev.DisplayName),
		PhoneNumber: firstNonEmpty(u.PhoneNumber, prev.PhoneNumber),
		Role:        firstRole(u.Role, prev.Role),
		PhotoURL:    firstNonEmpty(u.PhotoURL, prev.PhotoURL),
		UpdatedAt:   now,
	}

	derived := next.DisplayName != nil && next.Role != nil
	var stored *bool
	if existing != nil {
		stored = &existing.ProfileComplete
	}
	next.ProfileComplete = firstBool(u.Complete, &derived, stored)

	if existing != nil && !existing.CreatedAt.IsZero() {
		next.CreatedAt = existing.CreatedAt
	} else {
		next.CreatedAt = now
	}

	cols, derive := touchedColumns(u)
	return Reconciled{
		Profile:        next,
		Columns:        cols,
		DeriveComplete: derive,
		Created:        existing == nil,
	}
}

// touchedColumns never lets a writer store a completeness value computed
// from its own, possibly stale, read: without an explicit flag the store
// derives it from the merged row instead.
func touchedColumns(u Update) ([]string, bool) {
	cols := make([]string, 0, 7)
	if present(u.Email) {
		cols = append(cols, "email")
	}
	if present(u.DisplayName) {
		cols = append(cols, "display_name")
	}
	if present(u.PhoneNumber) {
		cols = append(cols, "phone_number")
	}
	if u.Role != nil && *u.Role != "" {
		cols = append(cols, "role")
	}
	if present(u.PhotoURL) {
		cols = append(cols, "photo_url")
	}
	if u.Complete != nil {
		return append(cols, "profile_complete", "updated_at"), false
	}
	return append(cols, "updated_at"), true
}

// firstNonEmpty returns a trimmed copy of the first value that is non-blank.
func firstNonEmpty(values ...*string) *string {
	for _, v := range values {
		if !present(v) {
			continue
		}
		trimmed := strings.TrimSpace(*v)
		return &trimmed
	}
	return nil
}

func firstRole(values ...*enums.ProfileRole) *enums.ProfileRole {
	for _, v := range values {
		if v != nil && *v != "" {
			role := *v
			return &role
		}
	}
	return nil
}

// firstBool returns the first supplied value, or false.
func firstBool(values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return false
}

func present(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}
