package listings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/visibility"
)

// Query selects listings. Zero fields do not constrain.
type Query struct {
	Status  *enums.ListingStatus
	OwnerID *uuid.UUID
	Filter  visibility.Filter
}

func (q Query) scope(db *gorm.DB) *gorm.DB {
	if q.Status != nil {
		db = db.Where("status = ?", *q.Status)
	}
	if q.OwnerID != nil {
		db = db.Where("owner_id = ?", *q.OwnerID)
	}
	return db.Scopes(visibility.Scope(q.Filter))
}

// Repository is the Listing Store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateTx(tx *gorm.DB, listing *models.Listing) error {
	return tx.Create(listing).Error
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// Page returns up to limit+1 rows after cursor, newest first.
func (r *Repository) Page(ctx context.Context, q Query, cursor *pagination.Cursor, limit int) ([]models.Listing, error) {
	var rows []models.Listing
	err := r.db.WithContext(ctx).
		Scopes(q.scope, pagination.Keyset("id", cursor, limit)).
		Find(&rows).Error
	return rows, err
}

// Snapshot returns the newest limit rows matching q.
func (r *Repository) Snapshot(ctx context.Context, q Query, limit int) ([]models.Listing, error) {
	var rows []models.Listing
	err := r.db.WithContext(ctx).
		Scopes(q.scope).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// TransitionStatusTx moves the listing from one status to another only if it
// is still in from. It reports whether the row changed.
func (r *Repository) TransitionStatusTx(tx *gorm.DB, id uuid.UUID, from, to enums.ListingStatus) (bool, error) {
	res := tx.Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

// PendingBefore lists pending listings created before cutoff, oldest first.
func (r *Repository) PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Listing, error) {
	var rows []models.Listing
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.ListingStatusPending, cutoff.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
