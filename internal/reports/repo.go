package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateTx(tx *gorm.DB, report *models.Report) error {
	return tx.Create(report).Error
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// PageByStatus returns up to limit+1 reports in status after cursor, newest first.
func (r *Repository) PageByStatus(ctx context.Context, status enums.ReportStatus, cursor *pagination.Cursor, limit int) ([]models.Report, error) {
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Scopes(pagination.Keyset("id", cursor, limit)).
		Find(&rows).Error
	return rows, err
}

// Resolve closes an open report. It reports false when the report was not open.
func (r *Repository) Resolve(ctx context.Context, id uuid.UUID, status enums.ReportStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("id = ? AND status = ?", id, enums.ReportStatusOpen).
		Updates(map[string]any{"status": status, "resolved_at": at.UTC()})
	return res.RowsAffected == 1, res.Error
}
