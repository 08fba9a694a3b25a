package models

import (
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Report is an abuse report filed against a listing.
type Report struct {
	ID         uuid.UUID              `gorm:"type:uuid;primaryKey"`
	TargetType enums.ReportTargetType `gorm:"column:target_type;type:text;not null"`
	TargetID   uuid.UUID              `gorm:"column:target_id;type:uuid;not null;index"`
	ReporterID uuid.UUID              `gorm:"column:reporter_id;type:uuid;not null"`
	Reason     string                 `gorm:"column:reason;not null"`
	Status     enums.ReportStatus     `gorm:"column:status;type:text;not null;index"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt *time.Time             `gorm:"column:resolved_at"`
}

func (r *Report) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = enums.ReportStatusOpen
	}
	return nil
}
