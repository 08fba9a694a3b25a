package reports

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

type ReportDTO struct {
	ID         uuid.UUID              `json:"id"`
	TargetType enums.ReportTargetType `json:"target_type"`
	TargetID   uuid.UUID              `json:"target_id"`
	ReporterID uuid.UUID              `json:"reporter_id"`
	Reason     string                 `json:"reason"`
	Status     enums.ReportStatus     `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
}

type CreateInput struct {
	Reason string `json:"reason" validate:"required,min=5,max=1000"`
}

type ResolutionInput struct {
	Status enums.ReportStatus `json:"status" validate:"required,oneof=resolved dismissed"`
}

func FromModel(r *models.Report) *ReportDTO {
	if r == nil {
		return nil
	}
	return &ReportDTO{
		ID:         r.ID,
		TargetType: r.TargetType,
		TargetID:   r.TargetID,
		ReporterID: r.ReporterID,
		Reason:     r.Reason,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		ResolvedAt: r.ResolvedAt,
	}
}
