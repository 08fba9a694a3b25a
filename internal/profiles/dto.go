package profiles

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

type ProfileDTO struct {
	UID             uuid.UUID          `json:"uid"`
	Email           *string            `json:"email"`
	DisplayName     *string            `json:"display_name"`
	PhoneNumber     *string            `json:"phone_number"`
	Role            *enums.ProfileRole `json:"role"`
	PhotoURL        *string            `json:"photo_url"`
	ProfileComplete bool               `json:"profile_complete"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// CompleteInput is the onboarding form.
type CompleteInput struct {
	DisplayName string            `json:"display_name" validate:"required,min=2,max=80"`
	Role        enums.ProfileRole `json:"role" validate:"required,enum"`
	PhoneNumber *string           `json:"phone_number,omitempty" validate:"omitempty,max=32"`
}

// UpdateInfoInput is the account page edit; every field is optional.
type UpdateInfoInput struct {
	DisplayName *string            `json:"display_name,omitempty" validate:"omitempty,min=2,max=80"`
	Role        *enums.ProfileRole `json:"role,omitempty"`
	PhoneNumber *string            `json:"phone_number,omitempty" validate:"omitempty,max=32"`
	PhotoURL    *string            `json:"photo_url,omitempty" validate:"omitempty,url"`
}

func FromModel(p *models.Profile) *ProfileDTO {
	if p == nil {
		return nil
	}
	return &ProfileDTO{
		UID:             p.UID,
		Email:           p.Email,
		DisplayName:     p.DisplayName,
		PhoneNumber:     p.PhoneNumber,
		Role:            p.Role,
		PhotoURL:        p.PhotoURL,
		ProfileComplete: p.ProfileComplete,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
