package listings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

type ListingDTO struct {
	ID          uuid.UUID              `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Price       decimal.Decimal        `json:"price"`
	CategoryID  uuid.UUID              `json:"category_id"`
	OwnerID     uuid.UUID              `json:"owner_id"`
	Condition   enums.ListingCondition `json:"condition"`
	Location    *string                `json:"location,omitempty"`
	Photos      []string               `json:"photos"`
	Status      enums.ListingStatus    `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
}

// CreateInput is a listing submission. Photos are uploaded before the row
// is written.
type CreateInput struct {
	Title       string                 `json:"title" validate:"required,min=3,max=120"`
	Description string                 `json:"description" validate:"required,min=10,max=5000"`
	Price       decimal.Decimal        `json:"price" validate:"nonnegative"`
	CategoryID  uuid.UUID              `json:"category_id" validate:"required"`
	Condition   enums.ListingCondition `json:"condition" validate:"required,enum"`
	Location    *string                `json:"location,omitempty" validate:"omitempty,max=120"`
	Photos      []PhotoUpload          `json:"-" validate:"-"`
}

// ModerationInput is the admin decision on a listing.
type ModerationInput struct {
	Decision enums.ListingStatus `json:"decision" validate:"required,oneof=approved rejected"`
	Reason   *string             `json:"reason,omitempty" validate:"omitempty,max=500"`
}

func FromModel(l *models.Listing) *ListingDTO {
	if l == nil {
		return nil
	}
	photos := append([]string{}, l.Photos...)
	return &ListingDTO{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		Price:       l.Price,
		CategoryID:  l.CategoryID,
		OwnerID:     l.OwnerID,
		Condition:   l.Condition,
		Location:    l.Location,
		Photos:      photos,
		Status:      l.Status,
		CreatedAt:   l.CreatedAt,
	}
}

func fromModels(rows []models.Listing) []ListingDTO {
	out := make([]ListingDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
