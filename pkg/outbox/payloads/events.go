package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// UserRegisteredEvent carries the verification token consumed by the mailer.
type UserRegisteredEvent struct {
	UserID            uuid.UUID `json:"user_id"`
	Email             string    `json:"email"`
	DisplayName       string    `json:"display_name,omitempty"`
	VerificationToken string    `json:"verification_token"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// ListingSubmittedEvent is emitted once a listing enters the moderation queue.
type ListingSubmittedEvent struct {
	ListingID  uuid.UUID       `json:"listing_id"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	CategoryID uuid.UUID       `json:"category_id"`
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	PhotoCount int             `json:"photo_count"`
}

// ListingModeratedEvent records an admin decision.
type ListingModeratedEvent struct {
	ListingID   uuid.UUID           `json:"listing_id"`
	OwnerID     uuid.UUID           `json:"owner_id"`
	ModeratorID uuid.UUID           `json:"moderator_id"`
	Previous    enums.ListingStatus `json:"previous_status"`
	Status      enums.ListingStatus `json:"status"`
	Reason      *string             `json:"reason,omitempty"`
}

type ListingReportedEvent struct {
	ReportID   uuid.UUID `json:"report_id"`
	ListingID  uuid.UUID `json:"listing_id"`
	ReporterID uuid.UUID `json:"reporter_id"`
	Reason     string    `json:"reason"`
}

// ListingModerationOverdueEvent flags a listing that has waited too long.
type ListingModerationOverdueEvent struct {
	ListingID   uuid.UUID `json:"listing_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	WaitingFor  string    `json:"waiting_for"`
}
