package models

import (
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Listing is an item offered for sale. Only Status changes after creation.
type Listing struct {
	ID          uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	Title       string                      `gorm:"column:title;not null"`
	Description string                      `gorm:"column:description;not null"`
	Price       decimal.Decimal             `gorm:"column:price;type:numeric(12,2);not null"`
	CategoryID  uuid.UUID                   `gorm:"column:category_id;type:uuid;not null;index"`
	OwnerID     uuid.UUID                   `gorm:"column:owner_id;type:uuid;not null;index"`
	Condition   enums.ListingCondition      `gorm:"column:condition;type:text;not null"`
	Location    *string                     `gorm:"column:location"`
	Photos      datatypes.JSONSlice[string] `gorm:"column:photos;not null"`
	Status      enums.ListingStatus         `gorm:"column:status;type:text;not null;index"`
	CreatedAt   time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (l *Listing) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = enums.ListingStatusPending
	}
	return nil
}
