package models

import (
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/google/uuid"
)

// Profile is the public-facing data of a marketplace member. Timestamps are
// managed by the reconciler, not by gorm callbacks.
type Profile struct {
	UID             uuid.UUID          `gorm:"column:uid;type:uuid;primaryKey"`
	Email           *string            `gorm:"column:email"`
	DisplayName     *string            `gorm:"column:display_name"`
	PhoneNumber     *string            `gorm:"column:phone_number"`
	Role            *enums.ProfileRole `gorm:"column:role;type:text"`
	PhotoURL        *string            `gorm:"column:photo_url"`
	ProfileComplete bool               `gorm:"column:profile_complete;not null"`
	CreatedAt       time.Time          `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (Profile) TableName() string { return "profiles" }
