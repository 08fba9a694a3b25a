package models

import (
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the credential record behind an identity. Its ID doubles as the
// profile uid.
type User struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey"`
	Email         string           `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash  string           `gorm:"column:password_hash;not null"`
	EmailVerified bool             `gorm:"column:email_verified;not null;default:false"`
	SystemRole    enums.SystemRole `gorm:"column:system_role;type:text;not null"`
	IsActive      bool             `gorm:"column:is_active;not null;default:true"`
	LastLoginAt   *time.Time       `gorm:"column:last_login_at"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
