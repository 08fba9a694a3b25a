package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// UserDTO is the transport shape that omits credentials.
type UserDTO struct {
	ID            uuid.UUID        `json:"id"`
	Email         string           `json:"email"`
	EmailVerified bool             `json:"email_verified"`
	SystemRole    enums.SystemRole `json:"system_role"`
	IsActive      bool             `json:"is_active"`
	LastLoginAt   *time.Time       `json:"last_login_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	SystemRole   enums.SystemRole
	IsActive     *bool
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		SystemRole:    u.SystemRole,
		IsActive:      u.IsActive,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	isActive := true
	if c.IsActive != nil {
		isActive = *c.IsActive
	}
	role := c.SystemRole
	if role == "" {
		role = enums.SystemRoleMember
	}
	return &models.User{
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		SystemRole:   role,
		IsActive:     isActive,
	}
}
