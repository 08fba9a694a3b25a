package auth

import (
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	Email         string
	EmailVerified bool
	Role          enums.SystemRole
	JTI           string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID        uuid.UUID        `json:"user_id"`
	Email         string           `json:"email,omitempty"`
	EmailVerified bool             `json:"email_verified"`
	Role          enums.SystemRole `json:"role"`
	jwt.RegisteredClaims
}

// Identity builds the request identity carried by the claims.
func (c *AccessTokenClaims) Identity() Identity {
	return Identity{
		UID:           c.UserID,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Role:          c.Role,
		SessionID:     c.ID,
	}
}
