package auth

import (
	"github.com/angelmondragon/marketplace-backend/internal/profiles"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// RegisterRequest is the email sign-up form. Name and role seed the profile.
type RegisterRequest struct {
	Email       string            `json:"email" validate:"required,email"`
	Password    string            `json:"password" validate:"required,min=6"`
	DisplayName string            `json:"display_name" validate:"omitempty,max=80"`
	Role        enums.ProfileRole `json:"role,omitempty" validate:"omitempty,enum"`
}

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries the opaque refresh token. The access token travels
// in the Authorization header and may already be expired.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// TokenResponse contains the tokens, user and profile produced by a
// successful sign-up, sign-in or refresh.
type TokenResponse struct {
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
	User         *users.UserDTO       `json:"user"`
	Profile      *profiles.ProfileDTO `json:"profile,omitempty"`
}
