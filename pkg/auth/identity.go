package auth

import (
	"context"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/google/uuid"
)

// Identity is the authenticated principal of a request. It travels on the
// request context; nothing in the process holds a global session.
type Identity struct {
	UID           uuid.UUID
	Email         string
	EmailVerified bool
	Role          enums.SystemRole
	SessionID     string

	// Profile-backed fields, filled when a caller loaded the profile.
	DisplayName *string
	PhoneNumber *string
	PhotoURL    *string
}

// IsAdmin reports whether the identity may use administrative routes.
func (i Identity) IsAdmin() bool {
	return i.Role == enums.SystemRoleAdmin
}

// CanPublish reports whether the identity may submit listings. Accounts
// without an email (none today, but allowed by the model) are not blocked.
func (i Identity) CanPublish() bool {
	return i.Email == "" || i.EmailVerified
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity set by the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.UID == uuid.Nil {
		return Identity{}, false
	}
	return id, true
}

// Require returns the context identity or a NotAuthenticated error.
func Require(ctx context.Context) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, pkgerrors.NotAuthenticated("")
	}
	return id, nil
}

// RequireAdmin is Require plus the admin system role.
func RequireAdmin(ctx context.Context) (Identity, error) {
	id, err := Require(ctx)
	if err != nil {
		return Identity{}, err
	}
	if !id.IsAdmin() {
		return Identity{}, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return id, nil
}
