package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgAuth "github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/auth/session"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// caller's identity.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.NotAuthenticated("missing credentials"))
				return
			}

			identity, err := authenticate(r, cfg, verifier, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r, logg, identity)))
		})
	}
}

// OptionalAuth attaches the identity when a valid token is present and lets
// anonymous requests through. A token that is present but invalid is still
// rejected so clients notice expired credentials.
func OptionalAuth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := authenticate(r, cfg, verifier, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r, logg, identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

func authenticate(r *http.Request, cfg config.JWTConfig, verifier session.AccessSessionChecker, token string) (pkgAuth.Identity, error) {
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return pkgAuth.Identity{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return pkgAuth.Identity{}, pkgerrors.NotAuthenticated("missing session id")
	}

	if verifier != nil {
		ok, err := verifier.HasSession(r.Context(), claims.ID)
		if err != nil {
			return pkgAuth.Identity{}, pkgerrors.StoreUnavailable(err, "validate session")
		}
		if !ok {
			return pkgAuth.Identity{}, pkgerrors.NotAuthenticated("session unavailable")
		}
	}
	return claims.Identity(), nil
}

func withIdentity(r *http.Request, logg *logger.Logger, identity pkgAuth.Identity) context.Context {
	ctx := pkgAuth.WithIdentity(r.Context(), identity)
	if logg != nil {
		ctx = logg.WithUserID(ctx, identity.UID.String())
		ctx = logg.WithActorRole(ctx, string(identity.Role))
	}
	return ctx
}
