package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/profiles"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	pkgAuth "github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/auth/session"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-backend/pkg/security"
	redislib "github.com/redis/go-redis/v9"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	verificationTokenBytes    = 32
)

var emailValidator = validator.New()

// Service is the identity provider: account sign-up and sign-in, refresh
// session rotation and email verification.
type Service interface {
	SignUp(ctx context.Context, req RegisterRequest) (*TokenResponse, error)
	SignIn(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	SignOut(ctx context.Context) error
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error)
	VerifyEmail(ctx context.Context, token string) error
	CurrentIdentity(ctx context.Context) (pkgAuth.Identity, error)
}

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type sessionManager interface {
	Generate(ctx context.Context, userID uuid.UUID) (session.Issued, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (session.Issued, error)
	Revoke(ctx context.Context, accessID string) error
}

// tokenStore keeps single-use email verification tokens.
type tokenStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	VerificationKey(token string) string
}

type profileService interface {
	Get(ctx context.Context, uid uuid.UUID) (*profiles.ProfileDTO, error)
	Upsert(ctx context.Context, u profiles.Update) (*profiles.ProfileDTO, error)
	EnsureForIdentity(ctx context.Context, id pkgAuth.Identity) (*profiles.ProfileDTO, error)
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Users          userRepository
	Tx             txRunner
	Sessions       sessionManager
	Tokens         tokenStore
	Profiles       profileService
	Outbox         outbox.Emitter
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Admin          config.AdminConfig
	VerifyTTL      time.Duration
	Logger         *logger.Logger
}

type service struct {
	users       userRepository
	tx          txRunner
	sessions    sessionManager
	tokens      tokenStore
	profiles    profileService
	outbox      outbox.Emitter
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	admin       config.AdminConfig
	verifyTTL   time.Duration
	logg        *logger.Logger
	now         func() time.Time
}

// NewService constructs the identity service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Users == nil:
		return nil, fmt.Errorf("user repository is required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner is required")
	case params.Sessions == nil:
		return nil, fmt.Errorf("session manager is required")
	case params.Tokens == nil:
		return nil, fmt.Errorf("verification token store is required")
	case params.Profiles == nil:
		return nil, fmt.Errorf("profile service is required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter is required")
	}
	ttl := params.VerifyTTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &service{
		users:       params.Users,
		tx:          params.Tx,
		sessions:    params.Sessions,
		tokens:      params.Tokens,
		profiles:    params.Profiles,
		outbox:      params.Outbox,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		admin:       params.Admin,
		verifyTTL:   ttl,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

func (s *service) SignUp(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	email := normalizeEmail(req.Email)
	if err := emailValidator.Var(email, "required,email"); err != nil {
		return nil, pkgerrors.InvalidInput("email", "a valid email is required")
	}
	if err := security.ValidatePassword(req.Password); err != nil {
		return nil, pkgerrors.InvalidInput("password", err.Error())
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if req.Role != "" && !req.Role.IsValid() {
		return nil, pkgerrors.InvalidInput("role", "role must be individual or professional")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	token, err := security.RandomToken(verificationTokenBytes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate verification token")
	}

	role := enums.SystemRoleMember
	if s.admin.IsAdminEmail(email) {
		role = enums.SystemRoleAdmin
	}
	expiresAt := s.now().UTC().Add(s.verifyTTL)

	var user *models.User
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)

		if _, err := userRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !db.IsNotFound(err) {
			return pkgerrors.StoreUnavailable(err, "check user email")
		}

		created, err := userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: passwordHash,
			SystemRole:   role,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.StoreUnavailable(err, "create user")
		}
		user = created

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserRegistered,
			AggregateType: enums.AggregateUser,
			AggregateID:   created.ID,
			Actor:         &outbox.ActorRef{UserID: created.ID, Role: string(role)},
			Data: payloads.UserRegisteredEvent{
				UserID:            created.ID,
				Email:             email,
				DisplayName:       displayName,
				VerificationToken: token,
				ExpiresAt:         expiresAt,
			},
		}); err != nil {
			return pkgerrors.StoreUnavailable(err, "queue registration event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Set(ctx, s.tokens.VerificationKey(token), user.ID.String(), s.verifyTTL); err != nil {
		// The account exists; the user can still sign in and request a new link.
		s.warn(ctx, user.ID, "store verification token", err)
	}

	identity := identityFor(user)
	seed := profiles.Update{Email: &user.Email}
	if displayName != "" {
		identity.DisplayName = &displayName
		seed.DisplayName = &displayName
	}
	if req.Role != "" {
		role := req.Role
		seed.Role = &role
	}
	return s.issue(ctx, user, func(ctx context.Context) (*profiles.ProfileDTO, error) {
		return s.profiles.Upsert(pkgAuth.WithIdentity(ctx, identity), seed)
	})
}

func (s *service) SignIn(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.StoreUnavailable(err, "update last login")
	}
	user.LastLoginAt = &now
	return s.issue(ctx, user, func(ctx context.Context) (*profiles.ProfileDTO, error) {
		return s.profiles.EnsureForIdentity(ctx, identityFor(user))
	})
}

// SignOut revokes the refresh session bound to the caller's access token.
func (s *service) SignOut(ctx context.Context) error {
	id, err := pkgAuth.Require(ctx)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, id.SessionID); err != nil {
		return pkgerrors.StoreUnavailable(err, "revoke session")
	}
	return nil
}

// Refresh rotates the refresh session and mints a new access token from the
// current account row, so verification and role changes take effect.
func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.NotAuthenticated("invalid access token")
	}
	issued, err := s.sessions.Rotate(ctx, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.NotAuthenticated("invalid refresh token")
		}
		return nil, pkgerrors.StoreUnavailable(err, "rotate session")
	}
	if issued.UserID != claims.UserID {
		_ = s.sessions.Revoke(ctx, issued.AccessID)
		return nil, pkgerrors.NotAuthenticated("invalid refresh token")
	}

	user, err := s.users.FindByID(ctx, issued.UserID)
	if err != nil {
		_ = s.sessions.Revoke(ctx, issued.AccessID)
		if db.IsNotFound(err) {
			return nil, pkgerrors.NotAuthenticated("account no longer exists")
		}
		return nil, pkgerrors.StoreUnavailable(err, "lookup user")
	}
	if !user.IsActive {
		_ = s.sessions.Revoke(ctx, issued.AccessID)
		return nil, pkgerrors.NotAuthenticated(invalidCredentialsMessage)
	}
	return s.mint(user, issued, nil)
}

// VerifyEmail consumes a verification token. Tokens are single use.
func (s *service) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return pkgerrors.InvalidInput("token", "token is required")
	}
	raw, err := s.tokens.GetDel(ctx, s.tokens.VerificationKey(token))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return pkgerrors.InvalidInput("token", "verification link is invalid or expired")
		}
		return pkgerrors.StoreUnavailable(err, "read verification token")
	}
	uid, err := uuid.Parse(raw)
	if err != nil {
		return pkgerrors.InvalidInput("token", "verification link is invalid or expired")
	}
	if _, err := s.users.MarkEmailVerified(ctx, uid); err != nil {
		return pkgerrors.StoreUnavailable(err, "mark email verified")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithUserID(ctx, uid.String()), "email verified")
	}
	return nil
}

// CurrentIdentity returns the request identity with its profile fields
// filled in. A missing profile leaves them empty.
func (s *service) CurrentIdentity(ctx context.Context) (pkgAuth.Identity, error) {
	id, err := pkgAuth.Require(ctx)
	if err != nil {
		return pkgAuth.Identity{}, err
	}
	profile, err := s.profiles.Get(ctx, id.UID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return id, nil
		}
		return pkgAuth.Identity{}, err
	}
	id.DisplayName = profile.DisplayName
	id.PhoneNumber = profile.PhoneNumber
	id.PhotoURL = profile.PhotoURL
	return id, nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	input := normalizeEmail(email)
	if input == "" {
		return nil, pkgerrors.NotAuthenticated(invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, input)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.NotAuthenticated(invalidCredentialsMessage)
		}
		return nil, pkgerrors.StoreUnavailable(err, "lookup user")
	}

	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || !user.IsActive {
		return nil, pkgerrors.NotAuthenticated(invalidCredentialsMessage)
	}
	return user, nil
}

// issue opens a refresh session, mints the access token and attaches the
// profile produced by syncProfile. A profile failure is logged and the
// response carries no profile; the session stays valid.
func (s *service) issue(ctx context.Context, user *models.User, syncProfile func(context.Context) (*profiles.ProfileDTO, error)) (*TokenResponse, error) {
	issued, err := s.sessions.Generate(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.StoreUnavailable(err, "store refresh token")
	}
	profile, err := syncProfile(ctx)
	if err != nil {
		s.warn(ctx, user.ID, "sync profile", err)
		profile = nil
	}
	return s.mint(user, issued, profile)
}

func (s *service) mint(user *models.User, issued session.Issued, profile *profiles.ProfileDTO) (*TokenResponse, error) {
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now().UTC(), pkgAuth.AccessTokenPayload{
		UserID:        user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Role:          user.SystemRole,
		JTI:           issued.AccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: issued.RefreshToken,
		User:         users.FromModel(user),
		Profile:      profile,
	}, nil
}

func (s *service) warn(ctx context.Context, uid uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, uid.String()), map[string]any{"error": err.Error()})
	s.logg.Warn(logCtx, msg)
}

func identityFor(user *models.User) pkgAuth.Identity {
	return pkgAuth.Identity{
		UID:           user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Role:          user.SystemRole,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
