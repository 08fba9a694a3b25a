package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketplace-backend/internal/profiles"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	pkgAuth "github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/auth/session"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-backend/pkg/stream"
)

var testJWT = config.JWTConfig{
	Secret:                 "secret",
	Issuer:                 "marketplace",
	ExpirationMinutes:      30,
	RefreshTokenTTLMinutes: 600,
}

var testPassword = config.PasswordConfig{
	ArgonMemoryKB:    1024,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

type stubSessions struct {
	mu       sync.Mutex
	sessions map[string]uuid.UUID
	tokens   map[string]string
	revoked  []string
}

func newStubSessions() *stubSessions {
	return &stubSessions{sessions: map[string]uuid.UUID{}, tokens: map[string]string{}}
}

func (s *stubSessions) Generate(_ context.Context, userID uuid.UUID) (session.Issued, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accessID := session.NewAccessID()
	token := "refresh-" + accessID
	s.sessions[accessID] = userID
	s.tokens[accessID] = token
	return session.Issued{AccessID: accessID, RefreshToken: token, UserID: userID}, nil
}

func (s *stubSessions) Rotate(ctx context.Context, oldAccessID, provided string) (session.Issued, error) {
	s.mu.Lock()
	userID, ok := s.sessions[oldAccessID]
	if !ok || s.tokens[oldAccessID] != provided {
		s.mu.Unlock()
		return session.Issued{}, session.ErrInvalidRefreshToken
	}
	delete(s.sessions, oldAccessID)
	delete(s.tokens, oldAccessID)
	s.mu.Unlock()
	return s.Generate(ctx, userID)
}

func (s *stubSessions) Revoke(_ context.Context, accessID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, accessID)
	delete(s.tokens, accessID)
	s.revoked = append(s.revoked, accessID)
	return nil
}

type stubTokens struct {
	mu     sync.Mutex
	values map[string]string
}

func (s *stubTokens) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = fmt.Sprint(value)
	return nil
}

func (s *stubTokens) GetDel(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", redislib.Nil
	}
	delete(s.values, key)
	return v, nil
}

func (s *stubTokens) VerificationKey(token string) string {
	return "mk:email_verify:" + token
}

type stubProfiles struct {
	ensured   []pkgAuth.Identity
	upserts   []profiles.Update
	stored    map[uuid.UUID]*profiles.ProfileDTO
	ensureErr error
}

func (s *stubProfiles) Upsert(ctx context.Context, u profiles.Update) (*profiles.ProfileDTO, error) {
	id, err := pkgAuth.Require(ctx)
	if err != nil {
		return nil, err
	}
	s.upserts = append(s.upserts, u)
	p := &profiles.ProfileDTO{
		UID:             id.UID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		Role:            u.Role,
		ProfileComplete: u.DisplayName != nil && u.Role != nil,
	}
	s.stored[id.UID] = p
	return p, nil
}

func (s *stubProfiles) Get(_ context.Context, uid uuid.UUID) (*profiles.ProfileDTO, error) {
	if p, ok := s.stored[uid]; ok {
		return p, nil
	}
	return nil, pkgerrors.NotFound("profile", uid.String())
}

func (s *stubProfiles) EnsureForIdentity(_ context.Context, id pkgAuth.Identity) (*profiles.ProfileDTO, error) {
	s.ensured = append(s.ensured, id)
	if s.ensureErr != nil {
		return nil, s.ensureErr
	}
	if p, ok := s.stored[id.UID]; ok {
		return p, nil
	}
	email := id.Email
	p := &profiles.ProfileDTO{UID: id.UID, Email: &email, DisplayName: id.DisplayName}
	s.stored[id.UID] = p
	return p, nil
}

type testEnv struct {
	conn     *gorm.DB
	svc      Service
	sessions *stubSessions
	tokens   *stubTokens
	profiles *stubProfiles
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:auth_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}, &models.OutboxEvent{}, &models.Profile{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	env := &testEnv{
		conn:     conn,
		sessions: newStubSessions(),
		tokens:   &stubTokens{values: map[string]string{}},
		profiles: &stubProfiles{stored: map[uuid.UUID]*profiles.ProfileDTO{}},
	}
	env.svc = env.build(t, env.profiles)
	return env
}

func (e *testEnv) build(t *testing.T, profileSvc profileService) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Users:          users.NewRepository(e.conn),
		Tx:             db.NewFromGorm(e.conn),
		Sessions:       e.sessions,
		Tokens:         e.tokens,
		Profiles:       profileSvc,
		Outbox:         outbox.NewService(outbox.NewRepository(e.conn), nil),
		JWTConfig:      testJWT,
		PasswordConfig: testPassword,
		Admin:          config.AdminConfig{Emails: []string{"Boss@Example.com"}},
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func (e *testEnv) verificationToken(t *testing.T) string {
	t.Helper()
	var row models.OutboxEvent
	if err := e.conn.Where("event_type = ?", enums.EventUserRegistered).Order("created_at DESC").First(&row).Error; err != nil {
		t.Fatalf("load registration event: %v", err)
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var event payloads.UserRegisteredEvent
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return event.VerificationToken
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestSignUpCreatesAccountAndProfile(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.svc.SignUp(context.Background(), RegisterRequest{
		Email:       "  Ana@Example.com ",
		Password:    "hunter22",
		DisplayName: "Ana",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if resp.User.Email != "ana@example.com" {
		t.Fatalf("expected normalized email, got %s", resp.User.Email)
	}
	if resp.User.SystemRole != enums.SystemRoleMember || resp.User.EmailVerified {
		t.Fatalf("unexpected user %+v", resp.User)
	}
	if resp.RefreshToken == "" || resp.AccessToken == "" {
		t.Fatal("expected tokens")
	}
	if len(env.profiles.upserts) != 1 || env.profiles.upserts[0].DisplayName == nil || *env.profiles.upserts[0].DisplayName != "Ana" {
		t.Fatalf("expected profile upsert with display name, got %+v", env.profiles.upserts)
	}
	if env.profiles.upserts[0].Role != nil {
		t.Fatalf("expected no role without one in the form, got %s", *env.profiles.upserts[0].Role)
	}
	if len(env.profiles.ensured) != 0 {
		t.Fatalf("sign up must write the profile, not only ensure it")
	}

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != resp.User.ID || claims.EmailVerified {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, ok := env.sessions.sessions[claims.ID]; !ok {
		t.Fatal("expected session bound to jti")
	}
	if env.verificationToken(t) == "" {
		t.Fatal("expected verification token in registration event")
	}
}

func TestSignUpValidationAndConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SignUp(ctx, RegisterRequest{Email: "not-an-email", Password: "hunter22"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for email, got %v", err)
	}
	_, err = env.svc.SignUp(ctx, RegisterRequest{Email: "ana@example.com", Password: "12345"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for password, got %v", err)
	}
	_, err = env.svc.SignUp(ctx, RegisterRequest{Email: "ana@example.com", Password: "hunter22", Role: "vendor"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for role, got %v", err)
	}
	if _, err := env.svc.SignUp(ctx, RegisterRequest{Email: "ana@example.com", Password: "hunter22"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	_, err = env.svc.SignUp(ctx, RegisterRequest{Email: "ANA@example.com", Password: "hunter22"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSignUpGrantsAdminRoleToConfiguredEmails(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.svc.SignUp(context.Background(), RegisterRequest{Email: "boss@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if resp.User.SystemRole != enums.SystemRoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.User.SystemRole)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.SignUp(ctx, RegisterRequest{Email: "ana@example.com", Password: "hunter22"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	for _, req := range []LoginRequest{
		{Email: "ana@example.com", Password: "wrong-password"},
		{Email: "nobody@example.com", Password: "hunter22"},
		{Email: "  ", Password: "hunter22"},
	} {
		_, err := env.svc.SignIn(ctx, req)
		if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %+v, got %v", req, err)
		}
	}

	resp, err := env.svc.SignIn(ctx, LoginRequest{Email: "ANA@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if resp.User.LastLoginAt == nil {
		t.Fatal("expected last login to be recorded")
	}
	if resp.Profile == nil {
		t.Fatal("expected profile to be ensured on sign in")
	}
}

func TestSignUpWithNameAndRoleCompletesProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	profileSvc, err := profiles.NewService(profiles.ServiceParams{
		Repo:    profiles.NewRepository(env.conn),
		Changes: stream.NewBroker(),
		Now:     func() time.Time { return clock },
	})
	if err != nil {
		t.Fatalf("build profile service: %v", err)
	}
	svc := env.build(t, profileSvc)

	resp, err := svc.SignUp(ctx, RegisterRequest{
		Email:       "ana@example.com",
		Password:    "hunter22",
		DisplayName: "Ana",
		Role:        enums.ProfileRoleProfessional,
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if resp.Profile == nil || !resp.Profile.ProfileComplete {
		t.Fatalf("expected a complete profile after sign up, got %+v", resp.Profile)
	}
	if resp.Profile.Role == nil || *resp.Profile.Role != enums.ProfileRoleProfessional {
		t.Fatalf("expected role carried into the profile, got %+v", resp.Profile.Role)
	}
	signedUpAt := resp.Profile.UpdatedAt

	clock = clock.Add(time.Hour)
	signedIn, err := svc.SignIn(ctx, LoginRequest{Email: "ana@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if signedIn.Profile == nil || !signedIn.Profile.ProfileComplete {
		t.Fatalf("expected the stored profile on sign in, got %+v", signedIn.Profile)
	}
	if !signedIn.Profile.UpdatedAt.Equal(signedUpAt) {
		t.Fatalf("sign in must not rewrite the profile: updated %s, was %s", signedIn.Profile.UpdatedAt, signedUpAt)
	}
}

func TestSignInSurvivesProfileFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.SignUp(ctx, RegisterRequest{Email: "ana@example.com", Password: "hunter22"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	env.profiles.ensureErr = pkgerrors.StoreUnavailable(errors.New("db down"), "load profile")

	resp, err := env.svc.SignIn(ctx, LoginRequest{Email: "ana@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if resp.Profile != nil {
		t.Fatalf("expected no profile in the response, got %+v", resp.Profile)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if _, ok := env.sessions.sessions[claims.ID]; !ok {
		t.Fatal("expected the session to stay open")
	}
	if len(env.sessions.revoked) != 0 {
		t.Fatalf("expected no revocation, got %v", env.sessions.revoked)
	}
}

func TestVerifyEmailIsSingleUseAndRefreshPicksItUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signedUp, err := env.svc.SignUp(ctx, RegisterRequest{Email: "ana@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	token := env.verificationToken(t)

	if err := env.svc.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	if err := env.svc.VerifyEmail(ctx, token); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected second use to fail validation, got %v", err)
	}

	refreshed, err := env.svc.Refresh(ctx, signedUp.AccessToken, signedUp.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if !claims.EmailVerified {
		t.Fatal("expected refreshed token to carry verified email")
	}

	if _, err := env.svc.Refresh(ctx, signedUp.AccessToken, signedUp.RefreshToken); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected rotated refresh token to be rejected, got %v", err)
	}
}

func TestSignOutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.svc.SignOut(ctx); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized without identity, got %v", err)
	}

	resp, err := env.svc.SignUp(ctx, RegisterRequest{Email: "ana@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if err := env.svc.SignOut(pkgAuth.WithIdentity(ctx, claims.Identity())); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, ok := env.sessions.sessions[claims.ID]; ok {
		t.Fatal("expected session to be revoked")
	}
}

func TestCurrentIdentityFillsProfileFields(t *testing.T) {
	env := newTestEnv(t)
	uid := uuid.New()
	name := "Ana"
	env.profiles.stored[uid] = &profiles.ProfileDTO{UID: uid, DisplayName: &name}

	ctx := pkgAuth.WithIdentity(context.Background(), pkgAuth.Identity{UID: uid, Role: enums.SystemRoleMember})
	id, err := env.svc.CurrentIdentity(ctx)
	if err != nil {
		t.Fatalf("current identity: %v", err)
	}
	if id.DisplayName == nil || *id.DisplayName != "Ana" {
		t.Fatalf("expected display name from profile, got %+v", id)
	}

	other := pkgAuth.WithIdentity(context.Background(), pkgAuth.Identity{UID: uuid.New(), Role: enums.SystemRoleMember})
	if _, err := env.svc.CurrentIdentity(other); err != nil {
		t.Fatalf("missing profile should not fail: %v", err)
	}
}
