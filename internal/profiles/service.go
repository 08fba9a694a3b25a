package profiles

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/stream"
)

const minDisplayNameLength = 2

type profileRepository interface {
	Get(ctx context.Context, uid uuid.UUID) (*models.Profile, error)
	UpsertMerge(ctx context.Context, rec Reconciled) error
	ListByRole(ctx context.Context, role enums.ProfileRole, cursor *pagination.Cursor, limit int) ([]models.Profile, error)
}

// ChangeFeed publishes and subscribes to change notifications.
type ChangeFeed interface {
	stream.Source
	stream.Notifier
}

// Service exposes profile reads and the reconciling writes.
type Service interface {
	Get(ctx context.Context, uid uuid.UUID) (*ProfileDTO, error)
	Me(ctx context.Context) (*ProfileDTO, error)
	Upsert(ctx context.Context, u Update) (*ProfileDTO, error)
	Complete(ctx context.Context, input CompleteInput) (*ProfileDTO, error)
	UpdateInfo(ctx context.Context, input UpdateInfoInput) (*ProfileDTO, error)
	EnsureForIdentity(ctx context.Context, id auth.Identity) (*ProfileDTO, error)
	ListProfessionals(ctx context.Context, params pagination.Params) (pagination.Page[ProfileDTO], error)
	Watch(ctx context.Context) (*stream.Stream[*ProfileDTO], error)
}

type ServiceParams struct {
	Repo    profileRepository
	Changes ChangeFeed
	Logger  *logger.Logger
	Metrics *metrics.Marketplace
	Now     func() time.Time
}

type service struct {
	repo    profileRepository
	changes ChangeFeed
	logg    *logger.Logger
	metrics *metrics.Marketplace
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("profile repository required")
	}
	if params.Changes == nil {
		return nil, errors.New("change feed required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		changes: params.Changes,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (s *service) Get(ctx context.Context, uid uuid.UUID) (*ProfileDTO, error) {
	profile, err := s.load(ctx, uid)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, pkgerrors.NotFound("profile", uid.String())
	}
	return FromModel(profile), nil
}

func (s *service) Me(ctx context.Context) (*ProfileDTO, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id.UID)
}

func (s *service) Upsert(ctx context.Context, u Update) (*ProfileDTO, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRole(u.Role, false); err != nil {
		return nil, err
	}
	return s.write(ctx, id.UID, u)
}

// Complete is the onboarding step; it always marks the profile complete.
func (s *service) Complete(ctx context.Context, input CompleteInput) (*ProfileDTO, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.DisplayName)
	if utf8.RuneCountInString(name) < minDisplayNameLength {
		return nil, pkgerrors.InvalidInput("display_name", "display name must be at least 2 characters")
	}
	role := input.Role
	if err := validateRole(&role, true); err != nil {
		return nil, err
	}
	complete := true
	return s.write(ctx, id.UID, Update{
		Email:       optional(id.Email),
		DisplayName: &name,
		Role:        &role,
		PhoneNumber: input.PhoneNumber,
		Complete:    &complete,
	})
}

// UpdateInfo edits account details; completeness is derived from the result.
func (s *service) UpdateInfo(ctx context.Context, input UpdateInfoInput) (*ProfileDTO, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if utf8.RuneCountInString(name) < minDisplayNameLength {
			return nil, pkgerrors.InvalidInput("display_name", "display name must be at least 2 characters")
		}
	}
	if err := validateRole(input.Role, false); err != nil {
		return nil, err
	}
	return s.write(ctx, id.UID, Update{
		DisplayName: input.DisplayName,
		Role:        input.Role,
		PhoneNumber: input.PhoneNumber,
		PhotoURL:    input.PhotoURL,
	})
}

// EnsureForIdentity creates the profile from what the identity provider knows
// when id has none yet. An existing profile is returned untouched.
func (s *service) EnsureForIdentity(ctx context.Context, id auth.Identity) (*ProfileDTO, error) {
	if id.UID == uuid.Nil {
		return nil, pkgerrors.NotAuthenticated("")
	}
	existing, err := s.load(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return FromModel(existing), nil
	}
	return s.apply(ctx, id.UID, nil, Update{
		Email:       optional(id.Email),
		DisplayName: id.DisplayName,
		PhoneNumber: id.PhoneNumber,
		PhotoURL:    id.PhotoURL,
	})
}

func (s *service) ListProfessionals(ctx context.Context, params pagination.Params) (pagination.Page[ProfileDTO], error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return pagination.Page[ProfileDTO]{}, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[ProfileDTO]{}, pkgerrors.InvalidInput("cursor", err.Error())
	}
	rows, err := s.repo.ListByRole(ctx, enums.ProfileRoleProfessional, cursor, params.Limit)
	if err != nil {
		return pagination.Page[ProfileDTO]{}, pkgerrors.StoreUnavailable(err, "list profiles")
	}
	page := pagination.Trim(rows, params.Limit, func(p models.Profile) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.UID}
	})
	return pagination.Map(page, func(p models.Profile) ProfileDTO { return *FromModel(&p) }), nil
}

// Watch streams the caller's profile. A snapshot is nil while the profile
// does not exist.
func (s *service) Watch(ctx context.Context) (*stream.Stream[*ProfileDTO], error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	uid := id.UID
	return stream.New(s.changes, stream.ProfileTopic(uid), func(ctx context.Context) (*ProfileDTO, error) {
		profile, err := s.load(ctx, uid)
		if err != nil {
			return nil, err
		}
		return FromModel(profile), nil
	}), nil
}

func (s *service) load(ctx context.Context, uid uuid.UUID) (*models.Profile, error) {
	profile, err := s.repo.Get(ctx, uid)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.StoreUnavailable(err, "load profile")
	}
	return profile, nil
}

// write is the read-merge-write cycle. It is not atomic: the column-scoped
// upsert keeps concurrent writes to disjoint fields intact, and completeness
// is derived from the stored row rather than from this read.
func (s *service) write(ctx context.Context, uid uuid.UUID, u Update) (*ProfileDTO, error) {
	existing, err := s.load(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, uid, existing, u)
}

func (s *service) apply(ctx context.Context, uid uuid.UUID, existing *models.Profile, u Update) (*ProfileDTO, error) {
	rec := Reconcile(uid, existing, u, s.now().UTC())
	if err := s.repo.UpsertMerge(ctx, rec); err != nil {
		return nil, pkgerrors.StoreUnavailable(err, "write profile")
	}
	s.metrics.ProfileWrite(rec.Created)

	if err := s.changes.Notify(ctx, stream.ProfileTopic(uid)); err != nil && s.logg != nil {
		logCtx := s.logg.WithUserID(ctx, uid.String())
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "profile change notification failed")
	}
	// The stored row may differ from rec when another writer got in first.
	if stored, err := s.load(ctx, uid); err == nil && stored != nil {
		return FromModel(stored), nil
	}
	return FromModel(&rec.Profile), nil
}

func validateRole(role *enums.ProfileRole, required bool) error {
	if role == nil || *role == "" {
		if required {
			return pkgerrors.InvalidInput("role", "role is required")
		}
		return nil
	}
	if !role.IsValid() {
		return pkgerrors.InvalidInput("role", "role must be individual or professional")
	}
	return nil
}

func optional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
