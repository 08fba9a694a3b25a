package listings

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/profiles"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/storage/blob"
	"github.com/angelmondragon/marketplace-backend/pkg/stream"
	"github.com/angelmondragon/marketplace-backend/pkg/visibility"
)

const (
	minTitleLength       = 3
	minDescriptionLength = 10
	defaultSnapshotLimit = 200
)

type listingRepository interface {
	CreateTx(tx *gorm.DB, listing *models.Listing) error
	Get(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	Page(ctx context.Context, q Query, cursor *pagination.Cursor, limit int) ([]models.Listing, error)
	Snapshot(ctx context.Context, q Query, limit int) ([]models.Listing, error)
	TransitionStatusTx(tx *gorm.DB, id uuid.UUID, from, to enums.ListingStatus) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type blobStore interface {
	Put(ctx context.Context, objectPath string, data []byte, contentType string) (blob.Object, error)
	Delete(ctx context.Context, objectPath string) error
}

type categoryChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type profileReader interface {
	Get(ctx context.Context, uid uuid.UUID) (*profiles.ProfileDTO, error)
}

type ChangeFeed interface {
	stream.Source
	stream.Notifier
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*ListingDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ListingDTO, error)
	ListApproved(ctx context.Context, filter visibility.Filter, params pagination.Params) (pagination.Page[ListingDTO], error)
	ListMine(ctx context.Context, params pagination.Params) (pagination.Page[ListingDTO], error)
	ListPending(ctx context.Context, params pagination.Params) (pagination.Page[ListingDTO], error)
	ListAll(ctx context.Context, status *enums.ListingStatus, params pagination.Params) (pagination.Page[ListingDTO], error)
	Moderate(ctx context.Context, id uuid.UUID, input ModerationInput) (*ListingDTO, error)
	WatchApproved(ctx context.Context, filter visibility.Filter) (*stream.Stream[[]ListingDTO], error)
	WatchPending(ctx context.Context) (*stream.Stream[[]ListingDTO], error)
}

type ServiceParams struct {
	Repo       listingRepository
	Tx         txRunner
	Blobs      blobStore
	Categories categoryChecker
	Profiles   profileReader
	Outbox     outbox.Emitter
	Changes    ChangeFeed
	Config     config.ListingsConfig
	Streams    config.StreamsConfig
	Logger     *logger.Logger
	Metrics    *metrics.Marketplace
	Now        func() time.Time
}

type service struct {
	repo          listingRepository
	tx            txRunner
	blobs         blobStore
	categories    categoryChecker
	profiles      profileReader
	outbox        outbox.Emitter
	changes       ChangeFeed
	cfg           config.ListingsConfig
	snapshotLimit int
	logg          *logger.Logger
	metrics       *metrics.Marketplace
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, errors.New("listing repository required")
	case params.Tx == nil:
		return nil, errors.New("transaction runner required")
	case params.Blobs == nil:
		return nil, errors.New("blob store required")
	case params.Categories == nil:
		return nil, errors.New("category checker required")
	case params.Profiles == nil:
		return nil, errors.New("profile reader required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	case params.Changes == nil:
		return nil, errors.New("change feed required")
	}
	limit := params.Streams.SnapshotLimit
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:          params.Repo,
		tx:            params.Tx,
		blobs:         params.Blobs,
		categories:    params.Categories,
		profiles:      params.Profiles,
		outbox:        params.Outbox,
		changes:       params.Changes,
		cfg:           params.Config,
		snapshotLimit: limit,
		logg:          params.Logger,
		metrics:       params.Metrics,
		now:           now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*ListingDTO, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	if !id.CanPublish() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "verify your email before publishing")
	}
	profile, err := s.profiles.Get(ctx, id.UID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	if profile == nil || !profile.ProfileComplete {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "complete your profile before publishing")
	}

	listing, err := s.validate(ctx, id.UID, input)
	if err != nil {
		return nil, err
	}

	uploaded := make([]blob.Object, 0, len(input.Photos))
	uploadedAt := s.now()
	for i, photo := range input.Photos {
		obj, err := s.blobs.Put(ctx, photoPath(id.UID, uploadedAt, i, photo.Name), photo.Data, photoContentType(photo))
		if err != nil {
			s.discard(ctx, uploaded)
			return nil, pkgerrors.StoreUnavailable(err, "upload photo")
		}
		uploaded = append(uploaded, obj)
		listing.Photos = append(listing.Photos, obj.URL)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, listing); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingSubmitted,
			AggregateType: enums.AggregateListing,
			AggregateID:   listing.ID,
			Actor:         outbox.ActorFor(id),
			Data: payloads.ListingSubmittedEvent{
				ListingID:  listing.ID,
				OwnerID:    listing.OwnerID,
				CategoryID: listing.CategoryID,
				Title:      listing.Title,
				Price:      listing.Price,
				PhotoCount: len(listing.Photos),
			},
		})
	})
	if err != nil {
		s.discard(ctx, uploaded)
		return nil, pkgerrors.StoreUnavailable(err, "create listing")
	}

	s.metrics.ListingCreated()
	s.notify(ctx, listing.ID)
	return FromModel(listing), nil
}

func (s *service) validate(ctx context.Context, owner uuid.UUID, input CreateInput) (*models.Listing, error) {
	title := strings.TrimSpace(input.Title)
	if utf8.RuneCountInString(title) < minTitleLength {
		return nil, pkgerrors.InvalidInput("title", "title must be at least 3 characters")
	}
	description := strings.TrimSpace(input.Description)
	if utf8.RuneCountInString(description) < minDescriptionLength {
		return nil, pkgerrors.InvalidInput("description", "description must be at least 10 characters")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.InvalidInput("price", "price must be zero or more")
	}
	if !input.Condition.IsValid() {
		return nil, pkgerrors.InvalidInput("condition", "condition must be new or used")
	}
	if input.CategoryID == uuid.Nil {
		return nil, pkgerrors.InvalidInput("category_id", "category is required")
	}
	if err := validatePhotos(input.Photos, s.cfg.MaxPhotos, s.cfg.MaxPhotoBytes()); err != nil {
		return nil, err
	}
	ok, err := s.categories.Exists(ctx, input.CategoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.InvalidInput("category_id", "unknown category")
	}

	var location *string
	if input.Location != nil && strings.TrimSpace(*input.Location) != "" {
		loc := strings.TrimSpace(*input.Location)
		location = &loc
	}
	return &models.Listing{
		Title:       title,
		Description: description,
		Price:       input.Price.Round(2),
		CategoryID:  input.CategoryID,
		OwnerID:     owner,
		Condition:   input.Condition,
		Location:    location,
		Photos:      []string{},
		Status:      enums.ListingStatusPending,
		CreatedAt:   s.now().UTC(),
	}, nil
}

// discard removes blobs of a failed submission. Failures are only logged.
func (s *service) discard(ctx context.Context, objects []blob.Object) {
	for _, obj := range objects {
		if err := s.blobs.Delete(ctx, obj.Path); err != nil && s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"path": obj.Path, "error": err.Error()})
			s.logg.Warn(logCtx, "orphaned listing photo")
		}
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ListingDTO, error) {
	listing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	var caller *auth.Identity
	if ident, ok := auth.IdentityFromContext(ctx); ok {
		caller = &ident
	}
	if err := visibility.EnsureListingVisible(listing, caller); err != nil {
		return nil, err
	}
	return FromModel(listing), nil
}

func (s *service) ListApproved(ctx context.Context, filter visibility.Filter, params pagination.Params) (pagination.Page[ListingDTO], error) {
	approved := enums.ListingStatusApproved
	return s.page(ctx, Query{Status: &approved, Filter: filter}, params)
}

func (s *service) ListMine(ctx context.Context, params pagination.Params) (pagination.Page[ListingDTO], error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return pagination.Page[ListingDTO]{}, err
	}
	return s.page(ctx, Query{OwnerID: &id.UID}, params)
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (pagination.Page[ListingDTO], error) {
	pending := enums.ListingStatusPending
	return s.ListAll(ctx, &pending, params)
}

func (s *service) ListAll(ctx context.Context, status *enums.ListingStatus, params pagination.Params) (pagination.Page[ListingDTO], error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return pagination.Page[ListingDTO]{}, err
	}
	if status != nil && !status.IsValid() {
		return pagination.Page[ListingDTO]{}, pkgerrors.InvalidInput("status", "unknown listing status")
	}
	return s.page(ctx, Query{Status: status}, params)
}

func (s *service) page(ctx context.Context, q Query, params pagination.Params) (pagination.Page[ListingDTO], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[ListingDTO]{}, pkgerrors.InvalidInput("cursor", err.Error())
	}
	rows, err := s.repo.Page(ctx, q, cursor, params.Limit)
	if err != nil {
		return pagination.Page[ListingDTO]{}, pkgerrors.StoreUnavailable(err, "list listings")
	}
	page := pagination.Trim(rows, params.Limit, func(l models.Listing) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return pagination.Map(page, func(l models.Listing) ListingDTO { return *FromModel(&l) }), nil
}

// Moderate applies an admin decision. Re-applying the current decision is a
// no-op; changing a decided listing is a STATE_CONFLICT.
func (s *service) Moderate(ctx context.Context, id uuid.UUID, input ModerationInput) (*ListingDTO, error) {
	admin, err := auth.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	listing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, changed, err := nextStatus(listing.Status, input.Decision)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			s.metrics.ModerationDecision(string(input.Decision), OutcomeConflict)
		}
		return nil, err
	}
	if !changed {
		s.metrics.ModerationDecision(string(input.Decision), OutcomeNoop)
		return FromModel(listing), nil
	}

	previous := listing.Status
	applied := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.TransitionStatusTx(tx, id, previous, next)
		if err != nil || !ok {
			return err
		}
		applied = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingModerated,
			AggregateType: enums.AggregateListing,
			AggregateID:   id,
			Actor:         outbox.ActorFor(admin),
			Data: payloads.ListingModeratedEvent{
				ListingID:   id,
				OwnerID:     listing.OwnerID,
				ModeratorID: admin.UID,
				Previous:    previous,
				Status:      next,
				Reason:      trimmedReason(input.Reason),
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.StoreUnavailable(err, "moderate listing")
	}

	if !applied {
		// Another moderator decided first; resolve against the stored status.
		return s.resolveLostRace(ctx, id, input.Decision)
	}

	listing.Status = next
	s.metrics.ModerationDecision(string(input.Decision), OutcomeApplied)
	if s.logg != nil {
		logCtx := s.logg.WithListingID(s.logg.WithUserID(ctx, admin.UID.String()), id.String())
		s.logg.Info(s.logg.WithField(logCtx, "status", next), "listing moderated")
	}
	s.notify(ctx, id)
	return FromModel(listing), nil
}

func (s *service) resolveLostRace(ctx context.Context, id uuid.UUID, decision enums.ListingStatus) (*ListingDTO, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	_, changed, err := nextStatus(current.Status, decision)
	if err == nil && changed {
		err = pkgerrors.New(pkgerrors.CodeStateConflict, "listing changed during moderation")
	}
	if err != nil {
		s.metrics.ModerationDecision(string(decision), OutcomeConflict)
		return nil, err
	}
	s.metrics.ModerationDecision(string(decision), OutcomeNoop)
	return FromModel(current), nil
}

func (s *service) WatchApproved(ctx context.Context, filter visibility.Filter) (*stream.Stream[[]ListingDTO], error) {
	approved := enums.ListingStatusApproved
	return s.watch(Query{Status: &approved, Filter: filter}), nil
}

func (s *service) WatchPending(ctx context.Context) (*stream.Stream[[]ListingDTO], error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	pending := enums.ListingStatusPending
	return s.watch(Query{Status: &pending}), nil
}

func (s *service) watch(q Query) *stream.Stream[[]ListingDTO] {
	return stream.New(s.changes, stream.TopicListings, func(ctx context.Context) ([]ListingDTO, error) {
		rows, err := s.repo.Snapshot(ctx, q, s.snapshotLimit)
		if err != nil {
			return nil, pkgerrors.StoreUnavailable(err, "load listings")
		}
		return fromModels(rows), nil
	})
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	listing, err := s.repo.Get(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.NotFound("listing", id.String())
		}
		return nil, pkgerrors.StoreUnavailable(err, "load listing")
	}
	return listing, nil
}

func (s *service) notify(ctx context.Context, listingID uuid.UUID) {
	if err := s.changes.Notify(ctx, stream.TopicListings); err != nil && s.logg != nil {
		logCtx := s.logg.WithListingID(ctx, listingID.String())
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "listing change notification failed")
	}
}

func trimmedReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	r := strings.TrimSpace(*reason)
	if r == "" {
		return nil
	}
	return &r
}
