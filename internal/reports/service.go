package reports

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

const minReasonLength = 5

type reportRepository interface {
	CreateTx(tx *gorm.DB, report *models.Report) error
	Get(ctx context.Context, id uuid.UUID) (*models.Report, error)
	PageByStatus(ctx context.Context, status enums.ReportStatus, cursor *pagination.Cursor, limit int) ([]models.Report, error)
	Resolve(ctx context.Context, id uuid.UUID, status enums.ReportStatus, at time.Time) (bool, error)
}

type listingLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service interface {
	ReportListing(ctx context.Context, listingID uuid.UUID, input CreateInput) (*ReportDTO, error)
	ListOpen(ctx context.Context, params pagination.Params) (pagination.Page[ReportDTO], error)
	Resolve(ctx context.Context, id uuid.UUID, input ResolutionInput) (*ReportDTO, error)
}

type service struct {
	repo     reportRepository
	listings listingLookup
	tx       txRunner
	outbox   outbox.Emitter
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(repo reportRepository, listings listingLookup, tx txRunner, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("report repository required")
	}
	if listings == nil {
		return nil, errors.New("listing lookup required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if emitter == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &service{repo: repo, listings: listings, tx: tx, outbox: emitter, logg: logg, now: time.Now}, nil
}

func (s *service) ReportListing(ctx context.Context, listingID uuid.UUID, input CreateInput) (*ReportDTO, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if utf8.RuneCountInString(reason) < minReasonLength {
		return nil, pkgerrors.InvalidInput("reason", "reason must be at least 5 characters")
	}
	if _, err := s.listings.Get(ctx, listingID); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.NotFound("listing", listingID.String())
		}
		return nil, pkgerrors.StoreUnavailable(err, "load listing")
	}

	report := &models.Report{
		TargetType: enums.ReportTargetListing,
		TargetID:   listingID,
		ReporterID: id.UID,
		Reason:     reason,
		Status:     enums.ReportStatusOpen,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, report); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingReported,
			AggregateType: enums.AggregateReport,
			AggregateID:   report.ID,
			Actor:         outbox.ActorFor(id),
			Data: payloads.ListingReportedEvent{
				ReportID:   report.ID,
				ListingID:  listingID,
				ReporterID: id.UID,
				Reason:     reason,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.StoreUnavailable(err, "create report")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithListingID(ctx, listingID.String()), "listing reported")
	}
	return FromModel(report), nil
}

func (s *service) ListOpen(ctx context.Context, params pagination.Params) (pagination.Page[ReportDTO], error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return pagination.Page[ReportDTO]{}, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[ReportDTO]{}, pkgerrors.InvalidInput("cursor", err.Error())
	}
	rows, err := s.repo.PageByStatus(ctx, enums.ReportStatusOpen, cursor, params.Limit)
	if err != nil {
		return pagination.Page[ReportDTO]{}, pkgerrors.StoreUnavailable(err, "list reports")
	}
	page := pagination.Trim(rows, params.Limit, func(r models.Report) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return pagination.Map(page, func(r models.Report) ReportDTO { return *FromModel(&r) }), nil
}

// Resolve closes an open report as resolved or dismissed. Closed reports
// cannot be reopened or re-decided.
func (s *service) Resolve(ctx context.Context, id uuid.UUID, input ResolutionInput) (*ReportDTO, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if input.Status != enums.ReportStatusResolved && input.Status != enums.ReportStatusDismissed {
		return nil, pkgerrors.InvalidInput("status", "status must be resolved or dismissed")
	}
	report, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.Status != enums.ReportStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "report already closed").
			WithDetails(map[string]any{"status": report.Status})
	}

	at := s.now().UTC()
	ok, err := s.repo.Resolve(ctx, id, input.Status, at)
	if err != nil {
		return nil, pkgerrors.StoreUnavailable(err, "resolve report")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "report already closed")
	}
	report.Status = input.Status
	report.ResolvedAt = &at
	return FromModel(report), nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	report, err := s.repo.Get(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.NotFound("report", id.String())
		}
		return nil, pkgerrors.StoreUnavailable(err, "load report")
	}
	return report, nil
}
