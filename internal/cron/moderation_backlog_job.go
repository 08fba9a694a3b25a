package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

const (
	defaultOverdueAge  = 48 * time.Hour
	defaultBacklogScan = 500
)

// ModerationBacklogJobParams configure the overdue moderation scanner.
type ModerationBacklogJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Listings   pendingListingReader
	Outbox     outboxEmitter
	Metrics    *metrics.Marketplace
	OverdueAge time.Duration
	ScanLimit  int
}

type pendingListingReader interface {
	PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Listing, error)
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewModerationBacklogJob flags listings that waited longer than OverdueAge
// for a decision. Each listing gets at most one overdue event.
func NewModerationBacklogJob(params ModerationBacklogJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("pending listing reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	age := params.OverdueAge
	if age <= 0 {
		age = defaultOverdueAge
	}
	limit := params.ScanLimit
	if limit <= 0 {
		limit = defaultBacklogScan
	}
	return &moderationBacklogJob{
		logg:     params.Logger,
		db:       params.DB,
		listings: params.Listings,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		age:      age,
		limit:    limit,
		now:      time.Now,
	}, nil
}

type moderationBacklogJob struct {
	logg     *logger.Logger
	db       txRunner
	listings pendingListingReader
	outbox   outboxEmitter
	metrics  *metrics.Marketplace
	age      time.Duration
	limit    int
	now      func() time.Time
}

func (j *moderationBacklogJob) Name() string { return "moderation-backlog" }

func (j *moderationBacklogJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.age)
	pending, err := j.listings.PendingBefore(ctx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("query overdue listings: %w", err)
	}
	// capped at the scan limit
	j.metrics.SetPendingBacklog(len(pending))

	var errs error
	for _, listing := range pending {
		errs = multierr.Append(errs, j.flag(ctx, listing, now))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"overdue": len(pending),
		"failed":  len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "moderation backlog scan complete")
	return errs
}

func (j *moderationBacklogJob) flag(ctx context.Context, listing models.Listing, now time.Time) error {
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingModerationOverdue,
			AggregateType: enums.AggregateListing,
			AggregateID:   listing.ID,
			OccurredAt:    now,
			Data: payloads.ListingModerationOverdueEvent{
				ListingID:   listing.ID,
				OwnerID:     listing.OwnerID,
				SubmittedAt: listing.CreatedAt,
				WaitingFor:  now.Sub(listing.CreatedAt).Round(time.Minute).String(),
			},
		})
	})
	if err != nil {
		return fmt.Errorf("flag listing %s: %w", listing.ID, err)
	}
	return nil
}
