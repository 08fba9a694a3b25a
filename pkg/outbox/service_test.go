package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}))
	return conn
}

func newTestService(conn *gorm.DB) (*Service, *Repository) {
	repo := NewRepository(conn)
	logg := logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard})
	return NewService(repo, logg), repo
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := newTestDB(t)
	svc, _ := newTestService(conn)
	listingID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: "admin"}

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventListingSubmitted,
			AggregateType: enums.AggregateListing,
			AggregateID:   listingID,
			Actor:         actor,
			Data:          map[string]string{"title": "bike"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, listingID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, actor, envelope.Actor)
	assert.JSONEq(t, `{"title":"bike"}`, string(envelope.Data))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc, _ := newTestService(newTestDB(t))
	err := svc.Emit(context.Background(), nil, DomainEvent{
		EventType:     enums.EventUserRegistered,
		AggregateType: enums.AggregateUser,
		AggregateID:   uuid.New(),
	})
	assert.ErrorIs(t, err, ErrTxRequired)
}

func TestEmitRejectsUnknownEvent(t *testing.T) {
	conn := newTestDB(t)
	svc, _ := newTestService(conn)
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.OutboxEventType("listing_archived"),
			AggregateType: enums.AggregateListing,
			AggregateID:   uuid.New(),
		})
	})
	require.Error(t, err)
}

func TestEmitRollsBackWithBusinessWrite(t *testing.T) {
	conn := newTestDB(t)
	svc, _ := newTestService(conn)
	boom := errors.New("insert listing failed")

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventListingSubmitted,
			AggregateType: enums.AggregateListing,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitIfNotExistsDeduplicates(t *testing.T) {
	conn := newTestDB(t)
	svc, _ := newTestService(conn)
	event := DomainEvent{
		EventType:     enums.EventListingModerationOverdue,
		AggregateType: enums.AggregateListing,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"waiting_for": "49h"},
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := newTestDB(t)
	svc, repo := newTestService(conn)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, DomainEvent{
				EventType:     enums.EventUserRegistered,
				AggregateType: enums.AggregateUser,
				AggregateID:   uuid.New(),
				Data:          map[string]int{"n": i},
			})
		}))
	}

	var batch []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, batch, 3)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkPublishedTx(tx, batch[0].ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, batch[1].ID, errors.New("pubsub timeout")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, batch[2].ID, errors.New("bad payload"), 3)
	}))

	var failed models.OutboxEvent
	require.NoError(t, conn.First(&failed, "id = ?", batch[1].ID).Error)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "pubsub timeout", *failed.LastError)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		remaining, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, remaining, 1)
	assert.Equal(t, batch[1].ID, remaining[0].ID)

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	deleted, err = repo.DeletePublishedBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
