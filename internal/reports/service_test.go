package reports

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketplace-backend/internal/listings"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type testEnv struct {
	conn    *gorm.DB
	svc     Service
	listing models.Listing
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:reports_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Listing{}, &models.Report{}, &models.OutboxEvent{}))

	listing := models.Listing{
		Title:       "Road bike",
		Description: "A well kept road bike.",
		Price:       decimal.NewFromInt(120),
		CategoryID:  uuid.New(),
		OwnerID:     uuid.New(),
		Condition:   enums.ListingConditionUsed,
		Photos:      []string{},
	}
	require.NoError(t, conn.Create(&listing).Error)

	logg := logger.New(logger.Options{ServiceName: "reports-test", Output: io.Discard})
	svc, err := NewService(
		NewRepository(conn),
		listings.NewRepository(conn),
		db.NewFromGorm(conn),
		outbox.NewService(outbox.NewRepository(conn), logg),
		logg,
	)
	require.NoError(t, err)
	return &testEnv{conn: conn, svc: svc, listing: listing}
}

func as(role enums.SystemRole) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UID: uuid.New(), Email: "someone@example.com", Role: role})
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestReportListing(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ReportListing(context.Background(), env.listing.ID, CreateInput{Reason: "Looks like a scam"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = env.svc.ReportListing(as(enums.SystemRoleMember), env.listing.ID, CreateInput{Reason: " bad "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = env.svc.ReportListing(as(enums.SystemRoleMember), uuid.New(), CreateInput{Reason: "Looks like a scam"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	report, err := env.svc.ReportListing(as(enums.SystemRoleMember), env.listing.ID, CreateInput{Reason: "  Looks like a scam "})
	require.NoError(t, err)
	assert.Equal(t, enums.ReportStatusOpen, report.Status)
	assert.Equal(t, "Looks like a scam", report.Reason)
	assert.Equal(t, env.listing.ID, report.TargetID)

	var event models.OutboxEvent
	require.NoError(t, env.conn.Where("event_type = ?", enums.EventListingReported).First(&event).Error)
	assert.Equal(t, report.ID, event.AggregateID)
}

func TestListOpenAndResolve(t *testing.T) {
	env := newTestEnv(t)
	admin := as(enums.SystemRoleAdmin)

	first, err := env.svc.ReportListing(as(enums.SystemRoleMember), env.listing.ID, CreateInput{Reason: "Counterfeit item"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := env.svc.ReportListing(as(enums.SystemRoleMember), env.listing.ID, CreateInput{Reason: "Offensive photos"})
	require.NoError(t, err)

	_, err = env.svc.ListOpen(as(enums.SystemRoleMember), pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	open, err := env.svc.ListOpen(admin, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, open.Items, 2)
	assert.Equal(t, second.ID, open.Items[0].ID)

	_, err = env.svc.Resolve(admin, first.ID, ResolutionInput{Status: enums.ReportStatusOpen})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	resolved, err := env.svc.Resolve(admin, first.ID, ResolutionInput{Status: enums.ReportStatusDismissed})
	require.NoError(t, err)
	assert.Equal(t, enums.ReportStatusDismissed, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = env.svc.Resolve(admin, first.ID, ResolutionInput{Status: enums.ReportStatusResolved})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = env.svc.Resolve(admin, uuid.New(), ResolutionInput{Status: enums.ReportStatusResolved})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	open, err = env.svc.ListOpen(admin, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, open.Items, 1)
	assert.Equal(t, second.ID, open.Items[0].ID)
}
