package categories

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/stream"
)

func newTestService(t *testing.T) (Service, *stream.Broker) {
	t.Helper()
	dsn := fmt.Sprintf("file:categories_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Category{}))
	broker := stream.NewBroker()
	svc, err := NewService(NewRepository(conn), broker, nil)
	require.NoError(t, err)
	return svc, broker
}

func adminCtx() context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UID: uuid.New(), Role: enums.SystemRoleAdmin})
}

func TestCreateAndListSortedByName(t *testing.T) {
	svc, broker := newTestService(t)
	ctx := adminCtx()

	sub, err := broker.Subscribe(ctx, stream.TopicCategories)
	require.NoError(t, err)
	defer sub.Close()

	for _, name := range []string{"Vehicles", "Books", "Electronics"} {
		_, err := svc.Create(ctx, CreateInput{Name: name})
		require.NoError(t, err)
	}
	select {
	case <-sub.Events():
	default:
		t.Fatal("expected a categories notification")
	}

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Books", "Electronics", "Vehicles"}, names)

	ok, err := svc.Exists(ctx, list[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.Exists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()
	_, err := svc.Create(ctx, CreateInput{Name: "Books"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{Name: " Books "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestCreateRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	member := auth.WithIdentity(context.Background(), auth.Identity{UID: uuid.New(), Role: enums.SystemRoleMember})
	_, err := svc.Create(member, CreateInput{Name: "Books"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.Create(context.Background(), CreateInput{Name: "Books"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}
