package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func TestBuildEnvelopeDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	env, err := buildEnvelope(DomainEvent{
		EventType: enums.EventListingSubmitted,
		Data:      map[string]string{"title": "bike"},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, defaultVersion, env.Version)
	assert.True(t, env.OccurredAt.Equal(now))
	assert.NotEmpty(t, env.EventID)
	assert.JSONEq(t, `{"title":"bike"}`, string(env.Data))
}

func TestBuildEnvelopeRejectsNilData(t *testing.T) {
	_, err := buildEnvelope(DomainEvent{EventType: enums.EventListingSubmitted}, time.Now())
	assert.ErrorIs(t, err, errEmptyData)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"version":2,"eventId":"e-1","occurredAt":"2026-03-01T10:00:00Z","data":{"n":1}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, env.Version)
	assert.Equal(t, "e-1", env.EventID)

	_, err = DecodeEnvelope([]byte(`{"version":1,"data":null}`))
	assert.ErrorIs(t, err, errEmptyData)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestActorFor(t *testing.T) {
	assert.Nil(t, ActorFor(auth.Identity{}))

	uid := uuid.New()
	actor := ActorFor(auth.Identity{UID: uid, Role: enums.SystemRoleAdmin})
	require.NotNil(t, actor)
	assert.Equal(t, uid, actor.UserID)
	assert.Equal(t, string(enums.SystemRoleAdmin), actor.Role)
}
