package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/market-dev/topics/domain", resourceName("market-dev", " domain "))
	assert.Equal(t, "projects/other/topics/x", resourceName("market-dev", "projects/other/topics/x"))
	assert.Equal(t, "projects/other/topics/x", resourceName("", "projects/other/topics/x"))
	assert.Empty(t, resourceName("market-dev", ""))
	assert.Empty(t, resourceName("", "domain"))
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, []string{"domain", "moderation"}, topicNames(config.PubSubConfig{
		DomainTopic:     "domain",
		ModerationTopic: " moderation ",
	}))
	assert.Equal(t, []string{"domain"}, topicNames(config.PubSubConfig{
		DomainTopic:     "domain",
		ModerationTopic: "domain",
	}))
	assert.Empty(t, topicNames(config.PubSubConfig{ModerationTopic: "moderation"}))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{DomainTopic: "d"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errNoTopics)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("domain"))
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
}
