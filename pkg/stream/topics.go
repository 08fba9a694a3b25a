package stream

import (
	"context"

	"github.com/google/uuid"
)

const (
	TopicListings   = "listings"
	TopicCategories = "categories"
)

// ProfileTopic is the topic carrying changes of a single profile.
func ProfileTopic(uid uuid.UUID) string {
	return "profiles:" + uid.String()
}

// NotifyAll announces each topic, returning the first error after trying all.
func NotifyAll(ctx context.Context, n Notifier, topics ...string) error {
	if n == nil {
		return nil
	}
	var first error
	for _, topic := range topics {
		if err := n.Notify(ctx, topic); err != nil && first == nil {
			first = err
		}
	}
	return first
}
