package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateUser    OutboxAggregateType = "user"
	AggregateListing OutboxAggregateType = "listing"
	AggregateReport  OutboxAggregateType = "report"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateUser,
	AggregateListing,
	AggregateReport,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventUserRegistered           OutboxEventType = "user_registered"
	EventListingSubmitted         OutboxEventType = "listing_submitted"
	EventListingModerated         OutboxEventType = "listing_moderated"
	EventListingReported          OutboxEventType = "listing_reported"
	EventListingModerationOverdue OutboxEventType = "listing_moderation_overdue"
)

var validOutboxEventTypes = []OutboxEventType{
	EventUserRegistered,
	EventListingSubmitted,
	EventListingModerated,
	EventListingReported,
	EventListingModerationOverdue,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
