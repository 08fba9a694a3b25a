package enums

import "fmt"

// ListingStatus tracks the moderation lifecycle of a listing.
type ListingStatus string

const (
	ListingStatusPending  ListingStatus = "pending"
	ListingStatusApproved ListingStatus = "approved"
	ListingStatusRejected ListingStatus = "rejected"
)

var validListingStatuses = []ListingStatus{
	ListingStatusPending,
	ListingStatusApproved,
	ListingStatusRejected,
}

// String implements fmt.Stringer.
func (s ListingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical listing status enum.
func (s ListingStatus) IsValid() bool {
	for _, candidate := range validListingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no moderation transition leaves this status.
func (s ListingStatus) IsTerminal() bool {
	return s == ListingStatusApproved || s == ListingStatusRejected
}

// ParseListingStatus converts raw input into ListingStatus.
func ParseListingStatus(value string) (ListingStatus, error) {
	for _, candidate := range validListingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid listing status %q", value)
}

// ListingCondition describes the item state declared by the seller.
type ListingCondition string

const (
	ListingConditionNew  ListingCondition = "new"
	ListingConditionUsed ListingCondition = "used"
)

var validListingConditions = []ListingCondition{
	ListingConditionNew,
	ListingConditionUsed,
}

// String implements fmt.Stringer.
func (c ListingCondition) String() string {
	return string(c)
}

// IsValid reports whether the value matches the canonical listing condition enum.
func (c ListingCondition) IsValid() bool {
	for _, candidate := range validListingConditions {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseListingCondition converts raw input into ListingCondition.
func ParseListingCondition(value string) (ListingCondition, error) {
	for _, candidate := range validListingConditions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid listing condition %q", value)
}
