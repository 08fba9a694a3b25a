package listings

import (
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// Moderation outcomes, also used as metric labels.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeConflict = "conflict"
)

// nextStatus is the moderation state machine:
//
//	pending  -> approved | rejected
//	approved -> approved (no-op)
//	rejected -> rejected (no-op)
//
// Every other move out of a terminal state is a STATE_CONFLICT.
func nextStatus(current, decision enums.ListingStatus) (enums.ListingStatus, bool, error) {
	if decision != enums.ListingStatusApproved && decision != enums.ListingStatusRejected {
		return current, false, pkgerrors.InvalidInput("decision", "decision must be approved or rejected")
	}
	if current == decision {
		return current, false, nil
	}
	if current == enums.ListingStatusPending {
		return decision, true, nil
	}
	return current, false, pkgerrors.New(pkgerrors.CodeStateConflict, "listing was already moderated").
		WithDetails(map[string]any{"status": current, "decision": decision})
}
