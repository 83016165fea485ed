package billing

import (
	"github.com/legalflow/billing-backend/pkg/enums"
)

// allowedTransitions is the charge state machine. Anything absent here is
// rejected; terminal statuses have no outgoing edges.
var allowedTransitions = map[enums.ChargeStatus][]enums.ChargeStatus{
	enums.ChargeStatusPending: {
		enums.ChargeStatusAccepted,
		enums.ChargeStatusRejected,
		enums.ChargeStatusCancelled,
		enums.ChargeStatusExpired,
	},
	enums.ChargeStatusAccepted: {
		enums.ChargeStatusPaid,
		enums.ChargeStatusCancelled,
	},
}

// CanTransition reports whether the charge state machine permits from -> to.
func CanTransition(from, to enums.ChargeStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
