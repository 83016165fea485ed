package payments

import (
	"strings"

	"github.com/legalflow/billing-backend/pkg/enums"
)

// gatewayStatusTable translates the gateway's status vocabulary into ours.
// Values missing from the table map to pending rather than failing: an
// unrecognized status from the gateway must never break reconciliation.
var gatewayStatusTable = map[string]enums.PaymentStatus{
	"paid":            enums.PaymentStatusPaid,
	"captured":        enums.PaymentStatusPaid,
	"succeeded":       enums.PaymentStatusPaid,
	"authorized":      enums.PaymentStatusAuthorized,
	"pre_authorized":  enums.PaymentStatusAuthorized,
	"pending":         enums.PaymentStatusPending,
	"created":         enums.PaymentStatusPending,
	"processing":      enums.PaymentStatusPending,
	"analyzing":       enums.PaymentStatusPending,
	"waiting_payment": enums.PaymentStatusPending,
	"refunded":        enums.PaymentStatusRefunded,
	"chargedback":     enums.PaymentStatusRefunded,
	"canceled":        enums.PaymentStatusCancelled,
	"cancelled":       enums.PaymentStatusCancelled,
	"voided":          enums.PaymentStatusCancelled,
	"refused":         enums.PaymentStatusFailed,
	"failed":          enums.PaymentStatusFailed,
	"with_error":      enums.PaymentStatusFailed,
	"error":           enums.PaymentStatusFailed,
}

// MapGatewayStatus resolves a raw gateway status string. Unknown values
// default to pending.
func MapGatewayStatus(raw string) enums.PaymentStatus {
	if status, ok := gatewayStatusTable[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return enums.PaymentStatusPending
}

var allowedPaymentTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending: {
		enums.PaymentStatusAuthorized,
		enums.PaymentStatusPaid,
		enums.PaymentStatusCancelled,
		enums.PaymentStatusFailed,
	},
	enums.PaymentStatusAuthorized: {
		enums.PaymentStatusPaid,
		enums.PaymentStatusCancelled,
		enums.PaymentStatusFailed,
	},
	// Paid is sticky: only a refund moves it.
	enums.PaymentStatusPaid: {
		enums.PaymentStatusRefunded,
	},
}

// CanTransitionPayment reports whether a payment may move between the two
// statuses. Refunded, cancelled, and failed are terminal.
func CanTransitionPayment(from, to enums.PaymentStatus) bool {
	for _, allowed := range allowedPaymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ReconcileOutcome classifies what a webhook did to a payment.
type ReconcileOutcome string

const (
	// OutcomeApplied means the payment moved to the reported status.
	OutcomeApplied ReconcileOutcome = "applied"
	// OutcomeDuplicate means the payment was already in the reported status.
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	// OutcomeConflict means the reported status contradicts a terminal state
	// the payment already reached. State is left untouched.
	OutcomeConflict ReconcileOutcome = "conflict"
)

// classifyTransition decides how a webhook-reported status relates to the
// payment's current status.
func classifyTransition(current, target enums.PaymentStatus) ReconcileOutcome {
	if current == target {
		return OutcomeDuplicate
	}
	if CanTransitionPayment(current, target) {
		return OutcomeApplied
	}
	return OutcomeConflict
}
