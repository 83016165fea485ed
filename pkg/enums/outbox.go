package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateCharge       OutboxAggregateType = "charge"
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateConversation OutboxAggregateType = "conversation"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCharge,
	AggregatePayment,
	AggregateConversation,
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

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventChargeCreated   OutboxEventType = "charge_created"
	EventChargeAccepted  OutboxEventType = "charge_accepted"
	EventChargeRejected  OutboxEventType = "charge_rejected"
	EventChargeCancelled OutboxEventType = "charge_cancelled"
	EventChargeExpired   OutboxEventType = "charge_expired"
	EventChargePaid      OutboxEventType = "charge_paid"
	EventPaymentCreated  OutboxEventType = "payment_created"
	EventPaymentFailed   OutboxEventType = "payment_failed"
	EventPaymentRefunded OutboxEventType = "payment_refunded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventChargeCreated,
	EventChargeAccepted,
	EventChargeRejected,
	EventChargeCancelled,
	EventChargeExpired,
	EventChargePaid,
	EventPaymentCreated,
	EventPaymentFailed,
	EventPaymentRefunded,
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
