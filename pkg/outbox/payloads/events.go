package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/legalflow/billing-backend/pkg/enums"
)

// ChargeCreatedEvent signals a new charge awaiting the client's decision.
type ChargeCreatedEvent struct {
	ChargeID       uuid.UUID        `json:"charge_id"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	ProviderID     uuid.UUID        `json:"provider_id"`
	ClientID       uuid.UUID        `json:"client_id"`
	AmountCents    int64            `json:"amount_cents"`
	Currency       enums.Currency   `json:"currency"`
	Type           enums.ChargeType `json:"type"`
	Title          string           `json:"title"`
	ExpiresAt      time.Time        `json:"expires_at"`
}

// ChargeDecisionEvent is emitted when a charge is accepted, rejected, or
// cancelled.
type ChargeDecisionEvent struct {
	ChargeID       uuid.UUID          `json:"charge_id"`
	ConversationID uuid.UUID          `json:"conversation_id"`
	ProviderID     uuid.UUID          `json:"provider_id"`
	ClientID       uuid.UUID          `json:"client_id"`
	Status         enums.ChargeStatus `json:"status"`
	Reason         string             `json:"reason,omitempty"`
	DecidedAt      time.Time          `json:"decided_at"`
}

// ChargeExpiredEvent reports that an unanswered charge passed its TTL.
type ChargeExpiredEvent struct {
	ChargeID       uuid.UUID `json:"charge_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ProviderID     uuid.UUID `json:"provider_id"`
	ClientID       uuid.UUID `json:"client_id"`
	ExpiredAt      time.Time `json:"expired_at"`
}

// ChargePaidEvent surfaces the settled amounts once a payment clears.
type ChargePaidEvent struct {
	ChargeID           uuid.UUID `json:"charge_id"`
	PaymentID          uuid.UUID `json:"payment_id"`
	ConversationID     uuid.UUID `json:"conversation_id"`
	ProviderID         uuid.UUID `json:"provider_id"`
	ClientID           uuid.UUID `json:"client_id"`
	AmountCents        int64     `json:"amount_cents"`
	ProviderShareCents int64     `json:"provider_share_cents"`
	PlatformFeeCents   int64     `json:"platform_fee_cents"`
	PaidAt             time.Time `json:"paid_at"`
}

// PaymentCreatedEvent is emitted after the gateway books a payment.
type PaymentCreatedEvent struct {
	PaymentID      uuid.UUID           `json:"payment_id"`
	ChargeID       uuid.UUID           `json:"charge_id"`
	ConversationID uuid.UUID           `json:"conversation_id"`
	Method         enums.PaymentMethod `json:"method"`
	AmountCents    int64               `json:"amount_cents"`
	ExternalID     string              `json:"external_id,omitempty"`
}

// PaymentStatusEvent carries terminal payment outcomes (failed, refunded).
type PaymentStatusEvent struct {
	PaymentID      uuid.UUID           `json:"payment_id"`
	ChargeID       uuid.UUID           `json:"charge_id"`
	ConversationID uuid.UUID           `json:"conversation_id"`
	Status         enums.PaymentStatus `json:"status"`
	Reason         string              `json:"reason,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}
