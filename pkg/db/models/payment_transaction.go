package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/legalflow/billing-backend/pkg/enums"
)

// PaymentTransaction is an immutable audit record of one gateway interaction.
// Later webhook deliveries append to webhook_events instead of mutating the
// original fields, preserving a replayable history.
type PaymentTransaction struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID      uuid.UUID             `gorm:"column:payment_id;type:uuid;not null;index"`
	ExternalID     string                `gorm:"column:external_id;not null;uniqueIndex"`
	Type           enums.TransactionType `gorm:"column:type;type:transaction_type;not null"`
	Status         enums.PaymentStatus   `gorm:"column:status;type:payment_status;not null"`
	AmountCents    int64                 `gorm:"column:amount_cents;not null"`
	FeeCents       int64                 `gorm:"column:fee_cents;not null;default:0"`
	NetAmountCents int64                 `gorm:"column:net_amount_cents;not null"`
	Metadata       json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	WebhookEvents  json.RawMessage       `gorm:"column:webhook_events;type:jsonb"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}

// WebhookEventEntry is one element of the webhook_events log.
type WebhookEventEntry struct {
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data"`
	ReceivedAt time.Time       `json:"receivedAt"`
}
