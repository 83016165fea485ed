package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/legalflow/billing-backend/pkg/enums"
)

// Payment is one attempt to collect money for an accepted charge through the
// external gateway. The unique charge_id index enforces at most one active
// payment per charge.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ChargeID          uuid.UUID           `gorm:"column:charge_id;type:uuid;not null;uniqueIndex"`
	ConversationID    uuid.UUID           `gorm:"column:conversation_id;type:uuid;not null;index"`
	ClientID          uuid.UUID           `gorm:"column:client_id;type:uuid;not null;index"`
	ProviderID        uuid.UUID           `gorm:"column:provider_id;type:uuid;not null;index"`
	AmountCents       int64               `gorm:"column:amount_cents;not null"`
	Currency          enums.Currency      `gorm:"column:currency;not null;default:'brl'"`
	Method            enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Installments      int                 `gorm:"column:installments;not null;default:1"`
	Description       *string             `gorm:"column:description"`
	ExternalID        *string             `gorm:"column:external_id;index"`
	TransactionID     *string             `gorm:"column:transaction_id"`
	SplitRules        json.RawMessage     `gorm:"column:split_rules;type:jsonb"`
	Metadata          json.RawMessage     `gorm:"column:metadata;type:jsonb"`
	Status            enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	PaidAt            *time.Time          `gorm:"column:paid_at"`
	CancelledAt       *time.Time          `gorm:"column:cancelled_at"`
	RefundedAt        *time.Time          `gorm:"column:refunded_at"`
	RefundAmountCents *int64              `gorm:"column:refund_amount_cents"`
	WebhookData       json.RawMessage     `gorm:"column:webhook_data;type:jsonb"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
