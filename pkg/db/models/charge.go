package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/legalflow/billing-backend/pkg/enums"
)

// Charge is a provider's request that a client pay for a service rendered
// inside a conversation. Rows are never deleted; terminal statuses are
// retained for audit.
type Charge struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ConversationID     uuid.UUID          `gorm:"column:conversation_id;type:uuid;not null;index"`
	ProviderID         uuid.UUID          `gorm:"column:provider_id;type:uuid;not null;index"`
	ClientID           uuid.UUID          `gorm:"column:client_id;type:uuid;not null;index"`
	AmountCents        int64              `gorm:"column:amount_cents;not null"`
	Currency           enums.Currency     `gorm:"column:currency;not null;default:'brl'"`
	Type               enums.ChargeType   `gorm:"column:type;type:charge_type;not null;default:'consultation'"`
	Title              string             `gorm:"column:title;not null"`
	Description        *string            `gorm:"column:description"`
	Reason             *string            `gorm:"column:reason"`
	Metadata           json.RawMessage    `gorm:"column:metadata;type:jsonb"`
	ProviderPercentage int                `gorm:"column:provider_percentage;not null"`
	PlatformPercentage int                `gorm:"column:platform_percentage;not null"`
	PlatformFeeCents   int64              `gorm:"column:platform_fee_cents;not null"`
	Status             enums.ChargeStatus `gorm:"column:status;type:charge_status;not null;default:'pending'"`
	AcceptedAt         *time.Time         `gorm:"column:accepted_at"`
	RejectedAt         *time.Time         `gorm:"column:rejected_at"`
	CancelledAt        *time.Time         `gorm:"column:cancelled_at"`
	ExpiresAt          time.Time          `gorm:"column:expires_at;not null"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
