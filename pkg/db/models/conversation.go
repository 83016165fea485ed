package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/legalflow/billing-backend/pkg/db/types"
)

// Conversation is the billing-relevant projection of a case conversation.
// The billing engine only reads the collaborator fields and appends to the
// charge ledger; everything else about conversations lives elsewhere.
type Conversation struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID            string             `gorm:"column:room_id;not null;uniqueIndex"`
	ProviderID        uuid.UUID          `gorm:"column:provider_id;type:uuid;not null;index"`
	ClientID          uuid.UUID          `gorm:"column:client_id;type:uuid;not null;index"`
	BillingEnabled    bool               `gorm:"column:billing_enabled;not null;default:true"`
	TotalChargedCents int64              `gorm:"column:total_charged_cents;not null;default:0"`
	ChargeIDs         dbtypes.UUIDArray  `gorm:"column:charge_ids;type:uuid[]"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
