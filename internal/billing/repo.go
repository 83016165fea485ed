package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legalflow/billing-backend/pkg/db/models"
	"github.com/legalflow/billing-backend/pkg/enums"
	"github.com/legalflow/billing-backend/pkg/pagination"
)

// Repository handles charge persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateCharge(ctx context.Context, charge *models.Charge) error
	FindChargeByID(ctx context.Context, id uuid.UUID) (*models.Charge, error)
	TransitionCharge(ctx context.Context, chargeID uuid.UUID, from, to enums.ChargeStatus, updates map[string]any) (bool, error)
	ListCharges(ctx context.Context, params ListChargesQuery) ([]models.Charge, *pagination.Cursor, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Charge, error)
	HasPaidPayment(ctx context.Context, chargeID uuid.UUID) (bool, error)
	Stats(ctx context.Context, params StatsQuery) (*Stats, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a charge repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateCharge(ctx context.Context, charge *models.Charge) error {
	return r.db.WithContext(ctx).Create(charge).Error
}

func (r *repository) FindChargeByID(ctx context.Context, id uuid.UUID) (*models.Charge, error) {
	var charge models.Charge
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&charge).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &charge, nil
}

// TransitionCharge performs a compare-and-set status update. The WHERE clause
// pins the expected current status so concurrent writers cannot double-apply
// a transition; false means the row was not in the expected state (or is gone).
func (r *repository) TransitionCharge(ctx context.Context, chargeID uuid.UUID, from, to enums.ChargeStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}

	result := r.db.WithContext(ctx).
		Model(&models.Charge{}).
		Where("id = ? AND status = ?", chargeID, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListChargesQuery configures charge list queries.
type ListChargesQuery struct {
	ConversationID *uuid.UUID
	ProviderID     *uuid.UUID
	ClientID       *uuid.UUID
	Status         *enums.ChargeStatus
	Type           *enums.ChargeType
	Limit          int
	Cursor         *pagination.Cursor
}

func (r *repository) ListCharges(ctx context.Context, params ListChargesQuery) ([]models.Charge, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Charge{})
	if params.ConversationID != nil {
		query = query.Where("conversation_id = ?", *params.ConversationID)
	}
	if params.ProviderID != nil {
		query = query.Where("provider_id = ?", *params.ProviderID)
	}
	if params.ClientID != nil {
		query = query.Where("client_id = ?", *params.ClientID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var charges []models.Charge
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&charges).Error; err != nil {
		return nil, nil, err
	}

	if len(charges) > limit {
		charges = charges[:limit]
		last := charges[len(charges)-1]
		return charges, &pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		}, nil
	}

	return charges, nil, nil
}

func (r *repository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Charge, error) {
	if limit <= 0 {
		limit = 250
	}
	var charges []models.Charge
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.ChargeStatusPending, cutoff).
		Order("expires_at ASC").
		Limit(limit).
		Find(&charges).Error; err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *repository) HasPaidPayment(ctx context.Context, chargeID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("charge_id = ? AND status = ?", chargeID, enums.PaymentStatusPaid).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// StatsQuery scopes the billing aggregates.
type StatsQuery struct {
	ProviderID     *uuid.UUID
	ConversationID *uuid.UUID
	Since          *time.Time
}

// Stats summarizes a provider's ledger.
type Stats struct {
	TotalCharges     int64 `json:"total_charges"`
	TotalAmountCents int64 `json:"total_amount_cents"`
	PendingCharges   int64 `json:"pending_charges"`
	AcceptedCharges  int64 `json:"accepted_charges"`
	PaidCharges      int64 `json:"paid_charges"`
	PaidAmountCents  int64 `json:"paid_amount_cents"`
	PlatformFeeCents int64 `json:"platform_fee_cents"`
	ProviderNetCents int64 `json:"provider_net_cents"`
	RejectedCharges  int64 `json:"rejected_charges"`
	CancelledCharges int64 `json:"cancelled_charges"`
	ExpiredCharges   int64 `json:"expired_charges"`
}

func (r *repository) Stats(ctx context.Context, params StatsQuery) (*Stats, error) {
	query := r.db.WithContext(ctx).Model(&models.Charge{})
	if params.ProviderID != nil {
		query = query.Where("provider_id = ?", *params.ProviderID)
	}
	if params.ConversationID != nil {
		query = query.Where("conversation_id = ?", *params.ConversationID)
	}
	if params.Since != nil {
		query = query.Where("created_at >= ?", *params.Since)
	}

	var stats Stats
	row := query.Select(`
		COUNT(*) AS total_charges,
		COALESCE(SUM(amount_cents), 0) AS total_amount_cents,
		COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending_charges,
		COALESCE(SUM(CASE WHEN status = 'accepted' THEN 1 ELSE 0 END), 0) AS accepted_charges,
		COALESCE(SUM(CASE WHEN status = 'paid' THEN 1 ELSE 0 END), 0) AS paid_charges,
		COALESCE(SUM(CASE WHEN status = 'paid' THEN amount_cents ELSE 0 END), 0) AS paid_amount_cents,
		COALESCE(SUM(CASE WHEN status = 'paid' THEN platform_fee_cents ELSE 0 END), 0) AS platform_fee_cents,
		COALESCE(SUM(CASE WHEN status = 'paid' THEN amount_cents - platform_fee_cents ELSE 0 END), 0) AS provider_net_cents,
		COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0) AS rejected_charges,
		COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0) AS cancelled_charges,
		COALESCE(SUM(CASE WHEN status = 'expired' THEN 1 ELSE 0 END), 0) AS expired_charges
	`).Scan(&stats)
	if row.Error != nil {
		return nil, row.Error
	}
	return &stats, nil
}
