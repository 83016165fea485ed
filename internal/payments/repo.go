package payments

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legalflow/billing-backend/pkg/db/models"
	"github.com/legalflow/billing-backend/pkg/enums"
	"github.com/legalflow/billing-backend/pkg/pagination"
)

// Repository handles payment and transaction persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindPaymentByChargeID(ctx context.Context, chargeID uuid.UUID) (*models.Payment, error)
	FindPaymentByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	TransitionPayment(ctx context.Context, paymentID uuid.UUID, from, to enums.PaymentStatus, updates map[string]any) (bool, error)
	UpdatePayment(ctx context.Context, paymentID uuid.UUID, updates map[string]any) error
	SetWebhookData(ctx context.Context, paymentID uuid.UUID, raw json.RawMessage) error
	ListPayments(ctx context.Context, params ListPaymentsQuery) ([]models.Payment, *pagination.Cursor, error)
	CreateTransaction(ctx context.Context, transaction *models.PaymentTransaction) error
	FindTransactionByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error)
	AppendTransactionWebhookEvent(ctx context.Context, externalID string, entry models.WebhookEventEntry) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.findPayment(ctx, "id = ?", id)
}

func (r *repository) FindPaymentByChargeID(ctx context.Context, chargeID uuid.UUID) (*models.Payment, error) {
	return r.findPayment(ctx, "charge_id = ?", chargeID)
}

func (r *repository) FindPaymentByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	return r.findPayment(ctx, "external_id = ?", externalID)
}

func (r *repository) findPayment(ctx context.Context, clause string, arg any) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where(clause, arg).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// TransitionPayment performs a compare-and-set status update. Returns false
// when another writer already moved the payment off the expected status.
func (r *repository) TransitionPayment(ctx context.Context, paymentID uuid.UUID, from, to enums.PaymentStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) UpdatePayment(ctx context.Context, paymentID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(updates).Error
}

// SetWebhookData keeps the last raw gateway notification on the payment for
// debugging. The full history lives on the transaction's webhook_events log.
func (r *repository) SetWebhookData(ctx context.Context, paymentID uuid.UUID, raw json.RawMessage) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Update("webhook_data", raw).Error
}

// ListPaymentsQuery filters payment listings.
type ListPaymentsQuery struct {
	ConversationID *uuid.UUID
	ProviderID     *uuid.UUID
	ClientID       *uuid.UUID
	Status         *enums.PaymentStatus
	Method         *enums.PaymentMethod
	Limit          int
	Cursor         *pagination.Cursor
}

func (r *repository) ListPayments(ctx context.Context, params ListPaymentsQuery) ([]models.Payment, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Payment{})
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
	if params.Method != nil {
		query = query.Where("method = ?", *params.Method)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var payments []models.Payment
	err := query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&payments).Error
	if err != nil {
		return nil, nil, err
	}

	if len(payments) > limit {
		payments = payments[:limit]
		last := payments[len(payments)-1]
		return payments, &pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		}, nil
	}
	return payments, nil, nil
}

func (r *repository) CreateTransaction(ctx context.Context, transaction *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

func (r *repository) FindTransactionByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	var transaction models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// AppendTransactionWebhookEvent pushes one entry onto the transaction's
// ordered webhook_events log. The append happens database-side so two
// concurrent deliveries for one payment cannot overwrite each other's entry.
func (r *repository) AppendTransactionWebhookEvent(ctx context.Context, externalID string, entry models.WebhookEventEntry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("external_id = ?", externalID).
		Update("webhook_events", gorm.Expr("COALESCE(webhook_events, '[]'::jsonb) || ?::jsonb", string(encoded))).Error
}
