package conversations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legalflow/billing-backend/pkg/db/models"
)

// Repository handles conversation persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, conversation *models.Conversation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	FindByRoomID(ctx context.Context, roomID string) (*models.Conversation, error)
	AppendCharge(ctx context.Context, conversationID, chargeID uuid.UUID) error
	IncrementTotalCharged(ctx context.Context, conversationID uuid.UUID, amountCents int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a conversation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&conversation).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conversation, nil
}

func (r *repository) FindByRoomID(ctx context.Context, roomID string) (*models.Conversation, error) {
	if roomID == "" {
		return nil, nil
	}
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		First(&conversation).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conversation, nil
}

func (r *repository) AppendCharge(ctx context.Context, conversationID, chargeID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("charge_ids", gorm.Expr("array_append(charge_ids, ?)", chargeID)).Error
}

func (r *repository) IncrementTotalCharged(ctx context.Context, conversationID uuid.UUID, amountCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("total_charged_cents", gorm.Expr("total_charged_cents + ?", amountCents)).Error
}
