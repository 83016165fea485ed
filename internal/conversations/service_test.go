package conversations

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legalflow/billing-backend/pkg/db/models"
	pkgerrors "github.com/legalflow/billing-backend/pkg/errors"
)

type stubRepo struct {
	findByIDFn func(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubRepo) Create(ctx context.Context, conversation *models.Conversation) error {
	return nil
}
func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (s *stubRepo) FindByRoomID(ctx context.Context, roomID string) (*models.Conversation, error) {
	return nil, nil
}
func (s *stubRepo) AppendCharge(ctx context.Context, conversationID, chargeID uuid.UUID) error {
	return nil
}
func (s *stubRepo) IncrementTotalCharged(ctx context.Context, conversationID uuid.UUID, amountCents int64) error {
	return nil
}

func TestResolveBillable_NotFound(t *testing.T) {
	svc, _ := NewService(ServiceParams{Repo: &stubRepo{}})

	_, err := svc.ResolveBillable(context.Background(), uuid.New(), uuid.New())
	if err == nil {
		t.Fatal("expected error for missing conversation")
	}
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestResolveBillable_BillingDisabled(t *testing.T) {
	providerID := uuid.New()
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
			return &models.Conversation{ID: id, ProviderID: providerID, BillingEnabled: false}, nil
		},
	}
	svc, _ := NewService(ServiceParams{Repo: repo})

	_, err := svc.ResolveBillable(context.Background(), uuid.New(), providerID)
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestResolveBillable_WrongProvider(t *testing.T) {
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
			return &models.Conversation{ID: id, ProviderID: uuid.New(), BillingEnabled: true}, nil
		},
	}
	svc, _ := NewService(ServiceParams{Repo: repo})

	_, err := svc.ResolveBillable(context.Background(), uuid.New(), uuid.New())
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestResolveBillable_Success(t *testing.T) {
	providerID := uuid.New()
	clientID := uuid.New()
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
			return &models.Conversation{
				ID:             id,
				RoomID:         "room-1",
				ProviderID:     providerID,
				ClientID:       clientID,
				BillingEnabled: true,
			}, nil
		},
	}
	svc, _ := NewService(ServiceParams{Repo: repo})

	conversation, err := svc.ResolveBillable(context.Background(), uuid.New(), providerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conversation.ClientID != clientID || conversation.RoomID != "room-1" {
		t.Fatalf("unexpected conversation %+v", conversation)
	}
}
