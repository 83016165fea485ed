package conversations

import (
	"context"
	"errors"

	"github.com/google/uuid"

	pkgerrors "github.com/legalflow/billing-backend/pkg/errors"
)

// ServiceParams groups dependencies for the conversation service.
type ServiceParams struct {
	Repo Repository
}

// Service exposes the billing-relevant conversation reads.
type Service struct {
	repo Repository
}

// NewService builds a conversation service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// ResolveBillable loads a conversation and verifies charges may be created in
// it by the given provider.
func (s *Service) ResolveBillable(ctx context.Context, conversationID, providerID uuid.UUID) (*Conversation, error) {
	record, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading conversation")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "conversation not found")
	}
	if !record.BillingEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "billing is disabled for this conversation")
	}
	if record.ProviderID != providerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the assigned provider may bill this conversation")
	}
	return &Conversation{
		ID:         record.ID,
		RoomID:     record.RoomID,
		ProviderID: record.ProviderID,
		ClientID:   record.ClientID,
	}, nil
}

// Conversation is the read model handed to billing callers.
type Conversation struct {
	ID         uuid.UUID
	RoomID     string
	ProviderID uuid.UUID
	ClientID   uuid.UUID
}
