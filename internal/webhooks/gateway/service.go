package gatewaywebhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/legalflow/billing-backend/internal/payments"
	"github.com/legalflow/billing-backend/pkg/db/models"
	"github.com/legalflow/billing-backend/pkg/logger"
	"github.com/legalflow/billing-backend/pkg/metrics"
)

type paymentReconciler interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	ApplyGatewayStatus(ctx context.Context, payment *models.Payment, rawStatus, eventType string, raw json.RawMessage, occurredAt time.Time) (payments.ReconcileOutcome, error)
}

// ServiceParams groups dependencies for the webhook reconciler.
type ServiceParams struct {
	Payments paymentReconciler
	Guard    *IdempotencyGuard
	Metrics  *metrics.WebhookMetrics
	Logger   *logger.Logger
}

// Service reconciles asynchronous gateway notifications onto payments and
// charges. Every path that is not an internal failure ends in an
// acknowledgment: the gateway retries aggressively and re-delivery of an
// already-handled event must stay cheap.
type Service struct {
	payments paymentReconciler
	guard    *IdempotencyGuard
	metrics  *metrics.WebhookMetrics
	logg     *logger.Logger
}

// NewService builds a webhook reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, errors.New("payments service is required")
	}
	if params.Guard == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		payments: params.Payments,
		guard:    params.Guard,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HandleEvent processes one delivery. A nil return means the sender should
// get a success acknowledgment; only internal failures propagate so the
// gateway retries them.
func (s *Service) HandleEvent(ctx context.Context, event *Event, raw json.RawMessage) error {
	if event == nil || event.ID == "" {
		return errors.New("event id is required")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	if _, ok := supportedEventTypes[event.Type]; !ok {
		s.logg.Info(logCtx, "ignoring unsupported webhook event type")
		return nil
	}

	seen, err := s.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		return err
	}
	if seen {
		s.metrics.IncDuplicate(event.Type)
		s.logg.Info(logCtx, "duplicate webhook delivery")
		return nil
	}

	payment, err := s.payments.FindByExternalID(ctx, event.Data.ID)
	if err != nil {
		s.release(ctx, event.ID)
		return err
	}
	if payment == nil {
		// The payment may not exist yet (create webhook racing the API
		// response) or may belong to another system. Acknowledge, but free
		// the mark so a re-delivery can resolve it later.
		s.metrics.IncUnresolved(event.Type)
		s.logg.Warn(logCtx, "webhook references unknown payment")
		s.release(ctx, event.ID)
		return nil
	}

	outcome, err := s.payments.ApplyGatewayStatus(ctx, payment, event.Data.Status, event.Type, raw, event.CreatedAt)
	if err != nil {
		s.release(ctx, event.ID)
		return err
	}

	switch outcome {
	case payments.OutcomeApplied:
		s.metrics.IncProcessed(event.Type)
	case payments.OutcomeDuplicate:
		s.metrics.IncDuplicate(event.Type)
	case payments.OutcomeConflict:
		s.metrics.IncConflict(event.Type)
	}
	return nil
}

func (s *Service) release(ctx context.Context, eventID string) {
	if err := s.guard.Delete(ctx, eventID); err != nil {
		s.logg.Error(ctx, "releasing webhook idempotency mark", err)
	}
}
