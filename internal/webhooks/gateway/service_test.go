package gatewaywebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/legalflow/billing-backend/internal/payments"
	"github.com/legalflow/billing-backend/pkg/db/models"
	"github.com/legalflow/billing-backend/pkg/logger"
)

type fakeStore struct {
	marks map[string]bool
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{marks: make(map[string]bool)}
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) { return "", nil }

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.marks[key] {
		return false, nil
	}
	f.marks[key] = true
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "lf:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.marks, key)
	}
	return nil
}

type fakeReconciler struct {
	payment  *models.Payment
	findErr  error
	outcome  payments.ReconcileOutcome
	applyErr error
	applied  int
}

func (f *fakeReconciler) FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	return f.payment, f.findErr
}

func (f *fakeReconciler) ApplyGatewayStatus(ctx context.Context, payment *models.Payment, rawStatus, eventType string, raw json.RawMessage, occurredAt time.Time) (payments.ReconcileOutcome, error) {
	if f.applyErr != nil {
		return "", f.applyErr
	}
	f.applied++
	return f.outcome, nil
}

func newWebhookService(t *testing.T, reconciler *fakeReconciler, store *fakeStore) *Service {
	t.Helper()

	guard, err := NewIdempotencyGuard(store, time.Hour, "webhooks:gateway")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Payments: reconciler,
		Guard:    guard,
		Logger:   logger.New(logger.Options{Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func paidEvent() *Event {
	return &Event{
		ID:        "evt_1",
		Type:      EventChargeSucceeded,
		CreatedAt: time.Now().UTC(),
		Data: EventData{
			ID:     "pay_ext_1",
			Status: "paid",
		},
	}
}

func TestHandleEvent_Applied(t *testing.T) {
	reconciler := &fakeReconciler{
		payment: &models.Payment{ID: uuid.New()},
		outcome: payments.OutcomeApplied,
	}
	svc := newWebhookService(t, reconciler, newFakeStore())

	if err := svc.HandleEvent(context.Background(), paidEvent(), json.RawMessage(`{}`)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if reconciler.applied != 1 {
		t.Fatalf("expected 1 apply, got %d", reconciler.applied)
	}
}

func TestHandleEvent_DuplicateDeliverySkipsApply(t *testing.T) {
	reconciler := &fakeReconciler{
		payment: &models.Payment{ID: uuid.New()},
		outcome: payments.OutcomeApplied,
	}
	svc := newWebhookService(t, reconciler, newFakeStore())

	event := paidEvent()
	if err := svc.HandleEvent(context.Background(), event, nil); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.HandleEvent(context.Background(), event, nil); err != nil {
		t.Fatalf("second delivery must be acknowledged: %v", err)
	}
	if reconciler.applied != 1 {
		t.Fatalf("duplicate delivery must not re-apply, got %d applies", reconciler.applied)
	}
}

func TestHandleEvent_UnknownTypeIgnored(t *testing.T) {
	reconciler := &fakeReconciler{}
	svc := newWebhookService(t, reconciler, newFakeStore())

	event := paidEvent()
	event.Type = "customer.updated"
	if err := svc.HandleEvent(context.Background(), event, nil); err != nil {
		t.Fatalf("unknown type must be acknowledged: %v", err)
	}
	if reconciler.applied != 0 {
		t.Fatal("unknown type must not touch payments")
	}
}

func TestHandleEvent_UnknownPaymentAcknowledged(t *testing.T) {
	reconciler := &fakeReconciler{}
	store := newFakeStore()
	svc := newWebhookService(t, reconciler, store)

	if err := svc.HandleEvent(context.Background(), paidEvent(), nil); err != nil {
		t.Fatalf("unknown payment must be acknowledged: %v", err)
	}
	// The mark is released so a later re-delivery can resolve the payment.
	if len(store.marks) != 0 {
		t.Fatal("idempotency mark must be released for unresolved events")
	}
}

func TestHandleEvent_ApplyErrorReleasesMark(t *testing.T) {
	reconciler := &fakeReconciler{
		payment:  &models.Payment{ID: uuid.New()},
		applyErr: errors.New("db down"),
	}
	store := newFakeStore()
	svc := newWebhookService(t, reconciler, store)

	if err := svc.HandleEvent(context.Background(), paidEvent(), nil); err == nil {
		t.Fatal("internal failures must propagate so the gateway retries")
	}
	if len(store.marks) != 0 {
		t.Fatal("idempotency mark must be released after a failure")
	}
}

func TestHandleEvent_MissingID(t *testing.T) {
	svc := newWebhookService(t, &fakeReconciler{}, newFakeStore())
	if err := svc.HandleEvent(context.Background(), &Event{}, nil); err == nil {
		t.Fatal("expected an error for a missing event id")
	}
}
