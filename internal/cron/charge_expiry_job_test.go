package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/legalflow/billing-backend/pkg/logger"
)

type fakeChargeExpirer struct {
	batches []int
	calls   int
	err     error
	limits  []int
}

func (f *fakeChargeExpirer) ExpireDueCharges(ctx context.Context, limit int) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.limits = append(f.limits, limit)
	if f.calls >= len(f.batches) {
		return 0, nil
	}
	expired := f.batches[f.calls]
	f.calls++
	return expired, nil
}

func newChargeExpiryJob(t *testing.T, expirer *fakeChargeExpirer, batchSize int) Job {
	t.Helper()
	job, err := NewChargeExpiryJob(ChargeExpiryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Billing:   expirer,
		BatchSize: batchSize,
	})
	if err != nil {
		t.Fatalf("NewChargeExpiryJob: %v", err)
	}
	return job
}

func TestChargeExpiryJobSweepsUntilDrained(t *testing.T) {
	// Two full batches then a partial one means three sweep calls.
	expirer := &fakeChargeExpirer{batches: []int{10, 10, 3}}
	job := newChargeExpiryJob(t, expirer, 10)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 3 {
		t.Fatalf("expected 3 sweep calls, got %d", expirer.calls)
	}
	for _, limit := range expirer.limits {
		if limit != 10 {
			t.Fatalf("expected batch size 10, got %d", limit)
		}
	}
}

func TestChargeExpiryJobPropagatesErrors(t *testing.T) {
	expirer := &fakeChargeExpirer{err: errors.New("boom")}
	job := newChargeExpiryJob(t, expirer, 10)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestChargeExpiryJobRequiresBilling(t *testing.T) {
	_, err := NewChargeExpiryJob(ChargeExpiryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
	})
	if err == nil {
		t.Fatal("expected error for missing billing service")
	}
}
