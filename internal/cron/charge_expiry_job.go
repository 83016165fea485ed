package cron

import (
	"context"
	"fmt"

	"github.com/legalflow/billing-backend/pkg/logger"
)

type chargeExpirer interface {
	ExpireDueCharges(ctx context.Context, limit int) (int, error)
}

// ChargeExpiryJobParams configure the pending charge sweep.
type ChargeExpiryJobParams struct {
	Logger    *logger.Logger
	Billing   chargeExpirer
	BatchSize int
}

// NewChargeExpiryJob builds the cron job that expires pending charges past
// their TTL. Reads race the sweep safely: both paths funnel through the same
// conditional status update, so a charge expires exactly once.
func NewChargeExpiryJob(params ChargeExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	return &chargeExpiryJob{
		logg:      params.Logger,
		billing:   params.Billing,
		batchSize: batchSize,
	}, nil
}

type chargeExpiryJob struct {
	logg      *logger.Logger
	billing   chargeExpirer
	batchSize int
}

func (j *chargeExpiryJob) Name() string { return "charge-expiry" }

func (j *chargeExpiryJob) Run(ctx context.Context) error {
	total := 0
	for {
		expired, err := j.billing.ExpireDueCharges(ctx, j.batchSize)
		if err != nil {
			return fmt.Errorf("expire due charges: %w", err)
		}
		total += expired
		if expired < j.batchSize {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": total})
	j.logg.Info(logCtx, "charge expiry sweep complete")
	return nil
}
