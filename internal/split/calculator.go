package split

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/legalflow/billing-backend/pkg/config"
)

// Breakdown is the result of splitting a charge amount between the provider
// and the platform. ProviderCents + PlatformFeeCents always equals AmountCents.
type Breakdown struct {
	AmountCents        int64
	ProviderCents      int64
	PlatformFeeCents   int64
	ProviderPercentage int
	PlatformPercentage int
}

// Calculator computes the provider/platform split for charge amounts. The
// percentages come from one configuration source so the ledger and the
// payment processor can never disagree.
type Calculator struct {
	providerPercentage int
	platformPercentage int
}

// NewCalculator validates the configured percentages and builds a calculator.
func NewCalculator(cfg config.BillingConfig) (*Calculator, error) {
	if cfg.ProviderPercentage < 0 || cfg.PlatformPercentage < 0 {
		return nil, fmt.Errorf("split percentages must not be negative")
	}
	if cfg.ProviderPercentage+cfg.PlatformPercentage != 100 {
		return nil, fmt.Errorf(
			"split percentages must sum to 100, got %d+%d",
			cfg.ProviderPercentage, cfg.PlatformPercentage,
		)
	}
	return &Calculator{
		providerPercentage: cfg.ProviderPercentage,
		platformPercentage: cfg.PlatformPercentage,
	}, nil
}

// ProviderPercentage returns the provider share in whole percent.
func (c *Calculator) ProviderPercentage() int {
	return c.providerPercentage
}

// PlatformPercentage returns the platform share in whole percent.
func (c *Calculator) PlatformPercentage() int {
	return c.platformPercentage
}

// Split divides amountCents between provider and platform. The platform fee
// is rounded half-up to the nearest cent and the provider receives the
// remainder, so the two shares always rebuild the original amount.
func (c *Calculator) Split(amountCents int64) (Breakdown, error) {
	if amountCents <= 0 {
		return Breakdown{}, fmt.Errorf("amount must be positive, got %d", amountCents)
	}

	amount := decimal.NewFromInt(amountCents)
	pct := decimal.NewFromInt(int64(c.platformPercentage)).Div(decimal.NewFromInt(100))
	fee := amount.Mul(pct).Round(0)

	feeCents := fee.IntPart()
	providerCents := amountCents - feeCents

	return Breakdown{
		AmountCents:        amountCents,
		ProviderCents:      providerCents,
		PlatformFeeCents:   feeCents,
		ProviderPercentage: c.providerPercentage,
		PlatformPercentage: c.platformPercentage,
	}, nil
}
