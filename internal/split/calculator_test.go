package split

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legalflow/billing-backend/pkg/config"
)

func newTestCalculator(t *testing.T, providerPct, platformPct int) *Calculator {
	t.Helper()
	calc, err := NewCalculator(config.BillingConfig{
		ProviderPercentage: providerPct,
		PlatformPercentage: platformPct,
	})
	require.NoError(t, err)
	return calc
}

func TestSplit_DefaultPercentages(t *testing.T) {
	calc := newTestCalculator(t, 95, 5)

	breakdown, err := calc.Split(10000)
	require.NoError(t, err)
	require.Equal(t, int64(500), breakdown.PlatformFeeCents)
	require.Equal(t, int64(9500), breakdown.ProviderCents)
	require.Equal(t, breakdown.AmountCents, breakdown.ProviderCents+breakdown.PlatformFeeCents)
}

func TestSplit_RoundsHalfUp(t *testing.T) {
	calc := newTestCalculator(t, 95, 5)

	// 5% of 1010 is 50.5, which rounds up to 51.
	breakdown, err := calc.Split(1010)
	require.NoError(t, err)
	require.Equal(t, int64(51), breakdown.PlatformFeeCents)
	require.Equal(t, int64(959), breakdown.ProviderCents)
}

func TestSplit_SharesAlwaysRebuildAmount(t *testing.T) {
	calc := newTestCalculator(t, 80, 20)

	for _, amount := range []int64{1, 3, 99, 101, 333, 12345, 999999999} {
		breakdown, err := calc.Split(amount)
		require.NoError(t, err)
		require.Equalf(t, amount, breakdown.ProviderCents+breakdown.PlatformFeeCents,
			"shares must rebuild %d", amount)
		require.GreaterOrEqual(t, breakdown.ProviderCents, int64(0))
		require.GreaterOrEqual(t, breakdown.PlatformFeeCents, int64(0))
	}
}

func TestSplit_TinyAmounts(t *testing.T) {
	calc := newTestCalculator(t, 95, 5)

	// 5% of 1 cent is 0.05, which rounds down to 0.
	breakdown, err := calc.Split(1)
	require.NoError(t, err)
	require.Equal(t, int64(0), breakdown.PlatformFeeCents)
	require.Equal(t, int64(1), breakdown.ProviderCents)

	// 5% of 10 cents is 0.5, which rounds up to 1.
	breakdown, err = calc.Split(10)
	require.NoError(t, err)
	require.Equal(t, int64(1), breakdown.PlatformFeeCents)
	require.Equal(t, int64(9), breakdown.ProviderCents)
}

func TestSplit_RejectsNonPositiveAmounts(t *testing.T) {
	calc := newTestCalculator(t, 95, 5)

	_, err := calc.Split(0)
	require.Error(t, err)
	_, err = calc.Split(-100)
	require.Error(t, err)
}

func TestNewCalculator_RejectsBadPercentages(t *testing.T) {
	_, err := NewCalculator(config.BillingConfig{ProviderPercentage: 90, PlatformPercentage: 5})
	require.Error(t, err)

	_, err = NewCalculator(config.BillingConfig{ProviderPercentage: -5, PlatformPercentage: 105})
	require.Error(t, err)
}
