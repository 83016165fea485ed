package enums

import (
	"fmt"
	"strings"
)

// Currency represents supported monetary denominations for charges.
type Currency string

const (
	CurrencyBRL Currency = "brl"
	CurrencyUSD Currency = "usd"
)

var validCurrencies = []Currency{
	CurrencyBRL,
	CurrencyUSD,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validCurrencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
