package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// PriceScale is the maximum number of fractional digits accepted for
	// limit prices and cash amounts.
	PriceScale int32 = 2

	// CostScale is the number of fractional digits kept in a position's
	// weighted-average cost. Rounding is half-up.
	CostScale int32 = 4
)

// ParseAmount parses a decimal string and validates that it has at most
// PriceScale fractional digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", s)
	}
	if !HasScale(d, PriceScale) {
		return decimal.Zero, fmt.Errorf("monetary values must have at most %d decimal places", PriceScale)
	}
	return d, nil
}

// HasScale reports whether d can be represented with at most places
// fractional digits without rounding.
func HasScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// Notional returns price × qty.
func Notional(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty))
}

// RoundCost rounds a per-share cost to CostScale digits, half-up. Costs are
// never negative so half-away-from-zero and half-up coincide.
func RoundCost(d decimal.Decimal) decimal.Decimal {
	return d.Round(CostScale)
}
