package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

// Property: amounts with at most two fractional digits survive a
// string round-trip through ParseAmount unchanged.

func TestProperty_AmountRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(-99_999_999_99, 99_999_999_99).Draw(t, "cents")

		want := decimal.New(cents, -PriceScale)
		got, err := ParseAmount(want.String())
		if err != nil {
			t.Fatalf("ParseAmount(%s) returned error: %v", want, err)
		}
		if !got.Equal(want) {
			t.Fatalf("round-trip failed: %s → %s", want, got)
		}
	})
}

func TestProperty_ParseAmountRejectsExcessPrecision(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		whole := rapid.Int64Range(0, 999_999).Draw(t, "whole")
		d3 := rapid.Int64Range(1, 9).Draw(t, "d3") // must be non-zero

		// whole.XYZ with Z != 0
		d := decimal.New(whole*1000+d3, -3)

		if _, err := ParseAmount(d.String()); err == nil {
			t.Fatalf("ParseAmount(%s) should reject value with >2 decimal places", d)
		}
	})
}
