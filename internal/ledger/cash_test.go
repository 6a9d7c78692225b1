package ledger

import (
	"testing"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func account(id, cash, reserved string) *domain.Account {
	return &domain.Account{UserID: id, CashBalance: d(cash), ReservedCash: d(reserved)}
}

func TestReserve(t *testing.T) {
	a := account("A", "1000", "0")

	got, err := Reserve(a, d("500"))
	require.NoError(t, err)
	assert.True(t, got.ReservedCash.Equal(d("500")))
	assert.True(t, got.AvailableCash().Equal(d("500")))
	assert.True(t, a.ReservedCash.IsZero(), "input must not be mutated")
}

func TestReserve_InsufficientFunds(t *testing.T) {
	a := account("A", "1000", "600")

	_, err := Reserve(a, d("400.01"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.NotErrorIs(t, err, domain.ErrConsistencyViolation)

	_, err = Reserve(a, d("400"))
	assert.NoError(t, err, "exactly the available cash is reservable")
}

func TestRelease(t *testing.T) {
	a := account("A", "1000", "500")

	got, err := Release(a, d("200"))
	require.NoError(t, err)
	assert.True(t, got.ReservedCash.Equal(d("300")))

	_, err = Release(a, d("500.01"))
	assert.ErrorIs(t, err, domain.ErrConsistencyViolation)
}

func TestCredit(t *testing.T) {
	a := account("A", "10", "0")

	got, err := Credit(a, d("0.50"))
	require.NoError(t, err)
	assert.True(t, got.CashBalance.Equal(d("10.5")))

	_, err = Credit(a, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrConsistencyViolation)
}

func TestSettle_AtLimit(t *testing.T) {
	buyer := account("A", "1000", "500")
	seller := account("B", "0", "0")

	b, s, err := Settle(buyer, seller, 10, d("50"), d("50"))
	require.NoError(t, err)

	assert.True(t, b.CashBalance.Equal(d("500")))
	assert.True(t, b.ReservedCash.IsZero())
	assert.True(t, s.CashBalance.Equal(d("500")))
	assert.True(t, buyer.CashBalance.Equal(d("1000")), "input must not be mutated")
}

func TestSettle_PriceImprovementReturnedToAvailable(t *testing.T) {
	// Reserved 10 × 50, executed at 45.
	buyer := account("A", "1000", "500")
	seller := account("B", "0", "0")

	b, s, err := Settle(buyer, seller, 10, d("45"), d("50"))
	require.NoError(t, err)

	assert.True(t, b.CashBalance.Equal(d("550")))
	assert.True(t, b.ReservedCash.IsZero())
	assert.True(t, b.AvailableCash().Equal(d("550")))
	assert.True(t, s.CashBalance.Equal(d("450")))
}

func TestSettle_Violations(t *testing.T) {
	tests := []struct {
		name          string
		buyer, seller *domain.Account
		qty           int64
		price, limit  string
	}{
		{"self trade", account("A", "1000", "500"), account("A", "1000", "500"), 1, "50", "50"},
		{"zero quantity", account("A", "1000", "500"), account("B", "0", "0"), 0, "50", "50"},
		{"price above limit", account("A", "1000", "500"), account("B", "0", "0"), 1, "51", "50"},
		{"reserved goes negative", account("A", "1000", "100"), account("B", "0", "0"), 10, "50", "50"},
		{"cash goes negative", account("A", "100", "100"), account("B", "0", "0"), 2, "50", "50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Settle(tt.buyer, tt.seller, tt.qty, d(tt.price), d(tt.limit))
			assert.ErrorIs(t, err, domain.ErrConsistencyViolation)
		})
	}
}
