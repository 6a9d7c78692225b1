package domain

import (
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)

func newOrder(id string, side OrderSide, price string, qty int64, at time.Time) *Order {
	return &Order{
		OrderID:           id,
		UserID:            "u-" + id,
		Symbol:            "AAPL",
		Side:              side,
		LimitPrice:        decimal.RequireFromString(price),
		Quantity:          qty,
		RemainingQuantity: qty,
		Status:            OrderStatusOpen,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}

func TestOrder_Fill_Partial(t *testing.T) {
	o := newOrder("a", OrderSideBuy, "50", 10, t0)

	require.NoError(t, o.Fill(4, t0.Add(time.Second)))

	assert.Equal(t, int64(6), o.RemainingQuantity)
	assert.Equal(t, int64(4), o.FilledQuantity())
	assert.Equal(t, OrderStatusPartiallyFilled, o.Status)
	assert.Equal(t, t0.Add(time.Second), o.UpdatedAt)
}

func TestOrder_Fill_Complete(t *testing.T) {
	o := newOrder("a", OrderSideSell, "50", 10, t0)

	require.NoError(t, o.Fill(4, t0))
	require.NoError(t, o.Fill(6, t0))

	assert.Equal(t, int64(0), o.RemainingQuantity)
	assert.Equal(t, OrderStatusFilled, o.Status)
	assert.False(t, o.Resting())
}

func TestOrder_Fill_Overfill(t *testing.T) {
	o := newOrder("a", OrderSideSell, "50", 3, t0)

	err := o.Fill(4, t0)
	assert.ErrorIs(t, err, ErrConsistencyViolation)
	assert.Equal(t, int64(3), o.RemainingQuantity, "failed fill must not mutate")
	assert.Equal(t, OrderStatusOpen, o.Status)
}

func TestOrder_Fill_FilledOrderNeverResurrected(t *testing.T) {
	o := newOrder("a", OrderSideSell, "50", 1, t0)
	require.NoError(t, o.Fill(1, t0))

	assert.ErrorIs(t, o.Fill(1, t0), ErrConsistencyViolation)
	assert.Equal(t, OrderStatusFilled, o.Status)
}

func TestOrder_Cancel(t *testing.T) {
	o := newOrder("a", OrderSideBuy, "50", 10, t0)
	require.NoError(t, o.Fill(3, t0))

	at := t0.Add(time.Minute)
	require.NoError(t, o.Cancel(at))

	assert.Equal(t, OrderStatusCancelled, o.Status)
	assert.Equal(t, int64(0), o.RemainingQuantity)
	assert.Equal(t, int64(7), o.CancelledQuantity)
	assert.Equal(t, int64(3), o.FilledQuantity())
	require.NotNil(t, o.CancelledAt)
	assert.Equal(t, at, *o.CancelledAt)

	assert.ErrorIs(t, o.Cancel(at), ErrOrderNotCancellable)
}

func TestOrder_Clone_IsIndependent(t *testing.T) {
	o := newOrder("a", OrderSideBuy, "50", 10, t0)
	require.NoError(t, o.Cancel(t0))

	c := o.Clone()
	c.RemainingQuantity = 99
	*c.CancelledAt = t0.Add(time.Hour)

	assert.Equal(t, int64(0), o.RemainingQuantity)
	assert.Equal(t, t0, *o.CancelledAt)
}

func TestOrder_Reservation(t *testing.T) {
	buy := newOrder("a", OrderSideBuy, "45.10", 10, t0)
	sell := newOrder("b", OrderSideSell, "45.10", 10, t0)

	assert.True(t, buy.Reservation().Equal(decimal.RequireFromString("451")))
	assert.True(t, sell.Reservation().IsZero())
}

func TestOrderSide_Opposite(t *testing.T) {
	assert.Equal(t, OrderSideSell, OrderSideBuy.Opposite())
	assert.Equal(t, OrderSideBuy, OrderSideSell.Opposite())
	assert.False(t, OrderSide("bid").Valid())
}

func TestHasPriority_Sell(t *testing.T) {
	orders := []*Order{
		newOrder("c", OrderSideSell, "101", 1, t0),
		newOrder("b", OrderSideSell, "100", 1, t0.Add(time.Second)),
		newOrder("a", OrderSideSell, "100", 1, t0),
		newOrder("d", OrderSideSell, "99.5", 1, t0.Add(time.Hour)),
	}
	sort.Slice(orders, func(i, j int) bool { return HasPriority(orders[i], orders[j]) })

	var ids []string
	for _, o := range orders {
		ids = append(ids, o.OrderID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}

func TestHasPriority_Buy(t *testing.T) {
	orders := []*Order{
		newOrder("c", OrderSideBuy, "99", 1, t0),
		newOrder("b", OrderSideBuy, "100", 1, t0),
		newOrder("a", OrderSideBuy, "100", 1, t0),
		newOrder("d", OrderSideBuy, "100.01", 1, t0.Add(time.Hour)),
	}
	sort.Slice(orders, func(i, j int) bool { return HasPriority(orders[i], orders[j]) })

	var ids []string
	for _, o := range orders {
		ids = append(ids, o.OrderID)
	}
	// equal price and time falls back to order id
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}

func TestCrosses(t *testing.T) {
	assert.True(t, Crosses(decimal.RequireFromString("50"), decimal.RequireFromString("45")))
	assert.True(t, Crosses(decimal.RequireFromString("50"), decimal.RequireFromString("50.00")))
	assert.False(t, Crosses(decimal.RequireFromString("49.99"), decimal.RequireFromString("50")))
}
