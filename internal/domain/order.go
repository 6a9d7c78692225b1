package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether an order buys or sells shares.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Opposite returns the side an order of side s matches against.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is a limit order. RemainingQuantity only ever decreases, and a
// FILLED or CANCELLED order never changes again.
type Order struct {
	OrderID           string
	UserID            string
	Symbol            string
	Side              OrderSide
	LimitPrice        decimal.Decimal
	Quantity          int64
	RemainingQuantity int64
	CancelledQuantity int64
	Status            OrderStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CancelledAt       *time.Time
}

// FilledQuantity is the number of shares executed so far.
func (o *Order) FilledQuantity() int64 {
	return o.Quantity - o.RemainingQuantity - o.CancelledQuantity
}

// Resting reports whether the order is eligible to match.
func (o *Order) Resting() bool {
	return (o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled) &&
		o.RemainingQuantity > 0
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	if o.CancelledAt != nil {
		at := *o.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}

// Fill decrements the remaining quantity by qty and advances the status.
// Filling more than what remains, or filling a non-resting order, is a
// consistency violation.
func (o *Order) Fill(qty int64, at time.Time) error {
	if qty <= 0 {
		return Violation("order %s: fill quantity %d must be positive", o.OrderID, qty)
	}
	if !o.Resting() {
		return Violation("order %s: fill on non-resting order with status %s", o.OrderID, o.Status)
	}
	if qty > o.RemainingQuantity {
		return Violation("order %s: fill of %d exceeds remaining %d", o.OrderID, qty, o.RemainingQuantity)
	}
	o.RemainingQuantity -= qty
	if o.RemainingQuantity == 0 {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
	o.UpdatedAt = at
	return nil
}

// Cancel moves the remaining quantity to CancelledQuantity and marks the
// order CANCELLED.
func (o *Order) Cancel(at time.Time) error {
	if !o.Resting() {
		return ErrOrderNotCancellable
	}
	o.CancelledQuantity += o.RemainingQuantity
	o.RemainingQuantity = 0
	o.Status = OrderStatusCancelled
	o.UpdatedAt = at
	o.CancelledAt = &at
	return nil
}

// Reservation is what admission holds against the order's remaining
// quantity: cash for a BUY, nothing in cash terms for a SELL.
func (o *Order) Reservation() decimal.Decimal {
	if o.Side != OrderSideBuy {
		return decimal.Zero
	}
	return Notional(o.LimitPrice, o.RemainingQuantity)
}

// Crosses reports whether a BUY at buy and a SELL at sell can trade.
func Crosses(buy, sell decimal.Decimal) bool {
	return buy.GreaterThanOrEqual(sell)
}

// HasPriority reports whether a should be matched before b. Both orders
// must rest on the same side: BUY prefers the higher price, SELL the
// lower; ties break on CreatedAt then OrderID.
func HasPriority(a, b *Order) bool {
	if c := a.LimitPrice.Cmp(b.LimitPrice); c != 0 {
		if a.Side == OrderSideBuy {
			return c > 0
		}
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}
