package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a user's holding in one symbol. ReservedQuantity is the part
// of Quantity committed to resting SELL orders.
type Position struct {
	UserID           string
	Symbol           string
	Quantity         int64
	ReservedQuantity int64
	AvgCost          decimal.Decimal
	UpdatedAt        time.Time
}

// NewPosition returns an empty position.
func NewPosition(userID, symbol string) *Position {
	return &Position{UserID: userID, Symbol: symbol, AvgCost: decimal.Zero}
}

// AvailableQuantity is the number of shares that can back a new SELL order.
func (p *Position) AvailableQuantity() int64 {
	return p.Quantity - p.ReservedQuantity
}

// Clone returns a copy of the position.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}
