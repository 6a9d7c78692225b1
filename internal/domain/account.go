package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a user's cash. ReservedCash is the part of CashBalance
// committed to resting BUY orders.
type Account struct {
	UserID       string
	CashBalance  decimal.Decimal
	ReservedCash decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AvailableCash is the cash that can back a new BUY order.
func (a *Account) AvailableCash() decimal.Decimal {
	return a.CashBalance.Sub(a.ReservedCash)
}

// Clone returns a copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}
