package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryDirection is the sign of a cash journal entry.
type EntryDirection string

const (
	EntryCredit EntryDirection = "CREDIT"
	EntryDebit  EntryDirection = "DEBIT"
)

// EntryReason says why cash moved.
type EntryReason string

const (
	ReasonDeposit EntryReason = "DEPOSIT"
	ReasonBuy     EntryReason = "BUY"
	ReasonSell    EntryReason = "SELL"
)

// CashEntry is one append-only movement of cash on an account. Symbol,
// OrderID and TradeID are empty for deposits.
type CashEntry struct {
	EntryID   string
	UserID    string
	Direction EntryDirection
	Amount    decimal.Decimal
	Reason    EntryReason
	Symbol    string
	OrderID   string
	TradeID   string
	CreatedAt time.Time
}

// Signed returns Amount with the sign implied by Direction.
func (e *CashEntry) Signed() decimal.Decimal {
	if e.Direction == EntryDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}
