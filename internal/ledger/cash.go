// Package ledger holds the cash and position bookkeeping rules. Every
// function is pure: it validates, then returns updated copies and leaves
// its inputs untouched.
package ledger

import (
	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/shopspring/decimal"
)

// Reserve commits amount of the account's available cash to a resting BUY
// order.
func Reserve(acct *domain.Account, amount decimal.Decimal) (*domain.Account, error) {
	if amount.IsNegative() {
		return nil, domain.Violation("reserve of negative amount %s", amount)
	}
	if acct.AvailableCash().LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}
	out := acct.Clone()
	out.ReservedCash = acct.ReservedCash.Add(amount)
	return out, nil
}

// Release returns amount of reserved cash to available cash.
func Release(acct *domain.Account, amount decimal.Decimal) (*domain.Account, error) {
	if amount.IsNegative() {
		return nil, domain.Violation("release of negative amount %s", amount)
	}
	if acct.ReservedCash.LessThan(amount) {
		return nil, domain.Violation("account %s: release of %s exceeds reserved %s",
			acct.UserID, amount, acct.ReservedCash)
	}
	out := acct.Clone()
	out.ReservedCash = acct.ReservedCash.Sub(amount)
	return out, nil
}

// Credit adds amount to the account's cash balance.
func Credit(acct *domain.Account, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, domain.Violation("credit of non-positive amount %s", amount)
	}
	out := acct.Clone()
	out.CashBalance = acct.CashBalance.Add(amount)
	return out, nil
}

// Settle moves qty × price from buyer to seller. The buyer's reservation is
// released at reservedPrice, the limit the cash was reserved at, so any
// price improvement goes back to available cash.
func Settle(buyer, seller *domain.Account, qty int64, price, reservedPrice decimal.Decimal) (*domain.Account, *domain.Account, error) {
	if buyer.UserID == seller.UserID {
		return nil, nil, domain.Violation("settlement between account %s and itself", buyer.UserID)
	}
	if qty <= 0 {
		return nil, nil, domain.Violation("settlement quantity %d must be positive", qty)
	}
	if !price.IsPositive() {
		return nil, nil, domain.Violation("settlement price %s must be positive", price)
	}
	if price.GreaterThan(reservedPrice) {
		return nil, nil, domain.Violation("execution price %s above reserved price %s", price, reservedPrice)
	}

	value := domain.Notional(price, qty)
	release := domain.Notional(reservedPrice, qty)

	b := buyer.Clone()
	b.ReservedCash = buyer.ReservedCash.Sub(release)
	b.CashBalance = buyer.CashBalance.Sub(value)
	if b.ReservedCash.IsNegative() {
		return nil, nil, domain.Violation("account %s: reserved cash would go negative (%s)", b.UserID, b.ReservedCash)
	}
	if b.CashBalance.IsNegative() {
		return nil, nil, domain.Violation("account %s: cash balance would go negative (%s)", b.UserID, b.CashBalance)
	}
	if b.AvailableCash().IsNegative() {
		return nil, nil, domain.Violation("account %s: reserved cash %s exceeds balance %s", b.UserID, b.ReservedCash, b.CashBalance)
	}

	s := seller.Clone()
	s.CashBalance = seller.CashBalance.Add(value)
	return b, s, nil
}
