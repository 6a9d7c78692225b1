package domain

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// MaxQuantity bounds the share quantity of a single order or opening
// holding.
const MaxQuantity int64 = 1_000_000_000

var (
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	symbolRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)
)

// ValidUserID reports whether id is an acceptable user identifier.
func ValidUserID(id string) bool {
	return userIDRegex.MatchString(id)
}

// ValidSymbol reports whether s is a well-formed ticker.
func ValidSymbol(s string) bool {
	return symbolRegex.MatchString(s)
}

// NewOrderCommand is an inbound request to place a limit order.
type NewOrderCommand struct {
	UserID     string
	Symbol     string
	Side       OrderSide
	LimitPrice decimal.Decimal
	Quantity   int64
}

// Validate checks the command's shape. It does not check that the symbol
// is listed or that the user can afford the order.
func (c NewOrderCommand) Validate() error {
	if !ValidUserID(c.UserID) {
		return &ValidationError{Message: "user_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if !ValidSymbol(c.Symbol) {
		return &ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	if !c.Side.Valid() {
		return &ValidationError{Message: "side must be 'BUY' or 'SELL'"}
	}
	if c.Quantity <= 0 {
		return &ValidationError{Message: "quantity must be a positive integer"}
	}
	if c.Quantity > MaxQuantity {
		return &ValidationError{Message: fmt.Sprintf("quantity must be at most %d", MaxQuantity)}
	}
	if !c.LimitPrice.IsPositive() {
		return &ValidationError{Message: "limit_price must be greater than 0"}
	}
	if !HasScale(c.LimitPrice, PriceScale) {
		return &ValidationError{Message: "limit_price must have at most 2 decimal places"}
	}
	return nil
}
