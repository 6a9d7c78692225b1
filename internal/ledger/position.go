package ledger

import (
	"fmt"
	"math"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/shopspring/decimal"
)

// ApplyBuy adds qty shares bought at price and recomputes the weighted
// average cost, rounded half-up to domain.CostScale digits.
func ApplyBuy(pos *domain.Position, qty int64, price decimal.Decimal) (*domain.Position, error) {
	if qty <= 0 {
		return nil, domain.Violation("buy quantity %d must be positive", qty)
	}
	if !price.IsPositive() {
		return nil, domain.Violation("buy price %s must be positive", price)
	}
	if pos.Quantity < 0 {
		return nil, domain.Violation("position %s/%s has negative quantity %d", pos.UserID, pos.Symbol, pos.Quantity)
	}
	if qty > math.MaxInt64-pos.Quantity {
		return nil, domain.Violation("position %s/%s: buy of %d overflows quantity %d", pos.UserID, pos.Symbol, qty, pos.Quantity)
	}

	newQty := pos.Quantity + qty
	cost := domain.Notional(pos.AvgCost, pos.Quantity).Add(domain.Notional(price, qty))

	out := pos.Clone()
	out.Quantity = newQty
	out.AvgCost = cost.DivRound(decimal.NewFromInt(newQty), domain.CostScale)
	return out, nil
}

// ApplySell removes qty shares that were reserved by a resting SELL order.
// The average cost is kept unless the position goes flat.
func ApplySell(pos *domain.Position, qty int64) (*domain.Position, error) {
	if qty <= 0 {
		return nil, domain.Violation("sell quantity %d must be positive", qty)
	}
	if pos.Quantity < qty || pos.ReservedQuantity < qty {
		return nil, &domain.ConsistencyError{
			Message: fmt.Sprintf("position %s/%s: sell of %d exceeds holdings %d (reserved %d)",
				pos.UserID, pos.Symbol, qty, pos.Quantity, pos.ReservedQuantity),
			Cause:   domain.ErrInsufficientPosition,
		}
	}

	out := pos.Clone()
	out.Quantity = pos.Quantity - qty
	out.ReservedQuantity = pos.ReservedQuantity - qty
	if out.Quantity == 0 {
		out.AvgCost = decimal.Zero
	}
	return out, nil
}

// ReserveShares commits qty available shares to a resting SELL order.
func ReserveShares(pos *domain.Position, qty int64) (*domain.Position, error) {
	if qty <= 0 {
		return nil, domain.Violation("reserve quantity %d must be positive", qty)
	}
	if pos.AvailableQuantity() < qty {
		return nil, domain.ErrInsufficientPosition
	}
	out := pos.Clone()
	out.ReservedQuantity = pos.ReservedQuantity + qty
	return out, nil
}

// ReleaseShares returns qty reserved shares to available.
func ReleaseShares(pos *domain.Position, qty int64) (*domain.Position, error) {
	if qty < 0 {
		return nil, domain.Violation("release quantity %d must not be negative", qty)
	}
	if pos.ReservedQuantity < qty {
		return nil, domain.Violation("position %s/%s: release of %d exceeds reserved %d",
			pos.UserID, pos.Symbol, qty, pos.ReservedQuantity)
	}
	out := pos.Clone()
	out.ReservedQuantity = pos.ReservedQuantity - qty
	return out, nil
}
