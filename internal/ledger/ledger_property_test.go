package ledger

import (
	"testing"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func drawPrice(t *rapid.T, label string) decimal.Decimal {
	return decimal.New(rapid.Int64Range(1, 100_000).Draw(t, label), -domain.PriceScale)
}

// Property: settlement conserves cash. The buyer loses exactly what the
// seller gains, and neither balance nor reservation goes negative.
func TestProperty_SettleConservesCash(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := drawPrice(t, "limit")
		price := decimal.New(rapid.Int64Range(1, limit.Shift(domain.PriceScale).IntPart()).Draw(t, "price"), -domain.PriceScale)
		qty := rapid.Int64Range(1, 1000).Draw(t, "qty")
		extra := decimal.New(rapid.Int64Range(0, 1_000_000).Draw(t, "extra"), -domain.PriceScale)

		reserved := domain.Notional(limit, qty)
		buyer := &domain.Account{UserID: "A", CashBalance: reserved.Add(extra), ReservedCash: reserved}
		seller := &domain.Account{UserID: "B", CashBalance: extra}

		b, s, err := Settle(buyer, seller, qty, price, limit)
		if err != nil {
			t.Fatalf("Settle: %v", err)
		}

		before := buyer.CashBalance.Add(seller.CashBalance)
		after := b.CashBalance.Add(s.CashBalance)
		if !before.Equal(after) {
			t.Fatalf("cash not conserved: %s → %s", before, after)
		}
		if b.ReservedCash.IsNegative() || b.AvailableCash().IsNegative() {
			t.Fatalf("buyer went negative: cash=%s reserved=%s", b.CashBalance, b.ReservedCash)
		}
	})
}

// Property: after any sequence of buys the average cost equals total cost
// over quantity, to within the rounding step at each buy.
func TestProperty_ApplyBuyAverageCost(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := domain.NewPosition("A", "AAPL")
		n := rapid.IntRange(1, 20).Draw(t, "n")
		tolerance := decimal.New(5, -(domain.CostScale + 1))

		for i := 0; i < n; i++ {
			qty := rapid.Int64Range(1, 500).Draw(t, "qty")
			price := drawPrice(t, "price")

			exact := domain.Notional(p.AvgCost, p.Quantity).Add(domain.Notional(price, qty)).
				Div(decimal.NewFromInt(p.Quantity + qty))

			next, err := ApplyBuy(p, qty, price)
			if err != nil {
				t.Fatalf("ApplyBuy: %v", err)
			}
			if next.AvgCost.Sub(exact).Abs().GreaterThan(tolerance) {
				t.Fatalf("avg cost %s too far from exact %s", next.AvgCost, exact)
			}
			if !domain.HasScale(next.AvgCost, domain.CostScale) {
				t.Fatalf("avg cost %s has more than %d digits", next.AvgCost, domain.CostScale)
			}
			p = next
		}
	})
}

// Property: positions never go short. A sell either succeeds leaving
// 0 ≤ reserved ≤ quantity, or fails leaving the input unchanged.
func TestProperty_NoShortPositions(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		qty := rapid.Int64Range(0, 1000).Draw(t, "qty")
		reserved := rapid.Int64Range(0, qty).Draw(t, "reserved")
		sell := rapid.Int64Range(1, 1200).Draw(t, "sell")

		p := &domain.Position{UserID: "A", Symbol: "AAPL", Quantity: qty, ReservedQuantity: reserved, AvgCost: decimal.NewFromInt(10)}
		got, err := ApplySell(p, sell)
		if err != nil {
			if sell <= reserved {
				t.Fatalf("sell of %d within reserved %d rejected: %v", sell, reserved, err)
			}
			if p.Quantity != qty || p.ReservedQuantity != reserved {
				t.Fatal("failed sell mutated the input")
			}
			return
		}
		if got.Quantity < 0 || got.ReservedQuantity < 0 || got.ReservedQuantity > got.Quantity {
			t.Fatalf("invalid position after sell: qty=%d reserved=%d", got.Quantity, got.ReservedQuantity)
		}
		if got.Quantity == 0 && !got.AvgCost.IsZero() {
			t.Fatalf("flat position has avg cost %s", got.AvgCost)
		}
	})
}
