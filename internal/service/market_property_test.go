package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/efreitasn/papertrade/internal/domain"
)

// TestProperty_VWAPComputation verifies that for any set of trades within the
// configured time window, the reference price equals
// sum(price × quantity) / sum(quantity) and trades outside are ignored.
func TestProperty_VWAPComputation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
		svc, st := newTestMarketService(now)

		var trades []*domain.Trade
		numOutside := rapid.IntRange(0, 5).Draw(rt, "numOutside")
		for i := 0; i < numOutside; i++ {
			offset := rapid.IntRange(301, 600).Draw(rt, fmt.Sprintf("outsideOffset-%d", i))
			cents := rapid.Int64Range(1, 100000).Draw(rt, fmt.Sprintf("outsideCents-%d", i))
			trades = append(trades, tapeTrade(i, decimal.New(cents, -2).String(), 1,
				now.Add(-time.Duration(offset)*time.Second)))
		}

		sumValue := decimal.Zero
		var sumQty int64
		numInside := rapid.IntRange(1, 20).Draw(rt, "numInside")
		for i := 0; i < numInside; i++ {
			cents := rapid.Int64Range(1, 100000).Draw(rt, fmt.Sprintf("cents-%d", i))
			qty := rapid.Int64Range(1, 1000).Draw(rt, fmt.Sprintf("qty-%d", i))
			tr := tapeTrade(100+i, decimal.New(cents, -2).String(), qty, now.Add(-time.Duration(300-i)*time.Second))
			trades = append(trades, tr)
			sumValue = sumValue.Add(tr.Value())
			sumQty += qty
		}
		saveTrades(t, st, trades...)

		resp, err := svc.GetPrice(context.Background(), "AAPL")
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		want := sumValue.DivRound(decimal.NewFromInt(sumQty), domain.CostScale)
		if !resp.CurrentPrice.Equal(want) {
			rt.Fatalf("got %s, want %s", resp.CurrentPrice, want)
		}
		if resp.TradesInWindow != numInside {
			rt.Fatalf("got %d trades in window, want %d", resp.TradesInWindow, numInside)
		}
	})
}
