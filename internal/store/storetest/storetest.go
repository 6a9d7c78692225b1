// Package storetest is a conformance suite shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns an empty store. Cleanup is registered on t.
type Opener func(t *testing.T) store.Store

var base = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func order(id, user string, side domain.OrderSide, price string, qty int64, seq int) *domain.Order {
	at := base.Add(time.Duration(seq) * time.Second)
	return &domain.Order{
		OrderID:           id,
		UserID:            user,
		Symbol:            "AAPL",
		Side:              side,
		LimitPrice:        dec(price),
		Quantity:          qty,
		RemainingQuantity: qty,
		Status:            domain.OrderStatusOpen,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}

func account(user, cash string) *domain.Account {
	return &domain.Account{
		UserID:       user,
		CashBalance:  dec(cash),
		ReservedCash: decimal.Zero,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func saveOrders(t *testing.T, s store.Store, orders ...*domain.Order) {
	t.Helper()
	err := s.Atomic(context.Background(), func(tx store.Tx) error {
		for _, o := range orders {
			if err := tx.Orders().Save(context.Background(), o); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func ids(orders []*domain.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.OrderID
	}
	return out
}

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("AccountLifecycle", func(t *testing.T) { testAccountLifecycle(t, open(t)) })
	t.Run("OrderRoundTrip", func(t *testing.T) { testOrderRoundTrip(t, open(t)) })
	t.Run("OpenOrderPriority", func(t *testing.T) { testOpenOrderPriority(t, open(t)) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, open(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("Positions", func(t *testing.T) { testPositions(t, open(t)) })
	t.Run("TradesLegsJournal", func(t *testing.T) { testTradesLegsJournal(t, open(t)) })
	t.Run("ListOrders", func(t *testing.T) { testListOrders(t, open(t)) })
}

func testAccountLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetAccount(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	require.NoError(t, s.Atomic(ctx, func(tx store.Tx) error {
		return tx.Accounts().Create(ctx, account("alice", "500.00"))
	}))

	err = s.Atomic(ctx, func(tx store.Tx) error {
		return tx.Accounts().Create(ctx, account("alice", "1"))
	})
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)

	require.NoError(t, s.Atomic(ctx, func(tx store.Tx) error {
		a, err := tx.Accounts().Get(ctx, "alice")
		if err != nil {
			return err
		}
		a.ReservedCash = dec("120.50")
		return tx.Accounts().Save(ctx, a)
	}))

	got, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.CashBalance.Equal(dec("500")), "cash %s", got.CashBalance)
	assert.True(t, got.ReservedCash.Equal(dec("120.5")), "reserved %s", got.ReservedCash)
}

func testOrderRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	o := order("o-001", "alice", domain.OrderSideBuy, "150.25", 10, 0)
	saveOrders(t, s, o)

	got, err := s.GetOrder(ctx, "o-001")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, domain.OrderSideBuy, got.Side)
	assert.True(t, got.LimitPrice.Equal(dec("150.25")))
	assert.Equal(t, int64(10), got.RemainingQuantity)
	assert.Equal(t, domain.OrderStatusOpen, got.Status)
	assert.True(t, got.CreatedAt.Equal(o.CreatedAt))
	assert.Nil(t, got.CancelledAt)

	cancelledAt := base.Add(time.Minute)
	require.NoError(t, got.Cancel(cancelledAt))
	saveOrders(t, s, got)

	again, err := s.GetOrder(ctx, "o-001")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, again.Status)
	assert.Equal(t, int64(10), again.CancelledQuantity)
	require.NotNil(t, again.CancelledAt)
	assert.True(t, again.CancelledAt.Equal(cancelledAt))
}

func testOpenOrderPriority(t *testing.T, s store.Store) {
	ctx := context.Background()

	filled := order("o-006", "carol", domain.OrderSideSell, "99", 5, 6)
	filled.RemainingQuantity = 0
	filled.Status = domain.OrderStatusFilled

	partial := order("o-005", "carol", domain.OrderSideSell, "101", 5, 5)
	partial.RemainingQuantity = 2
	partial.Status = domain.OrderStatusPartiallyFilled

	other := order("o-007", "dave", domain.OrderSideSell, "50", 5, 7)
	other.Symbol = "MSFT"

	saveOrders(t, s,
		order("o-003", "bob", domain.OrderSideSell, "100", 5, 3),
		order("o-001", "alice", domain.OrderSideSell, "100", 5, 1),
		order("o-002", "bob", domain.OrderSideSell, "100.5", 5, 0),
		order("o-004", "alice", domain.OrderSideBuy, "120", 5, 4),
		order("o-008", "erin", domain.OrderSideBuy, "121", 5, 8),
		order("o-009", "erin", domain.OrderSideBuy, "120", 5, 2),
		partial, filled, other,
	)

	sells, err := s.RestingOrders(ctx, "AAPL", domain.OrderSideSell)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-001", "o-003", "o-002", "o-005"}, ids(sells))

	buys, err := s.RestingOrders(ctx, "AAPL", domain.OrderSideBuy)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-008", "o-009", "o-004"}, ids(buys))

	require.NoError(t, s.Atomic(ctx, func(tx store.Tx) error {
		inTx, err := tx.Orders().FindOpenBySymbolSide(ctx, "AAPL", domain.OrderSideSell)
		if err != nil {
			return err
		}
		assert.Equal(t, ids(sells), ids(inTx))
		return nil
	}))

	msft, err := s.RestingOrders(ctx, "MSFT", domain.OrderSideSell)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-007"}, ids(msft))

	none, err := s.RestingOrders(ctx, "TSLA", domain.OrderSideBuy)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testReadYourWrites(t *testing.T, s store.Store) {
	ctx := context.Background()
	saveOrders(t, s, order("o-001", "alice", domain.OrderSideSell, "100", 5, 1))

	require.NoError(t, s.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, account("bob", "10")); err != nil {
			return err
		}
		a, err := tx.Accounts().Get(ctx, "bob")
		if err != nil {
			return err
		}
		assert.True(t, a.CashBalance.Equal(dec("10")))

		o, err := tx.Orders().Get(ctx, "o-001")
		if err != nil {
			return err
		}
		if err := o.Fill(5, base.Add(time.Minute)); err != nil {
			return err
		}
		if err := tx.Orders().Save(ctx, o); err != nil {
			return err
		}
		if err := tx.Orders().Save(ctx, order("o-002", "carol", domain.OrderSideSell, "99", 1, 2)); err != nil {
			return err
		}

		open, err := tx.Orders().FindOpenBySymbolSide(ctx, "AAPL", domain.OrderSideSell)
		if err != nil {
			return err
		}
		assert.Equal(t, []string{"o-002"}, ids(open))
		return nil
	}))

	open, err := s.RestingOrders(ctx, "AAPL", domain.OrderSideSell)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-002"}, ids(open))
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Atomic(ctx, func(tx store.Tx) error {
		return tx.Accounts().Create(ctx, account("alice", "100"))
	}))
	saveOrders(t, s, order("o-001", "alice", domain.OrderSideBuy, "10", 5, 1))

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx store.Tx) error {
		a, err := tx.Accounts().Get(ctx, "alice")
		if err != nil {
			return err
		}
		a.CashBalance = dec("0")
		if err := tx.Accounts().Save(ctx, a); err != nil {
			return err
		}
		o, err := tx.Orders().Get(ctx, "o-001")
		if err != nil {
			return err
		}
		if err := o.Fill(5, base); err != nil {
			return err
		}
		if err := tx.Orders().Save(ctx, o); err != nil {
			return err
		}
		if err := tx.Positions().Save(ctx, &domain.Position{UserID: "alice", Symbol: "AAPL", Quantity: 5, AvgCost: dec("10")}); err != nil {
			return err
		}
		if err := tx.Trades().Save(ctx, &domain.Trade{TradeID: "t-1", Symbol: "AAPL", BuyerID: "alice", SellerID: "bob", Price: dec("10"), Quantity: 5, ExecutedAt: base}); err != nil {
			return err
		}
		if err := tx.Journal().Append(ctx, &domain.CashEntry{EntryID: "e-1", UserID: "alice", Direction: domain.EntryDebit, Amount: dec("50"), Reason: domain.ReasonBuy, CreatedAt: base}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, a.CashBalance.Equal(dec("100")))

	o, err := s.GetOrder(ctx, "o-001")
	require.NoError(t, err)
	assert.Equal(t, int64(5), o.RemainingQuantity)
	assert.Equal(t, domain.OrderStatusOpen, o.Status)

	positions, err := s.ListPositions(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, positions)

	trades, err := s.RecentTrades(ctx, "AAPL", 10)
	require.NoError(t, err)
	assert.Empty(t, trades)

	journal, err := s.ListJournal(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, journal)
}

func testPositions(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Atomic(ctx, func(tx store.Tx) error {
		p, err := tx.Positions().Get(ctx, "alice", "AAPL")
		if err != nil {
			return err
		}
		assert.Nil(t, p)

		for _, sym := range []string{"MSFT", "AAPL"} {
			err := tx.Positions().Save(ctx, &domain.Position{
				UserID: "alice", Symbol: sym, Quantity: 10, ReservedQuantity: 4,
				AvgCost: dec("41.6667"), UpdatedAt: base,
			})
			if err != nil {
				return err
			}
		}
		return tx.Positions().Save(ctx, &domain.Position{UserID: "bob", Symbol: "AAPL", Quantity: 1, AvgCost: dec("1")})
	}))

	positions, err := s.ListPositions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, "MSFT", positions[1].Symbol)
	assert.Equal(t, int64(4), positions[0].ReservedQuantity)
	assert.True(t, positions[0].AvgCost.Equal(dec("41.6667")))
}

func testTradesLegsJournal(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Atomic(ctx, func(tx store.Tx) error {
		for i := 1; i <= 3; i++ {
			tr := &domain.Trade{
				TradeID:     fmt.Sprintf("t-%03d", i),
				BuyOrderID:  "ob",
				SellOrderID: "os",
				BuyerID:     "alice",
				SellerID:    "bob",
				Symbol:      "AAPL",
				Price:       dec(fmt.Sprintf("%d.50", 50+i)),
				Quantity:    int64(i),
				ExecutedAt:  base.Add(time.Duration(i) * time.Second),
			}
			if err := tx.Trades().Save(ctx, tr); err != nil {
				return err
			}
			buy, sell := tr.Legs()
			if err := tx.Trades().SaveLeg(ctx, buy); err != nil {
				return err
			}
			if err := tx.Trades().SaveLeg(ctx, sell); err != nil {
				return err
			}
			entry := &domain.CashEntry{
				EntryID:   fmt.Sprintf("e-%03d", i),
				UserID:    "alice",
				Direction: domain.EntryDebit,
				Amount:    tr.Value(),
				Reason:    domain.ReasonBuy,
				Symbol:    "AAPL",
				OrderID:   "ob",
				TradeID:   tr.TradeID,
				CreatedAt: tr.ExecutedAt,
			}
			if err := tx.Journal().Append(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	}))

	since, err := s.TradesSince(ctx, "AAPL", base.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, since, 2, "window start is inclusive")
	assert.Equal(t, "t-003", since[0].TradeID)
	assert.Equal(t, "t-002", since[1].TradeID)

	none, err := s.TradesSince(ctx, "AAPL", base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)

	other, err := s.TradesSince(ctx, "MSFT", base)
	require.NoError(t, err)
	assert.Empty(t, other)

	recent, err := s.RecentTrades(ctx, "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t-003", recent[0].TradeID)
	assert.Equal(t, "t-002", recent[1].TradeID)
	assert.True(t, recent[0].Price.Equal(dec("53.5")))

	legs, err := s.ListLegs(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, legs, 3)
	assert.Equal(t, "t-001", legs[0].TradeID)
	assert.Equal(t, domain.OrderSideSell, legs[0].Side)
	assert.Equal(t, "os", legs[0].OrderID)

	journal, err := s.ListJournal(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, journal, 3)
	assert.Equal(t, "e-001", journal[0].EntryID)
	assert.True(t, journal[0].Amount.Equal(dec("51.5")))
	assert.Equal(t, domain.EntryDebit, journal[0].Direction)

	empty, err := s.ListJournal(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testListOrders(t *testing.T, s store.Store) {
	ctx := context.Background()

	var orders []*domain.Order
	for i := 0; i < 5; i++ {
		o := order(fmt.Sprintf("o-%03d", i), "alice", domain.OrderSideBuy, "10", 1, i)
		if i%2 == 0 {
			o.RemainingQuantity = 0
			o.Status = domain.OrderStatusFilled
		}
		orders = append(orders, o)
	}
	orders = append(orders, order("o-100", "bob", domain.OrderSideBuy, "10", 1, 9))
	saveOrders(t, s, orders...)

	page, total, err := s.ListOrders(ctx, store.OrderFilter{UserID: "alice", Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []string{"o-004", "o-003"}, ids(page))

	page, _, err = s.ListOrders(ctx, store.OrderFilter{UserID: "alice", Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"o-000"}, ids(page))

	page, _, err = s.ListOrders(ctx, store.OrderFilter{UserID: "alice", Page: 4, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page)

	status := domain.OrderStatusFilled
	page, total, err = s.ListOrders(ctx, store.OrderFilter{UserID: "alice", Status: &status, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"o-004", "o-002", "o-000"}, ids(page))
}
