package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/store"
	"github.com/efreitasn/papertrade/internal/store/memory"
)

// tickingClock returns a clock that advances one millisecond per call so
// that orders submitted in sequence have distinct CreatedAt values.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

// newTestMatcher creates a Matcher over a fresh memory store.
func newTestMatcher(t testing.TB) (*Matcher, store.Store) {
	t.Helper()
	st := memory.New()
	m := NewMatcher(st, domain.NewSymbolRegistry("AAPL", "MSFT"), WithClock(tickingClock()))
	return m, st
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// openAccount creates an account with the given cash and holdings.
func openAccount(t testing.TB, st store.Store, userID, cash string, holdings map[string]int64) {
	t.Helper()
	ctx := context.Background()
	err := st.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, &domain.Account{
			UserID:       userID,
			CashBalance:  dec(cash),
			ReservedCash: decimal.Zero,
		}); err != nil {
			return err
		}
		for sym, qty := range holdings {
			p := domain.NewPosition(userID, sym)
			p.Quantity = qty
			p.AvgCost = dec("10")
			if err := tx.Positions().Save(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func submit(t testing.TB, m *Matcher, userID string, side domain.OrderSide, symbol, price string, qty int64) *MatchResult {
	t.Helper()
	res, err := m.Submit(context.Background(), domain.NewOrderCommand{
		UserID:     userID,
		Symbol:     symbol,
		Side:       side,
		LimitPrice: dec(price),
		Quantity:   qty,
	})
	require.NoError(t, err)
	return res
}

func account(t testing.TB, st store.Store, userID string) *domain.Account {
	t.Helper()
	a, err := st.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	return a
}

func position(t testing.TB, st store.Store, userID, symbol string) *domain.Position {
	t.Helper()
	var pos *domain.Position
	err := st.Atomic(context.Background(), func(tx store.Tx) error {
		var err error
		pos, err = tx.Positions().Get(context.Background(), userID, symbol)
		return err
	})
	require.NoError(t, err)
	return pos
}

func assertDecimal(t testing.TB, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "%s: want %s, got %s", msg, want, got)
}

func TestSubmit_BuyAgainstRestingSell_TradesAtRestingPrice(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "A", "1000", nil)
	openAccount(t, st, "B", "0", map[string]int64{"AAPL": 10})

	rest := submit(t, m, "A", domain.OrderSideBuy, "AAPL", "50", 10)
	require.Empty(t, rest.Trades)
	assert.Equal(t, domain.OrderStatusOpen, rest.Order.Status)
	assertDecimal(t, "500", account(t, st, "A").ReservedCash, "A reserved after admission")

	res := submit(t, m, "B", domain.OrderSideSell, "AAPL", "45", 10)
	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assertDecimal(t, "50", trade.Price, "execution price")
	assert.Equal(t, int64(10), trade.Quantity)
	assert.Equal(t, "A", trade.BuyerID)
	assert.Equal(t, "B", trade.SellerID)
	assert.Equal(t, rest.Order.OrderID, trade.BuyOrderID)
	assert.Equal(t, res.Order.OrderID, trade.SellOrderID)

	assert.Equal(t, domain.OrderStatusFilled, res.Order.Status)
	assert.Zero(t, res.Order.RemainingQuantity)

	a := account(t, st, "A")
	assertDecimal(t, "500", a.CashBalance, "A cash")
	assertDecimal(t, "0", a.ReservedCash, "A reserved")
	b := account(t, st, "B")
	assertDecimal(t, "500", b.CashBalance, "B cash")

	aPos := position(t, st, "A", "AAPL")
	require.NotNil(t, aPos)
	assert.Equal(t, int64(10), aPos.Quantity)
	assertDecimal(t, "50", aPos.AvgCost, "A avg cost")
	bPos := position(t, st, "B", "AAPL")
	require.NotNil(t, bPos)
	assert.Zero(t, bPos.Quantity)
	assert.Zero(t, bPos.ReservedQuantity)
	assertDecimal(t, "0", bPos.AvgCost, "B avg cost")

	buyOrder, err := st.GetOrder(context.Background(), rest.Order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, buyOrder.Status)

	legs, err := st.ListLegs(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, domain.OrderSideBuy, legs[0].Side)
	assert.Equal(t, trade.ExecutedAt, legs[0].ExecutedAt)

	journal, err := st.ListJournal(context.Background(), "B")
	require.NoError(t, err)
	require.Len(t, journal, 1)
	assert.Equal(t, domain.EntryCredit, journal[0].Direction)
	assertDecimal(t, "500", journal[0].Amount, "B journal amount")
}

func TestSubmit_SellWithoutHolding_RejectedWithoutMutation(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "B", "100", nil)

	_, err := m.Submit(context.Background(), domain.NewOrderCommand{
		UserID: "B", Symbol: "AAPL", Side: domain.OrderSideSell, LimitPrice: dec("45"), Quantity: 5,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientPosition)
	assert.False(t, errors.Is(err, domain.ErrConsistencyViolation))

	orders, total, err := st.ListOrders(context.Background(), store.OrderFilter{UserID: "B", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
	assert.Nil(t, position(t, st, "B", "AAPL"))
	assertDecimal(t, "100", account(t, st, "B").CashBalance, "B cash")
}

func TestSubmit_SellMoreThanAvailable_Rejected(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "B", "0", map[string]int64{"AAPL": 10})

	submit(t, m, "B", domain.OrderSideSell, "AAPL", "45", 8)
	_, err := m.Submit(context.Background(), domain.NewOrderCommand{
		UserID: "B", Symbol: "AAPL", Side: domain.OrderSideSell, LimitPrice: dec("45"), Quantity: 3,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientPosition)

	pos := position(t, st, "B", "AAPL")
	assert.Equal(t, int64(8), pos.ReservedQuantity)
}

func TestSubmit_InsufficientFunds(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "A", "100", nil)

	submit(t, m, "A", domain.OrderSideBuy, "AAPL", "10", 6)
	_, err := m.Submit(context.Background(), domain.NewOrderCommand{
		UserID: "A", Symbol: "AAPL", Side: domain.OrderSideBuy, LimitPrice: dec("10"), Quantity: 5,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assertDecimal(t, "60", account(t, st, "A").ReservedCash, "reserved unchanged")
}

func TestSubmit_Validation(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "A", "100", nil)

	tests := []struct {
		name string
		cmd  domain.NewOrderCommand
		want error
	}{
		{"zero quantity", domain.NewOrderCommand{UserID: "A", Symbol: "AAPL", Side: domain.OrderSideBuy, LimitPrice: dec("1"), Quantity: 0}, nil},
		{"negative price", domain.NewOrderCommand{UserID: "A", Symbol: "AAPL", Side: domain.OrderSideBuy, LimitPrice: dec("-1"), Quantity: 1}, nil},
		{"three decimals", domain.NewOrderCommand{UserID: "A", Symbol: "AAPL", Side: domain.OrderSideBuy, LimitPrice: dec("1.001"), Quantity: 1}, nil},
		{"bad side", domain.NewOrderCommand{UserID: "A", Symbol: "AAPL", Side: "HOLD", LimitPrice: dec("1"), Quantity: 1}, nil},
		{"unknown symbol", domain.NewOrderCommand{UserID: "A", Symbol: "ZZZZ", Side: domain.OrderSideBuy, LimitPrice: dec("1"), Quantity: 1}, domain.ErrSymbolNotFound},
		{"unknown account", domain.NewOrderCommand{UserID: "nobody", Symbol: "AAPL", Side: domain.OrderSideBuy, LimitPrice: dec("1"), Quantity: 1}, domain.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Submit(context.Background(), tt.cmd)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				return
			}
			var ve *domain.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestSubmit_PartialFillsAcrossLevels(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "buyer", "10000", nil)
	openAccount(t, st, "s1", "0", map[string]int64{"AAPL": 5})
	openAccount(t, st, "s2", "0", map[string]int64{"AAPL": 5})

	submit(t, m, "s1", domain.OrderSideSell, "AAPL", "101", 5)
	submit(t, m, "s2", domain.OrderSideSell, "AAPL", "100", 5)

	res := submit(t, m, "buyer", domain.OrderSideBuy, "AAPL", "102", 8)
	require.Len(t, res.Trades, 2)
	assertDecimal(t, "100", res.Trades[0].Price, "best price first")
	assert.Equal(t, int64(5), res.Trades[0].Quantity)
	assertDecimal(t, "101", res.Trades[1].Price, "second level")
	assert.Equal(t, int64(3), res.Trades[1].Quantity)
	assert.Equal(t, domain.OrderStatusFilled, res.Order.Status)

	// 5×100 + 3×101 = 803 spent; the 8 shares' reservation at 102 released.
	a := account(t, st, "buyer")
	assertDecimal(t, "9197", a.CashBalance, "buyer cash")
	assertDecimal(t, "0", a.ReservedCash, "buyer reserved")

	pos := position(t, st, "buyer", "AAPL")
	assert.Equal(t, int64(8), pos.Quantity)
	assertDecimal(t, "100.375", pos.AvgCost, "avg cost")

	book, err := st.RestingOrders(context.Background(), "AAPL", domain.OrderSideSell)
	require.NoError(t, err)
	require.Len(t, book, 1)
	assert.Equal(t, "s1", book[0].UserID)
	assert.Equal(t, int64(2), book[0].RemainingQuantity)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, book[0].Status)
}

func TestSubmit_IncomingRestsAfterPartialFill(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "buyer", "10000", nil)
	openAccount(t, st, "seller", "0", map[string]int64{"AAPL": 3})

	submit(t, m, "seller", domain.OrderSideSell, "AAPL", "20", 3)
	res := submit(t, m, "buyer", domain.OrderSideBuy, "AAPL", "25", 10)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, res.Order.Status)
	assert.Equal(t, int64(7), res.Order.RemainingQuantity)

	stored, err := st.GetOrder(context.Background(), res.Order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.Status, stored.Status)
	assert.Equal(t, int64(7), stored.RemainingQuantity)

	// Remaining 7 × 25 stays reserved.
	assertDecimal(t, "175", account(t, st, "buyer").ReservedCash, "buyer reserved")
}

func TestSubmit_TimePriorityWithinLevel(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "first", "1000", nil)
	openAccount(t, st, "second", "1000", nil)
	openAccount(t, st, "seller", "0", map[string]int64{"AAPL": 5})

	first := submit(t, m, "first", domain.OrderSideBuy, "AAPL", "50", 5)
	submit(t, m, "second", domain.OrderSideBuy, "AAPL", "50", 5)

	res := submit(t, m, "seller", domain.OrderSideSell, "AAPL", "50", 5)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, first.Order.OrderID, res.Trades[0].BuyOrderID)
}

func TestSubmit_SkipsSelfTrade(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "A", "1000", map[string]int64{"AAPL": 10})
	openAccount(t, st, "B", "0", map[string]int64{"AAPL": 10})

	submit(t, m, "A", domain.OrderSideSell, "AAPL", "40", 5)
	submit(t, m, "B", domain.OrderSideSell, "AAPL", "45", 5)

	res := submit(t, m, "A", domain.OrderSideBuy, "AAPL", "50", 5)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "B", res.Trades[0].SellerID)
	assertDecimal(t, "45", res.Trades[0].Price, "price")

	book, err := st.RestingOrders(context.Background(), "AAPL", domain.OrderSideSell)
	require.NoError(t, err)
	require.Len(t, book, 1)
	assert.Equal(t, "A", book[0].UserID)
}

func TestSubmit_NoCrossRests(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "A", "1000", nil)
	openAccount(t, st, "B", "0", map[string]int64{"AAPL": 10})

	submit(t, m, "B", domain.OrderSideSell, "AAPL", "51", 10)
	res := submit(t, m, "A", domain.OrderSideBuy, "AAPL", "50", 10)
	assert.Empty(t, res.Trades)
	assert.Equal(t, domain.OrderStatusOpen, res.Order.Status)
}

func TestProcessNewOrder_IgnoresNonOpenOrder(t *testing.T) {
	m, _ := newTestMatcher(t)
	o := &domain.Order{OrderID: "x", Symbol: "AAPL", Side: domain.OrderSideBuy, Status: domain.OrderStatusFilled}
	res, err := m.ProcessNewOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Same(t, o, res.Order)
}

func TestCancel_ReleasesReservations(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "A", "1000", nil)
	openAccount(t, st, "B", "0", map[string]int64{"AAPL": 10})

	buy := submit(t, m, "A", domain.OrderSideBuy, "AAPL", "30", 10)
	sell := submit(t, m, "B", domain.OrderSideSell, "AAPL", "35", 4)

	cancelled, err := m.Cancel(context.Background(), buy.Order.OrderID, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, int64(10), cancelled.CancelledQuantity)
	require.NotNil(t, cancelled.CancelledAt)
	assertDecimal(t, "0", account(t, st, "A").ReservedCash, "A reserved")

	_, err = m.Cancel(context.Background(), sell.Order.OrderID, "B")
	require.NoError(t, err)
	assert.Zero(t, position(t, st, "B", "AAPL").ReservedQuantity)

	_, err = m.Cancel(context.Background(), buy.Order.OrderID, "A")
	assert.ErrorIs(t, err, domain.ErrOrderNotCancellable)
}

func TestCancel_PartiallyFilledReleasesRemainder(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "A", "1000", nil)
	openAccount(t, st, "B", "0", map[string]int64{"AAPL": 4})

	buy := submit(t, m, "A", domain.OrderSideBuy, "AAPL", "30", 10)
	submit(t, m, "B", domain.OrderSideSell, "AAPL", "30", 4)

	cancelled, err := m.Cancel(context.Background(), buy.Order.OrderID, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(6), cancelled.CancelledQuantity)
	assert.Equal(t, int64(4), cancelled.FilledQuantity())

	a := account(t, st, "A")
	assertDecimal(t, "880", a.CashBalance, "A cash")
	assertDecimal(t, "0", a.ReservedCash, "A reserved")
}

func TestCancel_OtherUsersOrderIsNotFound(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "A", "1000", nil)
	buy := submit(t, m, "A", domain.OrderSideBuy, "AAPL", "30", 10)

	_, err := m.Cancel(context.Background(), buy.Order.OrderID, "mallory")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = m.Cancel(context.Background(), "missing", "A")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

var errDiskFull = errors.New("disk full")

// failingStore fails every trade write once armed.
type failingStore struct {
	store.Store
	mu    sync.Mutex
	armed bool
}

func (s *failingStore) arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

func (s *failingStore) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.Atomic(ctx, func(tx store.Tx) error {
		s.mu.Lock()
		armed := s.armed
		s.mu.Unlock()
		if armed {
			return fn(failingTx{tx})
		}
		return fn(tx)
	})
}

type failingTx struct{ store.Tx }

func (f failingTx) Trades() store.TradeStore { return failingTrades{} }

type failingTrades struct{}

func (failingTrades) Save(context.Context, *domain.Trade) error        { return errDiskFull }
func (failingTrades) SaveLeg(context.Context, *domain.TradeLeg) error { return errDiskFull }

func TestSubmit_FailedFillRollsBack(t *testing.T) {
	fs := &failingStore{Store: memory.New()}
	m := NewMatcher(fs, domain.NewSymbolRegistry("AAPL"), WithClock(tickingClock()))
	openAccount(t, fs, "A", "1000", nil)
	openAccount(t, fs, "B", "0", map[string]int64{"AAPL": 10})

	rest := submit(t, m, "A", domain.OrderSideBuy, "AAPL", "50", 10)

	// Admission does not write trades so it still succeeds once armed.
	fs.arm()
	res, err := m.Submit(context.Background(), domain.NewOrderCommand{
		UserID: "B", Symbol: "AAPL", Side: domain.OrderSideSell, LimitPrice: dec("45"), Quantity: 10,
	})
	require.ErrorIs(t, err, errDiskFull)
	require.NotNil(t, res)
	assert.Empty(t, res.Trades)
	assert.Equal(t, domain.OrderStatusOpen, res.Order.Status)
	assert.Equal(t, int64(10), res.Order.RemainingQuantity)

	a := account(t, fs, "A")
	assertDecimal(t, "1000", a.CashBalance, "A cash")
	assertDecimal(t, "500", a.ReservedCash, "A reserved")
	assertDecimal(t, "0", account(t, fs, "B").CashBalance, "B cash")
	assert.Nil(t, position(t, fs, "A", "AAPL"))
	bPos := position(t, fs, "B", "AAPL")
	assert.Equal(t, int64(10), bPos.Quantity)
	assert.Equal(t, int64(10), bPos.ReservedQuantity)

	stored, err := fs.GetOrder(context.Background(), rest.Order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, stored.Status)
	assert.Equal(t, int64(10), stored.RemainingQuantity)

	trades, err := fs.RecentTrades(context.Background(), "AAPL", 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestSubmit_ConcurrentSymbolsStayConsistent(t *testing.T) {
	m, st := newTestMatcher(t)
	openAccount(t, st, "buyer", "100000", nil)
	openAccount(t, st, "seller", "0", map[string]int64{"AAPL": 100, "MSFT": 100})

	var wg sync.WaitGroup
	for _, sym := range []string{"AAPL", "MSFT"} {
		wg.Add(2)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := m.Submit(context.Background(), domain.NewOrderCommand{
					UserID: "seller", Symbol: sym, Side: domain.OrderSideSell, LimitPrice: dec("10"), Quantity: 5,
				})
				assert.NoError(t, err)
			}
		}(sym)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := m.Submit(context.Background(), domain.NewOrderCommand{
					UserID: "buyer", Symbol: sym, Side: domain.OrderSideBuy, LimitPrice: dec("10"), Quantity: 5,
				})
				assert.NoError(t, err)
			}
		}(sym)
	}
	wg.Wait()

	buyer := account(t, st, "buyer")
	seller := account(t, st, "seller")
	assertDecimal(t, "100000", buyer.CashBalance.Add(seller.CashBalance), "cash conserved")

	for _, sym := range []string{"AAPL", "MSFT"} {
		bp := position(t, st, "buyer", sym)
		sp := position(t, st, "seller", sym)
		var bought int64
		if bp != nil {
			bought = bp.Quantity
		}
		assert.Equal(t, int64(100), bought+sp.Quantity, "%s shares conserved", sym)
	}
}
