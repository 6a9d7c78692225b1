package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/engine"
	"github.com/efreitasn/papertrade/internal/store/memory"
)

type fixture struct {
	store    *memory.Store
	symbols  *domain.SymbolRegistry
	accounts *AccountService
	orders   *OrderService
	market   *MarketService
	notes    *notes
}

// notes records notifications.
type notes struct {
	mu        sync.Mutex
	trades    []*domain.Trade
	cancelled []*domain.Order
}

func (n *notes) TradeExecuted(_ context.Context, t *domain.Trade) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trades = append(n.trades, t)
}

func (n *notes) OrderCancelled(_ context.Context, o *domain.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, o)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	symbols := domain.NewSymbolRegistry("AAPL")
	n := &notes{}
	return &fixture{
		store:    st,
		symbols:  symbols,
		accounts: NewAccountService(st, symbols, decimal.NewFromInt(10000), zap.NewNop()),
		orders:   NewOrderService(engine.NewMatcher(st, symbols), st, n),
		market:   NewMarketService(st, symbols, 0),
		notes:    n,
	}
}

func (f *fixture) open(t *testing.T, userID, cash string, holdings ...HoldingInput) {
	t.Helper()
	c := decimal.RequireFromString(cash)
	if _, err := f.accounts.Open(context.Background(), OpenAccountRequest{
		UserID:          userID,
		InitialCash:     &c,
		InitialHoldings: holdings,
	}); err != nil {
		t.Fatalf("open account %s: %v", userID, err)
	}
}

func (f *fixture) submit(t *testing.T, userID string, side domain.OrderSide, price string, qty int64) *engine.MatchResult {
	t.Helper()
	res, err := f.orders.Submit(context.Background(), domain.NewOrderCommand{
		UserID:     userID,
		Symbol:     "AAPL",
		Side:       side,
		LimitPrice: decimal.RequireFromString(price),
		Quantity:   qty,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return res
}
