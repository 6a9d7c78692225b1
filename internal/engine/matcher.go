// Package engine matches limit orders by price/time priority and settles
// every fill atomically against the cash and position ledgers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/ledger"
	"github.com/efreitasn/papertrade/internal/metrics"
	"github.com/efreitasn/papertrade/internal/store"
)

// MatchResult is the outcome of matching one incoming order. Order is the
// incoming order in its final state and Trades lists the fills in
// execution order.
type MatchResult struct {
	Order  *domain.Order
	Trades []*domain.Trade
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Matcher) { m.metrics = mt }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// Matcher implements admission, matching and cancellation. All work on a
// symbol happens under that symbol's lock.
type Matcher struct {
	store   store.Store
	locks   *SymbolLocks
	symbols *domain.SymbolRegistry
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewMatcher creates a new Matcher with the given dependencies.
func NewMatcher(st store.Store, symbols *domain.SymbolRegistry, opts ...Option) *Matcher {
	m := &Matcher{
		store:   st,
		locks:   NewSymbolLocks(),
		symbols: symbols,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// newID returns a time-ordered identifier.
func (m *Matcher) newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Submit validates the command, admits the order and matches it. Admission
// reserves limit × quantity of cash for a BUY, or quantity shares for a
// SELL, and saves the order OPEN in the same transaction. The symbol lock
// is held throughout.
func (m *Matcher) Submit(ctx context.Context, cmd domain.NewOrderCommand) (*MatchResult, error) {
	if err := cmd.Validate(); err != nil {
		m.reject(cmd, err)
		return nil, err
	}
	if !m.symbols.Exists(cmd.Symbol) {
		m.reject(cmd, domain.ErrSymbolNotFound)
		return nil, domain.ErrSymbolNotFound
	}

	unlock := m.locks.Lock(cmd.Symbol)
	defer unlock()

	now := m.now()
	order := &domain.Order{
		OrderID:           m.newID(),
		UserID:            cmd.UserID,
		Symbol:            cmd.Symbol,
		Side:              cmd.Side,
		LimitPrice:        cmd.LimitPrice,
		Quantity:          cmd.Quantity,
		RemainingQuantity: cmd.Quantity,
		Status:            domain.OrderStatusOpen,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := m.store.Atomic(ctx, func(tx store.Tx) error {
		return m.admit(ctx, tx, order)
	})
	if err != nil {
		m.reject(cmd, err)
		return nil, err
	}
	m.metrics.OrderAdmitted(string(order.Side))

	return m.processLocked(ctx, order)
}

func (m *Matcher) admit(ctx context.Context, tx store.Tx, o *domain.Order) error {
	acct, err := tx.Accounts().Get(ctx, o.UserID)
	if err != nil {
		return err
	}

	if o.Side == domain.OrderSideBuy {
		reserved, err := ledger.Reserve(acct, o.Reservation())
		if err != nil {
			return err
		}
		reserved.UpdatedAt = o.CreatedAt
		if err := tx.Accounts().Save(ctx, reserved); err != nil {
			return err
		}
	} else {
		pos, err := tx.Positions().Get(ctx, o.UserID, o.Symbol)
		if err != nil {
			return err
		}
		if pos == nil {
			return domain.ErrInsufficientPosition
		}
		reserved, err := ledger.ReserveShares(pos, o.RemainingQuantity)
		if err != nil {
			return err
		}
		reserved.UpdatedAt = o.CreatedAt
		if err := tx.Positions().Save(ctx, reserved); err != nil {
			return err
		}
	}

	return tx.Orders().Save(ctx, o)
}

// ProcessNewOrder matches an admitted order against the opposite side of
// its book. It does nothing unless the order is OPEN with a positive
// remaining quantity. On error the result still lists the fills that
// committed before the failing one.
func (m *Matcher) ProcessNewOrder(ctx context.Context, incoming *domain.Order) (*MatchResult, error) {
	unlock := m.locks.Lock(incoming.Symbol)
	defer unlock()
	return m.processLocked(ctx, incoming)
}

func (m *Matcher) processLocked(ctx context.Context, incoming *domain.Order) (*MatchResult, error) {
	res := &MatchResult{Order: incoming, Trades: []*domain.Trade{}}
	if incoming.Status != domain.OrderStatusOpen || incoming.RemainingQuantity <= 0 {
		return res, nil
	}

	start := time.Now()
	defer func() { m.metrics.ObserveMatch(time.Since(start)) }()

	view, err := m.store.RestingOrders(ctx, incoming.Symbol, incoming.Side.Opposite())
	if err != nil {
		return res, fmt.Errorf("load book: %w", err)
	}

	for _, resting := range view {
		if incoming.RemainingQuantity == 0 {
			break
		}

		buy, sell := incoming, resting
		if incoming.Side == domain.OrderSideSell {
			buy, sell = resting, incoming
		}
		if !domain.Crosses(buy.LimitPrice, sell.LimitPrice) {
			break
		}
		if resting.UserID == incoming.UserID {
			m.logger.Debug("skipping self-trade",
				zap.String("order_id", incoming.OrderID),
				zap.String("resting_order_id", resting.OrderID))
			continue
		}

		qty := min(incoming.RemainingQuantity, resting.RemainingQuantity)

		trade, err := m.executeFill(ctx, incoming, resting, qty)
		if err != nil {
			if errors.Is(err, domain.ErrConsistencyViolation) {
				return res, m.violation(err)
			}
			return res, fmt.Errorf("execute fill: %w", err)
		}
		res.Trades = append(res.Trades, trade)
	}

	return res, nil
}

// executeFill applies one fill in a single transaction: both orders,
// settlement, both positions and the trade record. The orders passed in
// are only updated once the transaction has committed.
func (m *Matcher) executeFill(ctx context.Context, incoming, resting *domain.Order, qty int64) (*domain.Trade, error) {
	at := m.now()

	inc, rest := incoming.Clone(), resting.Clone()
	if err := inc.Fill(qty, at); err != nil {
		return nil, err
	}
	if err := rest.Fill(qty, at); err != nil {
		return nil, err
	}

	buyOrder, sellOrder := inc, rest
	if inc.Side == domain.OrderSideSell {
		buyOrder, sellOrder = rest, inc
	}

	trade := &domain.Trade{
		TradeID:     m.newID(),
		BuyOrderID:  buyOrder.OrderID,
		SellOrderID: sellOrder.OrderID,
		BuyerID:     buyOrder.UserID,
		SellerID:    sellOrder.UserID,
		Symbol:      inc.Symbol,
		Price:       resting.LimitPrice,
		Quantity:    qty,
		ExecutedAt:  at,
	}

	err := m.store.Atomic(ctx, func(tx store.Tx) error {
		if err := m.settle(ctx, tx, trade, buyOrder.LimitPrice); err != nil {
			return err
		}
		if err := tx.Orders().Save(ctx, rest); err != nil {
			return err
		}
		if err := tx.Orders().Save(ctx, inc); err != nil {
			return err
		}
		return m.record(ctx, tx, trade)
	})
	if err != nil {
		return nil, err
	}

	*incoming = *inc
	*resting = *rest

	m.metrics.TradeExecuted(trade.Symbol, trade.Quantity)
	m.logger.Debug("trade executed",
		zap.String("trade_id", trade.TradeID),
		zap.String("symbol", trade.Symbol),
		zap.String("price", trade.Price.String()),
		zap.Int64("quantity", trade.Quantity),
		zap.String("buy_order_id", trade.BuyOrderID),
		zap.String("sell_order_id", trade.SellOrderID))
	return trade, nil
}

// settle moves cash and shares for one trade. Accounts are loaded in user
// id order so concurrent fills sharing two accounts lock them in the same
// order.
func (m *Matcher) settle(ctx context.Context, tx store.Tx, trade *domain.Trade, buyLimit decimal.Decimal) error {
	first, second := trade.BuyerID, trade.SellerID
	if second < first {
		first, second = second, first
	}
	accounts := make(map[string]*domain.Account, 2)
	for _, id := range []string{first, second} {
		a, err := tx.Accounts().Get(ctx, id)
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Violation("resting order owner %s has no account", id)
		}
		if err != nil {
			return err
		}
		accounts[id] = a
	}

	buyer, seller, err := ledger.Settle(accounts[trade.BuyerID], accounts[trade.SellerID],
		trade.Quantity, trade.Price, buyLimit)
	if err != nil {
		return err
	}
	buyer.UpdatedAt, seller.UpdatedAt = trade.ExecutedAt, trade.ExecutedAt
	if err := tx.Accounts().Save(ctx, buyer); err != nil {
		return err
	}
	if err := tx.Accounts().Save(ctx, seller); err != nil {
		return err
	}

	buyPos, err := tx.Positions().Get(ctx, trade.BuyerID, trade.Symbol)
	if err != nil {
		return err
	}
	if buyPos == nil {
		buyPos = domain.NewPosition(trade.BuyerID, trade.Symbol)
	}
	buyPos, err = ledger.ApplyBuy(buyPos, trade.Quantity, trade.Price)
	if err != nil {
		return err
	}

	sellPos, err := tx.Positions().Get(ctx, trade.SellerID, trade.Symbol)
	if err != nil {
		return err
	}
	if sellPos == nil {
		return &domain.ConsistencyError{
			Message: fmt.Sprintf("seller %s holds no %s position", trade.SellerID, trade.Symbol),
			Cause:   domain.ErrInsufficientPosition,
		}
	}
	sellPos, err = ledger.ApplySell(sellPos, trade.Quantity)
	if err != nil {
		return err
	}

	buyPos.UpdatedAt, sellPos.UpdatedAt = trade.ExecutedAt, trade.ExecutedAt
	if err := tx.Positions().Save(ctx, buyPos); err != nil {
		return err
	}
	return tx.Positions().Save(ctx, sellPos)
}

// Cancel cancels a resting order owned by userID and releases what its
// remaining quantity still holds in reserve. An order owned by someone
// else is reported as not found.
func (m *Matcher) Cancel(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	existing, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}

	unlock := m.locks.Lock(existing.Symbol)
	defer unlock()

	var cancelled *domain.Order
	err = m.store.Atomic(ctx, func(tx store.Tx) error {
		o, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		remaining := o.RemainingQuantity
		release := o.Reservation()
		if err := o.Cancel(m.now()); err != nil {
			return err
		}

		if o.Side == domain.OrderSideBuy {
			acct, err := tx.Accounts().Get(ctx, o.UserID)
			if err != nil {
				return err
			}
			acct, err = ledger.Release(acct, release)
			if err != nil {
				return err
			}
			acct.UpdatedAt = o.UpdatedAt
			if err := tx.Accounts().Save(ctx, acct); err != nil {
				return err
			}
		} else {
			pos, err := tx.Positions().Get(ctx, o.UserID, o.Symbol)
			if err != nil {
				return err
			}
			if pos == nil {
				return domain.Violation("order %s: seller %s holds no %s position", o.OrderID, o.UserID, o.Symbol)
			}
			pos, err = ledger.ReleaseShares(pos, remaining)
			if err != nil {
				return err
			}
			pos.UpdatedAt = o.UpdatedAt
			if err := tx.Positions().Save(ctx, pos); err != nil {
				return err
			}
		}

		cancelled = o
		return tx.Orders().Save(ctx, o)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConsistencyViolation) {
			return nil, m.violation(err)
		}
		return nil, err
	}

	m.metrics.OrderCancelled()
	m.logger.Info("order cancelled",
		zap.String("order_id", cancelled.OrderID),
		zap.String("user_id", cancelled.UserID),
		zap.Int64("cancelled_quantity", cancelled.CancelledQuantity))
	return cancelled, nil
}

func (m *Matcher) violation(err error) error {
	m.metrics.ConsistencyViolation()
	m.logger.Error("consistency violation", zap.Error(err))
	return err
}

func (m *Matcher) reject(cmd domain.NewOrderCommand, err error) {
	reason := rejectReason(err)
	m.metrics.OrderRejected(reason)
	if reason == "internal" {
		if errors.Is(err, domain.ErrConsistencyViolation) {
			m.violation(err)
			return
		}
		m.logger.Error("order admission failed", zap.String("user_id", cmd.UserID), zap.Error(err))
		return
	}
	m.logger.Info("order rejected",
		zap.String("user_id", cmd.UserID),
		zap.String("symbol", cmd.Symbol),
		zap.String("side", string(cmd.Side)),
		zap.String("reason", reason))
}

func rejectReason(err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, domain.ErrSymbolNotFound):
		return "unknown_symbol"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrInsufficientPosition) && !errors.Is(err, domain.ErrConsistencyViolation):
		return "insufficient_position"
	default:
		return "internal"
	}
}
