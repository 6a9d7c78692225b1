package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/store"
	"github.com/jackc/pgx/v5"
)

type pgTx struct {
	q querier
}

func (t *pgTx) Orders() store.OrderStore       { return txOrders{t.q} }
func (t *pgTx) Accounts() store.AccountStore   { return txAccounts{t.q} }
func (t *pgTx) Positions() store.PositionStore { return txPositions{t.q} }
func (t *pgTx) Trades() store.TradeStore       { return txTrades{t.q} }
func (t *pgTx) Journal() store.JournalStore    { return txJournal{t.q} }

type txOrders struct{ q querier }

func (o txOrders) Save(ctx context.Context, order *domain.Order) error {
	_, err := o.q.Exec(ctx, `
		INSERT INTO orders (order_id, user_id, symbol, side, limit_price, quantity,
			remaining_quantity, cancelled_quantity, status, created_at, updated_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (order_id) DO UPDATE SET
			remaining_quantity = EXCLUDED.remaining_quantity,
			cancelled_quantity = EXCLUDED.cancelled_quantity,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			cancelled_at = EXCLUDED.cancelled_at`,
		order.OrderID, order.UserID, order.Symbol, order.Side, order.LimitPrice.String(), order.Quantity,
		order.RemainingQuantity, order.CancelledQuantity, order.Status, order.CreatedAt, order.UpdatedAt, order.CancelledAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (o txOrders) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return getOrder(ctx, o.q, orderID, true)
}

func (o txOrders) FindOpenBySymbolSide(ctx context.Context, symbol string, side domain.OrderSide) ([]*domain.Order, error) {
	return resting(ctx, o.q, symbol, side, true)
}

type txAccounts struct{ q querier }

func (a txAccounts) Get(ctx context.Context, userID string) (*domain.Account, error) {
	return getAccount(ctx, a.q, userID, true)
}

func (a txAccounts) Create(ctx context.Context, acct *domain.Account) error {
	tag, err := a.q.Exec(ctx, `
		INSERT INTO accounts (user_id, cash_balance, reserved_cash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`,
		acct.UserID, acct.CashBalance.String(), acct.ReservedCash.String(), acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountAlreadyExists
	}
	return nil
}

func (a txAccounts) Save(ctx context.Context, acct *domain.Account) error {
	tag, err := a.q.Exec(ctx, `
		UPDATE accounts SET cash_balance = $1, reserved_cash = $2, updated_at = $3
		WHERE user_id = $4`,
		acct.CashBalance.String(), acct.ReservedCash.String(), acct.UpdatedAt, acct.UserID)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

type txPositions struct{ q querier }

func (p txPositions) Get(ctx context.Context, userID, symbol string) (*domain.Position, error) {
	pos, err := scanPosition(p.q.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = $1 AND symbol = $2 FOR UPDATE`,
		userID, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return pos, nil
}

func (p txPositions) Save(ctx context.Context, pos *domain.Position) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO positions (user_id, symbol, quantity, reserved_quantity, avg_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			reserved_quantity = EXCLUDED.reserved_quantity,
			avg_cost = EXCLUDED.avg_cost,
			updated_at = EXCLUDED.updated_at`,
		pos.UserID, pos.Symbol, pos.Quantity, pos.ReservedQuantity, pos.AvgCost.String(), pos.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

type txTrades struct{ q querier }

func (t txTrades) Save(ctx context.Context, trade *domain.Trade) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO trades (trade_id, buy_order_id, sell_order_id, buyer_id, seller_id, symbol, price, quantity, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		trade.TradeID, trade.BuyOrderID, trade.SellOrderID, trade.BuyerID, trade.SellerID,
		trade.Symbol, trade.Price.String(), trade.Quantity, trade.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

func (t txTrades) SaveLeg(ctx context.Context, leg *domain.TradeLeg) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO trade_legs (trade_id, user_id, order_id, symbol, side, price, quantity, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		leg.TradeID, leg.UserID, leg.OrderID, leg.Symbol, leg.Side, leg.Price.String(), leg.Quantity, leg.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to create trade leg: %w", err)
	}
	return nil
}

type txJournal struct{ q querier }

func (j txJournal) Append(ctx context.Context, e *domain.CashEntry) error {
	_, err := j.q.Exec(ctx, `
		INSERT INTO cash_entries (entry_id, user_id, direction, amount, reason, symbol, order_id, trade_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.EntryID, e.UserID, e.Direction, e.Amount.String(), e.Reason, e.Symbol, e.OrderID, e.TradeID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append cash entry: %w", err)
	}
	return nil
}
