// Package postgres is a store.Store on PostgreSQL. Rows read inside a
// transaction are locked with SELECT ... FOR UPDATE so concurrent fills on
// different symbols that share an account serialize on that account.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store wraps a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects to connString and applies the schema.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Atomic runs fn inside a database transaction and commits it when fn
// succeeds.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

const orderColumns = `order_id, user_id, symbol, side, limit_price::text, quantity,
	remaining_quantity, cancelled_quantity, status, created_at, updated_at, cancelled_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o     domain.Order
		price string
	)
	err := row.Scan(&o.OrderID, &o.UserID, &o.Symbol, &o.Side, &price, &o.Quantity,
		&o.RemainingQuantity, &o.CancelledQuantity, &o.Status, &o.CreatedAt, &o.UpdatedAt, &o.CancelledAt)
	if err != nil {
		return nil, err
	}
	if o.LimitPrice, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse limit price: %w", err)
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*domain.Order, error) {
	defer rows.Close()
	out := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func getOrder(ctx context.Context, q querier, orderID string, lock bool) (*domain.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func resting(ctx context.Context, q querier, symbol string, side domain.OrderSide, lock bool) ([]*domain.Order, error) {
	priceOrder := "ASC"
	if side == domain.OrderSideBuy {
		priceOrder = "DESC"
	}
	sql := `SELECT ` + orderColumns + ` FROM orders
		WHERE symbol = $1 AND side = $2 AND status IN ('OPEN', 'PARTIALLY_FILLED') AND remaining_quantity > 0
		ORDER BY limit_price ` + priceOrder + `, created_at ASC, order_id ASC`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, symbol, side)
	if err != nil {
		return nil, fmt.Errorf("failed to query resting orders: %w", err)
	}
	return collectOrders(rows)
}

func getAccount(ctx context.Context, q querier, userID string, lock bool) (*domain.Account, error) {
	sql := `SELECT user_id, cash_balance::text, reserved_cash::text, created_at, updated_at
		FROM accounts WHERE user_id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var (
		a              domain.Account
		cash, reserved string
	)
	err := q.QueryRow(ctx, sql, userID).Scan(&a.UserID, &cash, &reserved, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if a.CashBalance, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("parse cash balance: %w", err)
	}
	if a.ReservedCash, err = decimal.NewFromString(reserved); err != nil {
		return nil, fmt.Errorf("parse reserved cash: %w", err)
	}
	return &a, nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p   domain.Position
		avg string
	)
	if err := row.Scan(&p.UserID, &p.Symbol, &p.Quantity, &p.ReservedQuantity, &avg, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.AvgCost, err = decimal.NewFromString(avg); err != nil {
		return nil, fmt.Errorf("parse avg cost: %w", err)
	}
	return &p, nil
}

const positionColumns = `user_id, symbol, quantity, reserved_quantity, avg_cost::text, updated_at`

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return getOrder(ctx, s.pool, orderID, false)
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]*domain.Order, int, error) {
	var status *string
	if f.Status != nil {
		st := string(*f.Status)
		status = &st
	}

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)`,
		f.UserID, status).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var limit *int
	offset := 0
	if f.Page >= 1 && f.Limit >= 1 {
		limit = &f.Limit
		offset = (f.Page - 1) * f.Limit
	}
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, order_id DESC
		LIMIT $3 OFFSET $4`, f.UserID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	return getAccount(ctx, s.pool, userID, false)
}

func (s *Store) ListPositions(ctx context.Context, userID string) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListLegs(ctx context.Context, userID string) ([]*domain.TradeLeg, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT trade_id, user_id, order_id, symbol, side, price::text, quantity, executed_at
		FROM trade_legs WHERE user_id = $1
		ORDER BY executed_at, trade_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trade legs: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.TradeLeg, 0)
	for rows.Next() {
		var (
			l     domain.TradeLeg
			price string
		)
		if err := rows.Scan(&l.TradeID, &l.UserID, &l.OrderID, &l.Symbol, &l.Side, &price, &l.Quantity, &l.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade leg: %w", err)
		}
		if l.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse leg price: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *Store) RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	return s.queryTrades(ctx, `
		SELECT trade_id, buy_order_id, sell_order_id, buyer_id, seller_id, symbol, price::text, quantity, executed_at
		FROM trades WHERE symbol = $1
		ORDER BY executed_at DESC, trade_id DESC
		LIMIT $2`, symbol, lim)
}

func (s *Store) TradesSince(ctx context.Context, symbol string, since time.Time) ([]*domain.Trade, error) {
	return s.queryTrades(ctx, `
		SELECT trade_id, buy_order_id, sell_order_id, buyer_id, seller_id, symbol, price::text, quantity, executed_at
		FROM trades WHERE symbol = $1 AND executed_at >= $2
		ORDER BY executed_at DESC, trade_id DESC`, symbol, since)
}

func (s *Store) queryTrades(ctx context.Context, sql string, args ...any) ([]*domain.Trade, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Trade, 0)
	for rows.Next() {
		var (
			t     domain.Trade
			price string
		)
		if err := rows.Scan(&t.TradeID, &t.BuyOrderID, &t.SellOrderID, &t.BuyerID, &t.SellerID, &t.Symbol, &price, &t.Quantity, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse trade price: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) ListJournal(ctx context.Context, userID string) ([]*domain.CashEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, user_id, direction, amount::text, reason, symbol, order_id, trade_id, created_at
		FROM cash_entries WHERE user_id = $1
		ORDER BY created_at, entry_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cash entries: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.CashEntry, 0)
	for rows.Next() {
		var (
			e      domain.CashEntry
			amount string
		)
		if err := rows.Scan(&e.EntryID, &e.UserID, &e.Direction, &amount, &e.Reason, &e.Symbol, &e.OrderID, &e.TradeID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cash entry: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse entry amount: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) RestingOrders(ctx context.Context, symbol string, side domain.OrderSide) ([]*domain.Order, error) {
	return resting(ctx, s.pool, symbol, side, false)
}

// truncate empties every table. Tests only.
func (s *Store) truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE TABLE trade_legs, trades, cash_entries, positions, orders, accounts`)
	return err
}
