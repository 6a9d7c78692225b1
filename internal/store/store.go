// Package store defines the persistence collaborators of the matching
// engine. Writes happen inside Store.Atomic; everything staged through a
// Tx commits together or not at all.
package store

import (
	"context"
	"time"

	"github.com/efreitasn/papertrade/internal/domain"
)

// OrderStore persists orders. Orders are never deleted.
type OrderStore interface {
	Save(ctx context.Context, o *domain.Order) error
	// Get returns domain.ErrOrderNotFound for an unknown id.
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	// FindOpenBySymbolSide returns the resting orders of one side of a
	// symbol's book in match priority order (see domain.HasPriority).
	FindOpenBySymbolSide(ctx context.Context, symbol string, side domain.OrderSide) ([]*domain.Order, error)
}

// AccountStore persists cash accounts.
type AccountStore interface {
	// Get returns domain.ErrAccountNotFound for an unknown user.
	Get(ctx context.Context, userID string) (*domain.Account, error)
	// Create returns domain.ErrAccountAlreadyExists when the user has one.
	Create(ctx context.Context, a *domain.Account) error
	Save(ctx context.Context, a *domain.Account) error
}

// PositionStore persists share positions.
type PositionStore interface {
	// Get returns (nil, nil) when the user has never held the symbol.
	Get(ctx context.Context, userID, symbol string) (*domain.Position, error)
	Save(ctx context.Context, p *domain.Position) error
}

// TradeStore appends executed trades and their per-user legs.
type TradeStore interface {
	Save(ctx context.Context, t *domain.Trade) error
	SaveLeg(ctx context.Context, l *domain.TradeLeg) error
}

// JournalStore appends cash movements.
type JournalStore interface {
	Append(ctx context.Context, e *domain.CashEntry) error
}

// Tx bundles the stores taking part in one atomic unit of work. Reads
// through a Tx see the writes staged earlier in the same Tx.
type Tx interface {
	Orders() OrderStore
	Accounts() AccountStore
	Positions() PositionStore
	Trades() TradeStore
	Journal() JournalStore
}

// OrderFilter selects a page of a user's orders, newest first. Page is
// 1-based.
type OrderFilter struct {
	UserID string
	Status *domain.OrderStatus
	Page   int
	Limit  int
}

// Reader serves queries outside of a transaction.
type Reader interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	// ListOrders returns the requested page and the total number of
	// matching orders.
	ListOrders(ctx context.Context, f OrderFilter) ([]*domain.Order, int, error)
	GetAccount(ctx context.Context, userID string) (*domain.Account, error)
	// ListPositions returns the user's positions ordered by symbol.
	ListPositions(ctx context.Context, userID string) ([]*domain.Position, error)
	// ListLegs returns the user's trade legs, oldest first.
	ListLegs(ctx context.Context, userID string) ([]*domain.TradeLeg, error)
	// RecentTrades returns up to limit trades of a symbol, newest first.
	RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	// TradesSince returns the trades of a symbol executed at or after
	// since, newest first.
	TradesSince(ctx context.Context, symbol string, since time.Time) ([]*domain.Trade, error)
	// ListJournal returns the user's cash entries, oldest first.
	ListJournal(ctx context.Context, userID string) ([]*domain.CashEntry, error)
	RestingOrders(ctx context.Context, symbol string, side domain.OrderSide) ([]*domain.Order, error)
}

// Store is a transactional backend.
type Store interface {
	Reader
	// Atomic runs fn in a transaction. If fn returns an error nothing it
	// staged is applied and the error is returned unchanged.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// WebhookStore persists webhook subscriptions, one per (user, event).
type WebhookStore interface {
	// Upsert creates the subscription or updates its URL. It returns the
	// stored webhook and whether it was newly created.
	Upsert(ctx context.Context, w *domain.Webhook) (*domain.Webhook, bool, error)
	Get(ctx context.Context, webhookID string) (*domain.Webhook, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Webhook, error)
	// GetByUserEvent returns (nil, nil) when there is no subscription.
	GetByUserEvent(ctx context.Context, userID, event string) (*domain.Webhook, error)
	Delete(ctx context.Context, webhookID string) error
}
