// Package memory is an in-memory implementation of store.Store. A
// transaction holds the store's write lock, stages its writes and applies
// them only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/store"
)

type positionKey struct {
	userID string
	symbol string
}

// Store keeps every record in maps guarded by a single RWMutex, with a
// btree-backed book per symbol for the resting orders.
type Store struct {
	mu         sync.RWMutex
	orders     map[string]*domain.Order
	userOrders map[string][]string // user_id → order ids, admission order
	books      map[string]*book
	accounts   map[string]*domain.Account
	positions  map[positionKey]*domain.Position
	trades     map[string][]*domain.Trade     // symbol → trades, chronological
	legs       map[string][]*domain.TradeLeg  // user_id → legs, chronological
	journal    map[string][]*domain.CashEntry // user_id → entries, chronological
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		orders:     make(map[string]*domain.Order),
		userOrders: make(map[string][]string),
		books:      make(map[string]*book),
		accounts:   make(map[string]*domain.Account),
		positions:  make(map[positionKey]*domain.Position),
		trades:     make(map[string][]*domain.Trade),
		legs:       make(map[string][]*domain.TradeLeg),
		journal:    make(map[string][]*domain.CashEntry),
	}
}

// Atomic runs fn with the write lock held and applies its staged writes
// if it returns nil.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := newTx(s)
	if err := fn(t); err != nil {
		return err
	}
	s.apply(t)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) apply(t *tx) {
	for _, id := range t.orderSeq {
		o := t.orders[id]
		if _, exists := s.orders[id]; !exists {
			s.userOrders[o.UserID] = append(s.userOrders[o.UserID], id)
		}
		s.orders[id] = o
		b, ok := s.books[o.Symbol]
		if !ok {
			b = newBook()
			s.books[o.Symbol] = b
		}
		b.sync(o)
	}
	for id, a := range t.accounts {
		s.accounts[id] = a
	}
	for k, p := range t.positions {
		s.positions[k] = p
	}
	for _, tr := range t.trades {
		s.trades[tr.Symbol] = append(s.trades[tr.Symbol], tr)
	}
	for _, l := range t.legs {
		s.legs[l.UserID] = append(s.legs[l.UserID], l)
	}
	for _, e := range t.journal {
		s.journal[e.UserID] = append(s.journal[e.UserID], e)
	}
}

// restingLocked collects clones of a book side in priority order. get
// resolves the latest version of an order by id.
func (s *Store) restingLocked(symbol string, side domain.OrderSide, get func(id string) *domain.Order) []*domain.Order {
	out := make([]*domain.Order, 0)
	b, ok := s.books[symbol]
	if !ok {
		return out
	}
	b.walk(side, func(id string) bool {
		if o := get(id); o != nil && o.Resting() {
			out = append(out, o.Clone())
		}
		return true
	})
	return out
}

// GetOrder retrieves an order by ID. It returns domain.ErrOrderNotFound
// if the order does not exist.
func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// ListOrders returns a user's orders newest first, optionally filtered by
// status, with 1-based pagination.
func (s *Store) ListOrders(_ context.Context, f store.OrderFilter) ([]*domain.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.userOrders[f.UserID]

	filtered := make([]*domain.Order, 0)
	for i := len(ids) - 1; i >= 0; i-- {
		o := s.orders[ids[i]]
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		filtered = append(filtered, o)
	}

	total := len(filtered)
	start, end := pageBounds(f.Page, f.Limit, total)

	out := make([]*domain.Order, 0, end-start)
	for _, o := range filtered[start:end] {
		out = append(out, o.Clone())
	}
	return out, total, nil
}

func pageBounds(page, limit, total int) (int, int) {
	if page < 1 || limit < 1 {
		return 0, total
	}
	start := (page - 1) * limit
	if start >= total {
		return total, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

// GetAccount returns domain.ErrAccountNotFound for an unknown user.
func (s *Store) GetAccount(_ context.Context, userID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (s *Store) ListPositions(_ context.Context, userID string) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Position, 0)
	for k, p := range s.positions {
		if k.userID == userID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Store) ListLegs(_ context.Context, userID string) ([]*domain.TradeLeg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	legs := s.legs[userID]
	out := make([]*domain.TradeLeg, len(legs))
	for i, l := range legs {
		c := *l
		out[i] = &c
	}
	return out, nil
}

func (s *Store) RecentTrades(_ context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[symbol]
	n := len(trades)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*domain.Trade, 0, n)
	for i := len(trades) - 1; i >= 0 && len(out) < n; i-- {
		c := *trades[i]
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) TradesSince(_ context.Context, symbol string, since time.Time) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[symbol]
	out := make([]*domain.Trade, 0)
	for i := len(trades) - 1; i >= 0; i-- {
		if trades[i].ExecutedAt.Before(since) {
			break
		}
		c := *trades[i]
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) ListJournal(_ context.Context, userID string) ([]*domain.CashEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.journal[userID]
	out := make([]*domain.CashEntry, len(entries))
	for i, e := range entries {
		c := *e
		out[i] = &c
	}
	return out, nil
}

func (s *Store) RestingOrders(_ context.Context, symbol string, side domain.OrderSide) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.restingLocked(symbol, side, func(id string) *domain.Order {
		return s.orders[id]
	}), nil
}
