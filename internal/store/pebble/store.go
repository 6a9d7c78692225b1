// Package pebble is a store.Store backed by an embedded pebble database.
// Records are JSON encoded. A transaction is an indexed batch, so reads
// inside it see its own writes; commits are serialized by a writer mutex
// and synced to disk.
package pebble

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/store"
)

// reader is the read surface shared by *pebble.DB and an indexed
// *pebble.Batch.
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

// Store persists every record in one pebble database.
type Store struct {
	db      *pebble.DB
	writeMu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
		BytesPerSync: 512 << 10,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic stages fn's writes in an indexed batch and commits it with
// pebble.Sync when fn succeeds.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	b := s.db.NewIndexedBatch()
	defer b.Close()

	if err := fn(&tx{b: b}); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// getJSON loads key into v. It reports false when the key is absent.
func getJSON(r reader, key []byte, v any) (bool, error) {
	data, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// scan visits the keys under prefix in ascending order, or descending
// when reverse is set, until fn returns false.
func scan(r reader, prefix []byte, reverse bool, fn func(key, value []byte) (bool, error)) error {
	iter, err := r.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("new iter: %w", err)
	}
	defer iter.Close()

	valid := iter.First
	next := iter.Next
	if reverse {
		valid = iter.Last
		next = iter.Prev
	}
	for ok := valid(); ok; ok = next() {
		more, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

func loadOrder(r reader, orderID string) (*domain.Order, error) {
	var o domain.Order
	found, err := getJSON(r, orderKey(orderID), &o)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func loadAccount(r reader, userID string) (*domain.Account, error) {
	var a domain.Account
	found, err := getJSON(r, accountKey(userID), &a)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

// resting resolves the open index of one book side and sorts it into
// match priority.
func resting(r reader, symbol string, side domain.OrderSide) ([]*domain.Order, error) {
	prefix := openPrefix(symbol, side)
	var orderIDs []string
	err := scan(r, prefix, false, func(key, _ []byte) (bool, error) {
		orderIDs = append(orderIDs, string(key[len(prefix):]))
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		o, err := loadOrder(r, id)
		if err != nil {
			return nil, err
		}
		if o.Resting() {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return domain.HasPriority(out[i], out[j]) })
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	return loadOrder(s.db, orderID)
}

func (s *Store) ListOrders(_ context.Context, f store.OrderFilter) ([]*domain.Order, int, error) {
	var matched []*domain.Order
	prefix := userOrderPrefix(f.UserID)
	err := scan(s.db, prefix, true, func(key, _ []byte) (bool, error) {
		// <created_at>/<order_id>
		o, err := loadOrder(s.db, string(key[bytes.LastIndexByte(key, '/')+1:]))
		if err != nil {
			return false, err
		}
		if f.Status == nil || o.Status == *f.Status {
			matched = append(matched, o)
		}
		return true, nil
	})
	if err != nil {
		return nil, 0, err
	}

	total := len(matched)
	start, end := 0, total
	if f.Page >= 1 && f.Limit >= 1 {
		start = min((f.Page-1)*f.Limit, total)
		end = min(start+f.Limit, total)
	}
	return append([]*domain.Order{}, matched[start:end]...), total, nil
}

func (s *Store) GetAccount(_ context.Context, userID string) (*domain.Account, error) {
	return loadAccount(s.db, userID)
}

func (s *Store) ListPositions(_ context.Context, userID string) ([]*domain.Position, error) {
	out := make([]*domain.Position, 0)
	err := scan(s.db, positionPrefix(userID), false, func(_, value []byte) (bool, error) {
		var p domain.Position
		if err := json.Unmarshal(value, &p); err != nil {
			return false, fmt.Errorf("unmarshal position: %w", err)
		}
		out = append(out, &p)
		return true, nil
	})
	return out, err
}

func (s *Store) ListLegs(_ context.Context, userID string) ([]*domain.TradeLeg, error) {
	out := make([]*domain.TradeLeg, 0)
	err := scan(s.db, legPrefix(userID), false, func(_, value []byte) (bool, error) {
		var l domain.TradeLeg
		if err := json.Unmarshal(value, &l); err != nil {
			return false, fmt.Errorf("unmarshal trade leg: %w", err)
		}
		out = append(out, &l)
		return true, nil
	})
	return out, err
}

func (s *Store) RecentTrades(_ context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	out := make([]*domain.Trade, 0)
	err := scan(s.db, tradePrefix(symbol), true, func(_, value []byte) (bool, error) {
		var t domain.Trade
		if err := json.Unmarshal(value, &t); err != nil {
			return false, fmt.Errorf("unmarshal trade: %w", err)
		}
		out = append(out, &t)
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

func (s *Store) TradesSince(_ context.Context, symbol string, since time.Time) ([]*domain.Trade, error) {
	out := make([]*domain.Trade, 0)
	err := scan(s.db, tradePrefix(symbol), true, func(_, value []byte) (bool, error) {
		var t domain.Trade
		if err := json.Unmarshal(value, &t); err != nil {
			return false, fmt.Errorf("unmarshal trade: %w", err)
		}
		if t.ExecutedAt.Before(since) {
			return false, nil
		}
		out = append(out, &t)
		return true, nil
	})
	return out, err
}

func (s *Store) ListJournal(_ context.Context, userID string) ([]*domain.CashEntry, error) {
	out := make([]*domain.CashEntry, 0)
	err := scan(s.db, journalPrefix(userID), false, func(_, value []byte) (bool, error) {
		var e domain.CashEntry
		if err := json.Unmarshal(value, &e); err != nil {
			return false, fmt.Errorf("unmarshal cash entry: %w", err)
		}
		out = append(out, &e)
		return true, nil
	})
	return out, err
}

func (s *Store) RestingOrders(_ context.Context, symbol string, side domain.OrderSide) ([]*domain.Order, error) {
	return resting(s.db, symbol, side)
}
