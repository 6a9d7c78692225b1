package pebble

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/store"
)

type tx struct {
	b *pebble.Batch
}

func (t *tx) Orders() store.OrderStore       { return txOrders{t.b} }
func (t *tx) Accounts() store.AccountStore   { return txAccounts{t.b} }
func (t *tx) Positions() store.PositionStore { return txPositions{t.b} }
func (t *tx) Trades() store.TradeStore       { return txTrades{t.b} }
func (t *tx) Journal() store.JournalStore    { return txJournal{t.b} }

func setJSON(b *pebble.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := b.Set(key, data, nil); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

type txOrders struct{ b *pebble.Batch }

func (o txOrders) Save(_ context.Context, order *domain.Order) error {
	if err := setJSON(o.b, orderKey(order.OrderID), order); err != nil {
		return err
	}
	if err := o.b.Set(userOrderKey(order), nil, nil); err != nil {
		return fmt.Errorf("index order %s: %w", order.OrderID, err)
	}
	if order.Resting() {
		return o.b.Set(openKey(order), nil, nil)
	}
	return o.b.Delete(openKey(order), nil)
}

func (o txOrders) Get(_ context.Context, orderID string) (*domain.Order, error) {
	return loadOrder(o.b, orderID)
}

func (o txOrders) FindOpenBySymbolSide(_ context.Context, symbol string, side domain.OrderSide) ([]*domain.Order, error) {
	return resting(o.b, symbol, side)
}

type txAccounts struct{ b *pebble.Batch }

func (a txAccounts) Get(_ context.Context, userID string) (*domain.Account, error) {
	return loadAccount(a.b, userID)
}

func (a txAccounts) Create(_ context.Context, acct *domain.Account) error {
	var existing domain.Account
	found, err := getJSON(a.b, accountKey(acct.UserID), &existing)
	if err != nil {
		return err
	}
	if found {
		return domain.ErrAccountAlreadyExists
	}
	return setJSON(a.b, accountKey(acct.UserID), acct)
}

func (a txAccounts) Save(_ context.Context, acct *domain.Account) error {
	if _, err := loadAccount(a.b, acct.UserID); err != nil {
		return err
	}
	return setJSON(a.b, accountKey(acct.UserID), acct)
}

type txPositions struct{ b *pebble.Batch }

func (p txPositions) Get(_ context.Context, userID, symbol string) (*domain.Position, error) {
	var pos domain.Position
	found, err := getJSON(p.b, positionKey(userID, symbol), &pos)
	if err != nil || !found {
		return nil, err
	}
	return &pos, nil
}

func (p txPositions) Save(_ context.Context, pos *domain.Position) error {
	return setJSON(p.b, positionKey(pos.UserID, pos.Symbol), pos)
}

type txTrades struct{ b *pebble.Batch }

func (t txTrades) Save(_ context.Context, trade *domain.Trade) error {
	return setJSON(t.b, tradeKey(trade), trade)
}

func (t txTrades) SaveLeg(_ context.Context, leg *domain.TradeLeg) error {
	return setJSON(t.b, legKey(leg), leg)
}

type txJournal struct{ b *pebble.Batch }

func (j txJournal) Append(_ context.Context, e *domain.CashEntry) error {
	return setJSON(j.b, journalKey(e), e)
}
