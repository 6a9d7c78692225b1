package memory

import (
	"context"
	"sort"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/store"
)

// tx stages writes over the Store's maps. The Store's write lock is held
// for the tx's whole lifetime, so reads of the base maps are safe.
type tx struct {
	s         *Store
	orders    map[string]*domain.Order
	orderSeq  []string
	accounts  map[string]*domain.Account
	positions map[positionKey]*domain.Position
	trades    []*domain.Trade
	legs      []*domain.TradeLeg
	journal   []*domain.CashEntry
}

func newTx(s *Store) *tx {
	return &tx{
		s:         s,
		orders:    make(map[string]*domain.Order),
		accounts:  make(map[string]*domain.Account),
		positions: make(map[positionKey]*domain.Position),
	}
}

func (t *tx) Orders() store.OrderStore       { return txOrders{t} }
func (t *tx) Accounts() store.AccountStore   { return txAccounts{t} }
func (t *tx) Positions() store.PositionStore { return txPositions{t} }
func (t *tx) Trades() store.TradeStore       { return txTrades{t} }
func (t *tx) Journal() store.JournalStore    { return txJournal{t} }

// order returns the latest version of an order, staged or committed.
func (t *tx) order(id string) *domain.Order {
	if o, ok := t.orders[id]; ok {
		return o
	}
	return t.s.orders[id]
}

func (t *tx) account(id string) *domain.Account {
	if a, ok := t.accounts[id]; ok {
		return a
	}
	return t.s.accounts[id]
}

type txOrders struct{ t *tx }

func (o txOrders) Save(_ context.Context, order *domain.Order) error {
	if _, staged := o.t.orders[order.OrderID]; !staged {
		o.t.orderSeq = append(o.t.orderSeq, order.OrderID)
	}
	o.t.orders[order.OrderID] = order.Clone()
	return nil
}

func (o txOrders) Get(_ context.Context, orderID string) (*domain.Order, error) {
	order := o.t.order(orderID)
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (o txOrders) FindOpenBySymbolSide(_ context.Context, symbol string, side domain.OrderSide) ([]*domain.Order, error) {
	out := o.t.s.restingLocked(symbol, side, o.t.order)

	// Orders staged in this tx that the committed book has not seen yet.
	for _, id := range o.t.orderSeq {
		if _, committed := o.t.s.orders[id]; committed {
			continue
		}
		order := o.t.orders[id]
		if order.Symbol == symbol && order.Side == side && order.Resting() {
			out = append(out, order.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return domain.HasPriority(out[i], out[j]) })
	return out, nil
}

type txAccounts struct{ t *tx }

func (a txAccounts) Get(_ context.Context, userID string) (*domain.Account, error) {
	acct := a.t.account(userID)
	if acct == nil {
		return nil, domain.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (a txAccounts) Create(_ context.Context, acct *domain.Account) error {
	if a.t.account(acct.UserID) != nil {
		return domain.ErrAccountAlreadyExists
	}
	a.t.accounts[acct.UserID] = acct.Clone()
	return nil
}

func (a txAccounts) Save(_ context.Context, acct *domain.Account) error {
	if a.t.account(acct.UserID) == nil {
		return domain.ErrAccountNotFound
	}
	a.t.accounts[acct.UserID] = acct.Clone()
	return nil
}

type txPositions struct{ t *tx }

func (p txPositions) Get(_ context.Context, userID, symbol string) (*domain.Position, error) {
	k := positionKey{userID, symbol}
	if pos, ok := p.t.positions[k]; ok {
		return pos.Clone(), nil
	}
	if pos, ok := p.t.s.positions[k]; ok {
		return pos.Clone(), nil
	}
	return nil, nil
}

func (p txPositions) Save(_ context.Context, pos *domain.Position) error {
	p.t.positions[positionKey{pos.UserID, pos.Symbol}] = pos.Clone()
	return nil
}

type txTrades struct{ t *tx }

func (tr txTrades) Save(_ context.Context, trade *domain.Trade) error {
	c := *trade
	tr.t.trades = append(tr.t.trades, &c)
	return nil
}

func (tr txTrades) SaveLeg(_ context.Context, leg *domain.TradeLeg) error {
	c := *leg
	tr.t.legs = append(tr.t.legs, &c)
	return nil
}

type txJournal struct{ t *tx }

func (j txJournal) Append(_ context.Context, e *domain.CashEntry) error {
	c := *e
	j.t.journal = append(j.t.journal, &c)
	return nil
}
