package memory

import (
	"time"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// bookEntry is a resting order's position on one side of a book.
type bookEntry struct {
	Price     decimal.Decimal
	CreatedAt time.Time
	OrderID   string
}

// buyLess orders the BUY side: price descending, then created_at
// ascending, then order_id ascending. Min() is the best bid.
func buyLess(a, b bookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// sellLess orders the SELL side: price ascending, then created_at
// ascending, then order_id ascending. Min() is the best offer.
func sellLess(a, b bookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// book indexes the resting orders of one symbol. It is not safe for
// concurrent use; the Store lock guards it.
type book struct {
	buys  *btree.BTreeG[bookEntry]
	sells *btree.BTreeG[bookEntry]
	index map[string]bookEntry // order_id → entry
}

func newBook() *book {
	const degree = 32
	return &book{
		buys:  btree.NewG[bookEntry](degree, buyLess),
		sells: btree.NewG[bookEntry](degree, sellLess),
		index: make(map[string]bookEntry),
	}
}

func (b *book) side(s domain.OrderSide) *btree.BTreeG[bookEntry] {
	if s == domain.OrderSideBuy {
		return b.buys
	}
	return b.sells
}

// sync makes the book reflect o: resting orders are (re)inserted, all
// others removed.
func (b *book) sync(o *domain.Order) {
	if old, ok := b.index[o.OrderID]; ok {
		b.side(o.Side).Delete(old)
		delete(b.index, o.OrderID)
	}
	if !o.Resting() {
		return
	}
	e := bookEntry{Price: o.LimitPrice, CreatedAt: o.CreatedAt, OrderID: o.OrderID}
	b.side(o.Side).ReplaceOrInsert(e)
	b.index[o.OrderID] = e
}

// walk visits the order ids of one side in priority order until fn
// returns false.
func (b *book) walk(s domain.OrderSide, fn func(orderID string) bool) {
	b.side(s).Ascend(func(e bookEntry) bool {
		return fn(e.OrderID)
	})
}

func (b *book) len(s domain.OrderSide) int {
	return b.side(s).Len()
}
