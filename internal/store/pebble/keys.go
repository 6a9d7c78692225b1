package pebble

import (
	"fmt"
	"time"

	"github.com/efreitasn/papertrade/internal/domain"
)

// Key layout. Ids never contain '/', and timestamps are zero-padded so
// lexical order is chronological.
//
//	account/<user>
//	order/<order_id>
//	open/<symbol>/<side>/<order_id>             resting order index
//	user-order/<user>/<created_at>/<order_id>   per-user order index
//	position/<user>/<symbol>
//	trade/<symbol>/<executed_at>/<trade_id>
//	leg/<user>/<executed_at>/<trade_id>/<side>
//	journal/<user>/<created_at>/<entry_id>
const (
	prefixAccount   = "account/"
	prefixOrder     = "order/"
	prefixOpen      = "open/"
	prefixUserOrder = "user-order/"
	prefixPosition  = "position/"
	prefixTrade     = "trade/"
	prefixLeg       = "leg/"
	prefixJournal   = "journal/"
)

func stamp(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func accountKey(userID string) []byte {
	return []byte(prefixAccount + userID)
}

func orderKey(orderID string) []byte {
	return []byte(prefixOrder + orderID)
}

func openPrefix(symbol string, side domain.OrderSide) []byte {
	return []byte(prefixOpen + symbol + "/" + string(side) + "/")
}

func openKey(o *domain.Order) []byte {
	return append(openPrefix(o.Symbol, o.Side), o.OrderID...)
}

func userOrderPrefix(userID string) []byte {
	return []byte(prefixUserOrder + userID + "/")
}

func userOrderKey(o *domain.Order) []byte {
	return append(userOrderPrefix(o.UserID), stamp(o.CreatedAt)+"/"+o.OrderID...)
}

func positionPrefix(userID string) []byte {
	return []byte(prefixPosition + userID + "/")
}

func positionKey(userID, symbol string) []byte {
	return append(positionPrefix(userID), symbol...)
}

func tradePrefix(symbol string) []byte {
	return []byte(prefixTrade + symbol + "/")
}

func tradeKey(t *domain.Trade) []byte {
	return append(tradePrefix(t.Symbol), stamp(t.ExecutedAt)+"/"+t.TradeID...)
}

func legPrefix(userID string) []byte {
	return []byte(prefixLeg + userID + "/")
}

func legKey(l *domain.TradeLeg) []byte {
	return append(legPrefix(l.UserID), stamp(l.ExecutedAt)+"/"+l.TradeID+"/"+string(l.Side)...)
}

func journalPrefix(userID string) []byte {
	return []byte(prefixJournal + userID + "/")
}

func journalKey(e *domain.CashEntry) []byte {
	return append(journalPrefix(e.UserID), stamp(e.CreatedAt)+"/"+e.EntryID...)
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
