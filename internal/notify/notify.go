// Package notify fans trade and cancellation events out to external
// sinks. Sinks are best effort: a failing sink never affects the order
// that produced the event or the other sinks.
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
)

// Event types published by every sink.
const (
	EventTradeExecuted  = domain.EventTradeExecuted
	EventOrderCancelled = domain.EventOrderCancelled
)

// Notifier receives events after the transaction that produced them has
// committed. Implementations must not block the caller for long.
type Notifier interface {
	TradeExecuted(ctx context.Context, trade *domain.Trade)
	OrderCancelled(ctx context.Context, order *domain.Order)
}

// Multi forwards every event to each notifier in turn.
type Multi []Notifier

func (m Multi) TradeExecuted(ctx context.Context, trade *domain.Trade) {
	for _, n := range m {
		n.TradeExecuted(ctx, trade)
	}
}

func (m Multi) OrderCancelled(ctx context.Context, order *domain.Order) {
	for _, n := range m {
		n.OrderCancelled(ctx, order)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) TradeExecuted(context.Context, *domain.Trade)  {}
func (Nop) OrderCancelled(context.Context, *domain.Order) {}

// Message is the JSON envelope shared by the Kafka topic and the
// WebSocket feed.
type Message struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// TradeData is the payload of a trade.executed message.
type TradeData struct {
	TradeID     string          `json:"trade_id"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	ExecutedAt  string          `json:"executed_at"`
}

// OrderData is the payload of an order.cancelled message.
type OrderData struct {
	OrderID           string          `json:"order_id"`
	UserID            string          `json:"user_id"`
	Symbol            string          `json:"symbol"`
	Side              string          `json:"side"`
	LimitPrice        decimal.Decimal `json:"limit_price"`
	Quantity          int64           `json:"quantity"`
	FilledQuantity    int64           `json:"filled_quantity"`
	CancelledQuantity int64           `json:"cancelled_quantity"`
	Status            string          `json:"status"`
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// TradeMessage builds the trade.executed envelope.
func TradeMessage(t *domain.Trade) Message {
	return Message{
		Event:     EventTradeExecuted,
		Timestamp: timestamp(t.ExecutedAt),
		Data: TradeData{
			TradeID:     t.TradeID,
			Symbol:      t.Symbol,
			Price:       t.Price,
			Quantity:    t.Quantity,
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			BuyerID:     t.BuyerID,
			SellerID:    t.SellerID,
			ExecutedAt:  timestamp(t.ExecutedAt),
		},
	}
}

// OrderMessage builds the order.cancelled envelope.
func OrderMessage(o *domain.Order) Message {
	at := o.UpdatedAt
	if o.CancelledAt != nil {
		at = *o.CancelledAt
	}
	return Message{
		Event:     EventOrderCancelled,
		Timestamp: timestamp(at),
		Data: OrderData{
			OrderID:           o.OrderID,
			UserID:            o.UserID,
			Symbol:            o.Symbol,
			Side:              string(o.Side),
			LimitPrice:        o.LimitPrice,
			Quantity:          o.Quantity,
			FilledQuantity:    o.FilledQuantity(),
			CancelledQuantity: o.CancelledQuantity,
			Status:            string(o.Status),
		},
	}
}
