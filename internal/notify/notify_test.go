package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/papertrade/internal/domain"
)

type recorder struct {
	trades    []*domain.Trade
	cancelled []*domain.Order
}

func (r *recorder) TradeExecuted(_ context.Context, t *domain.Trade) { r.trades = append(r.trades, t) }
func (r *recorder) OrderCancelled(_ context.Context, o *domain.Order) {
	r.cancelled = append(r.cancelled, o)
}

func testTrade() *domain.Trade {
	return &domain.Trade{
		TradeID:     "t1",
		BuyOrderID:  "b1",
		SellOrderID: "s1",
		BuyerID:     "alice",
		SellerID:    "bob",
		Symbol:      "AAPL",
		Price:       decimal.RequireFromString("50.25"),
		Quantity:    10,
		ExecutedAt:  time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
	}
}

func testCancelledOrder() *domain.Order {
	at := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	return &domain.Order{
		OrderID:           "o1",
		UserID:            "alice",
		Symbol:            "MSFT",
		Side:              domain.OrderSideBuy,
		LimitPrice:        decimal.RequireFromString("300"),
		Quantity:          10,
		CancelledQuantity: 6,
		Status:            domain.OrderStatusCancelled,
		UpdatedAt:         at,
		CancelledAt:       &at,
	}
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, Nop{}, b}

	m.TradeExecuted(context.Background(), testTrade())
	m.OrderCancelled(context.Background(), testCancelledOrder())

	for _, r := range []*recorder{a, b} {
		assert.Len(t, r.trades, 1)
		assert.Len(t, r.cancelled, 1)
	}
}

func TestTradeMessage_JSON(t *testing.T) {
	body, err := json.Marshal(TradeMessage(testTrade()))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "trade.executed", got["event"])
	assert.Equal(t, "2024-03-01T14:00:00Z", got["timestamp"])

	data := got["data"].(map[string]any)
	assert.Equal(t, "50.25", data["price"])
	assert.Equal(t, float64(10), data["quantity"])
	assert.Equal(t, "alice", data["buyer_id"])
	assert.Equal(t, "bob", data["seller_id"])
}

func TestOrderMessage_UsesCancelledAt(t *testing.T) {
	msg := OrderMessage(testCancelledOrder())
	assert.Equal(t, "order.cancelled", msg.Event)
	assert.Equal(t, "2024-03-01T15:00:00Z", msg.Timestamp)

	data := msg.Data.(OrderData)
	assert.Equal(t, int64(4), data.FilledQuantity)
	assert.Equal(t, int64(6), data.CancelledQuantity)
	assert.Equal(t, "CANCELLED", data.Status)
}
