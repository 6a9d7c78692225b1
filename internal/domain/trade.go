package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable execution between one BUY and one SELL order.
type Trade struct {
	TradeID     string
	BuyOrderID  string
	SellOrderID string
	BuyerID     string
	SellerID    string
	Symbol      string
	Price       decimal.Decimal
	Quantity    int64
	ExecutedAt  time.Time
}

// Value is the cash that changed hands.
func (t *Trade) Value() decimal.Decimal {
	return Notional(t.Price, t.Quantity)
}

// TradeLeg is one participant's side of a trade.
type TradeLeg struct {
	TradeID    string
	UserID     string
	OrderID    string
	Symbol     string
	Side       OrderSide
	Price      decimal.Decimal
	Quantity   int64
	ExecutedAt time.Time
}

// Legs splits the trade into the buyer's and seller's legs.
func (t *Trade) Legs() (buy, sell *TradeLeg) {
	buy = &TradeLeg{
		TradeID:    t.TradeID,
		UserID:     t.BuyerID,
		OrderID:    t.BuyOrderID,
		Symbol:     t.Symbol,
		Side:       OrderSideBuy,
		Price:      t.Price,
		Quantity:   t.Quantity,
		ExecutedAt: t.ExecutedAt,
	}
	sell = &TradeLeg{
		TradeID:    t.TradeID,
		UserID:     t.SellerID,
		OrderID:    t.SellOrderID,
		Symbol:     t.Symbol,
		Side:       OrderSideSell,
		Price:      t.Price,
		Quantity:   t.Quantity,
		ExecutedAt: t.ExecutedAt,
	}
	return buy, sell
}
