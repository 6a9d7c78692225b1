package handler

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/service"
)

// Decimals are encoded as JSON strings so no precision is lost in clients
// that parse numbers as floats.

type accountResponse struct {
	UserID        string          `json:"user_id"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	ReservedCash  decimal.Decimal `json:"reserved_cash"`
	AvailableCash decimal.Decimal `json:"available_cash"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

type positionResponse struct {
	Symbol            string          `json:"symbol"`
	Quantity          int64           `json:"quantity"`
	ReservedQuantity  int64           `json:"reserved_quantity"`
	AvailableQuantity int64           `json:"available_quantity"`
	AvgCost           decimal.Decimal `json:"avg_cost"`
	UpdatedAt         string          `json:"updated_at"`
}

type balanceResponse struct {
	accountResponse
	Positions []positionResponse `json:"positions"`
}

type orderResponse struct {
	OrderID           string          `json:"order_id"`
	UserID            string          `json:"user_id"`
	Symbol            string          `json:"symbol"`
	Side              string          `json:"side"`
	LimitPrice        decimal.Decimal `json:"limit_price"`
	Quantity          int64           `json:"quantity"`
	FilledQuantity    int64           `json:"filled_quantity"`
	RemainingQuantity int64           `json:"remaining_quantity"`
	CancelledQuantity int64           `json:"cancelled_quantity"`
	Status            string          `json:"status"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
	CancelledAt       *string         `json:"cancelled_at"`
}

type tradeResponse struct {
	TradeID     string          `json:"trade_id"`
	Symbol      string          `json:"symbol"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	ExecutedAt  string          `json:"executed_at"`
}

type legResponse struct {
	TradeID    string          `json:"trade_id"`
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity"`
	ExecutedAt string          `json:"executed_at"`
}

type journalResponse struct {
	EntryID   string          `json:"entry_id"`
	Direction string          `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Symbol    string          `json:"symbol,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
	TradeID   string          `json:"trade_id,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func toAccount(a *domain.Account) accountResponse {
	return accountResponse{
		UserID:        a.UserID,
		CashBalance:   a.CashBalance,
		ReservedCash:  a.ReservedCash,
		AvailableCash: a.AvailableCash(),
		CreatedAt:     formatTime(a.CreatedAt),
		UpdatedAt:     formatTime(a.UpdatedAt),
	}
}

func toPositions(ps []*domain.Position) []positionResponse {
	out := make([]positionResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, positionResponse{
			Symbol:            p.Symbol,
			Quantity:          p.Quantity,
			ReservedQuantity:  p.ReservedQuantity,
			AvailableQuantity: p.AvailableQuantity(),
			AvgCost:           p.AvgCost,
			UpdatedAt:         formatTime(p.UpdatedAt),
		})
	}
	return out
}

func toBalance(b *service.Balance) balanceResponse {
	return balanceResponse{
		accountResponse: toAccount(b.Account),
		Positions:       toPositions(b.Positions),
	}
}

func toOrder(o *domain.Order) orderResponse {
	return orderResponse{
		OrderID:           o.OrderID,
		UserID:            o.UserID,
		Symbol:            o.Symbol,
		Side:              string(o.Side),
		LimitPrice:        o.LimitPrice,
		Quantity:          o.Quantity,
		FilledQuantity:    o.FilledQuantity(),
		RemainingQuantity: o.RemainingQuantity,
		CancelledQuantity: o.CancelledQuantity,
		Status:            string(o.Status),
		CreatedAt:         formatTime(o.CreatedAt),
		UpdatedAt:         formatTime(o.UpdatedAt),
		CancelledAt:       formatTimePtr(o.CancelledAt),
	}
}

func toOrders(os []*domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(os))
	for _, o := range os {
		out = append(out, toOrder(o))
	}
	return out
}

func toTrades(ts []*domain.Trade) []tradeResponse {
	out := make([]tradeResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, tradeResponse{
			TradeID:     t.TradeID,
			Symbol:      t.Symbol,
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			BuyerID:     t.BuyerID,
			SellerID:    t.SellerID,
			Price:       t.Price,
			Quantity:    t.Quantity,
			ExecutedAt:  formatTime(t.ExecutedAt),
		})
	}
	return out
}

func toLegs(ls []*domain.TradeLeg) []legResponse {
	out := make([]legResponse, 0, len(ls))
	for _, l := range ls {
		out = append(out, legResponse{
			TradeID:    l.TradeID,
			OrderID:    l.OrderID,
			Symbol:     l.Symbol,
			Side:       string(l.Side),
			Price:      l.Price,
			Quantity:   l.Quantity,
			ExecutedAt: formatTime(l.ExecutedAt),
		})
	}
	return out
}

func toJournal(es []*domain.CashEntry) []journalResponse {
	out := make([]journalResponse, 0, len(es))
	for _, e := range es {
		out = append(out, journalResponse{
			EntryID:   e.EntryID,
			Direction: string(e.Direction),
			Amount:    e.Amount,
			Reason:    string(e.Reason),
			Symbol:    e.Symbol,
			OrderID:   e.OrderID,
			TradeID:   e.TradeID,
			CreatedAt: formatTime(e.CreatedAt),
		})
	}
	return out
}
