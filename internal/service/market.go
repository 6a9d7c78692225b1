package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/store"
)

// PriceResponse represents the reference price of a symbol.
type PriceResponse struct {
	Symbol         string
	CurrentPrice   *decimal.Decimal // nil when no trades ever
	Window         string           // e.g. "5m"
	TradesInWindow int
	LastTradeAt    *time.Time // nil when no trades ever
}

// BookPriceLevel represents an aggregated price level in the book response.
type BookPriceLevel struct {
	Price         decimal.Decimal
	TotalQuantity int64
	OrderCount    int
}

// BookResponse represents the top of a symbol's book.
type BookResponse struct {
	Symbol     string
	Bids       []BookPriceLevel
	Asks       []BookPriceLevel
	Spread     *decimal.Decimal // nil if either side empty
	SnapshotAt time.Time
}

// MarketService serves symbol-level market data: the book, the reference
// price and the tape.
type MarketService struct {
	store       store.Reader
	symbols     *domain.SymbolRegistry
	priceWindow time.Duration
	now         func() time.Time
}

// NewMarketService creates a new MarketService with the given dependencies.
func NewMarketService(reader store.Reader, symbols *domain.SymbolRegistry, priceWindow time.Duration) *MarketService {
	return &MarketService{
		store:       reader,
		symbols:     symbols,
		priceWindow: priceWindow,
		now:         time.Now,
	}
}

// Symbols returns the tradable symbols in ascending order.
func (s *MarketService) Symbols() []string {
	return s.symbols.List()
}

// GetPrice returns the current reference price for a symbol, computed as
// VWAP over the configured time window. Falls back to the last trade's
// price if no trades exist in the window. Returns null price if no trades
// have ever occurred.
func (s *MarketService) GetPrice(ctx context.Context, symbol string) (*PriceResponse, error) {
	if !s.symbols.Exists(symbol) {
		return nil, domain.ErrSymbolNotFound
	}

	resp := &PriceResponse{
		Symbol: symbol,
		Window: formatDuration(s.priceWindow),
	}

	// Newest first.
	trades, err := s.store.TradesSince(ctx, symbol, s.now().Add(-s.priceWindow))
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		// Quiet window: fall back to the last trade ever.
		if trades, err = s.store.RecentTrades(ctx, symbol, 1); err != nil {
			return nil, err
		}
		if len(trades) == 0 {
			return resp, nil
		}
		last := trades[0]
		lastAt := last.ExecutedAt
		price := last.Price
		resp.LastTradeAt = &lastAt
		resp.CurrentPrice = &price
		return resp, nil
	}

	lastAt := trades[0].ExecutedAt
	resp.LastTradeAt = &lastAt

	sumValue := decimal.Zero
	var sumQty int64
	for _, t := range trades {
		sumValue = sumValue.Add(t.Value())
		sumQty += t.Quantity
	}
	resp.TradesInWindow = len(trades)

	price := sumValue.DivRound(decimal.NewFromInt(sumQty), domain.CostScale)
	resp.CurrentPrice = &price
	return resp, nil
}

// GetBook returns the top depth price levels of each side of the book.
func (s *MarketService) GetBook(ctx context.Context, symbol string, depth int) (*BookResponse, error) {
	if !s.symbols.Exists(symbol) {
		return nil, domain.ErrSymbolNotFound
	}
	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{Message: "depth must be between 1 and 50"}
	}

	buys, err := s.store.RestingOrders(ctx, symbol, domain.OrderSideBuy)
	if err != nil {
		return nil, err
	}
	sells, err := s.store.RestingOrders(ctx, symbol, domain.OrderSideSell)
	if err != nil {
		return nil, err
	}

	resp := &BookResponse{
		Symbol:     symbol,
		Bids:       aggregateLevels(buys, depth),
		Asks:       aggregateLevels(sells, depth),
		SnapshotAt: s.now(),
	}
	if len(resp.Bids) > 0 && len(resp.Asks) > 0 {
		spread := resp.Asks[0].Price.Sub(resp.Bids[0].Price)
		resp.Spread = &spread
	}
	return resp, nil
}

// aggregateLevels folds orders, already in priority order, into at most
// depth price levels.
func aggregateLevels(orders []*domain.Order, depth int) []BookPriceLevel {
	levels := make([]BookPriceLevel, 0, depth)
	for _, o := range orders {
		n := len(levels)
		if n > 0 && levels[n-1].Price.Equal(o.LimitPrice) {
			levels[n-1].TotalQuantity += o.RemainingQuantity
			levels[n-1].OrderCount++
			continue
		}
		if n == depth {
			break
		}
		levels = append(levels, BookPriceLevel{
			Price:         o.LimitPrice,
			TotalQuantity: o.RemainingQuantity,
			OrderCount:    1,
		})
	}
	return levels
}

// RecentTrades returns up to limit of the symbol's trades, newest first.
func (s *MarketService) RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	if !s.symbols.Exists(symbol) {
		return nil, domain.ErrSymbolNotFound
	}
	if limit < 1 || limit > 500 {
		return nil, &domain.ValidationError{Message: "limit must be between 1 and 500"}
	}
	return s.store.RecentTrades(ctx, symbol, limit)
}

// formatDuration converts a time.Duration to a human-readable string
// like "5m" for the window field.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	minutes := int(d.Minutes())
	if d == time.Duration(minutes)*time.Minute && minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return d.String()
}
