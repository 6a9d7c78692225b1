package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/efreitasn/papertrade/internal/service"
)

// MarketHandler handles HTTP requests for symbol market data.
type MarketHandler struct {
	marketSvc *service.MarketService
	logger    *zap.Logger
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService, logger *zap.Logger) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc, logger: logger}
}

type priceResponse struct {
	Symbol         string           `json:"symbol"`
	CurrentPrice   *decimal.Decimal `json:"current_price"`
	Window         string           `json:"window"`
	TradesInWindow int              `json:"trades_in_window"`
	LastTradeAt    *string          `json:"last_trade_at"`
}

type priceLevelResponse struct {
	Price         decimal.Decimal `json:"price"`
	TotalQuantity int64           `json:"total_quantity"`
	OrderCount    int             `json:"order_count"`
}

type bookResponse struct {
	Symbol     string               `json:"symbol"`
	Bids       []priceLevelResponse `json:"bids"`
	Asks       []priceLevelResponse `json:"asks"`
	Spread     *decimal.Decimal     `json:"spread"`
	SnapshotAt string               `json:"snapshot_at"`
}

// ListSymbols handles GET /symbols.
func (h *MarketHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"symbols": h.marketSvc.Symbols()})
}

// GetPrice handles GET /symbols/{symbol}/price.
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	p, err := h.marketSvc.GetPrice(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, priceResponse{
		Symbol:         p.Symbol,
		CurrentPrice:   p.CurrentPrice,
		Window:         p.Window,
		TradesInWindow: p.TradesInWindow,
		LastTradeAt:    formatTimePtr(p.LastTradeAt),
	})
}

// GetBook handles GET /symbols/{symbol}/book?depth=.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth, err := queryInt(r, "depth", 10)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	b, err := h.marketSvc.GetBook(r.Context(), chi.URLParam(r, "symbol"), depth)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, bookResponse{
		Symbol:     b.Symbol,
		Bids:       toLevels(b.Bids),
		Asks:       toLevels(b.Asks),
		Spread:     b.Spread,
		SnapshotAt: formatTime(b.SnapshotAt),
	})
}

// ListTrades handles GET /symbols/{symbol}/trades?limit=.
func (h *MarketHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	trades, err := h.marketSvc.RecentTrades(r.Context(), chi.URLParam(r, "symbol"), limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"trades": toTrades(trades)})
}

func toLevels(levels []service.BookPriceLevel) []priceLevelResponse {
	out := make([]priceLevelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, priceLevelResponse{
			Price:         l.Price,
			TotalQuantity: l.TotalQuantity,
			OrderCount:    l.OrderCount,
		})
	}
	return out
}
