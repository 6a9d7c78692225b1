package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
	logger   *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc, logger: logger}
}

// submitOrderRequest is the JSON request body for POST /orders.
type submitOrderRequest struct {
	UserID     string           `json:"user_id"`
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	LimitPrice *decimal.Decimal `json:"limit_price"`
	Quantity   int64            `json:"quantity"`
}

// submitOrderResponse carries the order after matching plus the trades the
// submission produced.
type submitOrderResponse struct {
	orderResponse
	Trades []tradeResponse `json:"trades"`
}

// SubmitOrder handles POST /orders.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.LimitPrice == nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "limit_price is required")
		return
	}

	res, err := h.orderSvc.Submit(r.Context(), domain.NewOrderCommand{
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       domain.OrderSide(req.Side),
		LimitPrice: *req.LimitPrice,
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, submitOrderResponse{
		orderResponse: toOrder(res.Order),
		Trades:        toTrades(res.Trades),
	})
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.Get(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, toOrder(order))
}

// CancelOrder handles DELETE /orders/{order_id}?user_id=. Only the owner
// may cancel; other users see the order as not found.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "user_id query parameter is required")
		return
	}

	order, err := h.orderSvc.Cancel(r.Context(), chi.URLParam(r, "order_id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, toOrder(order))
}
