package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/service"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accountSvc *service.AccountService
	orderSvc   *service.OrderService
	logger     *zap.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc *service.AccountService, orderSvc *service.OrderService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc, orderSvc: orderSvc, logger: logger}
}

// openAccountRequest is the JSON request body for POST /accounts.
type openAccountRequest struct {
	UserID          string           `json:"user_id"`
	InitialCash     *decimal.Decimal `json:"initial_cash"`
	InitialHoldings []holdingRequest `json:"initial_holdings"`
}

type holdingRequest struct {
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	AvgCost  decimal.Decimal `json:"avg_cost"`
}

type depositRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type paginatedOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// Open handles POST /accounts.
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	holdings := make([]service.HoldingInput, len(req.InitialHoldings))
	for i, hr := range req.InitialHoldings {
		holdings[i] = service.HoldingInput{Symbol: hr.Symbol, Quantity: hr.Quantity, AvgCost: hr.AvgCost}
	}

	acct, err := h.accountSvc.Open(r.Context(), service.OpenAccountRequest{
		UserID:          req.UserID,
		InitialCash:     req.InitialCash,
		InitialHoldings: holdings,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toAccount(acct))
}

// Deposit handles POST /accounts/{user_id}/deposits.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Amount == nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "amount is required")
		return
	}

	acct, err := h.accountSvc.Deposit(r.Context(), chi.URLParam(r, "user_id"), *req.Amount)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, toAccount(acct))
}

// GetBalance handles GET /accounts/{user_id}/balance.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.accountSvc.GetBalance(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, toBalance(bal))
}

// ListPositions handles GET /accounts/{user_id}/positions.
func (h *AccountHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	ps, err := h.accountSvc.Positions(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"positions": toPositions(ps)})
}

// ListTrades handles GET /accounts/{user_id}/trades.
func (h *AccountHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	legs, err := h.accountSvc.Trades(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": toLegs(legs)})
}

// ListJournal handles GET /accounts/{user_id}/journal.
func (h *AccountHandler) ListJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.accountSvc.Journal(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"entries": toJournal(entries)})
}

// ListOrders handles GET /accounts/{user_id}/orders?status=&page=&limit=.
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var status *domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.OrderStatus(raw)
		status = &s
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	orders, total, err := h.orderSvc.List(r.Context(), chi.URLParam(r, "user_id"), status, page, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, paginatedOrdersResponse{
		Orders: toOrders(orders),
		Total:  total,
		Page:   page,
		Limit:  limit,
	})
}
