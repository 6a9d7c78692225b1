// Package handler is the HTTP adapter over the services.
package handler

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/efreitasn/papertrade/internal/metrics"
	"github.com/efreitasn/papertrade/internal/service"
)

// Deps lists what the router serves. Feed and Metrics are optional.
type Deps struct {
	Accounts *service.AccountService
	Orders   *service.OrderService
	Market   *service.MarketService
	Webhooks *service.WebhookService
	Feed     http.Handler
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// NewRouter creates a chi router with all routes registered, CORS, request
// logging, and Content-Type validation middleware.
func NewRouter(d Deps) chi.Router {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogging(logger, d.Metrics))

	accountH := NewAccountHandler(d.Accounts, d.Orders, logger)
	orderH := NewOrderHandler(d.Orders, logger)
	marketH := NewMarketHandler(d.Market, logger)
	webhookH := NewWebhookHandler(d.Webhooks, logger)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
	if d.Feed != nil {
		r.Handle("/ws", d.Feed)
	}

	r.Group(func(r chi.Router) {
		r.Use(contentTypeJSON)

		// Account routes.
		r.Post("/accounts", accountH.Open)
		r.Post("/accounts/{user_id}/deposits", accountH.Deposit)
		r.Get("/accounts/{user_id}/balance", accountH.GetBalance)
		r.Get("/accounts/{user_id}/positions", accountH.ListPositions)
		r.Get("/accounts/{user_id}/trades", accountH.ListTrades)
		r.Get("/accounts/{user_id}/journal", accountH.ListJournal)
		r.Get("/accounts/{user_id}/orders", accountH.ListOrders)

		// Order routes.
		r.Post("/orders", orderH.SubmitOrder)
		r.Get("/orders/{order_id}", orderH.GetOrder)
		r.Delete("/orders/{order_id}", orderH.CancelOrder)

		// Market routes.
		r.Get("/symbols", marketH.ListSymbols)
		r.Get("/symbols/{symbol}/price", marketH.GetPrice)
		r.Get("/symbols/{symbol}/book", marketH.GetBook)
		r.Get("/symbols/{symbol}/trades", marketH.ListTrades)

		// Webhook routes.
		r.Post("/webhooks", webhookH.Upsert)
		r.Get("/webhooks", webhookH.List)
		r.Delete("/webhooks/{webhook_id}", webhookH.Delete)
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration, and records them in metrics under the
// matched route pattern.
func requestLogging(logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, ww.status, elapsed)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", elapsed),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack exposes the underlying connection for the WebSocket upgrade.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
