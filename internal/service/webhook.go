package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/metrics"
	"github.com/efreitasn/papertrade/internal/store"
)

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	UserID string
	URL    string
	Events []string
}

// WebhookOption configures a WebhookService.
type WebhookOption func(*WebhookService)

// WithHTTPClient replaces the delivery client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookService) { s.client = c }
}

// WithWebhookLogger sets the logger used for delivery failures.
func WithWebhookLogger(l *zap.Logger) WebhookOption {
	return func(s *WebhookService) { s.logger = l }
}

// WithWebhookMetrics counts failed deliveries.
func WithWebhookMetrics(m *metrics.Metrics) WebhookOption {
	return func(s *WebhookService) { s.metrics = m }
}

// WebhookService handles webhook CRUD and event dispatch. It is a
// notify.Notifier: deliveries run in the background and failures are
// logged, never retried.
type WebhookService struct {
	store    store.WebhookStore
	accounts store.Reader
	client   *http.Client
	logger   *zap.Logger
	metrics  *metrics.Metrics
	inflight sync.WaitGroup
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(
	webhookStore store.WebhookStore,
	accounts store.Reader,
	webhookTimeout time.Duration,
	opts ...WebhookOption,
) *WebhookService {
	s := &WebhookService{
		store:    webhookStore,
		accounts: accounts,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(ctx context.Context, req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	if _, err := s.accounts.GetAccount(ctx, req.UserID); err != nil {
		return nil, false, err
	}

	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	// Deduplicate events while preserving order and validating.
	seen := make(map[string]bool, len(req.Events))
	events := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !domain.ValidWebhookEvents[event] {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + event + ". Must be one of: " + validEventList(),
			}
		}
		if !seen[event] {
			seen[event] = true
			events = append(events, event)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(events))
	for _, event := range events {
		w, created, err := s.store.Upsert(ctx, &domain.Webhook{
			WebhookID: uuid.NewString(),
			UserID:    req.UserID,
			Event:     event,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return nil, false, err
		}
		anyCreated = anyCreated || created
		webhooks = append(webhooks, w)
	}

	return webhooks, anyCreated, nil
}

func validEventList() string {
	events := make([]string, 0, len(domain.ValidWebhookEvents))
	for e := range domain.ValidWebhookEvents {
		events = append(events, e)
	}
	sort.Strings(events)
	return strings.Join(events, ", ")
}

// List validates the user exists and returns all webhook subscriptions.
func (s *WebhookService) List(ctx context.Context, userID string) ([]*domain.Webhook, error) {
	if _, err := s.accounts.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListByUser(ctx, userID)
}

// Delete removes a webhook subscription by ID.
func (s *WebhookService) Delete(ctx context.Context, webhookID string) error {
	return s.store.Delete(ctx, webhookID)
}

// webhookPayload is the JSON body of every delivery.
type webhookPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

type tradeExecutedData struct {
	TradeID       string          `json:"trade_id"`
	UserID        string          `json:"user_id"`
	OrderID       string          `json:"order_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	TradePrice    decimal.Decimal `json:"trade_price"`
	TradeQuantity int64           `json:"trade_quantity"`
}

type orderCancelledData struct {
	UserID            string          `json:"user_id"`
	OrderID           string          `json:"order_id"`
	Symbol            string          `json:"symbol"`
	Side              string          `json:"side"`
	LimitPrice        decimal.Decimal `json:"limit_price"`
	Quantity          int64           `json:"quantity"`
	FilledQuantity    int64           `json:"filled_quantity"`
	CancelledQuantity int64           `json:"cancelled_quantity"`
	Status            string          `json:"status"`
}

// TradeExecuted dispatches a trade.executed webhook to the buyer and to
// the seller, each with their own leg of the trade.
func (s *WebhookService) TradeExecuted(ctx context.Context, trade *domain.Trade) {
	buy, sell := trade.Legs()
	for _, leg := range []*domain.TradeLeg{buy, sell} {
		s.dispatch(ctx, leg.UserID, domain.EventTradeExecuted, webhookPayload{
			Event:     domain.EventTradeExecuted,
			Timestamp: trade.ExecutedAt.UTC().Truncate(time.Second).Format(time.RFC3339),
			Data: tradeExecutedData{
				TradeID:       leg.TradeID,
				UserID:        leg.UserID,
				OrderID:       leg.OrderID,
				Symbol:        leg.Symbol,
				Side:          string(leg.Side),
				TradePrice:    leg.Price,
				TradeQuantity: leg.Quantity,
			},
		})
	}
}

// OrderCancelled dispatches an order.cancelled webhook to the order's owner.
func (s *WebhookService) OrderCancelled(ctx context.Context, order *domain.Order) {
	s.dispatch(ctx, order.UserID, domain.EventOrderCancelled, webhookPayload{
		Event:     domain.EventOrderCancelled,
		Timestamp: order.UpdatedAt.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data: orderCancelledData{
			UserID:            order.UserID,
			OrderID:           order.OrderID,
			Symbol:            order.Symbol,
			Side:              string(order.Side),
			LimitPrice:        order.LimitPrice,
			Quantity:          order.Quantity,
			FilledQuantity:    order.FilledQuantity(),
			CancelledQuantity: order.CancelledQuantity,
			Status:            string(order.Status),
		},
	})
}

func (s *WebhookService) dispatch(ctx context.Context, userID, event string, payload webhookPayload) {
	wh, err := s.store.GetByUserEvent(ctx, userID, event)
	if err != nil {
		s.logger.Warn("webhook lookup failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if wh == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.deliver(context.WithoutCancel(ctx), wh, payload); err != nil {
			s.metrics.NotificationFailed("webhook")
			s.logger.Warn("webhook delivery failed",
				zap.String("webhook_id", wh.WebhookID),
				zap.String("event", event),
				zap.Error(err))
		}
	}()
}

// deliver sends the webhook payload via HTTP POST with the required headers.
func (s *WebhookService) deliver(ctx context.Context, wh *domain.Webhook, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.NewString())
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", payload.Event)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Wait blocks until every in-flight delivery has finished.
func (s *WebhookService) Wait() {
	s.inflight.Wait()
}
