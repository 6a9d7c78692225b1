package service

import (
	"context"
	"fmt"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/engine"
	"github.com/efreitasn/papertrade/internal/notify"
	"github.com/efreitasn/papertrade/internal/store"
)

// ValidOrderStatuses lists all valid order status values for validation.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusOpen:            true,
	domain.OrderStatusPartiallyFilled: true,
	domain.OrderStatusFilled:          true,
	domain.OrderStatusCancelled:       true,
}

// OrderService handles order submission, retrieval, cancellation, and listing.
type OrderService struct {
	matcher  *engine.Matcher
	store    store.Reader
	notifier notify.Notifier
}

// NewOrderService creates a new OrderService with the given dependencies.
// A nil notifier disables notifications.
func NewOrderService(matcher *engine.Matcher, reader store.Reader, notifier notify.Notifier) *OrderService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &OrderService{
		matcher:  matcher,
		store:    reader,
		notifier: notifier,
	}
}

// Submit admits and matches the order, then notifies every executed
// trade. Trades that committed before a failing fill are still notified.
func (s *OrderService) Submit(ctx context.Context, cmd domain.NewOrderCommand) (*engine.MatchResult, error) {
	res, err := s.matcher.Submit(ctx, cmd)
	if res != nil {
		for _, trade := range res.Trades {
			s.notifier.TradeExecuted(ctx, trade)
		}
	}
	return res, err
}

// Get retrieves an order by ID.
func (s *OrderService) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// Cancel cancels a resting order owned by userID.
func (s *OrderService) Cancel(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	order, err := s.matcher.Cancel(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	s.notifier.OrderCancelled(ctx, order)
	return order, nil
}

// List returns a page of the user's orders, newest first, with optional
// status filtering.
func (s *OrderService) List(ctx context.Context, userID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		return nil, 0, err
	}

	if status != nil && !ValidOrderStatuses[*status] {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: OPEN, PARTIALLY_FILLED, FILLED, CANCELLED", *status),
		}
	}
	if page < 1 {
		return nil, 0, &domain.ValidationError{Message: "page must be >= 1"}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{Message: "limit must be between 1 and 100"}
	}

	return s.store.ListOrders(ctx, store.OrderFilter{
		UserID: userID,
		Status: status,
		Page:   page,
		Limit:  limit,
	})
}
