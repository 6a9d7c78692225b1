package domain

import "time"

const (
	EventTradeExecuted  = "trade.executed"
	EventOrderCancelled = "order.cancelled"
)

// ValidWebhookEvents lists the events a webhook can subscribe to.
var ValidWebhookEvents = map[string]bool{
	EventTradeExecuted:  true,
	EventOrderCancelled: true,
}

// Webhook represents a user's subscription to an event notification.
type Webhook struct {
	WebhookID string
	UserID    string
	Event     string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
