package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/metrics"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic, keyed by symbol so that a
// symbol's events stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger, m *metrics.Metrics) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaPublisher(w, logger, m)
}

func newKafkaPublisher(w messageWriter, logger *zap.Logger, m *metrics.Metrics) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger, metrics: m}
}

func (p *KafkaPublisher) TradeExecuted(ctx context.Context, trade *domain.Trade) {
	p.publish(ctx, trade.Symbol, TradeMessage(trade))
}

func (p *KafkaPublisher) OrderCancelled(ctx context.Context, order *domain.Order) {
	p.publish(ctx, order.Symbol, OrderMessage(order))
}

func (p *KafkaPublisher) publish(ctx context.Context, key string, msg Message) {
	value, err := json.Marshal(msg)
	if err != nil {
		p.fail(msg.Event, err)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.fail(msg.Event, err)
	}
}

func (p *KafkaPublisher) fail(event string, err error) {
	p.metrics.NotificationFailed("kafka")
	p.logger.Warn("kafka publish failed", zap.String("event", event), zap.Error(err))
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
