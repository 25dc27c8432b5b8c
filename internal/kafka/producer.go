package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-tickets/internal/config"
	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"

	"github.com/segmentio/kafka-go"
)

const publishTimeout = time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order lifecycle events. Each message carries its own
// topic so a single writer serves every event type.
type Producer struct {
	writer messageWriter
	topics config.TopicConfig
	logger *logger.Logger
}

// NewProducer returns an async producer: WriteMessages only enqueues, and
// broker failures surface through reportDelivery instead of the request path.
func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	p := &Producer{topics: topics, logger: log}
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           publishTimeout,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             p.reportDelivery,
	}
	return p
}

func (p *Producer) reportDelivery(messages []kafka.Message, err error) {
	for _, m := range messages {
		if err != nil {
			p.logger.Error("KAFKA", fmt.Sprintf("delivery to %s for %s failed: %v", m.Topic, m.Key, err))
			continue
		}
		p.logger.LogKafka("DELIVERED", m.Topic, string(m.Key))
	}
}

func (p *Producer) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	return p.publish(ctx, p.topics.OrderCreated, order)
}

func (p *Producer) PublishOrderPaid(ctx context.Context, order *models.Order) error {
	return p.publish(ctx, p.topics.OrderPaid, order)
}

func (p *Producer) PublishOrderFailed(ctx context.Context, order *models.Order) error {
	return p.publish(ctx, p.topics.OrderFailed, order)
}

func (p *Producer) PublishTicketScanned(ctx context.Context, order *models.Order) error {
	return p.publish(ctx, p.topics.TicketScanned, order)
}

// publish is keyed by ticket id so one order's events stay ordered. It
// outlives request cancellation but not publishTimeout.
func (p *Producer) publish(ctx context.Context, topic string, order *models.Order) error {
	msgBytes, err := json.Marshal(models.NewOrderEvent(order, time.Now().UTC()))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(order.TicketID),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.Error("KAFKA", fmt.Sprintf("publish %s for %s failed: %v", topic, order.TicketID, err))
		return err
	}

	p.logger.LogKafka("QUEUED", topic, order.TicketID)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// NoopProducer is used when KAFKA_ENABLED is false.
type NoopProducer struct{}

func (NoopProducer) PublishOrderCreated(context.Context, *models.Order) error {
	return nil
}

func (NoopProducer) PublishOrderPaid(context.Context, *models.Order) error {
	return nil
}

func (NoopProducer) PublishOrderFailed(context.Context, *models.Order) error {
	return nil
}

func (NoopProducer) PublishTicketScanned(context.Context, *models.Order) error {
	return nil
}

func (NoopProducer) Close() error {
	return nil
}
