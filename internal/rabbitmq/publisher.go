package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"wellness-chat/internal/observability"
	"wellness-chat/internal/telemetry"
)

// Publisher publishes audit and live-subscription lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher or a noop publisher when AMQP is disabled.
func NewPublisher(amqpURL, exchange string, logger *zap.Logger) Publisher {
	if amqpURL == "" {
		logger.Info("rabbitmq disabled, using noop", zap.String("reason", "empty amqp url"))
		return noopPublisher{reason: "empty amqp url", log: logger}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		logger.Warn("rabbitmq disabled, using noop", zap.Error(err))
		return noopPublisher{reason: err.Error(), log: logger}
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Warn("rabbitmq disabled, using noop", zap.Error(err))
		_ = conn.Close()
		return noopPublisher{reason: err.Error(), log: logger}
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		logger.Warn("rabbitmq disabled, using noop", zap.Error(err))
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{reason: err.Error(), log: logger}
	}

	logger.Info("rabbitmq connected", zap.String("exchange", exchange))
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, log: logger}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *zap.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	headers := amqp.Table{}
	if envelope, ok := event.(observability.EventEnvelope); ok {
		for key, value := range envelope.Headers {
			headers[key] = value
		}
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		p.log.Warn("rabbitmq publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
	log    *zap.Logger
}

func (p noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		p.log.Debug("rabbitmq noop publish", zap.String("routing_key", routingKey), zap.String("event_type", envelope.EventType), zap.String("request_id", envelope.RequestID))
	case observability.EventEnvelope:
		p.log.Debug("rabbitmq noop publish", zap.String("routing_key", routingKey), zap.String("event_name", envelope.EventName))
	default:
		p.log.Debug("rabbitmq noop publish", zap.String("routing_key", routingKey))
	}
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
