package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"wellness-chat/internal/models"
)

const (
	EventMessageCreated  = "message.created"
	EventGroupMembership = "group.membership"
)

// DomainEvent is the record written to the chat events topic.
type DomainEvent struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	GroupID    string          `json:"group_id"`
	UserID     string          `json:"user_id,omitempty"`
	Joined     *bool           `json:"joined,omitempty"`
	Message    *models.Message `json:"message,omitempty"`
}

func MessageCreated(msg models.Message) DomainEvent {
	return DomainEvent{
		Type:       EventMessageCreated,
		OccurredAt: time.Now().UTC(),
		GroupID:    msg.GroupID,
		UserID:     msg.SenderID,
		Message:    &msg,
	}
}

func MembershipChanged(groupID, userID string, joined bool) DomainEvent {
	return DomainEvent{
		Type:       EventGroupMembership,
		OccurredAt: time.Now().UTC(),
		GroupID:    groupID,
		UserID:     userID,
		Joined:     &joined,
	}
}

type Producer struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewProducer returns a producer writing to topic. Without brokers the producer
// drops every event.
func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	if len(brokers) == 0 {
		logger.Info("kafka disabled, no brokers configured")
		return &Producer{log: logger}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka write failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	logger.Info("kafka producer ready", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return &Producer{writer: w, log: logger}
}

// Emit keys the record by group so one group's events stay ordered.
func (p *Producer) Emit(ctx context.Context, event DomainEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(event.GroupID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
