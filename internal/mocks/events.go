package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"wellness-chat/internal/kafka"
	"wellness-chat/internal/telemetry"
)

// PublisherMock stands in for the RabbitMQ publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}

// EventSinkMock stands in for the Kafka domain event producer.
type EventSinkMock struct {
	mock.Mock
}

func (m *EventSinkMock) Emit(ctx context.Context, event kafka.DomainEvent) error {
	return m.Called(ctx, event).Error(0)
}

// EventOfType matches a kafka.DomainEvent argument by its Type.
func EventOfType(eventType string) any {
	return mock.MatchedBy(func(ev kafka.DomainEvent) bool { return ev.Type == eventType })
}

var _ telemetry.Publisher = (*PublisherMock)(nil)
