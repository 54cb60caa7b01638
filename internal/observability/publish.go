package observability

import "context"

// Publisher is satisfied by the rabbitmq publishers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends an envelope through the configured publisher, if any.
func PublishEvent(ctx context.Context, routingKey string, envelope EventEnvelope) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, routingKey, envelope)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
