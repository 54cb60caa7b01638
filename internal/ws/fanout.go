package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wellness-chat/internal/models"
)

type fanoutEnvelope struct {
	Topic string             `json:"topic"`
	Event models.StreamEvent `json:"event"`
}

// RedisFanout relays stream events over a redis pub/sub channel so every
// instance delivers them to its own subscribers.
type RedisFanout struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisFanout(rdb *redis.Client, channel string, logger *zap.Logger) *RedisFanout {
	return &RedisFanout{rdb: rdb, channel: channel, log: logger}
}

func (f *RedisFanout) Publish(ctx context.Context, topic string, event models.StreamEvent) error {
	b, err := json.Marshal(fanoutEnvelope{Topic: topic, Event: event})
	if err != nil {
		return fmt.Errorf("encode fanout envelope: %w", err)
	}
	return f.rdb.Publish(ctx, f.channel, b).Err()
}

// Run subscribes and hands every received event to hub until ctx is done.
func (f *RedisFanout) Run(ctx context.Context, hub *Hub) error {
	pubsub := f.rdb.Subscribe(ctx, f.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}
	defer pubsub.Close()

	f.log.Info("redis fanout subscribed", zap.String("channel", f.channel))
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				f.log.Warn("redis subscription closed")
				return nil
			}
			var env fanoutEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				f.log.Debug("drop malformed fanout payload", zap.Error(err))
				continue
			}
			hub.Broadcast(env.Topic, env.Event)
		}
	}
}
