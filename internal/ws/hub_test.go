package ws

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wellness-chat/internal/models"
)

type recordedPublish struct {
	topic string
	event models.StreamEvent
}

type recordingFanout struct {
	mu     sync.Mutex
	events []recordedPublish
	err    error
}

func (f *recordingFanout) Publish(ctx context.Context, topic string, event models.StreamEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, recordedPublish{topic: topic, event: event})
	return nil
}

func (f *recordingFanout) published() []recordedPublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedPublish(nil), f.events...)
}

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := NewClient(nil, ConnInfo{ConnID: "c1"})

	hub.Add(GroupTopic("g1"), client)
	require.Equal(t, 1, hub.Count(GroupTopic("g1")))
	require.Len(t, hub.rooms, 1)

	hub.Remove(GroupTopic("g1"), client)
	require.Equal(t, 0, hub.Count(GroupTopic("g1")))
	require.Empty(t, hub.rooms)
}

func TestHubTopicsAreDistinct(t *testing.T) {
	require.NotEqual(t, GroupTopic("g1"), MessagesTopic("g1"))
	require.NotEqual(t, GroupTopic("g1"), GroupTopic("g2"))
}

func TestHubPublishPrefersFanout(t *testing.T) {
	hub := NewHub(zap.NewNop())
	fanout := &recordingFanout{}
	hub.SetFanout(fanout)

	hub.Publish(context.Background(), TopicGroups, models.StreamEvent{Type: models.EventGroups})
	got := fanout.published()
	require.Len(t, got, 1)
	require.Equal(t, TopicGroups, got[0].topic)
}

func TestHubPublishFallsBackToLocal(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.SetFanout(&recordingFanout{err: errors.New("redis down")})
	require.NotPanics(t, func() {
		hub.Publish(context.Background(), TopicUsers, models.StreamEvent{Type: models.EventUsers})
	})
}
