package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wellness-chat/internal/models"
)

func TestProducerWithoutBrokersDropsEvents(t *testing.T) {
	p := NewProducer(nil, "chat.events", zap.NewNop())
	require.NoError(t, p.Emit(context.Background(), MembershipChanged("g1", "u1", true)))
	require.NoError(t, p.Close())

	var nilProducer *Producer
	require.NoError(t, nilProducer.Emit(context.Background(), MembershipChanged("g1", "u1", false)))
}

func TestDomainEventEncoding(t *testing.T) {
	ev := MessageCreated(models.Message{ID: "m1", GroupID: "g1", SenderID: "u1", Text: "hi"})
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, EventMessageCreated, decoded["type"])
	require.Equal(t, "g1", decoded["group_id"])
	require.Equal(t, "u1", decoded["user_id"])
	require.NotContains(t, decoded, "joined")

	left := MembershipChanged("g1", "u2", false)
	require.NotNil(t, left.Joined)
	require.False(t, *left.Joined)
}
