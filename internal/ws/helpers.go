package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"wellness-chat/internal/observability"
)

const (
	eventConnect    = "ws_connect"
	eventDisconnect = "ws_disconnect"
	eventError      = "ws_error"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

func wsRoutingKey(kind string) string {
	return "ws_events." + kind
}

// publishLifecycle records a connect, disconnect or error for one subscription.
func publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(info.Kind, event)
	envelope := observability.NewEvent("ws_events", event, info.lifecyclePayload(event, reason, time.Now())).
		WithTrace(info.Request.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, wsRoutingKey(info.Kind), envelope)
}
