package ws

import (
	"time"

	"go.uber.org/zap"

	"wellness-chat/internal/observability"
)

// ConnInfo describes one live subscription for logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	Kind        string
	ResourceID  string
	UserID      string
	Request     observability.RequestMeta
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) logFields() []zap.Field {
	return []zap.Field{
		zap.String("conn_id", i.ConnID),
		zap.String("kind", i.Kind),
		zap.String("resource_id", i.ResourceID),
		zap.String("user_id", i.UserID),
		zap.String("request_id", i.Request.RequestID),
	}
}

// lifecyclePayload is the body of a ws_events message. Duration is only
// reported once the subscription has ended.
func (i ConnInfo) lifecyclePayload(event, reason string, now time.Time) map[string]any {
	var durationMS int64
	if event != eventConnect {
		durationMS = now.Sub(i.ConnectedAt).Milliseconds()
	}
	return map[string]any{
		"ws": map[string]any{
			"kind":        i.Kind,
			"resource_id": i.ResourceID,
			"event":       event,
			"conn_id":     i.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":    i.UserID,
			"device_id":  i.Request.DeviceID,
			"ip":         i.Request.IP,
			"user_agent": i.Request.UserAgent,
		},
	}
}
