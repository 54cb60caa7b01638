package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wellness-chat/internal/observability"
)

func TestLifecyclePayload(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	info := ConnInfo{
		ConnID:      "c1",
		Kind:        "messages",
		ResourceID:  "g1",
		UserID:      "uid-a",
		Request:     observability.RequestMeta{DeviceID: "dev-1", IP: "10.0.0.1"},
		ConnectedAt: start,
	}

	connect := info.lifecyclePayload(eventConnect, "", start.Add(time.Minute))
	require.Equal(t, int64(0), connect["ws"].(map[string]any)["duration_ms"])

	gone := info.lifecyclePayload(eventDisconnect, "client closed", start.Add(1500*time.Millisecond))
	ws := gone["ws"].(map[string]any)
	require.Equal(t, int64(1500), ws["duration_ms"])
	require.Equal(t, "client closed", ws["reason"])
	require.Equal(t, "dev-1", gone["identity"].(map[string]any)["device_id"])
}
