package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wellness-chat/internal/telemetry"
)

// TopicCounter reports live subscribers per hub topic.
type TopicCounter interface {
	Count(topic string) int
}

// RegisterDebugRoutes wires debug-only endpoints. Nothing is registered unless
// enabled is set.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, hub TopicCounter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.LevelInfo, "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/subscribers", func(c *gin.Context) {
		topic := c.Query("topic")
		if topic == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topic required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"topic": topic, "subscribers": hub.Count(topic)})
	})
}
