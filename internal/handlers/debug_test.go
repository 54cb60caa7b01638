package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wellness-chat/internal/mocks"
	"wellness-chat/internal/telemetry"
)

type staticCounter map[string]int

func (s staticCounter) Count(topic string) int { return s[topic] }

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, staticCounter{}, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/subscribers?topic=groups", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugSubscribers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, staticCounter{"messages:g1": 3}, true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/subscribers?topic=messages:g1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Topic       string `json:"topic"`
		Subscribers int    `json:"subscribers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Subscribers)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/subscribers", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugAuditTest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything).Return(nil).Once()
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "wellness-chat", "test", zap.NewNop())

	r := gin.New()
	RegisterDebugRoutes(r, emitter, staticCounter{}, true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}
