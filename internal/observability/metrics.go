package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wellness_chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the wellness chat backend.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wellness_chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wellness_chat_ws_active_subscriptions",
			Help: "Number of active live subscriptions.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wellness_chat_ws_events_total",
			Help: "Total number of live subscription lifecycle events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wellness_chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	uploadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wellness_chat_upload_bytes_total",
			Help: "Total number of attachment bytes written to object storage.",
		},
	)
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wellness_chat_messages_sent_total",
			Help: "Total number of group messages stored, by content kind.",
		},
		[]string{"kind"},
	)
	fanoutFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wellness_chat_fanout_fallback_total",
			Help: "Total number of live events delivered locally because cross-instance fan-out failed.",
		},
	)
	readReceiptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wellness_chat_read_receipts_total",
			Help: "Total number of read receipts that grew a read set.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		uploadBytesTotal,
		readReceiptsTotal,
		messagesSentTotal,
		fanoutFallbackTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func AddUploadBytes(n int64) {
	uploadBytesTotal.Add(float64(n))
}

func IncReadReceipt() {
	readReceiptsTotal.Inc()
}

// IncMessageSent counts a stored message as "text", "attachment" or "mixed".
func IncMessageSent(text, attachmentURL string) {
	kind := "text"
	switch {
	case attachmentURL != "" && text != "":
		kind = "mixed"
	case attachmentURL != "":
		kind = "attachment"
	}
	messagesSentTotal.WithLabelValues(kind).Inc()
}

func IncFanoutFallback() {
	fanoutFallbackTotal.Inc()
}
