package grpc

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"wellness-chat/internal/observability"
)

// ServiceName is the health service key reported alongside the overall status.
const ServiceName = "wellness.chat"

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthServer exposes grpc_health_v1 backed by a database ping.
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	log      *zap.Logger
}

func NewHealthServer(pinger Pinger, interval time.Duration, logger *zap.Logger) *HealthServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthServer{server: srv, health: hs, pinger: pinger, interval: interval, log: logger}
}

// Check pings the database once and records the resulting status.
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	pingCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()
	if err := h.pinger.PingContext(pingCtx); err != nil {
		h.log.Warn("health ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch re-checks on every interval until ctx is done.
func (h *HealthServer) Watch(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

func (h *HealthServer) Serve(lis net.Listener) error {
	h.log.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
	return h.server.Serve(lis)
}

func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
