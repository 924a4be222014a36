// Package grpcserver serves the gRPC health protocol for orchestrators that
// probe over gRPC instead of HTTP.
package grpcserver

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service reported alongside the overall ("") status.
const ServiceName = "staysane.booking"

// Health mirrors the readiness checks into a grpc health server.
type Health struct {
	Ready    func(ctx context.Context) error
	Interval time.Duration
	Logger   *slog.Logger

	server *health.Server
}

func NewHealth(ready func(ctx context.Context) error, interval time.Duration, logger *slog.Logger) *Health {
	h := &Health{Ready: ready, Interval: interval, Logger: logger, server: health.NewServer()}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewServer builds a grpc server with the health service registered.
func NewServer(h *Health, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, h.server)
	return srv
}

// Run refreshes the status until ctx is done, then reports NOT_SERVING for good.
func (h *Health) Run(ctx context.Context) {
	interval := h.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	h.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Refresh runs the readiness check once.
func (h *Health) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if h.Ready != nil {
		if err := h.Ready(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if h.Logger != nil && ctx.Err() == nil {
				h.Logger.Warn("grpc health not serving", "error", err)
			}
		}
	}
	h.set(status)
}

func (h *Health) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
