package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// HealthServer publishes database readiness over the standard gRPC health protocol.
type HealthServer struct {
	health    *health.Server
	readiness readinessChecker
	log       *zap.Logger
}

// NewHealthServer creates the gRPC health wrapper. Both services start as NOT_SERVING.
func NewHealthServer(r readinessChecker, log *zap.Logger) *HealthServer {
	if log == nil {
		log = zap.NewNop()
	}
	hs := &HealthServer{health: health.NewServer(), readiness: r, log: log}
	hs.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Register attaches the health service to srv.
func (s *HealthServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Refresh evaluates readiness once and reports whether the instance is serving.
func (s *HealthServer) Refresh(ctx context.Context) bool {
	if s.readiness != nil {
		if err := s.readiness.Check(ctx); err != nil {
			s.log.Warn("grpc readiness check failed", zap.Error(err))
			s.set(healthpb.HealthCheckResponse_NOT_SERVING)
			return false
		}
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run refreshes readiness every interval until ctx is done, then marks the server as shutting down.
func (s *HealthServer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
}
