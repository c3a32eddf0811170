package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultHealthInterval = 15 * time.Second

// StoreHealth reports SERVING while the database answers pings.
type StoreHealth struct {
	server   *health.Server
	ping     func(ctx context.Context) error
	interval time.Duration
	logger   *zap.Logger
}

// NewStoreHealth registers a health service on registrar and returns its reporter.
func NewStoreHealth(registrar grpc.ServiceRegistrar, ping func(ctx context.Context) error, interval time.Duration, logger *zap.Logger) *StoreHealth {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := health.NewServer()
	healthpb.RegisterHealthServer(registrar, server)
	return &StoreHealth{server: server, ping: ping, interval: interval, logger: logger}
}

// Check pings the store once and publishes the result for the gifting service and the server.
func (storeHealth *StoreHealth) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingContext, cancel := context.WithTimeout(ctx, storeHealth.interval)
	defer cancel()
	servingStatus := healthpb.HealthCheckResponse_SERVING
	if err := storeHealth.ping(pingContext); err != nil {
		storeHealth.logger.Warn("store ping failed", zap.Error(err))
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	storeHealth.server.SetServingStatus("", servingStatus)
	storeHealth.server.SetServingStatus(ServiceName, servingStatus)
	return servingStatus
}

// Watch checks immediately and then on every interval until ctx ends, when it reports NOT_SERVING.
func (storeHealth *StoreHealth) Watch(ctx context.Context) {
	storeHealth.Check(ctx)
	ticker := time.NewTicker(storeHealth.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			storeHealth.server.Shutdown()
			return
		case <-ticker.C:
			storeHealth.Check(ctx)
		}
	}
}
