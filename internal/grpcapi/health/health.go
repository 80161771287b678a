// Package health registers the standard gRPC health service
// (grpc.health.v1.Health) against a *grpc.Server, and lets the serving
// process flip the vault's overall status as its dependencies come up or
// go down.
package health

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Register installs the standard health server on grpcServer and returns
// it so callers can update serving status for the empty (overall) service
// name and any per-component names they care to report separately.
func Register(grpcServer *grpc.Server) *health.Server {
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return healthServer
}
