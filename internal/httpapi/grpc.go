package httpapi

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer exposes the standard gRPC health service on a side listener so
// orchestrators can probe the service without HTTP.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
}

func NewGRPCServer() *GRPCServer {
	srv := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	return &GRPCServer{srv: srv, health: h}
}

// SetServing flips the reported health status for the whole service.
func (g *GRPCServer) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
}

func (g *GRPCServer) Serve(lis net.Listener) error { return g.srv.Serve(lis) }

func (g *GRPCServer) Stop() { g.srv.GracefulStop() }
