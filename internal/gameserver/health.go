package gameserver

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the game backend.
const ServiceName = "smuggle.GameServer"

// HealthServer serves the standard gRPC health protocol on the admin port.
type HealthServer struct {
	addr   string
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewHealthServer creates a HealthServer reporting SERVING for "" and ServiceName.
//
// Precondition: logger must be non-nil.
func NewHealthServer(addr string, logger *zap.Logger) *HealthServer {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{addr: addr, grpc: gs, health: hs, logger: logger}
}

// Serve serves on lis until Stop.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Start listens on the configured address and serves until Stop.
func (s *HealthServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Stop reports NOT_SERVING for every service and stops the server gracefully.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// SetServing flips the reported status of ServiceName.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}
