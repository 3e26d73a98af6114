package handler

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHandler serves grpc.health.v1 for the whole process and for service.
type GRPCHandler struct {
	health  *health.Server
	service string
}

// NewGRPCHandler starts in NOT_SERVING until SetServing is called.
func NewGRPCHandler(service string) *GRPCHandler {
	h := &GRPCHandler{health: health.NewServer(), service: service}
	h.SetServing(false)
	return h
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

func (h *GRPCHandler) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(h.service, status)
}

// Shutdown reports NOT_SERVING to every watcher and ignores later updates.
func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
}
