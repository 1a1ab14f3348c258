package probe

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the evaluation API.
// The empty name reports the server as a whole.
const ServiceName = "kofn.v1.Evaluator"

// Probe publishes the serving status of kofn-server over the standard
// grpc.health.v1 service. A new Probe reports NOT_SERVING until SetServing.
type Probe struct {
	health *health.Server
}

// New creates a Probe.
func New() *Probe {
	p := &Probe{health: health.NewServer()}
	p.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return p
}

// Register adds the health service to s.
func (p *Probe) Register(s grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(s, p.health)
}

// SetServing reports the server and the evaluation API as SERVING.
func (p *Probe) SetServing() {
	p.set(healthpb.HealthCheckResponse_SERVING)
	slog.Info("probe: serving")
}

// SetNotServing reports NOT_SERVING without ending Watch streams.
func (p *Probe) SetNotServing() {
	p.set(healthpb.HealthCheckResponse_NOT_SERVING)
	slog.Info("probe: not serving")
}

// Shutdown reports NOT_SERVING for every service and ignores later status
// changes. Call it first during graceful shutdown so load balancers drain.
func (p *Probe) Shutdown() {
	p.health.Shutdown()
	slog.Info("probe: shut down")
}

func (p *Probe) set(st healthpb.HealthCheckResponse_ServingStatus) {
	p.health.SetServingStatus("", st)
	p.health.SetServingStatus(ServiceName, st)
}
