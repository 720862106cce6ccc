package api

import (
	"context"
	"net/http"

	"github.com/RNCC-Cubesat/kubos/internal/adapter"
	"github.com/RNCC-Cubesat/kubos/internal/command"
	"github.com/RNCC-Cubesat/kubos/internal/telemetry"
)

// OrchestratorPort defines the interface the API needs from the orchestrator.
type OrchestratorPort interface {
	command.OrchestratorPort
}

// StatusPort reports the bus adapter state for the health endpoint.
type StatusPort interface {
	GetDriver() string
	GetStatus() string
}

// EventsPort defines the interface the API needs from the event hub.
type EventsPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// Compile-time assertions for port conformance
var _ OrchestratorPort = (*command.Orchestrator)(nil)
var _ StatusPort = (adapter.Describer)(nil)
var _ EventsPort = (*telemetry.Hub)(nil)
