package command

import (
	"context"
	"errors"

	"github.com/RNCC-Cubesat/kubos/internal/bus"
)

// OrchestratorPort defines the interface the API needs from the orchestrator.
type OrchestratorPort interface {
	Modules() map[string]bus.ModuleSummary
	FieldList(module string) ([]string, error)
	CommandList(module string) ([]string, error)
	Telemetry(ctx context.Context, module string, fields []string) (map[string][]interface{}, error)
	Read(ctx context.Context, module string, count int) ([]byte, error)
	SendCommand(ctx context.Context, module, command string, validate *bool) error
	Passthrough(ctx context.Context, module, command string) error
}

// ErrInvalidParameter indicates a required parameter is missing or structurally invalid.
var ErrInvalidParameter = errors.New("BAD_REQUEST")
