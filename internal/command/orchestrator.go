package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RNCC-Cubesat/kubos/internal/adapter"
	"github.com/RNCC-Cubesat/kubos/internal/bus"
	"github.com/RNCC-Cubesat/kubos/internal/config"
	"github.com/RNCC-Cubesat/kubos/internal/resolver"
	"github.com/RNCC-Cubesat/kubos/internal/telemetry"
)

// AuditLogger interface for writing audit records.
type AuditLogger interface {
	LogAction(ctx context.Context, action, module string, params map[string]interface{}, err error, latency time.Duration)
}

// EventPublisher receives bus events for subscribers. *telemetry.Hub implements it.
type EventPublisher interface {
	PublishModule(module, eventType string, data map[string]interface{})
}

// Options configure an Orchestrator.
type Options struct {
	Timing config.TimingConfig

	// ValidateCommands is used when SendCommand gets no explicit choice.
	ValidateCommands bool

	Audit  AuditLogger
	Events EventPublisher
	Logger *slog.Logger
}

// Orchestrator holds the bus definition and the bus adapter and runs every
// bus operation with its timeout, audit record and log line.
type Orchestrator struct {
	def      *bus.Definition
	bus      adapter.IBusAdapter
	resolver *resolver.Resolver
	timing   config.TimingConfig
	validate bool
	audit    AuditLogger
	events   EventPublisher
	logger   *slog.Logger
}

// Compile-time assertion that Orchestrator implements OrchestratorPort
var _ OrchestratorPort = (*Orchestrator)(nil)
var _ EventPublisher = (*telemetry.Hub)(nil)

// NewOrchestrator creates a new command orchestrator.
func NewOrchestrator(def *bus.Definition, busAdapter adapter.IBusAdapter, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		def:      def,
		bus:      busAdapter,
		resolver: resolver.New(busAdapter),
		timing:   opts.Timing,
		validate: opts.ValidateCommands,
		audit:    opts.Audit,
		events:   opts.Events,
		logger:   logger,
	}
}

// Modules returns the module discovery map.
func (o *Orchestrator) Modules() map[string]bus.ModuleSummary {
	return o.def.List()
}

// FieldList returns the normalized telemetry field names of a module,
// SupMCU fields first.
func (o *Orchestrator) FieldList(module string) ([]string, error) {
	mod, err := o.def.FindModule(module)
	if err != nil {
		return nil, err
	}
	return resolver.FieldNames(mod), nil
}

// CommandList returns the raw command names of a module.
func (o *Orchestrator) CommandList(module string) ([]string, error) {
	mod, err := o.def.FindModule(module)
	if err != nil {
		return nil, err
	}
	return mod.CommandNames(), nil
}

// Telemetry reads live telemetry. An empty field list reads every field.
// The telemetry timeout applies per field.
func (o *Orchestrator) Telemetry(ctx context.Context, module string, fields []string) (map[string][]interface{}, error) {
	start := time.Now()
	params := map[string]interface{}{"fields": fields}

	mod, err := o.def.FindModule(module)
	if err != nil {
		o.logAudit(ctx, "mcuTelemetry", module, params, err, time.Since(start))
		return nil, err
	}

	n := len(fields)
	if n == 0 {
		n = len(resolver.FieldNames(mod))
	}
	if n == 0 {
		n = 1
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(n)*o.timing.TelemetryTimeout)
	defer cancel()

	values, err := o.resolver.ResolveFields(ctx, mod, fields)
	latency := time.Since(start)
	err = normalizeTimeout(err)

	o.logAudit(ctx, "mcuTelemetry", mod.Name, params, err, latency)
	if err != nil {
		o.logger.Warn("telemetry failed", "module", mod.Name, "fields", fields, "error", err)
		o.publishFault(mod.Name, "mcuTelemetry", err)
		return nil, err
	}

	o.logger.Debug("telemetry read", "module", mod.Name, "fields", len(values), "latency", latency)
	o.publish(mod.Name, telemetry.EventTelemetry, map[string]interface{}{"values": values})
	return values, nil
}

// Read reads count raw bytes from a module.
func (o *Orchestrator) Read(ctx context.Context, module string, count int) ([]byte, error) {
	start := time.Now()
	params := map[string]interface{}{"count": count}

	mod, err := o.def.FindModule(module)
	if err != nil {
		o.logAudit(ctx, "read", module, params, err, time.Since(start))
		return nil, err
	}

	// Validate count
	if count <= 0 || count > adapter.MaxReadSize {
		err := fmt.Errorf("count %d is outside [1, %d]: %w", count, adapter.MaxReadSize, adapter.ErrInvalidRange)
		o.logAudit(ctx, "read", mod.Name, params, err, time.Since(start))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timing.ReadTimeout)
	defer cancel()

	data, err := o.bus.Read(ctx, mod.Address, count)
	latency := time.Since(start)
	err = normalizeTimeout(err)

	o.logAudit(ctx, "read", mod.Name, params, err, latency)
	if err != nil {
		o.logger.Warn("raw read failed", "module", mod.Name, "count", count, "error", err)
		o.publishFault(mod.Name, "read", err)
		return nil, err
	}
	return data, nil
}

// SendCommand sends a SCPI command to a module. A nil validate uses the
// configured default. A command that fails validation is never sent.
func (o *Orchestrator) SendCommand(ctx context.Context, module, command string, validate *bool) error {
	check := o.validate
	if validate != nil {
		check = *validate
	}
	return o.send(ctx, "sendCommand", module, command, check)
}

// Passthrough sends a command without validation.
func (o *Orchestrator) Passthrough(ctx context.Context, module, command string) error {
	return o.send(ctx, "passthrough", module, command, false)
}

func (o *Orchestrator) send(ctx context.Context, action, module, command string, validate bool) error {
	start := time.Now()
	params := map[string]interface{}{"command": command, "validate": validate}

	mod, err := o.def.FindModule(module)
	if err != nil {
		o.logAudit(ctx, action, module, params, err, time.Since(start))
		return err
	}

	if strings.TrimSpace(command) == "" {
		err := fmt.Errorf("command is required: %w", ErrInvalidParameter)
		o.logAudit(ctx, action, mod.Name, params, err, time.Since(start))
		return err
	}

	if validate {
		if err := resolver.ValidateCommand(command, mod.CommandNames()); err != nil {
			o.logAudit(ctx, action, mod.Name, params, err, time.Since(start))
			o.logger.Warn("command rejected", "module", mod.Name, "command", command)
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.timing.CommandTimeout)
	defer cancel()

	err = o.bus.SendCommand(ctx, mod.Address, command)
	latency := time.Since(start)
	err = normalizeTimeout(err)

	o.logAudit(ctx, action, mod.Name, params, err, latency)
	if err != nil {
		o.logger.Warn("command failed", "module", mod.Name, "command", command, "error", err)
		o.publishFault(mod.Name, action, err)
		return err
	}

	o.logger.Info("command sent", "module", mod.Name, "command", command, "latency", latency)
	o.publish(mod.Name, telemetry.EventCommand, map[string]interface{}{
		"action":  action,
		"command": command,
	})
	return nil
}

// normalizeTimeout maps an expired operation deadline to BUSY.
func normalizeTimeout(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) && adapter.Code(err) == nil {
		return adapter.NormalizeBusError(err, nil, "generic")
	}
	return err
}

// publish sends a bus event when an event publisher is configured.
func (o *Orchestrator) publish(module, eventType string, data map[string]interface{}) {
	if o.events == nil {
		return
	}
	data["module"] = module
	o.events.PublishModule(module, eventType, data)
}

// publishFault publishes bus failures. Rejected requests never reach the bus
// and are not published.
func (o *Orchestrator) publishFault(module, action string, err error) {
	code := adapter.Code(err)
	if code == nil {
		return
	}
	o.publish(module, telemetry.EventFault, map[string]interface{}{
		"action": action,
		"code":   code.Error(),
		"error":  err.Error(),
	})
}

// logAudit logs an audit record when an audit logger is configured.
func (o *Orchestrator) logAudit(ctx context.Context, action, module string, params map[string]interface{}, err error, latency time.Duration) {
	if o.audit == nil {
		return
	}
	o.audit.LogAction(ctx, action, module, params, err, latency)
}
