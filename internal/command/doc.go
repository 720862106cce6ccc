// Package command implements the command orchestrator for the pumpkin-mcu service.
//
// The orchestrator looks modules up in the bus definition, resolves telemetry
// fields and validates commands, calls the bus adapter under per-operation
// timeouts, publishes bus events to the event hub and writes audit records.
package command
