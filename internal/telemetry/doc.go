// Package telemetry implements the bus event hub.
//
// The hub fans out bus events (commands sent, telemetry read, faults) to SSE
// clients and keeps the last N events for reconnection via Last-Event-ID.
// Clients may subscribe to a single module with ?module=NAME.
package telemetry
