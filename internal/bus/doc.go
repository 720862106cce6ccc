// Package bus holds the bus definition: which Pumpkin MCU modules sit on the I2C
// bus, their addresses, and their telemetry and command tables.
//
// A Definition is loaded once at startup and never mutated afterwards; callers
// hold it by reference and pass it explicitly to whatever needs it.
package bus
