// Package fake provides an in-memory SupMCU bus built from a bus definition.
//
// Every module of the definition answers telemetry requests and commands. Each
// request a module handles, command or telemetry, increments its
// "SCPI Cmds Processed" counter, the same as the module firmware does.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/RNCC-Cubesat/kubos/internal/adapter"
	"github.com/RNCC-Cubesat/kubos/internal/bus"
	"github.com/RNCC-Cubesat/kubos/internal/naming"
	"github.com/RNCC-Cubesat/kubos/internal/supmcu"
)

// Driver is the i2c_type served by this adapter.
const Driver = "fake"

// CounterField is the normalized name of the SupMCU command counter.
const CounterField = "scpi_cmds_processed"

type valueKey struct {
	address uint16
	channel string
	index   int
}

// FakeAdapter implements IBusAdapter for tests and for running without hardware.
type FakeAdapter struct {
	adapter.AdapterBase

	mu sync.Mutex

	modules   map[uint16]*bus.Module
	values    map[valueKey][]interface{}
	raw       map[uint16][]byte
	sent      map[uint16][]string
	processed map[uint16]uint64
	tick      uint32

	// Error simulation
	simulateErrors bool
	errorType      string

	readCalls    int
	commandCalls int
}

// NewFakeAdapter creates a fake bus holding every module of def.
func NewFakeAdapter(def *bus.Definition) *FakeAdapter {
	f := &FakeAdapter{
		AdapterBase: adapter.AdapterBase{
			Driver: Driver,
			Device: "memory",
		},
		modules:   make(map[uint16]*bus.Module),
		values:    make(map[valueKey][]interface{}),
		raw:       make(map[uint16][]byte),
		sent:      make(map[uint16][]string),
		processed: make(map[uint16]uint64),
	}

	if def != nil {
		for i := range def.Modules {
			mod := &def.Modules[i]
			if _, exists := f.modules[mod.Address]; !exists {
				f.modules[mod.Address] = mod
			}
		}
	}

	return f
}

// ReadValues answers a telemetry request from the module at address.
func (f *FakeAdapter) ReadValues(ctx context.Context, address uint16, channel string, item bus.TelemetryItem) ([]supmcu.Value, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	f.readCalls++

	mod, err := f.module(address)
	if err != nil {
		return nil, err
	}
	f.processed[address]++

	known, isCounter := f.lookup(mod, channel, item.Index)
	if !known {
		return nil, f.normalize(fmt.Errorf("INVALID_RANGE: no telemetry %s:TEL? %d on %s", channel, item.Index, mod.Name), item)
	}

	values, preset := f.values[valueKey{address, channel, item.Index}]
	switch {
	case preset:
	case isCounter:
		values = counterValues(item.Format, f.processed[address])
	default:
		values = defaultValues(mod, item.Format)
	}

	// Run the values through the wire codec like a real response.
	size, err := supmcu.PayloadSize(item.Format, item.Length)
	if err != nil {
		return nil, f.normalize(err, item)
	}
	payload, err := supmcu.Encode(item.Format, values, size)
	if err != nil {
		return nil, f.normalize(err, item)
	}
	if len(payload) > size {
		payload = payload[:size]
	}
	f.tick++
	frame, err := supmcu.ParseFrame(supmcu.EncodeFrame(f.tick, payload), size)
	if err != nil {
		return nil, f.normalize(err, item)
	}
	decoded, err := supmcu.Decode(item.Format, frame.Payload)
	if err != nil {
		return nil, f.normalize(err, item)
	}
	return decoded, nil
}

// SendCommand records a command sent to the module at address.
func (f *FakeAdapter) SendCommand(ctx context.Context, address uint16, command string) error {
	if err := f.begin(ctx); err != nil {
		return err
	}
	defer f.mu.Unlock()

	f.commandCalls++

	if _, err := f.module(address); err != nil {
		return err
	}
	f.processed[address]++
	f.sent[address] = append(f.sent[address], strings.TrimRight(command, "\n"))
	return nil
}

// Read returns count raw bytes from the module's preset data, zero padded.
func (f *FakeAdapter) Read(ctx context.Context, address uint16, count int) ([]byte, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	if count <= 0 || count > adapter.MaxReadSize {
		return nil, f.normalize(fmt.Errorf("INVALID_RANGE: read count %d is outside valid range [1, %d]", count, adapter.MaxReadSize), count)
	}
	if _, err := f.module(address); err != nil {
		return nil, err
	}

	out := make([]byte, count)
	copy(out, f.raw[address])
	return out, nil
}

// Close marks the adapter closed.
func (f *FakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetStatus(adapter.StatusClosed)
	return nil
}

// begin checks the context and the simulation state and locks the adapter.
// The caller unlocks on success.
func (f *FakeAdapter) begin(ctx context.Context) error {
	// Check for context cancellation
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	f.mu.Lock()

	if f.GetStatus() == adapter.StatusClosed {
		f.mu.Unlock()
		return f.normalize(fmt.Errorf("adapter closed"), nil)
	}
	if f.simulateErrors {
		err := f.getSimulatedError()
		f.mu.Unlock()
		return f.normalize(err, nil)
	}
	return nil
}

func (f *FakeAdapter) module(address uint16) (*bus.Module, error) {
	mod, ok := f.modules[address]
	if !ok {
		return nil, f.normalize(fmt.Errorf("no such device or address: 0x%02X", address), nil)
	}
	return mod, nil
}

// lookup reports whether the module defines telemetry index on channel and
// whether that item is the command counter.
func (f *FakeAdapter) lookup(mod *bus.Module, channel string, index int) (known, counter bool) {
	var table bus.TelemetryTable
	switch channel {
	case bus.SupMCUChannel:
		table = mod.SupMCUTelemetry
	case mod.CmdName:
		table = mod.ModuleTelemetry
	default:
		return false, false
	}

	for _, item := range table {
		if item.Index != index {
			continue
		}
		known = true
		if channel == bus.SupMCUChannel && naming.Normalize(item.Name) == CounterField {
			counter = true
		}
	}
	return known, counter
}

func (f *FakeAdapter) normalize(err error, payload interface{}) error {
	return adapter.NormalizeBusError(err, payload, Driver)
}

func counterValues(format string, count uint64) []interface{} {
	values := make([]interface{}, len(format))
	for i := range values {
		values[i] = count
	}
	return values
}

func defaultValues(mod *bus.Module, format string) []interface{} {
	values := make([]interface{}, len(format))
	for i := 0; i < len(format); i++ {
		switch format[i] {
		case 'S':
			values[i] = mod.Name + " fake"
		case 'c':
			values[i] = "F"
		case 'f', 'F':
			values[i] = 0.0
		default:
			values[i] = 0
		}
	}
	return values
}

// Helper methods for testing

// SetValues presets the values returned for a telemetry item.
func (f *FakeAdapter) SetValues(address uint16, channel string, index int, values ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[valueKey{address, channel, index}] = values
}

// SetRawData presets the bytes returned by Read.
func (f *FakeAdapter) SetRawData(address uint16, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw[address] = append([]byte(nil), data...)
}

// SentCommands returns the commands received by the module at address.
func (f *FakeAdapter) SentCommands(address uint16) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[address]...)
}

// Processed returns the command counter of the module at address.
func (f *FakeAdapter) Processed(address uint16) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[address]
}

// CallCounts returns the number of ReadValues and SendCommand calls.
func (f *FakeAdapter) CallCounts() (reads, commands int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls, f.commandCalls
}

// SetErrorSimulation enables error simulation for testing.
func (f *FakeAdapter) SetErrorSimulation(errorType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = true
	f.errorType = errorType
}

// DisableErrorSimulation disables error simulation.
func (f *FakeAdapter) DisableErrorSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = false
	f.errorType = ""
}

// getSimulatedError returns a simulated error based on the configured error type.
func (f *FakeAdapter) getSimulatedError() error {
	switch f.errorType {
	case "INVALID_RANGE":
		return fmt.Errorf("INVALID_RANGE: simulated range error")
	case "BUSY":
		return fmt.Errorf("BUSY: simulated busy error")
	case "UNAVAILABLE":
		return fmt.Errorf("UNAVAILABLE: simulated unavailable error")
	case "INTERNAL":
		return fmt.Errorf("INTERNAL: simulated internal error")
	default:
		return fmt.Errorf("INTERNAL: unknown simulated error")
	}
}
