package adapter

import (
	"context"
	"sync"

	"github.com/RNCC-Cubesat/kubos/internal/bus"
	"github.com/RNCC-Cubesat/kubos/internal/supmcu"
)

// MaxReadSize bounds a raw Read.
const MaxReadSize = 1024

// Adapter states reported by GetStatus.
const (
	StatusOnline = "online"
	StatusClosed = "closed"
)

// IBusAdapter defines the southbound bus contract.
type IBusAdapter interface {
	// ReadValues requests one telemetry item from the module at address and
	// decodes the response. Channel is "SUP" or the module's command prefix.
	ReadValues(ctx context.Context, address uint16, channel string, item bus.TelemetryItem) ([]supmcu.Value, error)

	// SendCommand writes a SCPI command to the module at address.
	SendCommand(ctx context.Context, address uint16, command string) error

	// Read reads count raw bytes from the module at address.
	// Params: count (1-MaxReadSize)
	Read(ctx context.Context, address uint16, count int) ([]byte, error)

	// Close releases the bus. Later calls return UNAVAILABLE.
	Close() error
}

// Describer is implemented by adapters that report driver details.
type Describer interface {
	GetDriver() string
	GetDevice() string
	GetStatus() string
}

// AdapterBase provides common functionality for adapter implementations.
type AdapterBase struct {
	// Driver is the i2c_type the adapter implements, e.g. "kubos" or "fake".
	Driver string

	// Device is the bus device, e.g. "/dev/i2c-1".
	Device string

	mu     sync.RWMutex
	status string
}

// GetDriver returns the driver name.
func (a *AdapterBase) GetDriver() string {
	return a.Driver
}

// GetDevice returns the bus device.
func (a *AdapterBase) GetDevice() string {
	return a.Device
}

// GetStatus returns the adapter status, StatusOnline until SetStatus is called.
// It is safe to call while the adapter is in use.
func (a *AdapterBase) GetStatus() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.status == "" {
		return StatusOnline
	}
	return a.status
}

// SetStatus updates the adapter status.
func (a *AdapterBase) SetStatus(status string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
}
