package i2c

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RNCC-Cubesat/kubos/internal/adapter"
	"github.com/RNCC-Cubesat/kubos/internal/bus"
	"github.com/RNCC-Cubesat/kubos/internal/supmcu"
)

// Driver is the i2c_type served by this adapter.
const Driver = "kubos"

// DefaultTelemetryDelay is the time a SupMCU needs to prepare a telemetry response.
const DefaultTelemetryDelay = 200 * time.Millisecond

// Device is one open I2C bus.
type Device interface {
	// SetAddress selects the target for the following reads and writes.
	SetAddress(address uint16) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Options configure an Adapter.
type Options struct {
	// Driver names the bus master for errors and /health. Defaults to Driver.
	Driver string

	// TelemetryDelay is the wait between a TEL? request and reading the response.
	TelemetryDelay time.Duration
}

// Adapter talks the SupMCU protocol over a Device. Each request and its
// response run under one lock so transactions never interleave on the bus.
type Adapter struct {
	adapter.AdapterBase

	mu     sync.Mutex
	dev    Device
	delay  time.Duration
	closed bool
}

// New creates an adapter over an open device.
func New(dev Device, device string, opts Options) *Adapter {
	driver := opts.Driver
	if driver == "" {
		driver = Driver
	}
	return &Adapter{
		AdapterBase: adapter.AdapterBase{
			Driver: driver,
			Device: device,
		},
		dev:   dev,
		delay: opts.TelemetryDelay,
	}
}

// Open opens /dev/i2c-<port>.
func Open(port int, opts Options) (*Adapter, error) {
	path := fmt.Sprintf("/dev/i2c-%d", port)
	dev, err := openDevice(path)
	if err != nil {
		return nil, adapter.NormalizeBusError(err, path, Driver)
	}
	return New(dev, path, opts), nil
}

// ReadValues sends a TEL? request, waits for the module and decodes the response.
func (a *Adapter) ReadValues(ctx context.Context, address uint16, channel string, item bus.TelemetryItem) ([]supmcu.Value, error) {
	respSize, err := supmcu.ResponseSize(item.Format, item.Length)
	if err != nil {
		return nil, a.normalize(err, item)
	}

	if err := a.lock(ctx); err != nil {
		return nil, err
	}
	defer a.mu.Unlock()

	request := supmcu.TelemetryRequest(channel, item.Index)
	if err := a.write(address, supmcu.CommandFrame(request)); err != nil {
		return nil, a.normalize(err, request)
	}

	if err := a.wait(ctx); err != nil {
		return nil, err
	}

	raw := make([]byte, respSize)
	if err := a.read(raw); err != nil {
		return nil, a.normalize(err, request)
	}

	frame, err := supmcu.ParseFrame(raw, respSize-supmcu.HeaderSize-supmcu.FooterSize)
	if err != nil {
		return nil, a.normalize(fmt.Errorf("%s: %w", request, err), request)
	}

	values, err := supmcu.Decode(item.Format, frame.Payload)
	if err != nil {
		return nil, a.normalize(fmt.Errorf("%s: %w", request, err), request)
	}
	return values, nil
}

// SendCommand writes a newline-terminated command.
func (a *Adapter) SendCommand(ctx context.Context, address uint16, command string) error {
	if err := a.lock(ctx); err != nil {
		return err
	}
	defer a.mu.Unlock()

	if err := a.write(address, supmcu.CommandFrame(command)); err != nil {
		return a.normalize(err, command)
	}
	return nil
}

// Read reads count raw bytes.
func (a *Adapter) Read(ctx context.Context, address uint16, count int) ([]byte, error) {
	if count <= 0 || count > adapter.MaxReadSize {
		return nil, a.normalize(fmt.Errorf("INVALID_RANGE: read count %d is outside valid range [1, %d]", count, adapter.MaxReadSize), count)
	}

	if err := a.lock(ctx); err != nil {
		return nil, err
	}
	defer a.mu.Unlock()

	if err := a.dev.SetAddress(address); err != nil {
		return nil, a.normalize(err, address)
	}
	buf := make([]byte, count)
	if err := a.read(buf); err != nil {
		return nil, a.normalize(err, address)
	}
	return buf, nil
}

// Close closes the device. Closing twice is a no-op.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	a.SetStatus(adapter.StatusClosed)
	if err := a.dev.Close(); err != nil {
		return a.normalize(err, nil)
	}
	return nil
}

// lock takes the bus lock unless ctx is done or the adapter is closed.
// The caller unlocks on success.
func (a *Adapter) lock(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return a.normalize(fmt.Errorf("adapter closed"), nil)
	}
	return nil
}

func (a *Adapter) wait(ctx context.Context) error {
	if a.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(a.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *Adapter) write(address uint16, data []byte) error {
	if err := a.dev.SetAddress(address); err != nil {
		return err
	}
	n, err := a.dev.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	return nil
}

func (a *Adapter) read(buf []byte) error {
	n, err := a.dev.Read(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("%w: read %d of %d bytes", supmcu.ErrShortPayload, n, len(buf))
	}
	return nil
}

func (a *Adapter) normalize(err error, payload interface{}) error {
	return adapter.NormalizeBusError(err, payload, a.Driver)
}
