package i2c

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/RNCC-Cubesat/kubos/internal/adapter"
)

// DriverI2CDriver is the i2c_type of the Excamera I2CDriver USB bus master.
const DriverI2CDriver = "i2cdriver"

const (
	bridgeBaud    = 1000000
	bridgeTimeout = time.Second

	// bridgeChunk is the most bytes one read or write command moves.
	bridgeChunk = 64
)

// I2CDriver command bytes.
const (
	cmdEcho  = 'e'
	cmdStart = 's'
	cmdStop  = 'p'
	cmdIdle  = '@'
	cmdRead  = 0x80 // + count-1
	cmdWrite = 0xC0 // + count-1
)

// bridgeDevice drives an I2CDriver over its serial port. Every Read and
// Write is one START ... STOP transaction at the selected address.
type bridgeDevice struct {
	path    string
	port    io.ReadWriteCloser
	address uint16
}

// OpenI2CDriver opens an I2CDriver attached at path, e.g. /dev/ttyUSB0.
func OpenI2CDriver(path string, opts Options) (*Adapter, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: bridgeBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, adapter.NormalizeBusError(fmt.Errorf("open %s: %w", path, err), path, DriverI2CDriver)
	}
	if err := port.SetReadTimeout(bridgeTimeout); err != nil {
		port.Close()
		return nil, adapter.NormalizeBusError(fmt.Errorf("%s: set read timeout: %w", path, err), path, DriverI2CDriver)
	}

	dev, err := newBridgeDevice(path, port)
	if err != nil {
		port.Close()
		return nil, adapter.NormalizeBusError(err, path, DriverI2CDriver)
	}

	opts.Driver = DriverI2CDriver
	return New(dev, path, opts), nil
}

// newBridgeDevice takes the I2CDriver out of capture or monitor mode and
// checks the link with echo round trips.
func newBridgeDevice(path string, port io.ReadWriteCloser) (*bridgeDevice, error) {
	d := &bridgeDevice{path: path, port: port}

	// A pending write command swallows up to 64 bytes.
	if err := d.send(bytes.Repeat([]byte{cmdIdle}, bridgeChunk)); err != nil {
		return nil, err
	}
	if err := d.drain(); err != nil {
		return nil, err
	}

	for _, c := range []byte{0x55, 0x00, 0xFF, 0xAA} {
		if err := d.send([]byte{cmdEcho, c}); err != nil {
			return nil, err
		}
		reply := make([]byte, 1)
		if err := d.receive(reply); err != nil {
			return nil, err
		}
		if reply[0] != c {
			return nil, fmt.Errorf("%s: echo 0x%02X returned 0x%02X, no such device", path, c, reply[0])
		}
	}
	return d, nil
}

func (d *bridgeDevice) SetAddress(address uint16) error {
	d.address = address
	return nil
}

func (d *bridgeDevice) Write(p []byte) (int, error) {
	if err := d.start(0); err != nil {
		return 0, err
	}

	written := 0
	for written < len(p) {
		n := min(len(p)-written, bridgeChunk)
		frame := append([]byte{byte(cmdWrite + n - 1)}, p[written:written+n]...)
		if err := d.send(frame); err != nil {
			return written, err
		}
		if err := d.ack(); err != nil {
			_ = d.stop()
			return written, err
		}
		written += n
	}
	return written, d.stop()
}

func (d *bridgeDevice) Read(p []byte) (int, error) {
	if err := d.start(1); err != nil {
		return 0, err
	}

	read := 0
	for read < len(p) {
		n := min(len(p)-read, bridgeChunk)
		if err := d.send([]byte{byte(cmdRead + n - 1)}); err != nil {
			return read, err
		}
		if err := d.receive(p[read : read+n]); err != nil {
			return read, err
		}
		read += n
	}
	return read, d.stop()
}

func (d *bridgeDevice) Close() error {
	return d.port.Close()
}

// start issues START with the address and direction bit.
func (d *bridgeDevice) start(rw byte) error {
	if err := d.send([]byte{cmdStart, byte(d.address<<1) | rw}); err != nil {
		return err
	}
	if err := d.ack(); err != nil {
		_ = d.stop()
		return err
	}
	return nil
}

func (d *bridgeDevice) stop() error {
	return d.send([]byte{cmdStop})
}

// ack reads the status byte of the last START or write. Bit 0 is the ACK.
func (d *bridgeDevice) ack() error {
	status := make([]byte, 1)
	if err := d.receive(status); err != nil {
		return err
	}
	if status[0]&1 == 0 {
		return fmt.Errorf("%s: address 0x%02X: remote I/O error", d.path, d.address)
	}
	return nil
}

func (d *bridgeDevice) send(p []byte) error {
	if _, err := d.port.Write(p); err != nil {
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	return nil
}

// receive fills p. The port returns no data when its read timeout expires.
func (d *bridgeDevice) receive(p []byte) error {
	got := 0
	for got < len(p) {
		n, err := d.port.Read(p[got:])
		if err != nil {
			return fmt.Errorf("read %s: %w", d.path, err)
		}
		if n == 0 {
			return fmt.Errorf("read %s: connection timed out after %d of %d bytes", d.path, got, len(p))
		}
		got += n
	}
	return nil
}

// drain discards pending input until the port goes quiet.
func (d *bridgeDevice) drain() error {
	buf := make([]byte, bridgeChunk)
	for {
		n, err := d.port.Read(buf)
		if err != nil {
			return fmt.Errorf("read %s: %w", d.path, err)
		}
		if n == 0 {
			return nil
		}
	}
}
