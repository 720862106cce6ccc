package supmcu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// HeaderSize is the ready flag plus a little-endian uint32 tick.
	HeaderSize = 5

	// FooterSize is the trailing checksum block; its content is not checked.
	FooterSize = 8

	// DefaultStringLength is the payload reserved for an S value when the
	// telemetry item does not declare its own length.
	DefaultStringLength = 128
)

// ErrNotReady indicates the module had not finished preparing the telemetry.
var ErrNotReady = errors.New("TELEMETRY_NOT_READY")

// Frame is a decoded telemetry response.
type Frame struct {
	Ready   bool
	Tick    uint32
	Payload []byte
}

// CommandFrame returns the bytes written to the bus for a command.
func CommandFrame(command string) []byte {
	if strings.HasSuffix(command, "\n") {
		return []byte(command)
	}
	return []byte(command + "\n")
}

// TelemetryRequest returns the SCPI telemetry query for an item on a channel,
// e.g. "SUP:TEL? 0" or "BM2:TEL? 12".
func TelemetryRequest(channel string, index int) string {
	return fmt.Sprintf("%s:TEL? %d", channel, index)
}

// ResponseSize is the number of bytes to read back for a telemetry request.
func ResponseSize(format string, length int) (int, error) {
	payload, err := PayloadSize(format, length)
	if err != nil {
		return 0, err
	}
	return HeaderSize + payload + FooterSize, nil
}

// ParseFrame splits a raw response into header fields and payload.
func ParseFrame(raw []byte, payloadSize int) (Frame, error) {
	want := HeaderSize + payloadSize + FooterSize
	if len(raw) < want {
		return Frame{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShortPayload, len(raw), want)
	}

	frame := Frame{
		Ready:   raw[0] == 1,
		Tick:    binary.LittleEndian.Uint32(raw[1:HeaderSize]),
		Payload: raw[HeaderSize : HeaderSize+payloadSize],
	}
	if !frame.Ready {
		return frame, ErrNotReady
	}
	return frame, nil
}

// EncodeFrame builds a ready response frame around payload. Used by simulators.
func EncodeFrame(tick uint32, payload []byte) []byte {
	raw := make([]byte, HeaderSize+len(payload)+FooterSize)
	raw[0] = 1
	binary.LittleEndian.PutUint32(raw[1:HeaderSize], tick)
	copy(raw[HeaderSize:], payload)
	return raw
}
