package supmcu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidFormat indicates an unknown format character.
	ErrInvalidFormat = errors.New("INVALID_FORMAT")

	// ErrShortPayload indicates fewer bytes than the format needs.
	ErrShortPayload = errors.New("SHORT_PAYLOAD")
)

// Value is one decoded telemetry value.
type Value struct {
	Format byte        `json:"format"`
	Value  interface{} `json:"value"`
}

// fixed sizes per format character; S is variable.
var formatSizes = map[byte]int{
	'u': 1, 't': 1, 'c': 1, 'x': 1,
	's': 2, 'n': 2, 'X': 2,
	'i': 4, 'd': 4, 'f': 4, 'z': 4,
	'l': 8, 'k': 8, 'F': 8, 'Z': 8,
}

// PayloadSize returns the payload size for a format. A non-zero length wins.
func PayloadSize(format string, length int) (int, error) {
	if length > 0 {
		if err := checkFormat(format); err != nil {
			return 0, err
		}
		return length, nil
	}

	size := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == 'S' {
			size += DefaultStringLength
			continue
		}
		n, ok := formatSizes[c]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, c)
		}
		size += n
	}
	return size, nil
}

func checkFormat(format string) error {
	for i := 0; i < len(format); i++ {
		if _, ok := formatSizes[format[i]]; !ok && format[i] != 'S' {
			return fmt.Errorf("%w: %q", ErrInvalidFormat, format[i])
		}
	}
	return nil
}

// Decode reads one value per format character from a little-endian payload.
func Decode(format string, payload []byte) ([]Value, error) {
	values := make([]Value, 0, len(format))
	off := 0

	for i := 0; i < len(format); i++ {
		c := format[i]

		if c == 'S' {
			rest := payload[off:]
			end := bytes.IndexByte(rest, 0)
			if end < 0 {
				values = append(values, Value{Format: c, Value: string(rest)})
				off = len(payload)
				continue
			}
			values = append(values, Value{Format: c, Value: string(rest[:end])})
			off += end + 1
			continue
		}

		n, ok := formatSizes[c]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, c)
		}
		if off+n > len(payload) {
			return nil, fmt.Errorf("%w: format %q needs %d bytes at offset %d, have %d",
				ErrShortPayload, format, n, off, len(payload))
		}

		b := payload[off : off+n]
		off += n
		values = append(values, Value{Format: c, Value: decodeFixed(c, b)})
	}

	return values, nil
}

func decodeFixed(c byte, b []byte) interface{} {
	le := binary.LittleEndian
	switch c {
	case 'u':
		return b[0]
	case 't':
		return int8(b[0])
	case 'c':
		return string(rune(b[0]))
	case 's':
		return le.Uint16(b)
	case 'n':
		return int16(le.Uint16(b))
	case 'i':
		return le.Uint32(b)
	case 'd':
		return int32(le.Uint32(b))
	case 'l':
		return le.Uint64(b)
	case 'k':
		return int64(le.Uint64(b))
	case 'f':
		return math.Float32frombits(le.Uint32(b))
	case 'F':
		return math.Float64frombits(le.Uint64(b))
	case 'x':
		return fmt.Sprintf("0x%02X", b[0])
	case 'X':
		return fmt.Sprintf("0x%04X", le.Uint16(b))
	case 'z':
		return fmt.Sprintf("0x%08X", le.Uint32(b))
	case 'Z':
		return fmt.Sprintf("0x%016X", le.Uint64(b))
	}
	return nil
}

// JSONValue returns v in a form encoding/json accepts. NaN and infinite
// floats, which sensors report when disconnected, become "NaN", "Infinity"
// and "-Infinity".
func JSONValue(v interface{}) interface{} {
	var f float64
	switch n := v.(type) {
	case float32:
		f = float64(n)
	case float64:
		f = n
	default:
		return v
	}
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return v
}

// Encode is the inverse of Decode. Numbers may be any Go integer or float
// type; hex formats also take "0x.." strings. The payload is zero-padded to
// length when length is larger than the encoded size.
func Encode(format string, values []interface{}, length int) ([]byte, error) {
	if len(values) != len(format) {
		return nil, fmt.Errorf("format %q needs %d values, got %d", format, len(format), len(values))
	}

	var buf bytes.Buffer
	le := binary.LittleEndian

	for i := 0; i < len(format); i++ {
		c := format[i]
		v := values[i]

		switch c {
		case 'S':
			buf.WriteString(fmt.Sprint(v))
			buf.WriteByte(0)
			continue
		case 'c':
			s := fmt.Sprint(v)
			if s == "" {
				buf.WriteByte(0)
			} else {
				buf.WriteByte(s[0])
			}
			continue
		case 'f':
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			buf.Write(le.AppendUint32(nil, math.Float32bits(float32(f))))
			continue
		case 'F':
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			buf.Write(le.AppendUint64(nil, math.Float64bits(f)))
			continue
		}

		n, ok := formatSizes[c]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, c)
		}
		u, err := toUint(v)
		if err != nil {
			return nil, fmt.Errorf("value %d (%v): %w", i, v, err)
		}
		b := le.AppendUint64(nil, u)
		buf.Write(b[:n])
	}

	out := buf.Bytes()
	if length > len(out) {
		out = append(out, make([]byte, length-len(out))...)
	}
	return out, nil
}

func toUint(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case int:
		return uint64(n), nil
	case int8:
		return uint64(n), nil
	case int16:
		return uint64(n), nil
	case int32:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case float64:
		return uint64(int64(n)), nil
	case string:
		return strconv.ParseUint(strings.TrimPrefix(strings.ToLower(n), "0x"), 16, 64)
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("unsupported float value type %T", v)
}
