package adapter

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized bus errors.
var (
	ErrInvalidRange = errors.New("INVALID_RANGE")
	ErrBusy         = errors.New("BUSY")
	ErrUnavailable  = errors.New("UNAVAILABLE")
	ErrInternal     = errors.New("INTERNAL")
)

// DriverMap defines the error token mapping for a specific driver.
type DriverMap struct {
	Range       []string // Tokens that map to INVALID_RANGE
	Busy        []string // Tokens that map to BUSY
	Unavailable []string // Tokens that map to UNAVAILABLE
}

// DriverErrorMappings contains the deterministic error mapping tables for all drivers.
//
// Categories are checked in order Range, Busy, Unavailable; the first token
// contained in the upper-cased error message decides. Unknown messages map to
// INTERNAL. Drivers without an entry use "generic".
//
// The kubos tokens are the Linux i2c-dev errno strings:
//   - EINVAL "invalid argument", ERANGE "result out of range"
//   - EBUSY, EAGAIN, ETIMEDOUT and the SupMCU not-ready header
//   - ENXIO/ENODEV, ENOENT (missing /dev/i2c-N), EREMOTEIO (address NAK), EACCES
//
// The i2cdriver tokens cover the serial port errors of go.bug.st/serial and
// the bridge's own NAK and read-timeout messages.
var DriverErrorMappings = map[string]DriverMap{
	"kubos": {
		Range: []string{
			"INVALID_RANGE",
			"INVALID ARGUMENT",
			"OUT OF RANGE",
			"INVALID_FORMAT",
		},
		Busy: []string{
			"TELEMETRY_NOT_READY",
			"DEVICE OR RESOURCE BUSY",
			"RESOURCE TEMPORARILY UNAVAILABLE",
			"CONNECTION TIMED OUT",
			"DEADLINE EXCEEDED",
			"BUSY",
		},
		Unavailable: []string{
			"NO SUCH DEVICE",
			"NO SUCH FILE OR DIRECTORY",
			"REMOTE I/O ERROR",
			"PERMISSION DENIED",
			"BAD FILE DESCRIPTOR",
			"ADAPTER CLOSED",
			"UNAVAILABLE",
		},
	},
	"i2cdriver": {
		Range: []string{
			"INVALID_RANGE",
			"INVALID_FORMAT",
		},
		Busy: []string{
			"TELEMETRY_NOT_READY",
			"TIMED OUT",
			"DEADLINE EXCEEDED",
		},
		Unavailable: []string{
			"REMOTE I/O ERROR",
			"NO SUCH DEVICE",
			"SERIAL PORT NOT FOUND",
			"SERIAL PORT BUSY",
			"INVALID SERIAL PORT",
			"PERMISSION DENIED",
			"NO SUCH FILE OR DIRECTORY",
			"ADAPTER CLOSED",
			"UNAVAILABLE",
		},
	},
	"fake": {
		Range: []string{
			"INVALID_RANGE",
			"INVALID_FORMAT",
		},
		Busy: []string{
			"TELEMETRY_NOT_READY",
			"DEADLINE EXCEEDED",
			"BUSY",
		},
		Unavailable: []string{
			"NO SUCH DEVICE",
			"ADAPTER CLOSED",
			"UNAVAILABLE",
		},
	},
	"generic": {
		Range: []string{
			"OUT_OF_RANGE",
			"INVALID_PARAMETER",
			"INVALID_RANGE",
			"BAD_VALUE",
			"RANGE_ERROR",
		},
		Busy: []string{
			"NOT_READY",
			"BUSY",
			"RETRY",
			"TIMEOUT",
			"DEADLINE EXCEEDED",
		},
		Unavailable: []string{
			"UNAVAILABLE",
			"OFFLINE",
			"NO SUCH DEVICE",
			"CLOSED",
		},
	},
}

// BusError wraps a driver error with diagnostic details.
type BusError struct {
	Code     error       // Normalized code
	Original error       // Driver error
	Details  interface{} // Driver payload (opaque)
}

func (e *BusError) Error() string {
	return fmt.Sprintf("%v (driver: %v)", e.Code, e.Original)
}

func (e *BusError) Unwrap() error {
	return e.Code
}

// NormalizeBusError maps a driver error to a normalized code using the
// driver's mapping table. Errors that are already normalized are returned as is.
func NormalizeBusError(driverErr error, payload interface{}, driver string) error {
	if driverErr == nil {
		return nil
	}

	var busErr *BusError
	if errors.As(driverErr, &busErr) {
		return driverErr
	}

	return &BusError{
		Code:     mapDriverErrorToCode(driverErr.Error(), driver),
		Original: driverErr,
		Details:  payload,
	}
}

// mapDriverErrorToCode maps a driver error message to a normalized error code.
func mapDriverErrorToCode(msg string, driver string) error {
	driverMap, exists := DriverErrorMappings[driver]
	if !exists {
		driverMap = DriverErrorMappings["generic"]
	}

	upperMsg := strings.ToUpper(msg)

	for _, token := range driverMap.Range {
		if strings.Contains(upperMsg, strings.ToUpper(token)) {
			return ErrInvalidRange
		}
	}

	for _, token := range driverMap.Busy {
		if strings.Contains(upperMsg, strings.ToUpper(token)) {
			return ErrBusy
		}
	}

	for _, token := range driverMap.Unavailable {
		if strings.Contains(upperMsg, strings.ToUpper(token)) {
			return ErrUnavailable
		}
	}

	return ErrInternal
}

// Code returns the normalized code of err, or nil if err is not a bus error.
func Code(err error) error {
	for _, code := range []error{ErrInvalidRange, ErrBusy, ErrUnavailable, ErrInternal} {
		if errors.Is(err, code) {
			return code
		}
	}
	return nil
}
