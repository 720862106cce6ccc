package resolver

import (
	"errors"
	"fmt"
)

var (
	// ErrFieldNotFound indicates a field name matched neither telemetry namespace.
	ErrFieldNotFound = errors.New("FIELD_NOT_FOUND")

	// ErrUnknownCommand indicates a command did not match the module's command table.
	ErrUnknownCommand = errors.New("UNKNOWN_COMMAND")
)

// FieldNotFoundError carries the module and the offending field name.
type FieldNotFoundError struct {
	Module string
	Field  string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field not found: %s (module %s)", e.Field, e.Module)
}

func (e *FieldNotFoundError) Unwrap() error {
	return ErrFieldNotFound
}

// UnknownCommandError carries the raw command string that failed validation.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command: %q", e.Command)
}

func (e *UnknownCommandError) Unwrap() error {
	return ErrUnknownCommand
}
