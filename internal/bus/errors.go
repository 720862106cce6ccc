package bus

import (
	"errors"
	"fmt"
)

// ErrModuleNotConfigured indicates the requested module is not in the bus definition.
var ErrModuleNotConfigured = errors.New("MODULE_NOT_CONFIGURED")

// ModuleNotConfiguredError carries the module name that could not be found.
type ModuleNotConfiguredError struct {
	Name string
}

func (e *ModuleNotConfiguredError) Error() string {
	return fmt.Sprintf("module not configured: %s", e.Name)
}

func (e *ModuleNotConfiguredError) Unwrap() error {
	return ErrModuleNotConfigured
}
