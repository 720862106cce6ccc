package bus

import (
	"fmt"
	"strings"
)

// SupMCUChannel is the command prefix of the telemetry built into every SupMCU.
const SupMCUChannel = "SUP"

// TelemetryItem describes one telemetry request understood by a module.
type TelemetryItem struct {
	// Key is the internal key of the item in its definition table.
	Key string `yaml:"-" json:"-"`

	// Name is the human-readable label, e.g. "Firmware version".
	Name string `yaml:"name" json:"name"`

	// Index is the telemetry index passed in the TEL? request.
	Index int `yaml:"idx" json:"idx"`

	// Format is a SupMCU format string, one character per value.
	Format string `yaml:"format" json:"format"`

	// Length is the payload size in bytes. Zero means derive it from Format.
	Length int `yaml:"length,omitempty" json:"length,omitempty"`
}

// CommandSpec describes one SCPI command understood by a module.
type CommandSpec struct {
	Key  string `yaml:"-" json:"-"`
	Name string `yaml:"name" json:"name"`
}

// Module is a single SupMCU module on the bus.
type Module struct {
	// Name is the canonical, uppercase module name (e.g. "EPS").
	Name string `yaml:"name" json:"name"`

	// Address is the 7-bit I2C address.
	Address uint16 `yaml:"address" json:"address"`

	// CmdName is the SCPI prefix for module-specific commands. Defaults to Name.
	CmdName string `yaml:"cmd_name" json:"cmd_name"`

	SupMCUTelemetry TelemetryTable `yaml:"supmcu_telemetry" json:"supmcu_telemetry"`
	ModuleTelemetry TelemetryTable `yaml:"module_telemetry" json:"module_telemetry"`
	Commands        CommandTable   `yaml:"commands" json:"commands"`
}

// CommandNames returns the raw command names in definition order.
func (m *Module) CommandNames() []string {
	names := make([]string, 0, len(m.Commands))
	for _, cmd := range m.Commands {
		names = append(names, cmd.Name)
	}
	return names
}

// ModuleSummary is the discovery view of a module returned by moduleList.
type ModuleSummary struct {
	Address int `json:"address"`
}

// Definition is the loaded bus definition.
type Definition struct {
	Modules []Module `yaml:"modules" json:"modules"`
}

// FindModule returns the module with the given name from modules. The lookup is
// case-insensitive and the first match in definition order wins.
func FindModule(modules []Module, name string) (*Module, error) {
	want := strings.ToUpper(name)
	for i := range modules {
		if modules[i].Name == want {
			return &modules[i], nil
		}
	}
	return nil, &ModuleNotConfiguredError{Name: name}
}

// FindModule looks a module up in the definition.
func (d *Definition) FindModule(name string) (*Module, error) {
	if d == nil {
		return nil, &ModuleNotConfiguredError{Name: name}
	}
	return FindModule(d.Modules, name)
}

// List returns the module discovery map keyed by module name.
func (d *Definition) List() map[string]ModuleSummary {
	list := make(map[string]ModuleSummary)
	if d == nil {
		return list
	}
	for _, mod := range d.Modules {
		if _, seen := list[mod.Name]; seen {
			continue
		}
		list[mod.Name] = ModuleSummary{Address: int(mod.Address)}
	}
	return list
}

// Names returns module names in definition order.
func (d *Definition) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.Modules))
	for _, mod := range d.Modules {
		names = append(names, mod.Name)
	}
	return names
}

// canonicalize uppercases names and fills defaults. Called once by the loader.
func (d *Definition) canonicalize() error {
	for i := range d.Modules {
		mod := &d.Modules[i]

		mod.Name = strings.ToUpper(strings.TrimSpace(mod.Name))
		if mod.Name == "" {
			return fmt.Errorf("module %d: name is required", i)
		}

		if mod.Address == 0 || mod.Address > 0x7F {
			return fmt.Errorf("module %s: address 0x%02X is not a 7-bit I2C address", mod.Name, mod.Address)
		}

		if mod.CmdName == "" {
			mod.CmdName = mod.Name
		}

		for _, item := range append(append(TelemetryTable{}, mod.SupMCUTelemetry...), mod.ModuleTelemetry...) {
			if item.Name == "" {
				return fmt.Errorf("module %s: telemetry item %q has no name", mod.Name, item.Key)
			}
			if item.Format == "" {
				return fmt.Errorf("module %s: telemetry item %q has no format", mod.Name, item.Name)
			}
		}
	}
	return nil
}
