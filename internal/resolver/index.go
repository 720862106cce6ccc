package resolver

import (
	"fmt"

	"github.com/RNCC-Cubesat/kubos/internal/bus"
	"github.com/RNCC-Cubesat/kubos/internal/naming"
)

// Source identifies the telemetry namespace a field belongs to.
type Source int

const (
	// SourceSupMCU is the telemetry built into every SupMCU firmware.
	SourceSupMCU Source = iota
	// SourceModule is the module-specific telemetry.
	SourceModule
)

func (s Source) String() string {
	switch s {
	case SourceSupMCU:
		return "supmcu"
	case SourceModule:
		return "module"
	}
	return "unknown"
}

// Field is a resolved telemetry field.
type Field struct {
	Name   string
	Source Source
	Item   bus.TelemetryItem
}

// Channel returns the SCPI prefix used to request the field from mod.
func (f Field) Channel(mod *bus.Module) string {
	if f.Source == SourceSupMCU {
		return bus.SupMCUChannel
	}
	return mod.CmdName
}

func (f Field) String() string {
	return fmt.Sprintf("%s(%s:%d)", f.Name, f.Source, f.Item.Index)
}

// Index maps normalized field names of one module to their telemetry items.
type Index struct {
	supmcu map[string]bus.TelemetryItem
	module map[string]bus.TelemetryItem
	names  []string
}

// NewIndex builds the field index of a module. Within one table the last item
// with a given normalized name wins. Names are kept in first-appearance order,
// SupMCU names first.
func NewIndex(mod *bus.Module) *Index {
	idx := &Index{
		supmcu: make(map[string]bus.TelemetryItem, len(mod.SupMCUTelemetry)),
		module: make(map[string]bus.TelemetryItem, len(mod.ModuleTelemetry)),
	}
	seen := make(map[string]bool)

	add := func(table map[string]bus.TelemetryItem, items bus.TelemetryTable) {
		for _, item := range items {
			name := naming.Normalize(item.Name)
			table[name] = item
			if !seen[name] {
				seen[name] = true
				idx.names = append(idx.names, name)
			}
		}
	}
	add(idx.supmcu, mod.SupMCUTelemetry)
	add(idx.module, mod.ModuleTelemetry)

	return idx
}

// Lookup resolves a normalized field name. The SupMCU namespace is checked first.
func (idx *Index) Lookup(name string) (Field, bool) {
	if item, ok := idx.supmcu[name]; ok {
		return Field{Name: name, Source: SourceSupMCU, Item: item}, true
	}
	if item, ok := idx.module[name]; ok {
		return Field{Name: name, Source: SourceModule, Item: item}, true
	}
	return Field{}, false
}

// Names returns every unique field name, SupMCU names first.
func (idx *Index) Names() []string {
	out := make([]string, len(idx.names))
	copy(out, idx.names)
	return out
}

// FieldNames is a shortcut for NewIndex(mod).Names().
func FieldNames(mod *bus.Module) []string {
	return NewIndex(mod).Names()
}
