package resolver

import (
	"context"

	"github.com/RNCC-Cubesat/kubos/internal/bus"
	"github.com/RNCC-Cubesat/kubos/internal/supmcu"
)

// ValueReader is the transport capability used to fetch live telemetry.
type ValueReader interface {
	ReadValues(ctx context.Context, address uint16, channel string, item bus.TelemetryItem) ([]supmcu.Value, error)
}

// Resolver fetches telemetry fields through a ValueReader.
type Resolver struct {
	reader ValueReader
}

// New creates a resolver reading through reader.
func New(reader ValueReader) *Resolver {
	return &Resolver{reader: reader}
}

// ResolveFields returns the live values of the requested fields, keyed by
// normalized name. An empty field list resolves every field of the module.
// The result is all-or-nothing: on any error no map is returned.
func (r *Resolver) ResolveFields(ctx context.Context, mod *bus.Module, fields []string) (map[string][]interface{}, error) {
	if len(fields) == 0 {
		return r.ResolveAllFields(ctx, mod)
	}

	idx := NewIndex(mod)

	// Resolve every name before touching the bus.
	resolved := make([]Field, 0, len(fields))
	for _, name := range fields {
		field, ok := idx.Lookup(name)
		if !ok {
			return nil, &FieldNotFoundError{Module: mod.Name, Field: name}
		}
		resolved = append(resolved, field)
	}

	return r.read(ctx, mod, resolved)
}

// ResolveAllFields returns the live values of every field of the module.
func (r *Resolver) ResolveAllFields(ctx context.Context, mod *bus.Module) (map[string][]interface{}, error) {
	idx := NewIndex(mod)

	names := idx.Names()
	resolved := make([]Field, 0, len(names))
	for _, name := range names {
		field, _ := idx.Lookup(name)
		resolved = append(resolved, field)
	}

	return r.read(ctx, mod, resolved)
}

func (r *Resolver) read(ctx context.Context, mod *bus.Module, fields []Field) (map[string][]interface{}, error) {
	result := make(map[string][]interface{}, len(fields))

	for _, field := range fields {
		if _, done := result[field.Name]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		values, err := r.reader.ReadValues(ctx, mod.Address, field.Channel(mod), field.Item)
		if err != nil {
			return nil, err
		}
		result[field.Name] = unwrap(values)
	}

	return result, nil
}

// unwrap drops the format tags and keeps each value JSON-encodable.
func unwrap(values []supmcu.Value) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = supmcu.JSONValue(v.Value)
	}
	return out
}
