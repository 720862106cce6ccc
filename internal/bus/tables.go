package bus

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v2"
)

// TelemetryTable is an ordered telemetry mapping. Definition files write it as
// a mapping of internal key to item; the file order is kept.
type TelemetryTable []TelemetryItem

// UnmarshalYAML accepts either a mapping (key -> item) or a plain sequence.
func (t *TelemetryTable) UnmarshalYAML(unmarshal func(interface{}) error) error {
	isList, order, err := tableShape(unmarshal)
	if err != nil {
		return err
	}

	if isList {
		var list []TelemetryItem
		if err := unmarshal(&list); err != nil {
			return err
		}
		for i := range list {
			list[i].Key = strconv.Itoa(i)
		}
		*t = list
		return nil
	}

	var items map[interface{}]TelemetryItem
	if err := unmarshal(&items); err != nil {
		return err
	}

	table := make(TelemetryTable, 0, len(order))
	for _, kv := range order {
		item := items[kv.Key]
		item.Key = fmt.Sprint(kv.Key)
		table = append(table, item)
	}
	*t = table
	return nil
}

// CommandTable is an ordered command mapping, written like TelemetryTable.
type CommandTable []CommandSpec

// UnmarshalYAML accepts either a mapping (key -> command) or a plain sequence.
func (c *CommandTable) UnmarshalYAML(unmarshal func(interface{}) error) error {
	isList, order, err := tableShape(unmarshal)
	if err != nil {
		return err
	}

	if isList {
		var list []CommandSpec
		if err := unmarshal(&list); err != nil {
			return err
		}
		for i := range list {
			list[i].Key = strconv.Itoa(i)
		}
		*c = list
		return nil
	}

	var specs map[interface{}]CommandSpec
	if err := unmarshal(&specs); err != nil {
		return err
	}

	table := make(CommandTable, 0, len(order))
	for _, kv := range order {
		spec := specs[kv.Key]
		spec.Key = fmt.Sprint(kv.Key)
		table = append(table, spec)
	}
	*c = table
	return nil
}

// tableShape reports whether the node is a sequence and, for mappings, the key order.
func tableShape(unmarshal func(interface{}) error) (bool, yaml.MapSlice, error) {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return false, nil, err
	}
	if _, ok := raw.([]interface{}); ok {
		return true, nil, nil
	}

	var order yaml.MapSlice
	if err := unmarshal(&order); err != nil {
		return false, nil, err
	}
	return false, order, nil
}
