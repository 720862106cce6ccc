package bus

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefinitionYAML(t *testing.T) {
	def, err := LoadDefinition("testdata/bus.yaml")
	require.NoError(t, err)
	require.Len(t, def.Modules, 2)

	eps := def.Modules[0]
	assert.Equal(t, "EPS", eps.Name, "names are uppercased on load")
	assert.Equal(t, uint16(0x2B), eps.Address)
	assert.Equal(t, "EPS", eps.CmdName, "cmd_name defaults to the module name")

	require.Len(t, eps.SupMCUTelemetry, 2)
	assert.Equal(t, "FirmwareVersion", eps.SupMCUTelemetry[0].Key)
	assert.Equal(t, "Firmware version", eps.SupMCUTelemetry[0].Name)
	assert.Equal(t, 48, eps.SupMCUTelemetry[0].Length)
	assert.Equal(t, "SCPICmdsProcessed", eps.SupMCUTelemetry[1].Key)
	assert.Equal(t, 1, eps.SupMCUTelemetry[1].Index)

	require.Len(t, eps.ModuleTelemetry, 2)
	assert.Equal(t, "ssss", eps.ModuleTelemetry[0].Format)

	assert.Equal(t, []string{"SUP:LED", "SUP:RESet", "EPS:ON"}, eps.CommandNames())

	obc := def.Modules[1]
	assert.Equal(t, "BM2", obc.CmdName)
	assert.Empty(t, obc.ModuleTelemetry)
}

func TestLoadDefinitionJSONKeepsOrder(t *testing.T) {
	def, err := LoadDefinition("testdata/bus.json")
	require.NoError(t, err)
	require.Len(t, def.Modules, 1)

	gps := def.Modules[0]
	assert.Equal(t, "GPSRM", gps.Name)
	assert.Equal(t, uint16(81), gps.Address)

	require.Len(t, gps.SupMCUTelemetry, 2)
	assert.Equal(t, "z_last", gps.SupMCUTelemetry[0].Key, "file order, not key order")
	assert.Equal(t, "a_first", gps.SupMCUTelemetry[1].Key)

	assert.Equal(t, []string{"GPS:PASSthrough"}, gps.CommandNames())
}

func TestLoadDefinitionMissingFile(t *testing.T) {
	_, err := LoadDefinition("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}

func TestParseDefinitionValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "modules:\n  - address: 0x10\n"},
		{"zero address", "modules:\n  - name: eps\n"},
		{"address out of range", "modules:\n  - name: eps\n    address: 0x80\n"},
		{"item without format", "modules:\n  - name: eps\n    address: 0x10\n    supmcu_telemetry:\n      a: {name: A, idx: 0}\n"},
		{"item without name", "modules:\n  - name: eps\n    address: 0x10\n    module_telemetry:\n      a: {idx: 0, format: u}\n"},
		{"not yaml", "modules: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestFindModule(t *testing.T) {
	modules := []Module{
		{Name: "EPS", Address: 0x2B},
		{Name: "OBC", Address: 0x54},
		{Name: "OBC", Address: 0x55},
	}

	t.Run("case insensitive", func(t *testing.T) {
		mod, err := FindModule(modules, "obc")
		require.NoError(t, err)
		assert.Equal(t, "OBC", mod.Name)
	})

	t.Run("first match wins", func(t *testing.T) {
		mod, err := FindModule(modules, "OBC")
		require.NoError(t, err)
		assert.Equal(t, uint16(0x54), mod.Address)
	})

	t.Run("returns a reference", func(t *testing.T) {
		mod, err := FindModule(modules, "eps")
		require.NoError(t, err)
		assert.Same(t, &modules[0], mod)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := FindModule(modules, "bim")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrModuleNotConfigured))

		var notConfigured *ModuleNotConfiguredError
		require.True(t, errors.As(err, &notConfigured))
		assert.Equal(t, "bim", notConfigured.Name)
		assert.Equal(t, "module not configured: bim", err.Error())
	})
}

func TestDefinitionList(t *testing.T) {
	def := &Definition{Modules: []Module{
		{Name: "EPS", Address: 0x2B},
		{Name: "OBC", Address: 0x54},
		{Name: "OBC", Address: 0x55},
	}}

	assert.Equal(t, map[string]ModuleSummary{
		"EPS": {Address: 0x2B},
		"OBC": {Address: 0x54},
	}, def.List())
	assert.Equal(t, []string{"EPS", "OBC", "OBC"}, def.Names())

	var nilDef *Definition
	assert.Empty(t, nilDef.List())
	_, err := nilDef.FindModule("eps")
	assert.ErrorIs(t, err, ErrModuleNotConfigured)
}

func TestLoadSampleDefinition(t *testing.T) {
	def, err := LoadDefinition(filepath.Join("..", "..", "configs", "bus.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"EPS", "BM2"}, def.Names())

	bm2, err := def.FindModule("bm2")
	require.NoError(t, err)
	assert.Equal(t, "BM2", bm2.CmdName)
	assert.Equal(t, []string{"SUP:LED", "BM2:HEATer"}, bm2.CommandNames())
}
