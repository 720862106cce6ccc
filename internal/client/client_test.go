package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RNCC-Cubesat/kubos/internal/adapter/fake"
	"github.com/RNCC-Cubesat/kubos/internal/api"
	"github.com/RNCC-Cubesat/kubos/internal/bus"
	"github.com/RNCC-Cubesat/kubos/internal/command"
	"github.com/RNCC-Cubesat/kubos/internal/config"
)

const testBus = `
modules:
  - name: BM2
    address: 0x5C
    supmcu_telemetry:
      fw:
        name: Firmware version
        idx: 0
        format: S
        length: 48
      cmds:
        name: SCPI Cmds Processed
        idx: 1
        format: l
    module_telemetry:
      temp:
        name: Temperature (0.1K)
        idx: 0
        format: s
    commands:
      led:
        name: SUP:LED
`

func newClient(t *testing.T) (*Client, *fake.FakeAdapter) {
	t.Helper()
	def, err := bus.ParseDefinition([]byte(testBus))
	require.NoError(t, err)

	f := fake.NewFakeAdapter(def)
	o := command.NewOrchestrator(def, f, command.Options{
		Timing:           config.Default().Timing,
		ValidateCommands: true,
	})
	s, err := api.NewServer(o, api.Options{})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL + "/graphql"), f
}

func TestQueries(t *testing.T) {
	c, f := newClient(t)
	ctx := context.Background()
	f.SetValues(0x5C, "BM2", 0, 2981)

	pong, err := c.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", pong)

	modules, err := c.ModuleList(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"BM2": 0x5C}, modules)

	fields, err := c.FieldList(ctx, "bm2")
	require.NoError(t, err)
	assert.Equal(t, []string{"firmware_version", "scpi_cmds_processed", "temperature_0_1k"}, fields)

	commands, err := c.CommandList(ctx, "BM2")
	require.NoError(t, err)
	assert.Equal(t, []string{"SUP:LED"}, commands)

	values, err := c.Telemetry(ctx, "BM2", "temperature_0_1k")
	require.NoError(t, err)
	assert.Equal(t, map[string][]interface{}{"temperature_0_1k": {float64(2981)}}, values)

	all, err := c.Telemetry(ctx, "BM2")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCommands(t *testing.T) {
	c, f := newClient(t)
	ctx := context.Background()

	result, err := c.SendCommand(ctx, "bm2", "SUP:LED ON", nil)
	require.NoError(t, err)
	assert.Equal(t, &CommandResult{OK: true, Module: "BM2", Command: "SUP:LED ON"}, result)

	_, err = c.SendCommand(ctx, "BM2", "BM2:RESET", nil)
	var gqlErrs Errors
	require.True(t, errors.As(err, &gqlErrs))
	assert.Equal(t, "UNKNOWN_COMMAND", gqlErrs[0].Code())

	off := false
	_, err = c.SendCommand(ctx, "BM2", "BM2:RESET", &off)
	require.NoError(t, err)

	_, err = c.Passthrough(ctx, "BM2", "SUP:TIME?")
	require.NoError(t, err)

	assert.Equal(t, []string{"SUP:LED ON", "BM2:RESET", "SUP:TIME?"}, f.SentCommands(0x5C))
}

func TestRead(t *testing.T) {
	c, f := newClient(t)
	f.SetRawData(0x5C, []byte{0x0A, 0x0B})

	data, err := c.Read(context.Background(), "BM2", 3)
	require.NoError(t, err)
	assert.Equal(t, "0a0b00", data)
}

func TestErrors(t *testing.T) {
	c, _ := newClient(t)

	_, err := c.FieldList(context.Background(), "GPS")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MODULE_NOT_CONFIGURED")

	unreachable := New("http://127.0.0.1:1/graphql")
	_, err = unreachable.Ping(context.Background())
	assert.Error(t, err)
}
