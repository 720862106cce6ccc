package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RNCC-Cubesat/kubos/internal/adapter/fake"
	"github.com/RNCC-Cubesat/kubos/internal/auth"
	"github.com/RNCC-Cubesat/kubos/internal/bus"
	"github.com/RNCC-Cubesat/kubos/internal/command"
	"github.com/RNCC-Cubesat/kubos/internal/config"
	"github.com/RNCC-Cubesat/kubos/internal/telemetry"
)

const testBus = `
modules:
  - name: EPS
    address: 0x2B
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
      currents:
        name: Payload Currents in mA
        idx: 4
        format: ssss
    commands:
      led:
        name: SUP:LED
`

const testSecret = "api-secret"

type gqlError struct {
	Message    string                 `json:"message"`
	Extensions map[string]interface{} `json:"extensions"`
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []gqlError                 `json:"errors"`
}

func newTestServer(t *testing.T, mw *auth.Middleware) (*httptest.Server, *fake.FakeAdapter) {
	t.Helper()
	return newTestServerForBus(t, mw, testBus)
}

func newTestServerForBus(t *testing.T, mw *auth.Middleware, busText string) (*httptest.Server, *fake.FakeAdapter) {
	t.Helper()
	def, err := bus.ParseDefinition([]byte(busText))
	require.NoError(t, err)

	f := fake.NewFakeAdapter(def)
	o := command.NewOrchestrator(def, f, command.Options{
		Timing:           config.Default().Timing,
		ValidateCommands: true,
	})

	s, err := NewServer(o, Options{Auth: mw, Status: f, Version: "test"})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, f
}

func TestServerStartStop(t *testing.T) {
	def, err := bus.ParseDefinition([]byte(testBus))
	require.NoError(t, err)
	o := command.NewOrchestrator(def, fake.NewFakeAdapter(def), command.Options{Timing: config.Default().Timing})

	s, err := NewServer(o, Options{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() {
		started <- s.Start()
	}()

	require.NoError(t, s.Stop(context.Background()))
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func post(t *testing.T, ts *httptest.Server, token, query string) (int, gqlResponse) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"query": query})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/graphql", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out gqlResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func decodeField(t *testing.T, out gqlResponse, field string, v interface{}) {
	t.Helper()
	require.Empty(t, out.Errors)
	require.NoError(t, json.Unmarshal(out.Data[field], v))
}

// decodeJSONString decodes a JSONString result.
func decodeJSONString(t *testing.T, out gqlResponse, field string, v interface{}) {
	t.Helper()
	var raw string
	decodeField(t, out, field, &raw)
	require.NoError(t, json.Unmarshal([]byte(raw), v))
}

func telemetryCounter(t *testing.T, ts *httptest.Server) float64 {
	t.Helper()
	_, out := post(t, ts, "", `{ mcuTelemetry(module: "EPS", fields: ["scpi_cmds_processed"]) }`)
	var values map[string][]float64
	decodeJSONString(t, out, "mcuTelemetry", &values)
	require.Len(t, values["scpi_cmds_processed"], 1)
	return values["scpi_cmds_processed"][0]
}

func token(t *testing.T, scopes ...string) string {
	t.Helper()
	roles := []string{auth.RoleViewer}
	for _, s := range scopes {
		if s == auth.ScopeCommand {
			roles = []string{auth.RoleOperator}
		}
	}
	claims := jwt.MapClaims{
		"sub":    "tester",
		"roles":  roles,
		"scopes": scopes,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func authMiddleware(t *testing.T) *auth.Middleware {
	t.Helper()
	v, err := auth.NewVerifier(auth.VerifierConfig{Algorithm: "HS256", SecretKey: testSecret})
	require.NoError(t, err)
	return auth.NewMiddleware(v)
}

func TestPing(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	status, out := post(t, ts, "", `{ ping }`)
	assert.Equal(t, http.StatusOK, status)

	var pong string
	decodeField(t, out, "ping", &pong)
	assert.Equal(t, "pong", pong)
}

func TestGraphQLOverGET(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/?query=" + url.QueryEscape(`{ ping }`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out gqlResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.JSONEq(t, `"pong"`, string(out.Data["ping"]))
}

func TestModuleList(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	_, out := post(t, ts, "", `{ moduleList }`)
	var modules map[string]map[string]int
	decodeJSONString(t, out, "moduleList", &modules)
	assert.Equal(t, map[string]map[string]int{"EPS": {"address": 0x2B}}, modules)
}

func TestEndToEndEPS(t *testing.T) {
	ts, f := newTestServer(t, nil)
	f.SetValues(0x2B, "SUP", 0, "1.4.2")

	_, out := post(t, ts, "", `{ fieldList(module: "EPS") }`)
	var fields []string
	decodeField(t, out, "fieldList", &fields)
	assert.Equal(t, []string{"firmware_version", "scpi_cmds_processed", "payload_currents_in_ma"}, fields)

	_, out = post(t, ts, "", `{ commandList(module: "eps") }`)
	var commands []string
	decodeField(t, out, "commandList", &commands)
	assert.Equal(t, []string{"SUP:LED"}, commands)

	_, out = post(t, ts, "", `{ mcuTelemetry(module: "EPS", fields: ["firmware_version"]) }`)
	var values map[string][]interface{}
	decodeJSONString(t, out, "mcuTelemetry", &values)
	assert.Equal(t, map[string][]interface{}{"firmware_version": {"1.4.2"}}, values)

	_, out = post(t, ts, "", `{ mcuTelemetry(module: "EPS") }`)
	values = nil
	decodeJSONString(t, out, "mcuTelemetry", &values)
	assert.Len(t, values, 3)
	assert.Len(t, values["payload_currents_in_ma"], 4)
}

func TestTelemetryNonFiniteFloat(t *testing.T) {
	ts, f := newTestServerForBus(t, nil, `
modules:
  - name: EPS
    address: 0x2B
    supmcu_telemetry:
      temp:
        name: Temperature
        idx: 3
        format: f
      cmds:
        name: SCPI Cmds Processed
        idx: 1
        format: l
`)
	f.SetValues(0x2B, bus.SupMCUChannel, 3, math.NaN())

	status, out := post(t, ts, "", `{ mcuTelemetry(module: "EPS", fields: ["temperature"]) }`)
	assert.Equal(t, http.StatusOK, status)
	var values map[string][]interface{}
	decodeJSONString(t, out, "mcuTelemetry", &values)
	assert.Equal(t, []interface{}{"NaN"}, values["temperature"])

	_, out = post(t, ts, "", `{ mcuTelemetry(module: "EPS") }`)
	values = nil
	decodeJSONString(t, out, "mcuTelemetry", &values)
	assert.Equal(t, []interface{}{"NaN"}, values["temperature"])
	assert.Len(t, values["scpi_cmds_processed"], 1)
}

func TestCommandCounterScenario(t *testing.T) {
	ts, f := newTestServer(t, nil)

	before := telemetryCounter(t, ts)

	_, out := post(t, ts, "", `mutation { sendCommand(module: "EPS", command: "SUP:LED FLASH") { ok module command } }`)
	var result struct {
		OK      bool   `json:"ok"`
		Module  string `json:"module"`
		Command string `json:"command"`
	}
	decodeField(t, out, "sendCommand", &result)
	assert.True(t, result.OK)
	assert.Equal(t, "EPS", result.Module)
	assert.Equal(t, "SUP:LED FLASH", result.Command)

	after := telemetryCounter(t, ts)
	assert.Equal(t, before+2, after)
	assert.Equal(t, []string{"SUP:LED FLASH"}, f.SentCommands(0x2B))
}

func TestSendCommandValidateOverride(t *testing.T) {
	ts, f := newTestServer(t, nil)

	_, out := post(t, ts, "", `mutation { sendCommand(module: "EPS", command: "EPS:OFF", validate: false) { ok } }`)
	require.Empty(t, out.Errors)

	_, out = post(t, ts, "", `mutation { passthrough(module: "EPS", command: "SUP:TIME?") { ok } }`)
	require.Empty(t, out.Errors)

	assert.Equal(t, []string{"EPS:OFF", "SUP:TIME?"}, f.SentCommands(0x2B))
}

func TestRead(t *testing.T) {
	ts, f := newTestServer(t, nil)
	f.SetRawData(0x2B, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	_, out := post(t, ts, "", `{ read(module: "EPS", count: 2) }`)
	var hexData string
	decodeField(t, out, "read", &hexData)
	assert.Equal(t, "dead", hexData)
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		simulate string
		query    string
		code     string
	}{
		{"unknown module", "", `{ fieldList(module: "OBC") }`, CodeModuleNotConfigured},
		{"unknown field", "", `{ mcuTelemetry(module: "EPS", fields: ["firmware_version", "bogus"]) }`, CodeFieldNotFound},
		{"unknown command", "", `mutation { sendCommand(module: "EPS", command: "EPS:OFF") { ok } }`, CodeUnknownCommand},
		{"read out of range", "", `{ read(module: "EPS", count: 0) }`, CodeInvalidRange},
		{"empty command", "", `mutation { passthrough(module: "EPS", command: " ") { ok } }`, CodeBadRequest},
		{"bus busy", "BUSY", `{ mcuTelemetry(module: "EPS", fields: ["firmware_version"]) }`, CodeBusy},
		{"bus unavailable", "UNAVAILABLE", `mutation { passthrough(module: "EPS", command: "SUP:LED ON") { ok } }`, CodeUnavailable},
		{"bus internal", "INTERNAL", `{ read(module: "EPS", count: 1) }`, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, f := newTestServer(t, nil)
			if tt.simulate != "" {
				f.SetErrorSimulation(tt.simulate)
			}

			status, out := post(t, ts, "", tt.query)
			assert.Equal(t, http.StatusOK, status)
			require.Len(t, out.Errors, 1)
			assert.Equal(t, tt.code, out.Errors[0].Extensions["code"])
			assert.NotEmpty(t, out.Errors[0].Extensions["correlationId"])
		})
	}
}

func TestUnknownFieldSendsNothing(t *testing.T) {
	ts, f := newTestServer(t, nil)

	_, out := post(t, ts, "", `{ mcuTelemetry(module: "EPS", fields: ["bogus"]) }`)
	require.Len(t, out.Errors, 1)

	reads, _ := f.CallCounts()
	assert.Zero(t, reads)
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t, authMiddleware(t))

	status, out := post(t, ts, "", `{ ping }`)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, CodeUnauthorized, out.Errors[0].Extensions["code"])

	status, out = post(t, ts, "not-a-token", `{ ping }`)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.Len(t, out.Errors, 1)
}

func TestScopes(t *testing.T) {
	ts, f := newTestServer(t, authMiddleware(t))
	viewer := token(t, auth.ScopeRead)
	operator := token(t, auth.ScopeRead, auth.ScopeCommand)

	_, out := post(t, ts, viewer, `{ fieldList(module: "EPS") }`)
	assert.Empty(t, out.Errors)

	_, out = post(t, ts, viewer, `mutation { sendCommand(module: "EPS", command: "SUP:LED ON") { ok } }`)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, CodeForbidden, out.Errors[0].Extensions["code"])
	assert.Empty(t, f.SentCommands(0x2B))

	_, out = post(t, ts, operator, `mutation { sendCommand(module: "EPS", command: "SUP:LED ON") { ok } }`)
	assert.Empty(t, out.Errors)
	assert.Equal(t, []string{"SUP:LED ON"}, f.SentCommands(0x2B))
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, authMiddleware(t))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Result        string                 `json:"result"`
		Data          map[string]interface{} `json:"data"`
		CorrelationID string                 `json:"correlationId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Result)
	assert.Equal(t, "ok", body.Data["status"])
	assert.Equal(t, "test", body.Data["version"])
	assert.Equal(t, float64(1), body.Data["modules"])
	assert.Equal(t, fake.Driver, body.Data["driver"])
	assert.NotEmpty(t, body.CorrelationID)
}

func TestHealthAfterBusClosed(t *testing.T) {
	ts, f := newTestServer(t, nil)

	closed := make(chan error, 1)
	go func() {
		closed <- f.Close()
	}()
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.NoError(t, <-closed)

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Data["status"])
	assert.Equal(t, "closed", body.Data["busStatus"])
}

func TestBadRequests(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed json", http.MethodPost, "/graphql", `{"query":`, http.StatusBadRequest},
		{"trailing data", http.MethodPost, "/graphql", `{"query":"{ ping }"} {}`, http.StatusBadRequest},
		{"empty query", http.MethodPost, "/graphql", `{"query":"  "}`, http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/graphql", `{}`, http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/nope", ``, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestEventsStream(t *testing.T) {
	def, err := bus.ParseDefinition([]byte(testBus))
	require.NoError(t, err)

	f := fake.NewFakeAdapter(def)
	hub := telemetry.NewHub(config.Default().Events, nil)
	o := command.NewOrchestrator(def, f, command.Options{
		Timing:           config.Default().Timing,
		ValidateCommands: true,
		Events:           hub,
	})
	s, err := NewServer(o, Options{Events: hub})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Stop()
		ts.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?module=eps", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	readLinesUntil(t, r, "event: ready")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	_, out := post(t, ts, "", `mutation { sendCommand(module: "EPS", command: "SUP:LED ON") { ok } }`)
	require.Empty(t, out.Errors)

	readLinesUntil(t, r, "event: command")
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"command":"SUP:LED ON"`)
}

func TestEventsDisabled(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// readLinesUntil reads SSE lines until one equals want.
func readLinesUntil(t *testing.T, r *bufio.Reader, want string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimRight(line, "\n") == want {
			return
		}
	}
}
