// Package client is a small GraphQL client for the pumpkin-mcu service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultURL is the service endpoint with the default config.
const DefaultURL = "http://127.0.0.1:8150/graphql"

// Error is a GraphQL error returned by the service.
type Error struct {
	Message    string                 `json:"message"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Code returns the error code extension, or "" when absent.
func (e Error) Code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// Errors is the error list of a failed GraphQL response.
type Errors []Error

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		if code := err.Code(); code != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s", code, err.Message))
			continue
		}
		msgs = append(msgs, err.Message)
	}
	return strings.Join(msgs, "; ")
}

// Response is a raw GraphQL response.
type Response struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors Errors                     `json:"errors,omitempty"`
}

// CommandResult is the result of sendCommand and passthrough.
type CommandResult struct {
	OK      bool   `json:"ok"`
	Module  string `json:"module"`
	Command string `json:"command"`
}

// Client talks to the service over HTTP.
type Client struct {
	url   string
	token string
	http  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the GraphQL endpoint at url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs a query and returns the raw response. GraphQL errors are
// returned as Errors together with any partial data.
func (c *Client) Execute(ctx context.Context, query string, vars map[string]interface{}) (*Response, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": vars,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unexpected response (HTTP %d): %w", resp.StatusCode, err)
	}
	if len(out.Errors) > 0 {
		return &out, out.Errors
	}
	if resp.StatusCode != http.StatusOK {
		return &out, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}
	return &out, nil
}

// Ping checks the service is up.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var pong string
	err := c.field(ctx, `{ ping }`, nil, "ping", &pong)
	return pong, err
}

// ModuleList returns the configured modules and their addresses.
func (c *Client) ModuleList(ctx context.Context) (map[string]int, error) {
	var raw map[string]struct {
		Address int `json:"address"`
	}
	if err := c.jsonString(ctx, `{ moduleList }`, nil, "moduleList", &raw); err != nil {
		return nil, err
	}
	modules := make(map[string]int, len(raw))
	for name, mod := range raw {
		modules[name] = mod.Address
	}
	return modules, nil
}

// FieldList returns the telemetry field names of a module.
func (c *Client) FieldList(ctx context.Context, module string) ([]string, error) {
	var fields []string
	err := c.field(ctx, `query($module: String!) { fieldList(module: $module) }`,
		map[string]interface{}{"module": module}, "fieldList", &fields)
	return fields, err
}

// CommandList returns the command names of a module.
func (c *Client) CommandList(ctx context.Context, module string) ([]string, error) {
	var commands []string
	err := c.field(ctx, `query($module: String!) { commandList(module: $module) }`,
		map[string]interface{}{"module": module}, "commandList", &commands)
	return commands, err
}

// Telemetry reads telemetry fields of a module. No fields reads all of them.
func (c *Client) Telemetry(ctx context.Context, module string, fields ...string) (map[string][]interface{}, error) {
	vars := map[string]interface{}{"module": module}
	if len(fields) > 0 {
		vars["fields"] = fields
	}
	var values map[string][]interface{}
	err := c.jsonString(ctx, `query($module: String!, $fields: [String]) { mcuTelemetry(module: $module, fields: $fields) }`,
		vars, "mcuTelemetry", &values)
	return values, err
}

// Read reads count raw bytes from a module, hex encoded.
func (c *Client) Read(ctx context.Context, module string, count int) (string, error) {
	var data string
	err := c.field(ctx, `query($module: String!, $count: Int!) { read(module: $module, count: $count) }`,
		map[string]interface{}{"module": module, "count": count}, "read", &data)
	return data, err
}

// SendCommand sends a command to a module. A nil validate uses the service default.
func (c *Client) SendCommand(ctx context.Context, module, command string, validate *bool) (*CommandResult, error) {
	vars := map[string]interface{}{"module": module, "command": command}
	if validate != nil {
		vars["validate"] = *validate
	}
	var result CommandResult
	err := c.field(ctx, `mutation($module: String!, $command: String!, $validate: Boolean) {
		sendCommand(module: $module, command: $command, validate: $validate) { ok module command }
	}`, vars, "sendCommand", &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Passthrough sends a command to a module without validation.
func (c *Client) Passthrough(ctx context.Context, module, command string) (*CommandResult, error) {
	var result CommandResult
	err := c.field(ctx, `mutation($module: String!, $command: String!) {
		passthrough(module: $module, command: $command) { ok module command }
	}`, map[string]interface{}{"module": module, "command": command}, "passthrough", &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// field executes query and decodes one top-level field into v.
func (c *Client) field(ctx context.Context, query string, vars map[string]interface{}, name string, v interface{}) error {
	resp, err := c.Execute(ctx, query, vars)
	if err != nil {
		return err
	}
	raw, ok := resp.Data[name]
	if !ok {
		return fmt.Errorf("response has no %q field", name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// jsonString decodes a JSONString field into v.
func (c *Client) jsonString(ctx context.Context, query string, vars map[string]interface{}, name string, v interface{}) error {
	var encoded string
	if err := c.field(ctx, query, vars, name, &encoded); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(encoded), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}
