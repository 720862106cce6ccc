package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/RNCC-Cubesat/kubos/internal/auth"
	"github.com/RNCC-Cubesat/kubos/internal/command"
)

// jsonStringType carries structured results as a JSON-encoded string.
var jsonStringType = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSONString",
	Description: "A JSON-encoded value.",
	Serialize:   serializeJSON,
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		if v, ok := valueAST.(*ast.StringValue); ok {
			return v.Value
		}
		return nil
	},
})

var commandResultType = graphql.NewObject(graphql.ObjectConfig{
	Name: "CommandResult",
	Fields: graphql.Fields{
		"ok":      &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		"module":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"command": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
	},
})

// serializeJSON passes through strings produced by encodeJSON. Resolvers
// encode their own results so marshal failures reach the errors list.
func serializeJSON(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return nil
}

// buildSchema builds the query and mutation schema bound to the server.
func (s *Server) buildSchema() (graphql.Schema, error) {
	moduleArg := &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}
	commandArg := &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"ping": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return "pong", nil
				},
			},
			"moduleList": &graphql.Field{
				Type:    jsonStringType,
				Resolve: s.resolveModuleList,
			},
			"fieldList": &graphql.Field{
				Type:    graphql.NewList(graphql.String),
				Args:    graphql.FieldConfigArgument{"module": moduleArg},
				Resolve: s.resolveFieldList,
			},
			"commandList": &graphql.Field{
				Type:    graphql.NewList(graphql.String),
				Args:    graphql.FieldConfigArgument{"module": moduleArg},
				Resolve: s.resolveCommandList,
			},
			"read": &graphql.Field{
				Type: graphql.String,
				Args: graphql.FieldConfigArgument{
					"module": moduleArg,
					"count":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: s.resolveRead,
			},
			"mcuTelemetry": &graphql.Field{
				Type: jsonStringType,
				Args: graphql.FieldConfigArgument{
					"module": moduleArg,
					"fields": &graphql.ArgumentConfig{Type: graphql.NewList(graphql.String)},
				},
				Resolve: s.resolveTelemetry,
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"sendCommand": &graphql.Field{
				Type: commandResultType,
				Args: graphql.FieldConfigArgument{
					"module":   moduleArg,
					"command":  commandArg,
					"validate": &graphql.ArgumentConfig{Type: graphql.Boolean},
				},
				Resolve: s.resolveSendCommand,
			},
			"passthrough": &graphql.Field{
				Type: commandResultType,
				Args: graphql.FieldConfigArgument{
					"module":  moduleArg,
					"command": commandArg,
				},
				Resolve: s.resolvePassthrough,
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    query,
		Mutation: mutation,
	})
}

func (s *Server) resolveModuleList(p graphql.ResolveParams) (interface{}, error) {
	if err := s.authorize(p.Context, auth.ScopeRead); err != nil {
		return nil, s.fail("moduleList", err)
	}
	return s.encodeJSON("moduleList", s.orchestrator.Modules())
}

func (s *Server) resolveFieldList(p graphql.ResolveParams) (interface{}, error) {
	module, _ := p.Args["module"].(string)
	if err := s.authorize(p.Context, auth.ScopeRead); err != nil {
		return nil, s.fail("fieldList", err, "module", module)
	}

	fields, err := s.orchestrator.FieldList(module)
	if err != nil {
		return nil, s.fail("fieldList", err, "module", module)
	}
	return fields, nil
}

func (s *Server) resolveCommandList(p graphql.ResolveParams) (interface{}, error) {
	module, _ := p.Args["module"].(string)
	if err := s.authorize(p.Context, auth.ScopeRead); err != nil {
		return nil, s.fail("commandList", err, "module", module)
	}

	commands, err := s.orchestrator.CommandList(module)
	if err != nil {
		return nil, s.fail("commandList", err, "module", module)
	}
	return commands, nil
}

func (s *Server) resolveRead(p graphql.ResolveParams) (interface{}, error) {
	module, _ := p.Args["module"].(string)
	count, _ := p.Args["count"].(int)
	if err := s.authorize(p.Context, auth.ScopeRead); err != nil {
		return nil, s.fail("read", err, "module", module)
	}

	data, err := s.orchestrator.Read(p.Context, module, count)
	if err != nil {
		return nil, s.fail("read", err, "module", module, "count", count)
	}
	return hex.EncodeToString(data), nil
}

func (s *Server) resolveTelemetry(p graphql.ResolveParams) (interface{}, error) {
	module, _ := p.Args["module"].(string)
	if err := s.authorize(p.Context, auth.ScopeRead); err != nil {
		return nil, s.fail("mcuTelemetry", err, "module", module)
	}

	fields, err := stringList(p.Args["fields"])
	if err != nil {
		return nil, s.fail("mcuTelemetry", err, "module", module)
	}

	values, err := s.orchestrator.Telemetry(p.Context, module, fields)
	if err != nil {
		return nil, s.fail("mcuTelemetry", err, "module", module, "fields", strings.Join(fields, ","))
	}
	return s.encodeJSON("mcuTelemetry", values, "module", module)
}

func (s *Server) resolveSendCommand(p graphql.ResolveParams) (interface{}, error) {
	module, _ := p.Args["module"].(string)
	cmd, _ := p.Args["command"].(string)
	if err := s.authorize(p.Context, auth.ScopeCommand); err != nil {
		return nil, s.fail("sendCommand", err, "module", module, "command", cmd)
	}

	var validate *bool
	if v, ok := p.Args["validate"].(bool); ok {
		validate = &v
	}

	if err := s.orchestrator.SendCommand(p.Context, module, cmd, validate); err != nil {
		return nil, s.fail("sendCommand", err, "module", module, "command", cmd)
	}
	return commandResult(module, cmd), nil
}

func (s *Server) resolvePassthrough(p graphql.ResolveParams) (interface{}, error) {
	module, _ := p.Args["module"].(string)
	cmd, _ := p.Args["command"].(string)
	if err := s.authorize(p.Context, auth.ScopeCommand); err != nil {
		return nil, s.fail("passthrough", err, "module", module, "command", cmd)
	}

	if err := s.orchestrator.Passthrough(p.Context, module, cmd); err != nil {
		return nil, s.fail("passthrough", err, "module", module, "command", cmd)
	}
	return commandResult(module, cmd), nil
}

// authorize checks a token scope. Without an auth middleware every caller is trusted.
func (s *Server) authorize(ctx context.Context, scope string) error {
	if s.authMiddleware == nil {
		return nil
	}
	if !auth.HasScope(ctx, scope) {
		return fmt.Errorf("scope %q required: %w", scope, ErrForbiddenError)
	}
	return nil
}

// fail converts err for the client and logs it with the same correlation ID.
func (s *Server) fail(op string, err error, attrs ...any) error {
	gqlErr := ToGraphQLError(err)
	args := append([]any{
		"op", op,
		"code", gqlErr.Code,
		"correlationId", gqlErr.CorrelationID,
		"error", err,
	}, attrs...)
	s.logger.Warn("graphql resolution failed", args...)
	return gqlErr
}

// encodeJSON renders a JSONString result.
func (s *Server) encodeJSON(op string, v interface{}, attrs ...any) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, s.fail(op, fmt.Errorf("failed to encode result: %w", err), attrs...)
	}
	return string(data), nil
}

func commandResult(module, cmd string) map[string]interface{} {
	return map[string]interface{}{
		"ok":      true,
		"module":  strings.ToUpper(module),
		"command": cmd,
	}
}

// stringList converts a GraphQL list argument to field names. A missing list
// is nil, which selects every field.
func stringList(arg interface{}) ([]string, error) {
	if arg == nil {
		return nil, nil
	}
	items, ok := arg.([]interface{})
	if !ok {
		return nil, fmt.Errorf("fields must be a list of strings: %w", command.ErrInvalidParameter)
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("fields must not contain null: %w", command.ErrInvalidParameter)
		}
		names = append(names, name)
	}
	return names, nil
}
