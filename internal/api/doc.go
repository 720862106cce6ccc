// Package api serves the GraphQL endpoint and the health check.
//
// Queries and mutations are resolved against a command.OrchestratorPort.
// Resolver failures surface as GraphQL errors whose extensions carry a stable
// error code and a correlation ID; the same correlation ID is logged.
package api
