// Package auth implements optional bearer token auth for the GraphQL endpoint.
//
// Tokens are JWTs signed with HS256 (shared secret) or RS256 (PEM public key).
// A token carries a subject, roles and scopes. Queries need the "read" scope,
// mutations that reach the bus need the "command" scope.
package auth
