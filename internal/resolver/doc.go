// Package resolver resolves telemetry field names and command strings against
// a module's definition tables.
//
// Field names are the normalized form of the raw telemetry labels. A module has
// two namespaces: the SupMCU telemetry built into every module firmware and the
// module-specific telemetry. When a normalized name exists in both, the SupMCU
// namespace wins.
package resolver
