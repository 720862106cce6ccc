// Package config loads the service configuration.
//
// Kubos services share one TOML file with a table per service. Load reads the
// [pumpkin-mcu-service] table on top of defaults, applies PUMPKIN_MCU_*
// environment overrides and validates the result.
package config
