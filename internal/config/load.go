package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads the service table from the TOML file at path on top of defaults,
// applies environment overrides and validates. An empty path skips the file.
// A file without the service table yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path, ServiceName); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile decodes one service table of a kubos config file into cfg.
func loadFromFile(cfg *Config, path, service string) error {
	var tables map[string]toml.Primitive
	md, err := toml.DecodeFile(path, &tables)
	if err != nil {
		return err
	}

	table, ok := tables[service]
	if !ok {
		return nil
	}

	if err := md.PrimitiveDecode(table, cfg); err != nil {
		return fmt.Errorf("[%s]: %w", service, err)
	}
	return nil
}

// applyEnvOverrides applies PUMPKIN_MCU_* environment variables to the config.
func applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) {
		if val := os.Getenv(name); val != "" {
			*dst = val
		}
	}
	var firstErr error
	fail := func(name, val string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("%s=%q: %w", name, val, err)
		}
	}
	integer := func(name string, dst *int) {
		if val := os.Getenv(name); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				fail(name, val, err)
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if val := os.Getenv(name); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				fail(name, val, err)
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if val := os.Getenv(name); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				fail(name, val, err)
				return
			}
			*dst = d
		}
	}

	// Service
	str("PUMPKIN_MCU_ADDR_IP", &cfg.Addr.IP)
	integer("PUMPKIN_MCU_ADDR_PORT", &cfg.Addr.Port)
	str("PUMPKIN_MCU_BUS_PATH", &cfg.BusPath)
	str("PUMPKIN_MCU_I2C_TYPE", &cfg.I2CType)
	integer("PUMPKIN_MCU_I2C_PORT", &cfg.I2CPort)
	str("PUMPKIN_MCU_SERIAL_PORT", &cfg.SerialPort)
	boolean("PUMPKIN_MCU_VALIDATE_COMMANDS", &cfg.ValidateCommands)

	// Timing
	duration("PUMPKIN_MCU_TIMING_COMMAND_TIMEOUT", &cfg.Timing.CommandTimeout)
	duration("PUMPKIN_MCU_TIMING_TELEMETRY_TIMEOUT", &cfg.Timing.TelemetryTimeout)
	duration("PUMPKIN_MCU_TIMING_READ_TIMEOUT", &cfg.Timing.ReadTimeout)
	duration("PUMPKIN_MCU_TIMING_TELEMETRY_DELAY", &cfg.Timing.TelemetryDelay)

	// Logging and audit
	str("PUMPKIN_MCU_LOG_LEVEL", &cfg.Log.Level)
	str("PUMPKIN_MCU_LOG_FILE", &cfg.Log.File)
	str("PUMPKIN_MCU_AUDIT_FILE", &cfg.Audit.File)

	// Events
	integer("PUMPKIN_MCU_EVENTS_BUFFER_SIZE", &cfg.Events.BufferSize)
	duration("PUMPKIN_MCU_EVENTS_HEARTBEAT", &cfg.Events.Heartbeat)

	// Auth
	str("PUMPKIN_MCU_AUTH_ALGORITHM", &cfg.Auth.Algorithm)
	str("PUMPKIN_MCU_AUTH_SECRET_KEY", &cfg.Auth.SecretKey)
	str("PUMPKIN_MCU_AUTH_PUBLIC_KEY_FILE", &cfg.Auth.PublicKeyFile)

	return firstErr
}
