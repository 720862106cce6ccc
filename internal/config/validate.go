package config

import (
	"fmt"
	"strings"
)

// Validate checks a loaded configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if cfg.Addr.Port < 0 || cfg.Addr.Port > 65535 {
		return fmt.Errorf("addr.port %d is out of range", cfg.Addr.Port)
	}

	if cfg.BusPath == "" {
		return fmt.Errorf("bus_path is required")
	}

	switch cfg.I2CType {
	case "kubos", "fake":
	case "i2cdriver":
		if cfg.SerialPort == "" {
			return fmt.Errorf("serial_port is required for i2c_type i2cdriver")
		}
	default:
		return fmt.Errorf("i2c_type must be kubos, i2cdriver or fake, got %q", cfg.I2CType)
	}

	if cfg.I2CPort < 0 {
		return fmt.Errorf("i2c_port must be non-negative, got %d", cfg.I2CPort)
	}

	if err := validateTiming(cfg.Timing); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}

	if cfg.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size must be positive, got %d", cfg.Events.BufferSize)
	}
	if cfg.Events.Heartbeat <= 0 {
		return fmt.Errorf("events.heartbeat must be positive, got %v", cfg.Events.Heartbeat)
	}

	if err := validateAuth(cfg.Auth); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	return nil
}

// validateTiming validates timeouts and the telemetry delay.
func validateTiming(t TimingConfig) error {
	if t.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive, got %v", t.CommandTimeout)
	}
	if t.TelemetryTimeout <= 0 {
		return fmt.Errorf("telemetry_timeout must be positive, got %v", t.TelemetryTimeout)
	}
	if t.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got %v", t.ReadTimeout)
	}
	if t.TelemetryDelay < 0 {
		return fmt.Errorf("telemetry_delay must be non-negative, got %v", t.TelemetryDelay)
	}
	// A telemetry request waits for the delay inside its own timeout.
	if t.TelemetryDelay >= t.TelemetryTimeout {
		return fmt.Errorf("telemetry_delay %v must be < telemetry_timeout %v", t.TelemetryDelay, t.TelemetryTimeout)
	}
	return nil
}

func validateAuth(a AuthConfig) error {
	switch a.Algorithm {
	case "":
		return nil
	case "HS256":
		if a.SecretKey == "" {
			return fmt.Errorf("HS256 requires secret_key")
		}
	case "RS256":
		if a.PublicKeyFile == "" {
			return fmt.Errorf("RS256 requires public_key_file")
		}
	default:
		return fmt.Errorf("algorithm must be HS256 or RS256, got %q", a.Algorithm)
	}
	return nil
}
