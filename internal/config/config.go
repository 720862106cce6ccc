package config

import (
	"net"
	"strconv"
	"time"
)

// ServiceName is the service's table name in the kubos config file.
const ServiceName = "pumpkin-mcu-service"

// DefaultPath is the kubos config file location.
const DefaultPath = "/etc/kubos-config.toml"

// Config is the complete service configuration.
type Config struct {
	Addr AddrConfig `toml:"addr"`

	// BusPath is the YAML or JSON bus definition file.
	BusPath string `toml:"bus_path"`

	// I2CType selects the bus adapter: "kubos" (Linux i2c-dev), "i2cdriver"
	// (USB I2CDriver) or "fake".
	I2CType string `toml:"i2c_type"`

	// I2CPort is N in /dev/i2c-N.
	I2CPort int `toml:"i2c_port"`

	// SerialPort is the I2CDriver's serial device.
	SerialPort string `toml:"serial_port"`

	// ValidateCommands is the default for sendCommand's validate argument.
	ValidateCommands bool `toml:"validate_commands"`

	Timing TimingConfig `toml:"timing"`
	Log    LogConfig    `toml:"log"`
	Audit  AuditConfig  `toml:"audit"`
	Auth   AuthConfig   `toml:"auth"`
	Events EventsConfig `toml:"events"`
}

// AddrConfig is the GraphQL listen address.
type AddrConfig struct {
	IP   string `toml:"ip"`
	Port int    `toml:"port"`
}

// TimingConfig holds per-operation timeouts.
type TimingConfig struct {
	CommandTimeout   time.Duration `toml:"command_timeout"`
	TelemetryTimeout time.Duration `toml:"telemetry_timeout"`
	ReadTimeout      time.Duration `toml:"read_timeout"`

	// TelemetryDelay is the wait between a TEL? request and its response.
	TelemetryDelay time.Duration `toml:"telemetry_delay"`
}

// LogConfig configures the service logger.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// AuditConfig configures the audit trail. An empty File disables it.
type AuditConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// EventsConfig configures the bus event stream.
type EventsConfig struct {
	// BufferSize is the number of recent events kept for Last-Event-ID replay.
	BufferSize int `toml:"buffer_size"`

	// Heartbeat is the idle interval between heartbeat events.
	Heartbeat time.Duration `toml:"heartbeat"`
}

// AuthConfig configures bearer token auth. An empty Algorithm disables it.
type AuthConfig struct {
	// Algorithm is "HS256" or "RS256".
	Algorithm     string `toml:"algorithm"`
	SecretKey     string `toml:"secret_key"`
	PublicKeyFile string `toml:"public_key_file"`
}

// Enabled reports whether requests must carry a token.
func (a AuthConfig) Enabled() bool {
	return a.Algorithm != ""
}

// ListenAddr returns the host:port the server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Addr.IP, strconv.Itoa(c.Addr.Port))
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr: AddrConfig{
			IP:   "0.0.0.0",
			Port: 8150,
		},
		BusPath:          "/etc/pumpkin-mcu/bus.yaml",
		I2CType:          "kubos",
		I2CPort:          1,
		SerialPort:       "/dev/ttyUSB0",
		ValidateCommands: true,
		Timing: TimingConfig{
			CommandTimeout:   5 * time.Second,
			TelemetryTimeout: 5 * time.Second,
			ReadTimeout:      2 * time.Second,
			TelemetryDelay:   200 * time.Millisecond,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Audit: AuditConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		Events: EventsConfig{
			BufferSize: 256,
			Heartbeat:  15 * time.Second,
		},
	}
}
