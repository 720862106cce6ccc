// Package main implements the pumpkin-mcu service entry point: a GraphQL
// endpoint for Pumpkin SupMCU modules on the satellite I2C bus.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/RNCC-Cubesat/kubos/internal/adapter"
	"github.com/RNCC-Cubesat/kubos/internal/adapter/fake"
	"github.com/RNCC-Cubesat/kubos/internal/adapter/i2c"
	"github.com/RNCC-Cubesat/kubos/internal/api"
	"github.com/RNCC-Cubesat/kubos/internal/audit"
	"github.com/RNCC-Cubesat/kubos/internal/auth"
	"github.com/RNCC-Cubesat/kubos/internal/bus"
	"github.com/RNCC-Cubesat/kubos/internal/command"
	"github.com/RNCC-Cubesat/kubos/internal/config"
	"github.com/RNCC-Cubesat/kubos/internal/logging"
	"github.com/RNCC-Cubesat/kubos/internal/telemetry"
)

// Version is the service version reported on /health.
const Version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var showVersion bool

	flagSet := pflag.NewFlagSet(config.ServiceName, pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the kubos TOML config file")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("%s %s\n", config.ServiceName, Version)
		return nil
	}

	// Step 1: Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Step 2: Initialize logging
	logger, logCloser, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)
	logger.Info("starting", "version", Version, "config", configPath)

	// Step 3: Load bus definition
	def, err := bus.LoadDefinition(cfg.BusPath)
	if err != nil {
		return fmt.Errorf("failed to load bus definition: %w", err)
	}
	logger.Info("bus definition loaded", "path", cfg.BusPath, "modules", def.Names())

	// Step 4: Open the bus
	busAdapter, err := openBus(cfg, def)
	if err != nil {
		return err
	}
	defer busAdapter.Close()
	if d, ok := busAdapter.(adapter.Describer); ok {
		logger.Info("bus opened", "driver", d.GetDriver(), "device", d.GetDevice())
	}

	// Step 5: Initialize audit logger
	var auditLogger *audit.Logger
	if cfg.Audit.File != "" {
		auditLogger, err = audit.NewLogger(cfg.Audit, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize audit logger: %w", err)
		}
		defer auditLogger.Close()
		logger.Info("audit logger initialized", "file", cfg.Audit.File)
	}

	// Step 6: Initialize authentication
	var authMiddleware *auth.Middleware
	if cfg.Auth.Enabled() {
		verifier, err := auth.NewVerifierFromConfig(cfg.Auth)
		if err != nil {
			return fmt.Errorf("failed to initialize auth: %w", err)
		}
		authMiddleware = auth.NewMiddleware(verifier)
		logger.Info("authentication enabled", "algorithm", cfg.Auth.Algorithm)
	}

	// Step 7: Initialize event hub
	hub := telemetry.NewHub(cfg.Events, logger)
	defer hub.Stop()

	// Step 8: Create command orchestrator
	opts := command.Options{
		Timing:           cfg.Timing,
		ValidateCommands: cfg.ValidateCommands,
		Events:           hub,
		Logger:           logger,
	}
	if auditLogger != nil {
		opts.Audit = auditLogger
	}
	orchestrator := command.NewOrchestrator(def, busAdapter, opts)

	// Step 9: Create API server
	serverOpts := api.Options{
		Addr:    cfg.ListenAddr(),
		Auth:    authMiddleware,
		Events:  hub,
		Logger:  logger,
		Version: Version,
	}
	if status, ok := busAdapter.(api.StatusPort); ok {
		serverOpts.Status = status
	}
	server, err := api.NewServer(orchestrator, serverOpts)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Set up graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	// Close event streams first so Shutdown does not wait on them
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("error stopping HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// openBus opens the adapter selected by i2c_type.
func openBus(cfg *config.Config, def *bus.Definition) (adapter.IBusAdapter, error) {
	switch cfg.I2CType {
	case fake.Driver:
		return fake.NewFakeAdapter(def), nil
	case i2c.Driver:
		a, err := i2c.Open(cfg.I2CPort, i2c.Options{TelemetryDelay: cfg.Timing.TelemetryDelay})
		if err != nil {
			return nil, fmt.Errorf("failed to open I2C bus %d: %w", cfg.I2CPort, err)
		}
		return a, nil
	case i2c.DriverI2CDriver:
		a, err := i2c.OpenI2CDriver(cfg.SerialPort, i2c.Options{TelemetryDelay: cfg.Timing.TelemetryDelay})
		if err != nil {
			return nil, fmt.Errorf("failed to open I2CDriver %s: %w", cfg.SerialPort, err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unsupported i2c_type %q", cfg.I2CType)
	}
}
