// Package audit writes a JSONL trail of every bus action.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/RNCC-Cubesat/kubos/internal/adapter"
	"github.com/RNCC-Cubesat/kubos/internal/auth"
	"github.com/RNCC-Cubesat/kubos/internal/bus"
	"github.com/RNCC-Cubesat/kubos/internal/config"
	"github.com/RNCC-Cubesat/kubos/internal/resolver"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	Module    string                 `json:"module"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	LatencyMs int64                  `json:"latencyMs"`
}

// Logger implements the audit logging functionality.
type Logger struct {
	mu     sync.Mutex
	out    io.WriteCloser
	logger *slog.Logger
}

// NewLogger creates an audit logger writing to a rotating file.
func NewLogger(cfg config.AuditConfig, logger *slog.Logger) (*Logger, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("audit file is required")
	}
	return NewWriterLogger(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}, logger), nil
}

// NewWriterLogger creates an audit logger writing to w.
func NewWriterLogger(w io.WriteCloser, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{out: w, logger: logger}
}

// LogAction records one action. A nil error is a success.
func (l *Logger) LogAction(ctx context.Context, action, module string, params map[string]interface{}, err error, latency time.Duration) {
	if l == nil {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		User:      auth.Subject(ctx),
		Module:    module,
		Action:    action,
		Params:    params,
		Outcome:   "SUCCESS",
		Code:      CodeFromError(err),
		LatencyMs: latency.Milliseconds(),
	}
	if err != nil {
		entry.Outcome = "ERROR"
	}

	l.writeEntry(entry)
}

// writeEntry writes an audit entry as one JSON line.
func (l *Logger) writeEntry(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("failed to marshal audit entry", "error", err)
		return
	}

	if _, err := l.out.Write(append(data, '\n')); err != nil {
		l.logger.Error("failed to write audit entry", "error", err)
	}
}

// CodeFromError maps an error to its audit code.
func CodeFromError(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case errors.Is(err, bus.ErrModuleNotConfigured):
		return bus.ErrModuleNotConfigured.Error()
	case errors.Is(err, resolver.ErrFieldNotFound):
		return resolver.ErrFieldNotFound.Error()
	case errors.Is(err, resolver.ErrUnknownCommand):
		return resolver.ErrUnknownCommand.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return adapter.ErrBusy.Error()
	}
	if code := adapter.Code(err); code != nil {
		return code.Error()
	}
	return "ERROR"
}

// Close closes the audit log.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out != nil {
		err := l.out.Close()
		l.out = nil
		return err
	}
	return nil
}

// Rotate starts a new audit file when the logger writes to a rotating file.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r, ok := l.out.(interface{ Rotate() error }); ok {
		return r.Rotate()
	}
	return nil
}
