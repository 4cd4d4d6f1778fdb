// ABOUTME: Audit sinks: structured slog, rotating JSON-lines file, SQLite and fan-out
// ABOUTME: Every sink normalizes the event before recording it

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/2389/tool-gateway/internal/store"
)

// Logger records audit events.
type Logger interface {
	Log(ctx context.Context, e Event) error
}

// SlogLogger writes events through a slog logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a sink tagged component=audit.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger.With("component", "audit")}
}

// Log implements Logger.
func (l *SlogLogger) Log(ctx context.Context, e Event) error {
	e = e.normalize()
	l.logger.InfoContext(ctx, "audit",
		"event", string(e.Type),
		"actor", e.Actor,
		"outcome", string(e.Outcome),
		"ts", e.Time.Unix(),
		"context", e.Context,
	)
	return nil
}

// FileLogger appends one JSON object per line to a size-rotated file.
type FileLogger struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// FileOptions configures rotation.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileLogger opens a rotating audit file.
func NewFileLogger(opts FileOptions) *FileLogger {
	return &FileLogger{w: &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}}
}

type fileRecord struct {
	TS      int64          `json:"ts"`
	Event   EventType      `json:"event"`
	Actor   string         `json:"actor"`
	Outcome Outcome        `json:"outcome"`
	Context map[string]any `json:"context"`
}

// Log implements Logger.
func (l *FileLogger) Log(_ context.Context, e Event) error {
	e = e.normalize()
	line, err := json.Marshal(fileRecord{
		TS:      e.Time.Unix(),
		Event:   e.Type,
		Actor:   e.Actor,
		Outcome: e.Outcome,
		Context: e.Context,
	})
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(line); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

// StoreLogger appends events to the audit_log table.
type StoreLogger struct {
	store store.AuditStore
}

// NewStoreLogger creates a sink backed by s.
func NewStoreLogger(s store.AuditStore) *StoreLogger {
	return &StoreLogger{store: s}
}

// Log implements Logger.
func (l *StoreLogger) Log(ctx context.Context, e Event) error {
	e = e.normalize()
	return l.store.AppendAuditLog(ctx, &store.AuditEntry{
		Actor:     e.Actor,
		Event:     string(e.Type),
		Outcome:   string(e.Outcome),
		Timestamp: e.Time,
		Detail:    e.Context,
	})
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Logger

// Log implements Logger.
func (m Multi) Log(ctx context.Context, e Event) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.Log(ctx, e))
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Log implements Logger.
func (Nop) Log(context.Context, Event) error { return nil }
