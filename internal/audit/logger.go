package audit

// Package audit writes automation events to an append-only, rotated JSON
// file. Logger implements automation.Sink.

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tablewise/tablewise-insights/internal/automation"
	"github.com/tablewise/tablewise-insights/internal/logging"
)

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// BufferSize is the number of events held before a forced flush
	BufferSize int

	// FlushInterval is how often buffered events are written
	FlushInterval time.Duration
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath:  "logs/audit.log",
		MaxSize:       100, // megabytes
		MaxBackups:    10,
		MaxAge:        30, // days
		Compress:      true,
		BufferSize:    100,
		FlushInterval: time.Second,
	}
}

// Logger buffers audit events and writes them through a dedicated zap core.
type Logger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	rotator     *lumberjack.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
}

// NewLogger creates a new audit logger. appLogger receives marshal
// failures; nil discards them.
func NewLogger(config *Config, appLogger *zap.Logger) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AuditLogPath == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultConfig().FlushInterval
	}
	if appLogger == nil {
		appLogger = zap.NewNop()
	}

	// Audit logs are always INFO level and append-only
	rotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(logging.EncoderConfig()),
		zapcore.AddSync(rotator),
		zapcore.InfoLevel,
	)

	l := &Logger{
		appLogger:   appLogger,
		auditLogger: zap.New(auditCore),
		rotator:     rotator,
		config:      config,
		buffer:      make([]*Event, 0, config.BufferSize),
		flushTicker: time.NewTicker(config.FlushInterval),
		stopCh:      make(chan struct{}),
	}

	go l.autoFlush()

	return l, nil
}

// Name identifies the sink in metrics and logs.
func (l *Logger) Name() string {
	return "audit_file"
}

// Log buffers an audit event
func (l *Logger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= l.config.BufferSize {
		return l.flushLocked()
	}
	return nil
}

// RecordAction logs an audit entry from the automation engine.
func (l *Logger) RecordAction(ctx context.Context, entry automation.LogEntry) error {
	var event *Event
	switch entry.Status {
	case automation.StatusExecuted:
		event = NewEvent(EventActionExecuted).WithResult(ResultSuccess)
	case automation.StatusRejected:
		event = NewEvent(EventActionRejected).WithResult(ResultDenied)
	case automation.StatusExpired:
		event = NewEvent(EventActionExpired).WithResult(ResultFailure)
	default:
		event = NewEvent(EventActionFailed).WithResult(ResultFailure)
	}
	event.WithCorrelationID(entry.InsightID).
		WithAction(entry.Action).
		WithResource(entry.ID).
		WithUser(entry.Actor).
		WithTimestamp(entry.Timestamp).
		WithDurationMs(entry.DurationMs).
		WithError(entry.Error).
		WithDescription(fmt.Sprintf("Action %s %s", entry.Action, entry.Status))
	if entry.ApprovalID != "" {
		event.WithMetadata("approval_id", entry.ApprovalID)
	}
	return l.Log(ctx, event)
}

// RecordApproval logs approval lifecycle transitions. Terminal outcomes
// after approval are covered by RecordAction.
func (l *Logger) RecordApproval(ctx context.Context, req automation.ApprovalRequest) error {
	var event *Event
	switch req.Status {
	case automation.ApprovalPending:
		event = NewEvent(EventActionPendingApproval).
			WithResult(ResultPending).
			WithTimestamp(req.CreatedAt).
			WithDescription(fmt.Sprintf("Action %s awaiting approval: %s", req.Action, req.Reason)).
			WithMetadata("expires_at", req.ExpiresAt)
	case automation.ApprovalApproved:
		event = NewEvent(EventActionApproved).
			WithResult(ResultSuccess).
			WithUser(req.ResolvedBy).
			WithDescription(fmt.Sprintf("Action %s approved by %s", req.Action, req.ResolvedBy))
	default:
		return nil
	}
	event.WithCorrelationID(req.InsightID).
		WithAction(string(req.Action)).
		WithResource(req.ID).
		WithMetadata("category", string(req.Category)).
		WithMetadata("impact", string(req.Impact))
	return l.Log(ctx, event)
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *Logger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]
	return nil
}

// autoFlush periodically flushes the buffer
func (l *Logger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// Sync flushes buffered log entries
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}
	return l.auditLogger.Sync()
}

// Close flushes and closes the audit file
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()
		if err = l.Sync(); err != nil {
			return
		}
		err = l.rotator.Close()
	})
	return err
}
