// Package securitylog defines the security event model used for decision
// auditing and provides slog-backed and no-op logger implementations.
// Event delivery is fire-and-forget: logging failures never affect an
// authorization decision, and event persistence is the concern of whatever
// sits behind the configured handler.
package securitylog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Decision values recorded on security events.
const (
	DecisionAllowed = "allowed"
	DecisionDenied  = "denied"
)

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a single security-relevant occurrence: a policy decision,
// an enforcement action, a cross-tenant access attempt.
type Event struct {
	ID         string         `json:"id"`
	OrgID      string         `json:"org_id"`
	UserID     string         `json:"user_id,omitempty"`
	Type       string         `json:"type"`
	Operation  string         `json:"operation,omitempty"`
	Resource   string         `json:"resource,omitempty"`
	ResourceID string         `json:"resource_id,omitempty"`
	Decision   string         `json:"decision,omitempty"`
	Severity   Severity       `json:"severity,omitempty"`
	Message    string         `json:"message,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Logger records security events.
type Logger interface {
	// LogSecurityEvent records one event. Implementations must not block
	// the caller's decision path on delivery failures.
	LogSecurityEvent(ctx context.Context, event Event)
}

// SlogLogger emits security events as structured slog records.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a Logger writing to the given slog logger.
// Panics if logger is nil.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		panic("securitylog: logger cannot be nil")
	}
	return &SlogLogger{logger: logger}
}

// LogSecurityEvent writes the event as one structured log record.
// Missing IDs and timestamps are filled in.
func (l *SlogLogger) LogSecurityEvent(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	level := slog.LevelInfo
	switch event.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("org_id", event.OrgID),
		slog.String("type", event.Type),
		slog.Time("created_at", event.CreatedAt),
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Operation != "" {
		attrs = append(attrs, slog.String("operation", event.Operation))
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}
	if event.ResourceID != "" {
		attrs = append(attrs, slog.String("resource_id", event.ResourceID))
	}
	if event.Decision != "" {
		attrs = append(attrs, slog.String("decision", event.Decision))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	msg := event.Message
	if msg == "" {
		msg = "security event"
	}

	l.logger.LogAttrs(ctx, level, msg, attrs...)
}

// NopLogger discards all events.
type NopLogger struct{}

// NewNopLogger creates a Logger that drops everything.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// LogSecurityEvent does nothing.
func (*NopLogger) LogSecurityEvent(ctx context.Context, event Event) {}
