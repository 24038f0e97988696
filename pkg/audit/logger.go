package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tracker/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close flushes any buffered events
	Close() error
}

// stamp fills the timestamp and request ID when the caller left them empty
func stamp(ctx context.Context, event *AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.RequestID(ctx)
	}
}

// NoopLogger discards every event
type NoopLogger struct{}

func (NoopLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (NoopLogger) Close() error                                      { return nil }

// LogrusLogger writes events as structured log entries on a dedicated logger
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates an audit logger writing through logger
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

func (l *LogrusLogger) Log(ctx context.Context, event *AuditEvent) error {
	stamp(ctx, event)

	fields := logrus.Fields{
		"audit":         true,
		"event_type":    event.EventType,
		"status":        event.Status,
		"actor_id":      event.ActorID,
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID,
		"timestamp":     event.Timestamp,
	}
	if event.TargetUserID != nil {
		fields["target_user_id"] = *event.TargetUserID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	if event.Changes != nil {
		fields["before"] = event.Changes.Before
		fields["after"] = event.Changes.After
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.logger.WithFields(fields)
	switch event.Status {
	case EventStatusDenied, EventStatusConflict, EventStatusFailure:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
	return nil
}

func (l *LogrusLogger) Close() error { return nil }

// MemoryLogger keeps events in memory, in arrival order
type MemoryLogger struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewMemoryLogger creates an empty in-memory audit logger
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (m *MemoryLogger) Log(ctx context.Context, event *AuditEvent) error {
	stamp(ctx, event)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

// Events returns a copy of the recorded events
func (m *MemoryLogger) Events() []AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Filter returns the recorded events of one type
func (m *MemoryLogger) Filter(eventType EventType) []AuditEvent {
	var out []AuditEvent
	for _, e := range m.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryLogger) Close() error { return nil }
