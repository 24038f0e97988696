package audit

import (
	"context"
	"fmt"
)

// MultiLogger fans events out to several loggers synchronously
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to every destination
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes to every logger and returns the first error. A failing
// destination does not stop the others.
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every logger
func (m *MultiLogger) Close() error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing audit loggers: %v", errs)
	}
	return nil
}
