package audit

import (
	"context"
	"fmt"
)

// MultiLogger fans each entry out to several sinks. Every sink is attempted;
// the first failure is returned wrapped in a SinkError.
type MultiLogger struct {
	sinks []Sink
}

// NewMultiLogger creates a sink that writes to all of the given sinks
func NewMultiLogger(sinks ...Sink) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

func (m *MultiLogger) Name() string { return "multi" }

// Write writes entry to every sink in order
func (m *MultiLogger) Write(ctx context.Context, entry *Entry) error {
	var firstErr error

	for _, sink := range m.sinks {
		if err := sink.Write(ctx, entry); err != nil {
			if firstErr == nil {
				firstErr = &SinkError{Sink: sink.Name(), Err: err}
			}
		}
	}

	return firstErr
}

// Close closes all sinks
func (m *MultiLogger) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s sink: %w", sink.Name(), err)
		}
	}
	return firstErr
}
