// Package testutil provides common test utilities for the descriptor
// service.
package testutil

import (
	"sync"

	"github.com/atomistic/descriptor/internal/monitoring/logging"
)

// MockLogger implements logging.Logger for testing purposes.  It records log
// messages and can be used to verify logging behavior.
type MockLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
}

// LogMessage represents a single log entry captured by MockLogger.
type LogMessage struct {
	Level   string
	Message string
	Fields  []logging.Field
}

// NewMockLogger creates a new MockLogger instance.
func NewMockLogger() *MockLogger {
	return &MockLogger{Messages: make([]LogMessage, 0)}
}

func (m *MockLogger) log(level, msg string, fields []logging.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, LogMessage{Level: level, Message: msg, Fields: fields})
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.log("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.log("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.log("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.log("error", msg, fields) }

// Fatal records the entry without terminating, so tests can assert on it.
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.log("fatal", msg, fields) }

// With returns the same logger; field accumulation is not modeled.
func (m *MockLogger) With(_ ...logging.Field) logging.Logger { return m }

// Named returns the same logger; name chains are not modeled.
func (m *MockLogger) Named(_ string) logging.Logger { return m }

// HasMessage reports whether any captured entry carries msg.
func (m *MockLogger) HasMessage(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Messages {
		if e.Message == msg {
			return true
		}
	}
	return false
}

// CountLevel returns the number of entries captured at level.
func (m *MockLogger) CountLevel(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Messages {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Reset drops all captured entries.
func (m *MockLogger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = m.Messages[:0]
}
