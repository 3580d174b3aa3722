// File path: internal/common/log.go
package common

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultLogHistory = 1000

var (
	logger     *zerolog.Logger
	loggerOnce sync.Once
	sink       = newLogSink(defaultLogHistory)
)

// LogEntry represents a captured log record emitted via the common logger.
type LogEntry struct {
	Time       time.Time              `json:"time"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Logger returns a singleton zerolog logger configured via LOG_LEVEL and LOG_FORMAT.
// Every event is also captured into an in-memory ring buffer served by LogEntries.
func Logger() *zerolog.Logger {
	loggerOnce.Do(func() {
		level := zerolog.InfoLevel
		if lvl := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))); lvl != "" {
			if parsed, err := zerolog.ParseLevel(lvl); err == nil {
				level = parsed
			}
		}
		var out io.Writer = os.Stdout
		if !strings.EqualFold(strings.TrimSpace(os.Getenv("LOG_FORMAT")), "json") {
			out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		}
		l := zerolog.New(zerolog.MultiLevelWriter(out, sink)).Level(level).With().Timestamp().Logger()
		logger = &l
	})
	return logger
}

// LogEntries returns a copy of the captured log entries.
func LogEntries() []LogEntry {
	if sink == nil {
		return nil
	}
	return sink.entries()
}

type logSink struct {
	mu      sync.RWMutex
	max     int
	history []LogEntry
}

func newLogSink(max int) *logSink {
	if max <= 0 {
		max = defaultLogHistory
	}
	return &logSink{max: max}
}

// Write receives one JSON encoded zerolog event per call.
func (s *logSink) Write(p []byte) (int, error) {
	entry, ok := buildLogEntry(p)
	if !ok {
		return len(p), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	if len(s.history) > s.max {
		s.history = s.history[len(s.history)-s.max:]
	}
	return len(p), nil
}

func (s *logSink) entries() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return nil
	}
	out := make([]LogEntry, len(s.history))
	copy(out, s.history)
	return out
}

func buildLogEntry(p []byte) (LogEntry, bool) {
	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err != nil {
		return LogEntry{}, false
	}
	entry := LogEntry{}
	if raw, ok := fields[zerolog.TimestampFieldName].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			entry.Time = parsed
		}
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	entry.Time = entry.Time.In(time.UTC)
	entry.Level, _ = fields[zerolog.LevelFieldName].(string)
	entry.Message, _ = fields[zerolog.MessageFieldName].(string)

	delete(fields, zerolog.TimestampFieldName)
	delete(fields, zerolog.LevelFieldName)
	delete(fields, zerolog.MessageFieldName)

	if value, ok := fields["component"]; ok {
		entry.Component = strings.TrimSpace(valueString(value))
		delete(fields, "component")
	}
	if entry.Component == "" {
		if idx := strings.Index(entry.Message, ":"); idx > 0 {
			entry.Component = strings.TrimSpace(entry.Message[:idx])
		}
	}
	if len(fields) > 0 {
		entry.Attributes = fields
	}
	return entry, true
}

func valueString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
