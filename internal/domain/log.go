package domain

import (
	"strings"
	"time"
)

// LogLevel is the severity of a console entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelLog   LogLevel = "log"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Priority returns a sortable severity, unknown levels rank as log
func (l LogLevel) Priority() int {
	switch l {
	case LogLevelDebug:
		return 0
	case LogLevelLog:
		return 1
	case LogLevelInfo:
		return 2
	case LogLevelWarn:
		return 3
	case LogLevelError:
		return 4
	default:
		return 1
	}
}

// ParseLogLevel converts a console method name to a LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error", "fatal", "assert":
		return LogLevelError
	default:
		return LogLevelLog
	}
}

// LogEntry is a single console line captured from the debuggee
type LogEntry struct {
	Level         LogLevel  `json:"level"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}
