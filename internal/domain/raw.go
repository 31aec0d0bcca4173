package domain

import (
	"strings"
	"time"
)

// RawFrame is a stack frame as reported by the debug adapter
type RawFrame struct {
	Name   string `json:"name,omitempty"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// RawVariable is a variable as reported by the debug adapter. Value is kept
// opaque until the normalizer types it; Type is optional.
type RawVariable struct {
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
	Type  string `json:"type,omitempty"`
	Scope string `json:"scope,omitempty"`
}

// RawLogEntry is a console line as reported by the debug adapter
type RawLogEntry struct {
	Level         string    `json:"level,omitempty"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
	Source        string    `json:"source,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// RawEvent is one event from the debug-event source. Every field is optional;
// Normalize fills documented defaults.
type RawEvent struct {
	SessionID    string           `json:"session_id"`
	EventType    string           `json:"event_type,omitempty"`
	ThreadID     int              `json:"thread_id,omitempty"`
	FrameID      int              `json:"frame_id,omitempty"`
	Timestamp    time.Time        `json:"timestamp,omitempty"`
	Location     *SourceLocation  `json:"location,omitempty"`
	Frames       []RawFrame       `json:"frames,omitempty"`
	Variables    []RawVariable    `json:"variables,omitempty"`
	Console      []RawLogEntry    `json:"console,omitempty"`
	Network      []RawNetworkPair `json:"network,omitempty"`
	Exception    *ExceptionInfo   `json:"exception,omitempty"`
	HighPriority bool             `json:"high_priority,omitempty"`
	UserQuery    string           `json:"user_query,omitempty"`
	Language     string           `json:"language,omitempty"`
}

const (
	// DefaultSessionID is used when the source omits a session identifier
	DefaultSessionID = "default"
	// UnknownFile is the placeholder for absent source locations
	UnknownFile = "unknown"
)

// Normalize returns a copy with absent fields set to their defaults:
// session "default", event type breakpoint, location unknown:0:0 (or the top
// frame's position when frames are present) and timestamp now.
func (e RawEvent) Normalize(now time.Time) RawEvent {
	e.SessionID = strings.TrimSpace(e.SessionID)
	if e.SessionID == "" {
		e.SessionID = DefaultSessionID
	}
	e.EventType = string(ParseEventType(e.EventType))
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Location == nil {
		loc := SourceLocation{File: UnknownFile}
		if len(e.Frames) > 0 && e.Frames[0].File != "" {
			loc = SourceLocation{File: e.Frames[0].File, Line: e.Frames[0].Line, Column: e.Frames[0].Column}
		}
		e.Location = &loc
	} else if strings.TrimSpace(e.Location.File) == "" {
		loc := *e.Location
		loc.File = UnknownFile
		e.Location = &loc
	}
	return e
}
