package domain

import "time"

// SessionStart is emitted when the first event of a debug session is seen
type SessionStart struct {
	Type          string `json:"type"`          // "session_start"
	SchemaVersion int    `json:"schemaVersion"` // 1
	SessionID     string `json:"session_id"`
	EventType     string `json:"first_event"`
	Timestamp     string `json:"timestamp"` // ISO8601 timestamp
}

// SessionEnd is emitted when a debug session terminates or the stream stops
type SessionEnd struct {
	Type          string         `json:"type"`          // "session_end"
	SchemaVersion int            `json:"schemaVersion"` // 1
	SessionID     string         `json:"session_id"`
	Reason        string         `json:"reason"` // terminated, stream_end
	Summary       SessionSummary `json:"summary"`
}

// SessionSummary contains statistics about a session
type SessionSummary struct {
	TotalEvents     int `json:"total_events"`
	Breakpoints     int `json:"breakpoints"`
	Exceptions      int `json:"exceptions"`
	Steps           int `json:"steps"`
	ConsoleEvents   int `json:"console_events"`
	ConsoleErrors   int `json:"console_errors"`
	Rejected        int `json:"rejected"`
	DurationSeconds int `json:"duration_seconds"`
}

// NewSessionStart creates a new SessionStart event
func NewSessionStart(sessionID string, first EventType, at time.Time) *SessionStart {
	return &SessionStart{
		Type:          "session_start",
		SchemaVersion: 1,
		SessionID:     sessionID,
		EventType:     string(first),
		Timestamp:     at.UTC().Format(time.RFC3339),
	}
}

// NewSessionEnd creates a new SessionEnd event
func NewSessionEnd(sessionID, reason string, summary SessionSummary) *SessionEnd {
	return &SessionEnd{
		Type:          "session_end",
		SchemaVersion: 1,
		SessionID:     sessionID,
		Reason:        reason,
		Summary:       summary,
	}
}
