package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/vburojevic/dcw/internal/domain"
)

// SchemaVersion is stamped on every NDJSON record
const SchemaVersion = 1

// ContextRecord is a committed, redacted debug context
type ContextRecord struct {
	Type          string `json:"type"` // "context"
	SchemaVersion int    `json:"schemaVersion"`
	*domain.DebugContext
	Errors []string `json:"recovered_errors,omitempty"`
}

// ProjectionRecord is the ranked projection handed to the analysis client
type ProjectionRecord struct {
	Type          string `json:"type"` // "projection"
	SchemaVersion int    `json:"schemaVersion"`
	domain.AIReadyContext
}

// InsightRecord is an analysis result
type InsightRecord struct {
	Type          string `json:"type"` // "insight"
	SchemaVersion int    `json:"schemaVersion"`
	domain.Insight
}

// ErrorRecord is a machine-readable failure
type ErrorRecord struct {
	Type          string `json:"type"` // "error"
	SchemaVersion int    `json:"schemaVersion"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Hint          string `json:"hint,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
}

// ClearedRecord reports a history clear
type ClearedRecord struct {
	Type          string `json:"type"` // "cleared"
	SchemaVersion int    `json:"schemaVersion"`
	SessionID     string `json:"session_id,omitempty"`
	Removed       int    `json:"removed"`
}

// Writer emits pipeline records in one output format
type Writer interface {
	WriteContext(dc *domain.DebugContext, recovered []error) error
	WriteProjection(p domain.AIReadyContext) error
	WriteInsight(i domain.Insight) error
	WriteSessionStart(s *domain.SessionStart) error
	WriteSessionEnd(s *domain.SessionEnd) error
	WriteStats(s domain.PipelineStats) error
	WriteCleared(sessionID string, removed int) error
	WriteError(code, message string, hint ...string) error
}

// NDJSONWriter writes one JSON object per line. Safe for concurrent use so
// insights delivered off the ingest path interleave whole lines.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewNDJSONWriter creates a writer on w
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSONWriter{enc: enc}
}

// Write encodes any record as a single line
func (w *NDJSONWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

func (w *NDJSONWriter) WriteContext(dc *domain.DebugContext, recovered []error) error {
	rec := ContextRecord{Type: "context", SchemaVersion: SchemaVersion, DebugContext: dc}
	for _, err := range recovered {
		rec.Errors = append(rec.Errors, err.Error())
	}
	return w.Write(rec)
}

func (w *NDJSONWriter) WriteProjection(p domain.AIReadyContext) error {
	return w.Write(ProjectionRecord{Type: "projection", SchemaVersion: SchemaVersion, AIReadyContext: p})
}

func (w *NDJSONWriter) WriteInsight(i domain.Insight) error {
	return w.Write(InsightRecord{Type: "insight", SchemaVersion: SchemaVersion, Insight: i})
}

func (w *NDJSONWriter) WriteSessionStart(s *domain.SessionStart) error { return w.Write(s) }

func (w *NDJSONWriter) WriteSessionEnd(s *domain.SessionEnd) error { return w.Write(s) }

func (w *NDJSONWriter) WriteStats(s domain.PipelineStats) error {
	s.Type = "stats"
	s.SchemaVersion = SchemaVersion
	return w.Write(s)
}

func (w *NDJSONWriter) WriteCleared(sessionID string, removed int) error {
	return w.Write(ClearedRecord{Type: "cleared", SchemaVersion: SchemaVersion, SessionID: sessionID, Removed: removed})
}

// WriteError writes an error record; the first hint, if any, is kept
func (w *NDJSONWriter) WriteError(code, message string, hint ...string) error {
	rec := ErrorRecord{Type: "error", SchemaVersion: SchemaVersion, Code: code, Message: message}
	if len(hint) > 0 {
		rec.Hint = hint[0]
	}
	return w.Write(rec)
}

// WriteSessionError writes an error record scoped to one session
func (w *NDJSONWriter) WriteSessionError(sessionID, code, message string) error {
	return w.Write(ErrorRecord{Type: "error", SchemaVersion: SchemaVersion, Code: code, Message: message, SessionID: sessionID})
}
