package domain

import (
	"strings"
	"time"
)

// EventType is the kind of debugger event a context was captured for
type EventType string

const (
	EventBreakpoint EventType = "breakpoint"
	EventException  EventType = "exception"
	EventStep       EventType = "step"
	EventConsole    EventType = "console"
)

// ParseEventType maps a raw event name onto an EventType, defaulting to breakpoint
func ParseEventType(s string) EventType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exception", "error":
		return EventException
	case "step", "step_complete", "stepcomplete":
		return EventStep
	case "console", "output", "log":
		return EventConsole
	default:
		return EventBreakpoint
	}
}

// FrameScope tags where a stack frame's code lives
type FrameScope string

const (
	FrameUserCode        FrameScope = "user_code"
	FrameExternalLibrary FrameScope = "external_library"
	FrameRuntimeInternal FrameScope = "runtime_internal"
	FrameUnknown         FrameScope = "unknown"
)

// Rank orders frame scopes for display, user code first
func (s FrameScope) Rank() int {
	switch s {
	case FrameUserCode:
		return 0
	case FrameExternalLibrary:
		return 1
	case FrameRuntimeInternal:
		return 2
	default:
		return 3
	}
}

// VariableScope is the lexical scope a variable was captured from
type VariableScope string

const (
	ScopeLocal   VariableScope = "local"
	ScopeClosure VariableScope = "closure"
	ScopeGlobal  VariableScope = "global"
)

// ParseVariableScope maps debugger scope names (locals, arguments, globals...) onto a VariableScope
func ParseVariableScope(s string) VariableScope {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closure", "closures", "block", "with", "script", "catch":
		return ScopeClosure
	case "global", "globals", "module", "static":
		return ScopeGlobal
	default:
		return ScopeLocal
	}
}

// Order returns the fixed concatenation order of scopes: local, closure, global
func (s VariableScope) Order() int {
	switch s {
	case ScopeLocal:
		return 0
	case ScopeClosure:
		return 1
	default:
		return 2
	}
}

// ValueType is the inferred type of a variable's value
type ValueType string

const (
	TypeNull      ValueType = "null"
	TypeUndefined ValueType = "undefined"
	TypeBoolean   ValueType = "boolean"
	TypeNumber    ValueType = "number"
	TypeString    ValueType = "string"
	TypeArray     ValueType = "array"
	TypeObject    ValueType = "object"
	TypeUnknown   ValueType = "unknown"
)

// RedactedMarker replaces every value classified as sensitive.
const RedactedMarker = "[REDACTED]"

// SourceLocation is a file position
type SourceLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// StackFrame is a normalized call stack frame
type StackFrame struct {
	Name   string     `json:"name"`
	File   string     `json:"file"`
	Line   int        `json:"line"`
	Column int        `json:"column"`
	Scope  FrameScope `json:"scope"`
}

// VariableSnapshot is a normalized variable captured at a stop
type VariableSnapshot struct {
	Name       string        `json:"name"`
	Value      string        `json:"value"`
	Type       ValueType     `json:"type"`
	Scope      VariableScope `json:"scope"`
	IsRedacted bool          `json:"is_redacted"`
	Size       int           `json:"size,omitempty"`
	Complexity int           `json:"complexity,omitempty"`
}

// ExceptionInfo describes a thrown exception
type ExceptionInfo struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// DebugContext is the canonical record for one observed debug event
type DebugContext struct {
	ID              string             `json:"id"`
	SessionID       string             `json:"session_id"`
	Timestamp       time.Time          `json:"timestamp"`
	SourceTimestamp *time.Time         `json:"source_timestamp,omitempty"`
	EventType       EventType          `json:"event_type"`
	SourceLocation  SourceLocation     `json:"source_location"`
	StackTrace      []StackFrame       `json:"stack_trace"`
	Variables       []VariableSnapshot `json:"variables"`
	ConsoleOutput   []LogEntry         `json:"console_output"`
	NetworkActivity []NetworkRecord    `json:"network_activity"`
	Exception       *ExceptionInfo     `json:"exception,omitempty"`
}

// Clone returns a deep copy so pipeline stages never share slices with committed history
func (c *DebugContext) Clone() *DebugContext {
	if c == nil {
		return nil
	}
	out := *c
	out.StackTrace = append([]StackFrame{}, c.StackTrace...)
	out.Variables = append([]VariableSnapshot{}, c.Variables...)
	out.ConsoleOutput = append([]LogEntry{}, c.ConsoleOutput...)
	out.NetworkActivity = make([]NetworkRecord, len(c.NetworkActivity))
	for i, rec := range c.NetworkActivity {
		out.NetworkActivity[i] = rec.Clone()
	}
	if c.Exception != nil {
		exc := *c.Exception
		out.Exception = &exc
	}
	if c.SourceTimestamp != nil {
		ts := *c.SourceTimestamp
		out.SourceTimestamp = &ts
	}
	return &out
}

// HasException reports whether an exception is attached
func (c *DebugContext) HasException() bool {
	return c != nil && c.Exception != nil
}
