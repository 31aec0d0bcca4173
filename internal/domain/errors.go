package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies recoverable pipeline failures
type ErrorKind string

const (
	// CollectionError: a single field, frame or variable could not be read
	CollectionError ErrorKind = "collection"
	// RedactionError: a value could not be serialized while scrubbing
	RedactionError ErrorKind = "redaction"
	// CapacityError: a buffer or history hit its bound and evicted
	CapacityError ErrorKind = "capacity"
	// EscalationError: the analysis client failed or timed out
	EscalationError ErrorKind = "escalation"
)

// PipelineError records a failure that was recovered inside a pipeline step
type PipelineError struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s error on %s: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewPipelineError wraps err with a kind and field name
func NewPipelineError(kind ErrorKind, field string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Field: field, Err: err}
}

// IsKind reports whether err is a PipelineError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == kind
}

var (
	// ErrSessionTerminated is returned when ingesting into a terminated session
	ErrSessionTerminated = errors.New("session terminated")
	// ErrSessionNotFound is returned by queries for unknown sessions
	ErrSessionNotFound = errors.New("session not found")
)
