package domain

import "time"

// RetentionPolicy bounds each session's history. MaxAge 0 keeps entries of
// any age; MaxSize is the per-session entry cap, 0 means the history bound.
type RetentionPolicy struct {
	MaxAge  time.Duration `mapstructure:"max_age" yaml:"max_age" json:"max_age"`
	MaxSize int           `mapstructure:"max_size" yaml:"max_size" json:"max_size"`
}

// PipelineStats is a point-in-time view of the aggregator's counters
type PipelineStats struct {
	Type             string            `json:"type"` // "stats"
	SchemaVersion    int               `json:"schemaVersion"`
	TotalEvents      int               `json:"total_events"`
	EventsByType     map[EventType]int `json:"events_by_type"`
	Rejected         int               `json:"rejected"`
	Sessions         int               `json:"sessions"`
	StoredContexts   int               `json:"stored_contexts"`
	Escalations      int               `json:"escalations"`
	EscalationErrors int               `json:"escalation_errors"`
	InsightsDropped  int               `json:"insights_dropped"`
	Evicted          int               `json:"evicted"`
	RecoveredErrors  map[ErrorKind]int `json:"recovered_errors,omitempty"`
	AvgLatency       time.Duration     `json:"avg_latency_ns"`
	MaxLatency       time.Duration     `json:"max_latency_ns"`
	LastEventAt      time.Time         `json:"last_event_at,omitzero"`
}
