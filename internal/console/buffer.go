// Package console buffers the debuggee's console output. Messages are
// scrubbed before they are stored, so nothing read back from a Buffer
// carries a sensitive fragment.
package console

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/filter"
	"github.com/vburojevic/dcw/internal/redact"
)

// DefaultCapacity matches the default max_console_entries setting
const DefaultCapacity = 50

// Buffer is a fixed-capacity ring of console entries in arrival order. The
// adapter delivers lines already time-ordered, so the buffer does not re-sort.
type Buffer struct {
	mu           sync.RWMutex
	entries      []domain.LogEntry
	capacity     int
	engine       *redact.Engine
	clock        clock.Clock
	dedupe       *filter.DedupeFilter
	dedupeOn     bool
	dedupeWindow time.Duration
	dropped      int
	folded       int
}

// Option configures a Buffer
type Option func(*Buffer)

// WithClock sets the clock used to stamp entries that arrive without a time
func WithClock(c clock.Clock) Option {
	return func(b *Buffer) { b.clock = c }
}

// WithDedupe folds repeated lines, window=0 folds consecutive repeats only
func WithDedupe(window time.Duration) Option {
	return func(b *Buffer) {
		b.dedupeOn = true
		b.dedupeWindow = window
	}
}

// NewBuffer creates a buffer scrubbing with engine. A nil engine stores
// messages unchanged.
func NewBuffer(capacity int, engine *redact.Engine, opts ...Option) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		capacity: capacity,
		engine:   engine,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.dedupeOn {
		b.dedupe = filter.NewDedupeFilter(b.dedupeWindow, b.clock)
	}
	return b
}

// Append scrubs and stores an entry. It reports false when the entry was
// folded into a duplicate.
func (b *Buffer) Append(entry domain.LogEntry) bool {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = b.clock.Now()
	}
	if entry.Level == "" {
		entry.Level = domain.LogLevelLog
	}
	if b.engine != nil {
		entry.Message = b.engine.ScrubString(entry.Message)
		entry.Source = redact.SanitizePath(entry.Source)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dedupe != nil && !b.dedupe.Check(&entry).ShouldEmit {
		b.folded++
		return false
	}

	b.entries = append(b.entries, entry)
	b.trim()
	return true
}

// trim drops the oldest entries past capacity. Callers hold mu.
func (b *Buffer) trim() {
	if over := len(b.entries) - b.capacity; over > 0 {
		b.entries = append(b.entries[:0], b.entries[over:]...)
		b.dropped += over
	}
}

// SetEngine switches the engine later appends are scrubbed with and
// re-scrubs what is already buffered.
func (b *Buffer) SetEngine(engine *redact.Engine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if engine == nil || engine == b.engine {
		return
	}
	b.engine = engine
	for i := range b.entries {
		b.entries[i].Message = engine.ScrubString(b.entries[i].Message)
		b.entries[i].Source = redact.SanitizePath(b.entries[i].Source)
	}
}

// Resize changes the capacity, dropping the oldest entries when it shrinks
func (b *Buffer) Resize(capacity int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capacity = capacity
	b.trim()
}

// AppendRaw converts and appends adapter console lines
func (b *Buffer) AppendRaw(raw []domain.RawLogEntry) {
	for _, r := range raw {
		b.Append(FromRaw(r))
	}
}

// FromRaw converts an adapter console line
func FromRaw(r domain.RawLogEntry) domain.LogEntry {
	return domain.LogEntry{
		Level:         domain.ParseLogLevel(r.Level),
		Message:       strings.TrimRight(r.Message, "\r\n"),
		Timestamp:     r.Timestamp,
		Source:        r.Source,
		CorrelationID: r.CorrelationID,
	}
}

// Recent returns up to n newest entries, oldest first
func (b *Buffer) Recent(n int) []domain.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n = min(max(n, 0), len(b.entries))
	out := make([]domain.LogEntry, n)
	copy(out, b.entries[len(b.entries)-n:])
	return out
}

// All returns every buffered entry, oldest first
func (b *Buffer) All() []domain.LogEntry {
	return b.Recent(b.Cap())
}

// Since returns entries stamped at or after t, in arrival order
func (b *Buffer) Since(t time.Time) []domain.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.LogEntry
	for _, e := range b.entries {
		if !e.Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	return out
}

// Where returns the entries matching every clause, e.g. "level>=warn"
func (b *Buffer) Where(clauses ...string) ([]domain.LogEntry, error) {
	f, err := filter.NewWhereFilter(clauses)
	if err != nil {
		return nil, err
	}
	return b.Select(filter.NewPipeline(nil, nil, f)), nil
}

// Select returns the entries a pipeline accepts
func (b *Buffer) Select(p *filter.Pipeline) []domain.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.LogEntry
	for i := range b.entries {
		if p.Match(&b.entries[i]) {
			out = append(out, b.entries[i])
		}
	}
	return out
}

// Len returns the number of buffered entries
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Cap returns the buffer capacity
func (b *Buffer) Cap() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.capacity
}

// Dropped returns how many entries were evicted for capacity
func (b *Buffer) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Folded returns how many entries were folded as duplicates
func (b *Buffer) Folded() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.folded
}

// Clear empties the buffer and forgets dedupe state
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	if b.dedupe != nil {
		b.dedupe.Reset()
	}
}
