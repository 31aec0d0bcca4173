package filter

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vburojevic/dcw/internal/domain"
)

// DedupeFilter collapses repeated identical console lines
type DedupeFilter struct {
	mu      sync.Mutex
	clock   clock.Clock
	window  time.Duration // 0 = consecutive only
	seen    map[string]*dedupeEntry
	lastKey string
}

type dedupeEntry struct {
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// NewDedupeFilter creates a new deduplication filter.
// window=0 collapses only consecutive identical lines, window>0 collapses
// identical lines seen within the window.
func NewDedupeFilter(window time.Duration, clk clock.Clock) *DedupeFilter {
	if clk == nil {
		clk = clock.New()
	}
	return &DedupeFilter{
		clock:  clk,
		window: window,
		seen:   make(map[string]*dedupeEntry),
	}
}

// DedupeResult holds the result of a dedupe check
type DedupeResult struct {
	ShouldEmit bool      // Whether this entry should be kept
	Count      int       // Number of occurrences so far (1 = first)
	FirstSeen  time.Time // First occurrence
	LastSeen   time.Time // Latest occurrence
}

// Check determines if an entry should be kept or folded into its predecessor
func (f *DedupeFilter) Check(entry *domain.LogEntry) DedupeResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := string(entry.Level) + "\x00" + entry.Message
	now := f.clock.Now()

	if f.window > 0 {
		f.cleanOldEntries(now)
	}

	if existing, ok := f.seen[key]; ok && (f.window > 0 || f.lastKey == key) {
		existing.count++
		existing.lastSeen = now
		return DedupeResult{
			ShouldEmit: false,
			Count:      existing.count,
			FirstSeen:  existing.firstSeen,
			LastSeen:   existing.lastSeen,
		}
	}

	if f.window == 0 {
		// consecutive mode only ever needs the previous line
		clear(f.seen)
	}
	f.seen[key] = &dedupeEntry{count: 1, firstSeen: now, lastSeen: now}
	f.lastKey = key

	return DedupeResult{
		ShouldEmit: true,
		Count:      1,
		FirstSeen:  now,
		LastSeen:   now,
	}
}

// Reset clears the deduplication state
func (f *DedupeFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = make(map[string]*dedupeEntry)
	f.lastKey = ""
}

// cleanOldEntries removes entries outside the time window
func (f *DedupeFilter) cleanOldEntries(now time.Time) {
	cutoff := now.Add(-f.window)
	for key, entry := range f.seen {
		if entry.lastSeen.Before(cutoff) {
			delete(f.seen, key)
		}
	}
}
