// Package session tracks the lifecycle of debug sessions: the first event
// opens a session, Terminate closes it, and every session keeps running
// counters that become the summary of its session_end record.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vburojevic/dcw/internal/domain"
)

// End reasons carried by session_end records
const (
	ReasonTerminated = "terminated"
	ReasonStreamEnd  = "stream_end"
)

// Tracker monitors events per session id
type Tracker struct {
	mu       sync.Mutex
	clock    clock.Clock
	sessions map[string]*state
}

type state struct {
	started    time.Time
	ended      time.Time
	terminated bool
	summary    domain.SessionSummary
}

// SessionChange contains the record emitted when a session opens
type SessionChange struct {
	StartSession *domain.SessionStart
}

// NewTracker creates a new session tracker
func NewTracker(clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		clock:    clk,
		sessions: make(map[string]*state),
	}
}

// Observe counts an event for its session. The first event of a session
// returns a SessionChange; events for a terminated session are counted as
// rejected and return ErrSessionTerminated.
func (t *Tracker) Observe(sessionID string, eventType domain.EventType, consoleErrors int) (*SessionChange, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if ok && s.terminated {
		s.summary.Rejected++
		return nil, domain.ErrSessionTerminated
	}

	var change *SessionChange
	if !ok {
		s = &state{started: t.clock.Now()}
		t.sessions[sessionID] = s
		change = &SessionChange{StartSession: domain.NewSessionStart(sessionID, eventType, s.started)}
	}

	s.summary.TotalEvents++
	switch eventType {
	case domain.EventBreakpoint:
		s.summary.Breakpoints++
	case domain.EventException:
		s.summary.Exceptions++
	case domain.EventStep:
		s.summary.Steps++
	case domain.EventConsole:
		s.summary.ConsoleEvents++
	}
	s.summary.ConsoleErrors += consoleErrors
	return change, nil
}

// Active reports whether a session has been seen and not terminated
func (t *Tracker) Active(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	return ok && !s.terminated
}

// Terminated reports whether a session was terminated
func (t *Tracker) Terminated(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	return ok && s.terminated
}

// Terminate closes a session and returns its session_end record. A session
// never seen is registered as terminated so later events are rejected.
// Terminating twice returns nil.
func (t *Tracker) Terminate(sessionID string) *domain.SessionEnd {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	s, ok := t.sessions[sessionID]
	if !ok {
		s = &state{started: now}
		t.sessions[sessionID] = s
	}
	if s.terminated {
		return nil
	}
	s.terminated = true
	s.ended = now
	return domain.NewSessionEnd(sessionID, ReasonTerminated, t.summaryLocked(s))
}

// Summary returns the running summary for a session
func (t *Tracker) Summary(sessionID string) (domain.SessionSummary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return domain.SessionSummary{}, false
	}
	return t.summaryLocked(s), true
}

// Finish returns session_end records for every session still active, in
// session id order, for use when the event stream ends.
func (t *Tracker) Finish() []*domain.SessionEnd {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.sessions))
	for id, s := range t.sessions {
		if !s.terminated {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	now := t.clock.Now()
	out := make([]*domain.SessionEnd, 0, len(ids))
	for _, id := range ids {
		s := t.sessions[id]
		s.ended = now
		out = append(out, domain.NewSessionEnd(id, ReasonStreamEnd, t.summaryLocked(s)))
	}
	return out
}

// Forget drops all state for a session, including a termination
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}

func (t *Tracker) summaryLocked(s *state) domain.SessionSummary {
	end := s.ended
	if end.IsZero() {
		end = t.clock.Now()
	}
	summary := s.summary
	summary.DurationSeconds = int(end.Sub(s.started).Seconds())
	return summary
}
