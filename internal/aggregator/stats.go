package aggregator

import (
	"errors"
	"sync"
	"time"

	"github.com/vburojevic/dcw/internal/domain"
)

type statsCollector struct {
	mu               sync.Mutex
	total            int
	byType           map[domain.EventType]int
	rejectedCount    int
	escalations      int
	escalationErrors int
	insightsDropped  int
	evictedCount     int
	recoveredByKind  map[domain.ErrorKind]int
	latencyTotal     time.Duration
	latencyMax       time.Duration
	lastEventAt      time.Time
}

func newStatsCollector() *statsCollector {
	return &statsCollector{
		byType:          make(map[domain.EventType]int),
		recoveredByKind: make(map[domain.ErrorKind]int),
	}
}

func (s *statsCollector) ingested(t domain.EventType, latency time.Duration, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byType[t]++
	s.latencyTotal += latency
	s.latencyMax = max(s.latencyMax, latency)
	if at.After(s.lastEventAt) {
		s.lastEventAt = at
	}
}

func (s *statsCollector) rejected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectedCount++
}

func (s *statsCollector) escalated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalations++
}

func (s *statsCollector) escalationFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalationErrors++
	s.recoveredByKind[domain.EscalationError]++
}

func (s *statsCollector) insightDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insightsDropped++
}

func (s *statsCollector) evicted(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictedCount += n
}

func (s *statsCollector) recovered(err error) {
	var pe *domain.PipelineError
	if !errors.As(err, &pe) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recoveredByKind[pe.Kind]++
}

// Stats returns the pipeline counters and the current history size
func (a *Aggregator) Stats() domain.PipelineStats {
	a.mu.RLock()
	sessions := make([]*sessionState, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.RUnlock()

	stored := 0
	for _, s := range sessions {
		s.mu.Lock()
		stored += len(s.history)
		s.mu.Unlock()
	}

	st := a.stats
	st.mu.Lock()
	defer st.mu.Unlock()

	out := domain.PipelineStats{
		Type:             "stats",
		SchemaVersion:    1,
		TotalEvents:      st.total,
		EventsByType:     make(map[domain.EventType]int, len(st.byType)),
		Rejected:         st.rejectedCount,
		Sessions:         len(sessions),
		StoredContexts:   stored,
		Escalations:      st.escalations,
		EscalationErrors: st.escalationErrors,
		InsightsDropped:  st.insightsDropped,
		Evicted:          st.evictedCount,
		MaxLatency:       st.latencyMax,
		LastEventAt:      st.lastEventAt,
	}
	for k, v := range st.byType {
		out.EventsByType[k] = v
	}
	if len(st.recoveredByKind) > 0 {
		out.RecoveredErrors = make(map[domain.ErrorKind]int, len(st.recoveredByKind))
		for k, v := range st.recoveredByKind {
			out.RecoveredErrors[k] = v
		}
	}
	if st.total > 0 {
		out.AvgLatency = st.latencyTotal / time.Duration(st.total)
	}
	return out
}
