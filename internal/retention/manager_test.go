package retention

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vburojevic/dcw/internal/aggregator"
	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/redact"
	"pgregory.net/rapid"
)

type memHistory struct {
	mu       sync.Mutex
	sessions map[string][]*domain.DebugContext
}

func newMemHistory() *memHistory {
	return &memHistory{sessions: map[string][]*domain.DebugContext{}}
}

func (h *memHistory) add(id string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[id] = append(h.sessions[id], &domain.DebugContext{SessionID: id, Timestamp: at})
}

func (h *memHistory) len(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[id])
}

func (h *memHistory) SessionIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *memHistory) Prune(id string, keep func([]*domain.DebugContext) []*domain.DebugContext) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	before := len(h.sessions[id])
	kept := keep(h.sessions[id])
	if len(kept) == 0 {
		delete(h.sessions, id)
		return before, true
	}
	h.sessions[id] = kept
	return before - len(kept), false
}

func TestEvictByAge(t *testing.T) {
	mock := clock.NewMock()
	h := newMemHistory()
	start := mock.Now()
	for i := 0; i < 5; i++ {
		h.add("a", start.Add(time.Duration(i)*time.Minute))
	}
	h.add("b", start)
	mock.Add(10 * time.Minute)

	m := NewManager(h, domain.RetentionPolicy{MaxAge: 7 * time.Minute}, WithClock(mock))
	report := m.EvictNow()

	assert.Equal(t, 4, report.Removed)
	assert.Equal(t, []string{"b"}, report.SessionsRemoved)
	assert.Equal(t, 2, h.len("a"))
	assert.Equal(t, []string{"a"}, h.SessionIDs())
}

func TestEvictBySizeIsPerSession(t *testing.T) {
	mock := clock.NewMock()
	h := newMemHistory()
	for i := 0; i < 10; i++ {
		h.add("a", mock.Now())
		h.add("b", mock.Now())
	}
	h.add("c", mock.Now())

	m := NewManager(h, domain.RetentionPolicy{MaxSize: 3}, WithClock(mock))
	report := m.EvictNow()

	assert.Equal(t, 14, report.Removed)
	assert.Equal(t, 3, h.len("a"))
	assert.Equal(t, 3, h.len("b"))
	assert.Equal(t, 1, h.len("c"))
}

func TestKeepRetainsNewest(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []*domain.DebugContext{
		{ID: "1", Timestamp: now.Add(-3 * time.Hour)},
		{ID: "2", Timestamp: now.Add(-30 * time.Minute)},
		{ID: "3", Timestamp: now.Add(-20 * time.Minute)},
		{ID: "4", Timestamp: now.Add(-10 * time.Minute)},
	}

	kept := Keep(domain.RetentionPolicy{MaxAge: time.Hour, MaxSize: 2}, now)(history)
	require.Len(t, kept, 2)
	assert.Equal(t, "3", kept[0].ID)
	assert.Equal(t, "4", kept[1].ID)

	unchanged := Keep(domain.RetentionPolicy{}, now)(history)
	assert.Len(t, unchanged, 4)
}

func TestEvictIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mock := clock.NewMock()
		mock.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		h := newMemHistory()
		sessions := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c"}), 0, 30).Draw(t, "sessions")
		for _, id := range sessions {
			age := rapid.IntRange(0, 120).Draw(t, "age")
			h.add(id, mock.Now().Add(-time.Duration(age)*time.Minute))
		}
		policy := domain.RetentionPolicy{
			MaxAge:  time.Duration(rapid.IntRange(0, 120).Draw(t, "maxAge")) * time.Minute,
			MaxSize: rapid.IntRange(0, 10).Draw(t, "maxSize"),
		}
		m := NewManager(h, policy, WithClock(mock))

		m.Evict(policy)
		second := m.Evict(policy)
		if second.Removed != 0 || len(second.SessionsRemoved) != 0 {
			t.Fatalf("second pass removed %d contexts, %d sessions", second.Removed, len(second.SessionsRemoved))
		}
		for _, id := range h.SessionIDs() {
			if policy.MaxSize > 0 && h.len(id) > policy.MaxSize {
				t.Fatalf("session %s holds %d > %d", id, h.len(id), policy.MaxSize)
			}
		}
	})
}

func TestRunEvictsOnTick(t *testing.T) {
	mock := clock.NewMock()
	h := newMemHistory()
	h.add("a", mock.Now())

	m := NewManager(h, domain.RetentionPolicy{MaxAge: time.Minute}, WithClock(mock))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 30*time.Second)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mock.Add(30 * time.Second)
		return len(h.SessionIDs()) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestEvictAgainstAggregator(t *testing.T) {
	mock := clock.NewMock()
	agg, err := aggregator.New(redact.DefaultSettings(), aggregator.WithClock(mock))
	require.NoError(t, err)
	defer agg.Close()

	for i := 0; i < 5; i++ {
		agg.Ingest(context.Background(), domain.RawEvent{SessionID: "old"})
	}
	mock.Add(2 * time.Hour)
	for i := 0; i < 5; i++ {
		agg.Ingest(context.Background(), domain.RawEvent{SessionID: "new"})
	}

	m := NewManager(agg, domain.RetentionPolicy{MaxAge: time.Hour, MaxSize: 2}, WithClock(mock))
	report := m.EvictNow()

	assert.Equal(t, 8, report.Removed)
	assert.Equal(t, []string{"old"}, report.SessionsRemoved)
	assert.Equal(t, []string{"new"}, agg.SessionIDs())
	history, err := agg.SessionHistory("new")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	assert.Zero(t, m.EvictNow().Removed)
}

func TestEvictConcurrentWithIngest(t *testing.T) {
	mock := clock.NewMock()
	agg, err := aggregator.New(redact.DefaultSettings(), aggregator.WithClock(mock))
	require.NoError(t, err)
	defer agg.Close()
	m := NewManager(agg, domain.RetentionPolicy{MaxSize: 5}, WithClock(mock))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			agg.Ingest(context.Background(), domain.RawEvent{SessionID: "s"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			m.EvictNow()
		}
	}()
	wg.Wait()
	m.EvictNow()

	history, err := agg.SessionHistory("s")
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestEvictAgesByCaptureTime(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	agg, err := aggregator.New(redact.DefaultSettings(), aggregator.WithClock(mock))
	require.NoError(t, err)
	defer agg.Close()

	// the source clock runs two hours behind
	agg.Ingest(context.Background(), domain.RawEvent{SessionID: "s", Timestamp: mock.Now().Add(-2 * time.Hour)})

	m := NewManager(agg, domain.RetentionPolicy{MaxAge: time.Hour}, WithClock(mock))
	report := m.EvictNow()

	assert.Zero(t, report.Removed)
	assert.Empty(t, report.SessionsRemoved)
	history, err := agg.SessionHistory("s")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	mock.Add(61 * time.Minute)
	assert.Equal(t, 1, m.EvictNow().Removed)
}
