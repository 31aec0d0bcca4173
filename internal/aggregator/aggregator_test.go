package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/redact"
)

func newTestAggregator(t *testing.T, opts ...Option) (*Aggregator, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	a, err := New(redact.DefaultSettings(), append([]Option{WithClock(mock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, mock
}

type insightRecorder struct {
	mu       sync.Mutex
	insights []domain.Insight
}

func (r *insightRecorder) Deliver(i domain.Insight) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insights = append(r.insights, i)
}

func (r *insightRecorder) all() []domain.Insight {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Insight{}, r.insights...)
}

func TestIngestAppliesDefaults(t *testing.T) {
	a, mock := newTestAggregator(t)

	res := a.Ingest(context.Background(), domain.RawEvent{})

	require.True(t, res.Committed)
	dc := res.Context
	assert.Equal(t, domain.DefaultSessionID, dc.SessionID)
	assert.Equal(t, domain.EventBreakpoint, dc.EventType)
	assert.Equal(t, domain.SourceLocation{File: domain.UnknownFile}, dc.SourceLocation)
	assert.Equal(t, mock.Now(), dc.Timestamp)
	assert.NotNil(t, dc.StackTrace)
	assert.NotNil(t, dc.Variables)
	assert.NotNil(t, dc.ConsoleOutput)
	assert.NotNil(t, dc.NetworkActivity)
	assert.NotEmpty(t, dc.ID)
	require.NotNil(t, res.Start)
	assert.Equal(t, domain.DefaultSessionID, res.Start.SessionID)
}

func TestIngestRedactsPasswordVariable(t *testing.T) {
	a, _ := newTestAggregator(t)

	res := a.Ingest(context.Background(), domain.RawEvent{
		SessionID: "s1",
		EventType: "breakpoint",
		Variables: []domain.RawVariable{
			{Name: "password", Value: "hunter2"},
			{Name: "count", Value: float64(3)},
			{Name: "user", Value: map[string]any{"password": "x", "name": "bob"}},
		},
	})

	byName := map[string]domain.VariableSnapshot{}
	for _, v := range res.Context.Variables {
		byName[v.Name] = v
	}
	assert.Equal(t, domain.RedactedMarker, byName["password"].Value)
	assert.True(t, byName["password"].IsRedacted)
	assert.Equal(t, "3", byName["count"].Value)
	assert.False(t, byName["count"].IsRedacted)
	assert.Equal(t, `{"name":"bob","password":"[REDACTED]"}`, byName["user"].Value)
	assert.Equal(t, domain.TypeObject, byName["user"].Type)

	history, err := a.SessionHistory("s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "password", history[0].Variables[1].Name)
	assert.Equal(t, domain.RedactedMarker, history[0].Variables[1].Value)
}

func TestIngestWithoutVariableRedaction(t *testing.T) {
	a, _ := newTestAggregator(t)
	settings := redact.DefaultSettings()
	settings.RedactSensitiveVariables = false
	require.NoError(t, a.UpdateSettings(settings))

	res := a.Ingest(context.Background(), domain.RawEvent{
		Variables: []domain.RawVariable{{Name: "password", Value: "hunter2"}},
	})
	assert.Equal(t, "hunter2", res.Context.Variables[0].Value)
	assert.False(t, res.Context.Variables[0].IsRedacted)
}

func TestUpdateSettingsKeepsPreviousOnError(t *testing.T) {
	a, _ := newTestAggregator(t)
	bad := redact.DefaultSettings()
	bad.SensitivityLevel = redact.SensitivityHigh
	bad.ExtraPatterns = []redact.ExtraPattern{{Name: "broken", Regex: "("}}

	require.Error(t, a.UpdateSettings(bad))
	assert.Equal(t, redact.SensitivityMedium, a.Settings().SensitivityLevel)
}

func TestIngestSanitizesPathsAndException(t *testing.T) {
	a, _ := newTestAggregator(t)

	res := a.Ingest(context.Background(), domain.RawEvent{
		EventType: "exception",
		Frames: []domain.RawFrame{
			{Name: "handler", File: "/Users/alice/app/src/api.js", Line: 10, Column: 2},
		},
		Exception: &domain.ExceptionInfo{
			Name:    "TypeError",
			Message: "cannot read token=abc123 of undefined",
			Stack:   "TypeError: boom\n    at handler (/Users/alice/app/src/api.js:10:2)",
		},
	})

	dc := res.Context
	assert.Equal(t, "~/app/src/api.js", dc.SourceLocation.File)
	assert.Equal(t, "~/app/src/api.js", dc.StackTrace[0].File)
	assert.Equal(t, "cannot read [REDACTED] of undefined", dc.Exception.Message)
	assert.Contains(t, dc.Exception.Stack, "(~/app/src/api.js:10:2)")
	assert.False(t, res.Escalated, "no analyzer configured")
}

func TestHistoryIsBounded(t *testing.T) {
	a, mock := newTestAggregator(t)
	for i := 0; i < MaxHistory+10; i++ {
		mock.Add(time.Second)
		a.Ingest(context.Background(), domain.RawEvent{
			SessionID: "s1",
			EventType: "step",
			Location:  &domain.SourceLocation{File: "app.js", Line: i},
		})
	}

	history, err := a.SessionHistory("s1")
	require.NoError(t, err)
	require.Len(t, history, MaxHistory)
	assert.Equal(t, 10, history[0].SourceLocation.Line)
	assert.Equal(t, MaxHistory+9, history[len(history)-1].SourceLocation.Line)

	stats := a.Stats()
	assert.Equal(t, 10, stats.Evicted)
	assert.Equal(t, 10, stats.RecoveredErrors[domain.CapacityError])
	assert.Equal(t, MaxHistory, stats.StoredContexts)
}

func TestHistoryReturnsCopies(t *testing.T) {
	a, _ := newTestAggregator(t)
	a.Ingest(context.Background(), domain.RawEvent{SessionID: "s1",
		Variables: []domain.RawVariable{{Name: "x", Value: "1"}}})

	h, err := a.SessionHistory("s1")
	require.NoError(t, err)
	h[0].Variables[0].Value = "mutated"

	h2, _ := a.SessionHistory("s1")
	assert.Equal(t, "1", h2[0].Variables[0].Value)

	_, err = a.SessionHistory("missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestTerminateRejectsLaterIngests(t *testing.T) {
	a, _ := newTestAggregator(t)
	a.Ingest(context.Background(), domain.RawEvent{SessionID: "s1"})

	end := a.Terminate("s1")
	require.NotNil(t, end)
	assert.Equal(t, 1, end.Summary.TotalEvents)

	res := a.Ingest(context.Background(), domain.RawEvent{SessionID: "s1",
		Variables: []domain.RawVariable{{Name: "apiKey", Value: "k"}}})
	assert.ErrorIs(t, res.Rejected, domain.ErrSessionTerminated)
	assert.False(t, res.Committed)
	require.NotNil(t, res.Context)
	assert.Equal(t, domain.RedactedMarker, res.Context.Variables[0].Value)

	history, _ := a.SessionHistory("s1")
	assert.Len(t, history, 1)
	assert.Equal(t, 1, a.Stats().Rejected)
	assert.Nil(t, a.Terminate("s1"))
}

func TestClearHistory(t *testing.T) {
	a, _ := newTestAggregator(t)
	a.Ingest(context.Background(), domain.RawEvent{SessionID: "a"})
	a.Ingest(context.Background(), domain.RawEvent{SessionID: "a"})
	a.Ingest(context.Background(), domain.RawEvent{SessionID: "b"})

	assert.Equal(t, 2, a.ClearHistory("a"))
	assert.Equal(t, []string{"b"}, a.SessionIDs())
	assert.Equal(t, 0, a.ClearHistory("missing"))
	assert.Equal(t, 1, a.ClearHistory(""))
	assert.Empty(t, a.SessionIDs())
}

func TestPruneRemovesEmptySessions(t *testing.T) {
	a, _ := newTestAggregator(t)
	a.Ingest(context.Background(), domain.RawEvent{SessionID: "a"})
	a.Ingest(context.Background(), domain.RawEvent{SessionID: "a"})

	removed, gone := a.Prune("a", func(h []*domain.DebugContext) []*domain.DebugContext { return h[1:] })
	assert.Equal(t, 1, removed)
	assert.False(t, gone)

	removed, gone = a.Prune("a", func(h []*domain.DebugContext) []*domain.DebugContext { return nil })
	assert.Equal(t, 1, removed)
	assert.True(t, gone)
	assert.Empty(t, a.SessionIDs())

	res := a.Ingest(context.Background(), domain.RawEvent{SessionID: "a"})
	assert.True(t, res.Committed)
	assert.Equal(t, []string{"a"}, a.SessionIDs())
}

func TestRemovalDoesNotStallOtherSessions(t *testing.T) {
	removals := map[string]func(a *Aggregator) int{
		"clear": func(a *Aggregator) int { return a.ClearHistory("slow") },
		"prune": func(a *Aggregator) int {
			n, _ := a.Prune("slow", func([]*domain.DebugContext) []*domain.DebugContext { return nil })
			return n
		},
	}
	for name, remove := range removals {
		t.Run(name, func(t *testing.T) {
			a, _ := newTestAggregator(t)
			a.Ingest(context.Background(), domain.RawEvent{SessionID: "slow"})
			a.Ingest(context.Background(), domain.RawEvent{SessionID: "fast"})

			a.mu.RLock()
			slow := a.sessions["slow"]
			a.mu.RUnlock()
			slow.mu.Lock()

			removed := make(chan int, 1)
			go func() { removed <- remove(a) }()
			time.Sleep(20 * time.Millisecond)

			ingested := make(chan bool, 1)
			go func() {
				ingested <- a.Ingest(context.Background(), domain.RawEvent{SessionID: "fast"}).Committed
			}()
			select {
			case ok := <-ingested:
				assert.True(t, ok)
			case <-time.After(2 * time.Second):
				slow.mu.Unlock()
				t.Fatal("ingest into another session blocked behind a removal")
			}

			slow.mu.Unlock()
			assert.Equal(t, 1, <-removed)
			assert.Equal(t, []string{"fast"}, a.SessionIDs())
		})
	}
}

func TestReloadAppliesToExistingConsoleBuffers(t *testing.T) {
	a, _ := newTestAggregator(t)
	a.Ingest(context.Background(), domain.RawEvent{
		SessionID: "old",
		EventType: "console",
		Console:   []domain.RawLogEntry{{Message: "client 10.0.0.1 joined"}},
	})

	high := redact.DefaultSettings()
	high.SensitivityLevel = redact.SensitivityHigh
	high.MaxConsoleEntries = 2
	require.NoError(t, a.UpdateSettings(high))

	res := a.Ingest(context.Background(), domain.RawEvent{
		SessionID: "old",
		EventType: "console",
		Console: []domain.RawLogEntry{
			{Message: "client 10.1.2.3 connected"},
			{Message: "client 10.1.2.4 connected"},
		},
	})
	fresh := a.Ingest(context.Background(), domain.RawEvent{
		SessionID: "new",
		EventType: "console",
		Console:   []domain.RawLogEntry{{Message: "client 10.1.2.3 connected"}},
	})

	assert.Equal(t, []string{"client [REDACTED] connected", "client [REDACTED] connected"},
		consoleMessages(res.Context.ConsoleOutput))
	assert.Equal(t, []string{"client [REDACTED] connected"}, consoleMessages(fresh.Context.ConsoleOutput))
	buffered, err := a.Console("old")
	require.NoError(t, err)
	assert.Len(t, buffered, 2)
	for _, e := range buffered {
		assert.NotContains(t, e.Message, "10.")
	}
}

func TestRedactScrubsConsoleWithActiveEngine(t *testing.T) {
	a, _ := newTestAggregator(t)
	high := redact.DefaultSettings()
	high.SensitivityLevel = redact.SensitivityHigh
	require.NoError(t, a.UpdateSettings(high))

	out := a.Redact(&domain.DebugContext{
		ConsoleOutput: []domain.LogEntry{{Message: "peer 192.168.1.9 dropped"}},
	})

	assert.Equal(t, "peer [REDACTED] dropped", out.ConsoleOutput[0].Message)
	assert.Equal(t, out, a.Redact(out))
}

func TestIngestStampsCaptureTime(t *testing.T) {
	a, mock := newTestAggregator(t)
	sent := mock.Now().Add(-2 * time.Hour)

	res := a.Ingest(context.Background(), domain.RawEvent{SessionID: "s", Timestamp: sent})

	assert.Equal(t, mock.Now(), res.Context.Timestamp)
	require.NotNil(t, res.Context.SourceTimestamp)
	assert.Equal(t, sent, *res.Context.SourceTimestamp)

	res = a.Ingest(context.Background(), domain.RawEvent{SessionID: "s"})
	assert.Nil(t, res.Context.SourceTimestamp)
}

func consoleMessages(entries []domain.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestConsoleAndNetworkAreBufferedPerSession(t *testing.T) {
	a, _ := newTestAggregator(t)

	a.Ingest(context.Background(), domain.RawEvent{
		SessionID: "s1",
		EventType: "console",
		Console: []domain.RawLogEntry{
			{Level: "error", Message: "auth failed for bob@example.com"},
			{Level: "log", Message: "retrying"},
		},
		Network: []domain.RawNetworkPair{{
			Request:  domain.RawRequest{Method: "GET", URL: "http://localhost:8080/api/me", Headers: map[string]string{"Authorization": "Bearer t"}},
			Response: &domain.RawResponse{Status: 401},
		}},
	})
	res := a.Ingest(context.Background(), domain.RawEvent{SessionID: "s1", EventType: "step"})

	require.Len(t, res.Context.ConsoleOutput, 2)
	assert.Equal(t, "auth failed for [REDACTED]", res.Context.ConsoleOutput[0].Message)
	require.Len(t, res.Context.NetworkActivity, 1)
	rec := res.Context.NetworkActivity[0]
	assert.Equal(t, domain.RedactedMarker, rec.Headers["Authorization"])
	assert.False(t, rec.IsExternal)

	errs, err := a.ConsoleWhere("s1", "level=error")
	require.NoError(t, err)
	assert.Len(t, errs, 1)

	netw, err := a.Network("s1")
	require.NoError(t, err)
	assert.Len(t, netw, 1)

	summary := a.Stats()
	assert.Equal(t, 1, summary.EventsByType[domain.EventConsole])
	assert.Equal(t, 1, summary.EventsByType[domain.EventStep])
}

func TestShouldEscalate(t *testing.T) {
	exc := &domain.ExceptionInfo{Message: "boom"}
	vars := []domain.VariableSnapshot{{Name: "x"}}
	tests := []struct {
		name     string
		dc       *domain.DebugContext
		high     bool
		expected bool
	}{
		{"exception event", &domain.DebugContext{EventType: domain.EventException}, false, true},
		{"step with exception", &domain.DebugContext{EventType: domain.EventStep, Exception: exc}, false, true},
		{"plain step", &domain.DebugContext{EventType: domain.EventStep, Variables: vars}, false, false},
		{"breakpoint with variables", &domain.DebugContext{EventType: domain.EventBreakpoint, Variables: vars}, false, true},
		{"empty breakpoint", &domain.DebugContext{EventType: domain.EventBreakpoint}, false, false},
		{"breakpoint with exception", &domain.DebugContext{EventType: domain.EventBreakpoint, Exception: exc}, false, true},
		{"console", &domain.DebugContext{EventType: domain.EventConsole}, false, false},
		{"console with exception", &domain.DebugContext{EventType: domain.EventConsole, Exception: exc}, false, false},
		{"high priority console", &domain.DebugContext{EventType: domain.EventConsole}, true, true},
		{"high priority step", &domain.DebugContext{EventType: domain.EventStep}, true, true},
		{"nil", nil, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldEscalate(tt.dc, tt.high))
		})
	}
}

func TestEscalationDeliversInsight(t *testing.T) {
	rec := &insightRecorder{}
	var seen domain.AIReadyContext
	analyzer := AnalyzerFunc(func(_ context.Context, p domain.AIReadyContext) (string, error) {
		seen = p
		return "check the null guard; token=abc", nil
	})
	a, _ := newTestAggregator(t, WithAnalyzer(analyzer, rec))

	res := a.Ingest(context.Background(), domain.RawEvent{
		SessionID: "s1",
		EventType: "exception",
		UserQuery: "why?",
		Exception: &domain.ExceptionInfo{Name: "TypeError", Message: "x is undefined"},
	})
	a.Wait()

	assert.True(t, res.Escalated)
	insights := rec.all()
	require.Len(t, insights, 1)
	assert.Equal(t, res.Context.ID, insights[0].ContextID)
	assert.Equal(t, "check the null guard; [REDACTED]", insights[0].Text)
	assert.False(t, insights[0].Fallback)
	assert.Equal(t, "why?", seen.UserQuery)
	assert.Equal(t, "TypeError: x is undefined", seen.ErrorDescription)
	assert.Equal(t, 1, a.Stats().Escalations)
}

func TestEscalationFallsBackOnError(t *testing.T) {
	rec := &insightRecorder{}
	analyzer := AnalyzerFunc(func(context.Context, domain.AIReadyContext) (string, error) {
		return "", errors.New("upstream unavailable")
	})
	a, _ := newTestAggregator(t, WithAnalyzer(analyzer, rec))

	a.Ingest(context.Background(), domain.RawEvent{
		SessionID: "s1",
		EventType: "exception",
		Exception: &domain.ExceptionInfo{Name: "RangeError", Message: "bad index"},
	})
	a.Wait()

	insights := rec.all()
	require.Len(t, insights, 1)
	assert.True(t, insights[0].Fallback)
	assert.Contains(t, insights[0].Text, "RangeError")
	assert.Contains(t, insights[0].Error, "upstream unavailable")
	assert.Equal(t, 1, a.Stats().EscalationErrors)
}

func TestEscalationDiscardedWhenSessionCleared(t *testing.T) {
	rec := &insightRecorder{}
	release := make(chan struct{})
	started := make(chan struct{})
	analyzer := AnalyzerFunc(func(context.Context, domain.AIReadyContext) (string, error) {
		close(started)
		<-release
		return "late insight", nil
	})
	a, _ := newTestAggregator(t, WithAnalyzer(analyzer, rec))

	a.Ingest(context.Background(), domain.RawEvent{SessionID: "s1", EventType: "exception"})
	<-started
	a.ClearHistory("s1")
	close(release)
	a.Wait()

	assert.Empty(t, rec.all())
	assert.Equal(t, 1, a.Stats().InsightsDropped)
}

func TestStepsNeverEscalate(t *testing.T) {
	called := false
	analyzer := AnalyzerFunc(func(context.Context, domain.AIReadyContext) (string, error) {
		called = true
		return "x", nil
	})
	a, _ := newTestAggregator(t, WithAnalyzer(analyzer, &insightRecorder{}))

	res := a.Ingest(context.Background(), domain.RawEvent{
		EventType: "step",
		Variables: []domain.RawVariable{{Name: "i", Value: float64(1)}},
	})
	a.Wait()
	assert.False(t, res.Escalated)
	assert.False(t, called)
}

func TestConcurrentIngestAcrossSessions(t *testing.T) {
	a, _ := newTestAggregator(t)
	const sessions, perSession = 8, 40

	var wg sync.WaitGroup
	for s := 0; s < sessions; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSession; i++ {
				a.Ingest(context.Background(), domain.RawEvent{
					SessionID: fmt.Sprintf("s%d", s),
					EventType: "step",
				})
			}
		}(s)
	}
	wg.Wait()

	assert.Len(t, a.SessionIDs(), sessions)
	for _, id := range a.SessionIDs() {
		h, err := a.SessionHistory(id)
		require.NoError(t, err)
		assert.Len(t, h, perSession)
	}
	assert.Equal(t, sessions*perSession, a.Stats().TotalEvents)
}
