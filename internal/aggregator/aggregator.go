// Package aggregator merges raw debug events into redacted DebugContexts,
// keeps a bounded history per session and hands escalated contexts to an
// analysis client.
//
// Each session has its own mutex, so ingestion into different sessions never
// contends; the session map itself is guarded by an RWMutex held only for
// lookup, insert and delete, never while waiting on a session.
package aggregator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vburojevic/dcw/internal/console"
	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/network"
	"github.com/vburojevic/dcw/internal/normalize"
	"github.com/vburojevic/dcw/internal/redact"
	"github.com/vburojevic/dcw/internal/session"
	"go.uber.org/zap"
)

// MaxHistory bounds the contexts kept per session
const MaxHistory = 50

// contextNetworkRecords is how many buffered network records a context carries
const contextNetworkRecords = 20

// Archive persists committed contexts outside the process
type Archive interface {
	SaveContext(ctx context.Context, dc *domain.DebugContext) error
}

// Result describes one Ingest call. Context is always a valid, redacted
// record; Rejected is set when the session was terminated and nothing was
// committed.
type Result struct {
	Context   *domain.DebugContext
	Start     *domain.SessionStart
	Committed bool
	Escalated bool
	Rejected  error
	Errors    []error
}

// pipeline is the settings-derived state swapped atomically on reload
type pipeline struct {
	settings  redact.Settings
	engine    *redact.Engine
	collector *network.Collector
}

type sessionState struct {
	mu      sync.Mutex
	history []*domain.DebugContext
	console *console.Buffer
	network *network.Buffer
	removed bool
}

// Aggregator owns every session's history
type Aggregator struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState

	pipe    atomic.Pointer[pipeline]
	clock   clock.Clock
	logger  *zap.Logger
	tracker *session.Tracker
	stats   *statsCollector

	analyzer          Analyzer
	sink              InsightSink
	archive           Archive
	escalationTimeout time.Duration
	dedupeWindow      *time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithClock injects the clock every timestamp and age is read from
func WithClock(c clock.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithLogger sets the structured logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithAnalyzer enables escalation to an analysis client; insights go to sink
func WithAnalyzer(an Analyzer, sink InsightSink) Option {
	return func(a *Aggregator) {
		a.analyzer = an
		a.sink = sink
	}
}

// WithArchive mirrors committed contexts into an archive
func WithArchive(ar Archive) Option {
	return func(a *Aggregator) { a.archive = ar }
}

// WithEscalationTimeout bounds each analysis call
func WithEscalationTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.escalationTimeout = d
		}
	}
}

// WithConsoleDedupe folds repeated console lines per session
func WithConsoleDedupe(window time.Duration) Option {
	return func(a *Aggregator) { a.dedupeWindow = &window }
}

// New creates an aggregator. Invalid settings are an error; callers fall
// back to redact.DefaultSettings.
func New(settings redact.Settings, opts ...Option) (*Aggregator, error) {
	a := &Aggregator{
		sessions:          make(map[string]*sessionState),
		clock:             clock.New(),
		logger:            zap.NewNop(),
		escalationTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.tracker = session.NewTracker(a.clock)
	a.stats = newStatsCollector()
	a.baseCtx, a.cancel = context.WithCancel(context.Background())
	if err := a.UpdateSettings(settings); err != nil {
		a.cancel()
		return nil, err
	}
	return a, nil
}

// UpdateSettings swaps the privacy settings used by later ingests. On error
// the previous settings stay active.
func (a *Aggregator) UpdateSettings(settings redact.Settings) error {
	settings = settings.Normalized()
	engine, err := settings.Engine()
	if err != nil {
		return err
	}
	a.pipe.Store(&pipeline{
		settings: settings,
		engine:   engine,
		collector: network.NewCollector(engine,
			network.WithClock(a.clock),
			network.WithRedaction(settings.RedactNetworkData),
		),
	})
	return nil
}

// Settings returns the active privacy settings
func (a *Aggregator) Settings() redact.Settings {
	return a.pipe.Load().settings
}

// Clock returns the injected clock
func (a *Aggregator) Clock() clock.Clock { return a.clock }

// Ingest turns a raw event into a committed, redacted DebugContext. It never
// fails: field-level problems are recovered and reported in Result.Errors.
func (a *Aggregator) Ingest(ctx context.Context, raw domain.RawEvent) *Result {
	started := a.clock.Now()
	p := a.pipe.Load()
	var source *time.Time
	if !raw.Timestamp.IsZero() {
		ts := raw.Timestamp
		source = &ts
	}
	raw = raw.Normalize(started)
	res := &Result{}

	consoleErrors := lo.CountBy(raw.Console, func(r domain.RawLogEntry) bool {
		return domain.ParseLogLevel(r.Level) == domain.LogLevelError
	})
	change, err := a.tracker.Observe(raw.SessionID, domain.EventType(raw.EventType), consoleErrors)
	if err != nil {
		dc, errs := a.build(p, raw, nil)
		dc.Timestamp, dc.SourceTimestamp = started, source
		res.Context = a.redactWith(p, dc)
		res.Rejected = err
		res.Errors = errs
		a.stats.rejected()
		a.logger.Warn("event rejected",
			zap.String("session_id", raw.SessionID),
			zap.String("event_type", raw.EventType),
			zap.Error(err))
		return res
	}
	if change != nil {
		res.Start = change.StartSession
	}

	for {
		s := a.session(raw.SessionID, p)
		s.mu.Lock()
		if s.removed {
			// pruned by retention between lookup and lock
			s.mu.Unlock()
			continue
		}
		dc, errs := a.build(p, raw, s)
		dc.Timestamp, dc.SourceTimestamp = started, source
		dc = a.redactWith(p, dc)
		if evicted := s.commit(dc); evicted > 0 {
			a.stats.evicted(evicted)
			errs = append(errs, domain.NewPipelineError(domain.CapacityError, "history",
				errHistoryFull))
		}
		s.mu.Unlock()

		res.Context = dc
		res.Committed = true
		res.Errors = errs
		break
	}

	for _, e := range res.Errors {
		a.stats.recovered(e)
		a.logger.Debug("recovered pipeline error",
			zap.String("session_id", raw.SessionID),
			zap.String("context_id", res.Context.ID),
			zap.Error(e))
	}

	if a.archive != nil {
		if err := a.archive.SaveContext(ctx, res.Context); err != nil {
			a.logger.Warn("archive write failed", zap.String("context_id", res.Context.ID), zap.Error(err))
		}
	}

	latency := a.clock.Since(started)
	a.stats.ingested(res.Context.EventType, latency, res.Context.Timestamp)
	a.logger.Debug("event ingested",
		zap.String("session_id", res.Context.SessionID),
		zap.String("event_type", string(res.Context.EventType)),
		zap.String("context_id", res.Context.ID),
		zap.Duration("latency", latency))

	if ShouldEscalate(res.Context, raw.HighPriority) && a.analyzer != nil {
		res.Escalated = true
		a.escalate(res.Context, raw.UserQuery, raw.Language)
	}
	return res
}

// session returns the state for id, creating it on first use
func (a *Aggregator) session(id string, p *pipeline) *sessionState {
	a.mu.RLock()
	s, ok := a.sessions[id]
	a.mu.RUnlock()
	if ok {
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sessions[id]; ok {
		return s
	}
	var opts []console.Option
	opts = append(opts, console.WithClock(a.clock))
	if a.dedupeWindow != nil {
		opts = append(opts, console.WithDedupe(*a.dedupeWindow))
	}
	s = &sessionState{
		console: console.NewBuffer(p.settings.MaxConsoleEntries, p.engine, opts...),
		network: network.NewBuffer(network.DefaultCapacity),
	}
	a.sessions[id] = s
	return s
}

// commit appends dc and drops the oldest entries past MaxHistory
func (s *sessionState) commit(dc *domain.DebugContext) int {
	s.history = append(s.history, dc)
	over := len(s.history) - MaxHistory
	if over <= 0 {
		return 0
	}
	clear(s.history[:over])
	s.history = append(s.history[:0], s.history[over:]...)
	return over
}

// build assembles an unredacted context. s may be nil for rejected events,
// in which case only the event's own console and network data is attached.
// The caller stamps the capture time.
func (a *Aggregator) build(p *pipeline, raw domain.RawEvent, s *sessionState) (*domain.DebugContext, []error) {
	dc := &domain.DebugContext{
		ID:             uuid.NewString(),
		SessionID:      raw.SessionID,
		EventType:      domain.EventType(raw.EventType),
		SourceLocation: *raw.Location,
		Exception:      raw.Exception,
	}
	if dc.Exception != nil {
		exc := *dc.Exception
		dc.Exception = &exc
	}

	frames := normalize.Frames(raw.Frames)
	dc.StackTrace = frames[:min(len(frames), p.settings.MaxStackFrames)]

	vars := raw.Variables
	if p.settings.RedactSensitiveVariables {
		vars = a.preRedactVariables(p.engine, vars)
	}
	var errs []error
	dc.Variables, errs = normalize.Variables(vars)

	records := lo.Map(raw.Network, func(pair domain.RawNetworkPair, _ int) domain.NetworkRecord {
		return p.collector.CollectAt(pair.Request, pair.Response, pair.Timestamp)
	})
	if s == nil {
		dc.ConsoleOutput = lo.Map(raw.Console, func(r domain.RawLogEntry, _ int) domain.LogEntry {
			e := console.FromRaw(r)
			e.Message = p.engine.ScrubString(e.Message)
			if e.Timestamp.IsZero() {
				e.Timestamp = raw.Timestamp
			}
			return e
		})
		dc.NetworkActivity = records
		return dc, errs
	}

	// settings may have been reloaded since the session's buffer was made
	s.console.SetEngine(p.engine)
	if s.console.Cap() != p.settings.MaxConsoleEntries {
		s.console.Resize(p.settings.MaxConsoleEntries)
	}
	for _, r := range raw.Console {
		if r.Timestamp.IsZero() {
			r.Timestamp = raw.Timestamp
		}
		s.console.Append(console.FromRaw(r))
	}
	for _, rec := range records {
		if s.network.Add(rec) {
			errs = append(errs, domain.NewPipelineError(domain.CapacityError, "network", errNetworkFull))
		}
	}
	dc.ConsoleOutput = s.console.Recent(p.settings.MaxConsoleEntries)
	dc.NetworkActivity = s.network.Recent(contextNetworkRecords)
	return dc, errs
}

// preRedactVariables scrubs structured values before they are rendered to
// strings, where key names would no longer be visible.
func (a *Aggregator) preRedactVariables(e *redact.Engine, vars []domain.RawVariable) []domain.RawVariable {
	return lo.Map(vars, func(v domain.RawVariable, _ int) domain.RawVariable {
		switch v.Value.(type) {
		case nil, string, bool, float64, int:
			return v
		}
		if e.SensitiveName(v.Name) {
			v.Value = domain.RedactedMarker
			return v
		}
		v.Value = e.RedactObject(v.Value, 0)
		return v
	})
}

// SessionHistory returns copies of a session's contexts, oldest first
func (a *Aggregator) SessionHistory(sessionID string) ([]*domain.DebugContext, error) {
	a.mu.RLock()
	s, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.history, func(dc *domain.DebugContext, _ int) *domain.DebugContext {
		return dc.Clone()
	}), nil
}

// Console returns a session's buffered console entries
func (a *Aggregator) Console(sessionID string) ([]domain.LogEntry, error) {
	a.mu.RLock()
	s, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.console.All(), nil
}

// ConsoleWhere returns a session's console entries matching every clause
func (a *Aggregator) ConsoleWhere(sessionID string, clauses ...string) ([]domain.LogEntry, error) {
	a.mu.RLock()
	s, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.console.Where(clauses...)
}

// Network returns a session's buffered network records
func (a *Aggregator) Network(sessionID string) ([]domain.NetworkRecord, error) {
	a.mu.RLock()
	s, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.network.All(), nil
}

// SessionIDs lists sessions with history, sorted
func (a *Aggregator) SessionIDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := lo.Keys(a.sessions)
	sort.Strings(ids)
	return ids
}

// ClearHistory removes one session's history, or every session's when id
// is empty. It returns the number of contexts removed.
func (a *Aggregator) ClearHistory(sessionID string) int {
	a.mu.RLock()
	targets := make(map[string]*sessionState)
	if sessionID == "" {
		for id, s := range a.sessions {
			targets[id] = s
		}
	} else if s, ok := a.sessions[sessionID]; ok {
		targets[sessionID] = s
	}
	a.mu.RUnlock()

	removed := 0
	for id, s := range targets {
		s.mu.Lock()
		if !s.removed {
			removed += len(s.history)
			s.history = nil
			a.drop(id, s)
		}
		s.mu.Unlock()
	}
	return removed
}

// Prune rewrites a session's history through keep and drops the session
// when nothing remains. It returns how many contexts were removed and
// whether the session itself was removed.
func (a *Aggregator) Prune(sessionID string, keep func([]*domain.DebugContext) []*domain.DebugContext) (int, bool) {
	a.mu.RLock()
	s, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if !ok {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return 0, false
	}
	before := len(s.history)
	s.history = keep(s.history)
	removed := before - len(s.history)
	if len(s.history) > 0 {
		return removed, false
	}
	a.drop(sessionID, s)
	return removed, true
}

// drop marks s removed and unlinks it from the map. Callers hold s.mu; the
// map lock is only ever taken after a session lock, never before one.
func (a *Aggregator) drop(id string, s *sessionState) {
	s.removed = true
	a.mu.Lock()
	if a.sessions[id] == s {
		delete(a.sessions, id)
	}
	a.mu.Unlock()
}

// Terminate closes a session: ingests already running complete, later
// ingests are rejected. The session_end record is nil when the session was
// already terminated.
func (a *Aggregator) Terminate(sessionID string) *domain.SessionEnd {
	end := a.tracker.Terminate(sessionID)
	if end != nil {
		a.logger.Info("session terminated",
			zap.String("session_id", sessionID),
			zap.Int("total_events", end.Summary.TotalEvents))
	}
	return end
}

// Finish closes every active session for the end of the event stream
func (a *Aggregator) Finish() []*domain.SessionEnd {
	return a.tracker.Finish()
}

// Wait blocks until in-flight escalations have delivered
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

// Close cancels in-flight escalations and waits for them
func (a *Aggregator) Close() {
	a.cancel()
	a.wg.Wait()
}
