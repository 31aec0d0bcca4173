package aggregator

import (
	"context"
	"fmt"
	"strings"

	"github.com/vburojevic/dcw/internal/domain"
	"go.uber.org/zap"
)

// Analyzer is the outbound analysis client
type Analyzer interface {
	Analyze(ctx context.Context, projection domain.AIReadyContext) (string, error)
}

// InsightSink receives insights produced by escalation
type InsightSink interface {
	Deliver(insight domain.Insight)
}

// AnalyzerFunc adapts a function to Analyzer
type AnalyzerFunc func(ctx context.Context, projection domain.AIReadyContext) (string, error)

// Analyze calls f
func (f AnalyzerFunc) Analyze(ctx context.Context, projection domain.AIReadyContext) (string, error) {
	return f(ctx, projection)
}

// SinkFunc adapts a function to InsightSink
type SinkFunc func(insight domain.Insight)

// Deliver calls f
func (f SinkFunc) Deliver(insight domain.Insight) { f(insight) }

// ShouldEscalate decides whether a context goes to the analysis client.
// Exception events and high-priority events always do; breakpoints do when
// they captured variables or an exception; steps only with an exception.
// Console events never do on their own.
func ShouldEscalate(dc *domain.DebugContext, highPriority bool) bool {
	if dc == nil {
		return false
	}
	if highPriority {
		return true
	}
	switch dc.EventType {
	case domain.EventException:
		return true
	case domain.EventBreakpoint:
		return len(dc.Variables) > 0 || dc.HasException()
	case domain.EventStep:
		return dc.HasException()
	}
	return false
}

// escalate analyzes dc off the ingest path. The insight is discarded when
// the session has left history by the time the analysis returns.
func (a *Aggregator) escalate(dc *domain.DebugContext, userQuery, language string) {
	projection := Rank(dc, userQuery, language)
	a.stats.escalated()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(a.baseCtx, a.escalationTimeout)
		defer cancel()

		insight := domain.Insight{SessionID: dc.SessionID, ContextID: dc.ID}
		text, err := a.analyzer.Analyze(ctx, projection)
		if err != nil || strings.TrimSpace(text) == "" {
			if err == nil {
				err = errEmptyAnalysis
			}
			perr := domain.NewPipelineError(domain.EscalationError, "analyzer", err)
			a.stats.escalationFailed()
			a.logger.Warn("escalation failed, using local insight",
				zap.String("session_id", dc.SessionID),
				zap.String("context_id", dc.ID),
				zap.Error(perr))
			insight.Text = FallbackInsight(projection)
			insight.Fallback = true
			insight.Error = perr.Error()
		} else {
			insight.Text = a.pipe.Load().engine.ScrubString(text)
		}

		if !a.hasSession(dc.SessionID) {
			a.stats.insightDropped()
			a.logger.Debug("insight discarded, session gone",
				zap.String("session_id", dc.SessionID),
				zap.String("context_id", dc.ID))
			return
		}
		if a.sink != nil {
			a.sink.Deliver(insight)
		}
	}()
}

func (a *Aggregator) hasSession(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.sessions[id]
	return ok
}

// FallbackInsight builds a local insight from the projection alone
func FallbackInsight(p domain.AIReadyContext) string {
	var b strings.Builder
	b.WriteString(p.Summary)
	if p.ErrorDescription != "" {
		b.WriteString("\nError: ")
		b.WriteString(p.ErrorDescription)
	}
	if len(p.CodeContext.RelevantCode) > 0 {
		b.WriteString("\nStart with: ")
		b.WriteString(p.CodeContext.RelevantCode[0])
	}
	failed := 0
	for _, r := range p.RuntimeState.NetworkActivity {
		if r.Failed() {
			if failed == 0 {
				fmt.Fprintf(&b, "\nFailed request: %s %s -> %d", r.Method, r.URL, r.Status)
			}
			failed++
		}
	}
	redacted := 0
	for _, v := range p.RuntimeState.Variables {
		if v.IsRedacted {
			redacted++
		}
	}
	if redacted > 0 {
		fmt.Fprintf(&b, "\n%d variables were redacted", redacted)
	}
	return b.String()
}
