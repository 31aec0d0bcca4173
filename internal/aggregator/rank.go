package aggregator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/normalize"
)

// Projection caps
const (
	MaxRankedVariables = 20
	MaxRankedFrames    = 10
	MaxRankedNetwork   = 5
	maxRelevantCode    = 5
)

// Rank projects a redacted context into the bounded form handed to the
// analysis client. Variables are local first then by name, frames user
// code first, network failures first then most recent.
func Rank(dc *domain.DebugContext, userQuery, language string) domain.AIReadyContext {
	vars := append([]domain.VariableSnapshot{}, dc.Variables...)
	sort.SliceStable(vars, func(i, j int) bool {
		li, lj := vars[i].Scope == domain.ScopeLocal, vars[j].Scope == domain.ScopeLocal
		if li != lj {
			return li
		}
		return vars[i].Name < vars[j].Name
	})

	frames := normalize.UserCodeFirst(dc.StackTrace)

	records := append([]domain.NetworkRecord{}, dc.NetworkActivity...)
	sort.SliceStable(records, func(i, j int) bool {
		fi, fj := records[i].Failed(), records[j].Failed()
		if fi != fj {
			return fi
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})

	files := lo.Map(frames, func(f domain.StackFrame, _ int) string { return f.File })
	if language == "" {
		language = domain.DetectLanguage(dc.SourceLocation.File)
	}

	return domain.AIReadyContext{
		SessionID:        dc.SessionID,
		ContextID:        dc.ID,
		EventType:        dc.EventType,
		Summary:          Summarize(dc),
		ErrorDescription: describeError(dc.Exception),
		CodeContext: domain.CodeContext{
			Language:     language,
			Framework:    domain.DetectFramework(files),
			RelevantCode: relevantCode(frames),
		},
		RuntimeState: domain.RuntimeState{
			Variables:       vars[:min(len(vars), MaxRankedVariables)],
			StackTrace:      frames[:min(len(frames), MaxRankedFrames)],
			NetworkActivity: records[:min(len(records), MaxRankedNetwork)],
		},
		UserQuery: userQuery,
	}
}

// Summarize renders a one-line description of a context
func Summarize(dc *domain.DebugContext) string {
	loc := fmt.Sprintf("%s:%d", dc.SourceLocation.File, dc.SourceLocation.Line)
	var b strings.Builder
	switch {
	case dc.Exception != nil:
		fmt.Fprintf(&b, "%s at %s: %s", exceptionName(dc.Exception), loc, dc.Exception.Message)
	default:
		fmt.Fprintf(&b, "%s at %s", dc.EventType, loc)
	}
	fmt.Fprintf(&b, " (%d variables, %d frames", len(dc.Variables), len(dc.StackTrace))
	if failed := lo.CountBy(dc.NetworkActivity, domain.NetworkRecord.Failed); failed > 0 {
		fmt.Fprintf(&b, ", %d failed requests", failed)
	}
	if errs := lo.CountBy(dc.ConsoleOutput, func(e domain.LogEntry) bool { return e.Level == domain.LogLevelError }); errs > 0 {
		fmt.Fprintf(&b, ", %d console errors", errs)
	}
	b.WriteString(")")
	return b.String()
}

func describeError(exc *domain.ExceptionInfo) string {
	if exc == nil {
		return ""
	}
	desc := exceptionName(exc) + ": " + exc.Message
	if first, _, _ := strings.Cut(strings.TrimSpace(exc.Stack), "\n"); first != "" && !strings.Contains(first, exc.Message) {
		desc += "\n" + strings.TrimSpace(first)
	}
	return desc
}

func exceptionName(exc *domain.ExceptionInfo) string {
	if exc.Name == "" {
		return "Error"
	}
	return exc.Name
}

func relevantCode(frames []domain.StackFrame) []string {
	user := lo.Filter(frames, func(f domain.StackFrame, _ int) bool { return f.Scope == domain.FrameUserCode })
	user = user[:min(len(user), maxRelevantCode)]
	return lo.Map(user, func(f domain.StackFrame, _ int) string {
		return fmt.Sprintf("%s:%d:%d %s", f.File, f.Line, f.Column, f.Name)
	})
}
