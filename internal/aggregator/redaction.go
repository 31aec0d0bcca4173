package aggregator

import (
	"errors"

	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/redact"
)

var (
	errHistoryFull   = errors.New("session history full, oldest context evicted")
	errNetworkFull   = errors.New("network buffer full, oldest record evicted")
	errEmptyAnalysis = errors.New("analyzer returned no text")
)

// Redact returns a copy of dc with the active privacy settings applied.
// Applying it to its own output changes nothing.
func (a *Aggregator) Redact(dc *domain.DebugContext) *domain.DebugContext {
	return a.redactWith(a.pipe.Load(), dc)
}

func (a *Aggregator) redactWith(p *pipeline, dc *domain.DebugContext) *domain.DebugContext {
	return RedactContext(dc, p.settings, p.engine)
}

// RedactContext applies settings to a copy of dc using engine. Variables
// are always truncated; sensitive ones are replaced only when variable
// redaction is on. Console messages are always scrubbed. Paths are sanitized
// when file redaction is on, and exception messages are scrubbed whenever
// variable redaction is on.
func RedactContext(dc *domain.DebugContext, settings redact.Settings, engine *redact.Engine) *domain.DebugContext {
	out := dc.Clone()
	if out == nil {
		return nil
	}

	for i, v := range out.Variables {
		if settings.RedactSensitiveVariables {
			v.Value, v.IsRedacted = engine.RedactValue(v.Name, v.Value)
		} else {
			v.Value = engine.Truncate(v.Value)
			v.IsRedacted = v.Value == domain.RedactedMarker
		}
		out.Variables[i] = v
	}

	for i := range out.ConsoleOutput {
		out.ConsoleOutput[i].Message = engine.ScrubString(out.ConsoleOutput[i].Message)
	}

	if settings.RedactFileContents {
		out.SourceLocation.File = redact.SanitizePath(out.SourceLocation.File)
		for i := range out.StackTrace {
			out.StackTrace[i].File = redact.SanitizePath(out.StackTrace[i].File)
		}
		for i := range out.ConsoleOutput {
			out.ConsoleOutput[i].Source = redact.SanitizePath(out.ConsoleOutput[i].Source)
		}
	}

	if out.Exception != nil {
		if settings.RedactSensitiveVariables {
			out.Exception.Message = scrubText(engine, out.Exception.Message)
			out.Exception.Stack = engine.ScrubString(out.Exception.Stack)
		}
		if settings.RedactFileContents {
			out.Exception.Stack = redact.SanitizeTrace(out.Exception.Stack)
		}
	}
	return out
}

// scrubText scrubs and truncates free text until both are stable
func scrubText(engine *redact.Engine, s string) string {
	for i := 0; i < 4; i++ {
		next := engine.Truncate(engine.ScrubString(s))
		if next == s {
			break
		}
		s = next
	}
	return s
}
