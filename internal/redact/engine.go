package redact

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/vburojevic/dcw/internal/domain"
)

const (
	DefaultMaxValueLength = 1000
	DefaultMaxKeys        = 50
	DefaultMaxArrayItems  = 100
	DefaultMaxDepth       = 5

	// minValueLength keeps room for the truncation suffix so truncated values
	// never exceed the cap and re-truncate.
	minValueLength = 64
)

// Engine classifies and scrubs sensitive data. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	level          SensitivityLevel
	patterns       *patternSet
	extra          []*regexp.Regexp
	maxValueLength int
	maxKeys        int
	maxArrayItems  int
	maxDepth       int
}

// Option configures an Engine
type Option func(*Engine)

// WithMaxValueLength caps string values, shorter caps are raised to a minimum
func WithMaxValueLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxValueLength = max(n, minValueLength)
		}
	}
}

// WithLimits caps keys per object, elements per array and nesting depth
func WithLimits(keys, items, depth int) Option {
	return func(e *Engine) {
		if keys > 1 {
			e.maxKeys = keys
		}
		if items > 1 {
			e.maxArrayItems = items
		}
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithExtraPatterns adds operator value patterns on top of the level's set
func WithExtraPatterns(res []*regexp.Regexp) Option {
	return func(e *Engine) {
		e.extra = append(e.extra, res...)
	}
}

// NewEngine builds an engine for the given sensitivity level
func NewEngine(level SensitivityLevel, opts ...Option) *Engine {
	level = ParseSensitivityLevel(string(level))
	e := &Engine{
		level:          level,
		patterns:       compiled[level],
		maxValueLength: DefaultMaxValueLength,
		maxKeys:        DefaultMaxKeys,
		maxArrayItems:  DefaultMaxArrayItems,
		maxDepth:       DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Level returns the active sensitivity level
func (e *Engine) Level() SensitivityLevel { return e.level }

// MaxValueLength returns the string cap
func (e *Engine) MaxValueLength() int { return e.maxValueLength }

// Classify reports whether a name or its string value is sensitive
func (e *Engine) Classify(name, value string) bool {
	return e.SensitiveName(name) || e.SensitiveValue(value)
}

// SensitiveName matches name against the active name terms
func (e *Engine) SensitiveName(name string) bool {
	if name == "" {
		return false
	}
	for _, re := range e.patterns.names {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// SensitiveValue matches value against the active value shapes
func (e *Engine) SensitiveValue(value string) bool {
	if value == "" || value == domain.RedactedMarker {
		return false
	}
	for _, re := range e.patterns.values {
		if re.MatchString(value) {
			return true
		}
	}
	for _, re := range e.extra {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// RedactValue applies redaction, then truncation, to one named string.
// The boolean reports whether the value was redacted.
func (e *Engine) RedactValue(name, value string) (string, bool) {
	if value == domain.RedactedMarker || e.Classify(name, value) {
		return domain.RedactedMarker, true
	}
	t := e.Truncate(value)
	if t != value && e.SensitiveValue(t) {
		return domain.RedactedMarker, true
	}
	return t, false
}

// ScrubString replaces every sensitive fragment of free text with the marker,
// leaving the rest of the text intact.
func (e *Engine) ScrubString(s string) string {
	// a replacement can expose a new match for an earlier pattern, so repeat
	// until the text is stable
	for i := 0; i < 8 && s != ""; i++ {
		next := e.scrubOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func (e *Engine) scrubOnce(s string) string {
	for _, re := range e.patterns.values {
		s = re.ReplaceAllString(s, domain.RedactedMarker)
	}
	for _, re := range e.extra {
		s = re.ReplaceAllString(s, domain.RedactedMarker)
	}
	return s
}

// Truncate caps s at the engine's max value length
func (e *Engine) Truncate(s string) string {
	return Truncate(s, e.maxValueLength)
}

// Truncate replaces a string longer than limit with its prefix and a marker
// carrying the original length. The result is never longer than limit when
// limit leaves room for the marker.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	suffix := fmt.Sprintf("... [TRUNCATED: original length %d]", len(s))
	keep := limit - len(suffix)
	if keep < 0 {
		keep = 0
	}
	for keep > 0 && !utf8.RuneStart(s[keep]) {
		keep--
	}
	return s[:keep] + suffix
}

// IsTruncated reports whether s carries a truncation marker
func IsTruncated(s string) bool {
	return truncatedRe.MatchString(s)
}

var truncatedRe = regexp.MustCompile(`\.\.\. \[TRUNCATED: original length \d+\]$`)
