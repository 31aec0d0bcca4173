package filter

import (
	"regexp"

	"github.com/vburojevic/dcw/internal/domain"
)

// Pipeline chains a message pattern, exclude patterns and where clauses
type Pipeline struct {
	pattern  *regexp.Regexp
	excludes []*regexp.Regexp
	where    *WhereFilter
}

// NewPipeline returns nil when no filter is configured; a nil pipeline
// matches every entry.
func NewPipeline(pattern *regexp.Regexp, excludes []*regexp.Regexp, where *WhereFilter) *Pipeline {
	if pattern == nil && len(excludes) == 0 && where == nil {
		return nil
	}
	return &Pipeline{pattern: pattern, excludes: excludes, where: where}
}

// Match applies pattern, then excludes, then where clauses
func (p *Pipeline) Match(entry *domain.LogEntry) bool {
	if p == nil {
		return true
	}
	if p.pattern != nil && !p.pattern.MatchString(entry.Message) {
		return false
	}
	for _, ex := range p.excludes {
		if ex.MatchString(entry.Message) {
			return false
		}
	}
	return p.where.Match(entry)
}
