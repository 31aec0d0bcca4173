// Package filter selects and collapses console entries. Where clauses are
// parsed from "field<op>value" strings and combined with AND.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vburojevic/dcw/internal/domain"
)

// WhereClause represents a parsed --where condition
type WhereClause struct {
	Field    string
	Operator string
	Value    string
	regex    *regexp.Regexp // Compiled regex for ~ and !~ operators
}

// ParseWhereClause parses a where clause like "level=error" or "message~timeout"
// Supported operators: =, !=, ~, !~, >=, <=, ^, $
func ParseWhereClause(clause string) (*WhereClause, error) {
	// Try operators in order of length (longest first to avoid partial matches)
	operators := []string{"!~", ">=", "<=", "!=", "~", "=", "^", "$"}

	for _, op := range operators {
		idx := strings.Index(clause, op)
		if idx > 0 {
			field := strings.TrimSpace(clause[:idx])
			value := strings.TrimSpace(clause[idx+len(op):])

			if field == "" || value == "" {
				return nil, fmt.Errorf("invalid where clause: %s", clause)
			}
			if !knownField(field) {
				return nil, fmt.Errorf("unknown field in where clause '%s' (use level, message, source, correlation_id)", clause)
			}

			wc := &WhereClause{
				Field:    strings.ToLower(field),
				Operator: op,
				Value:    value,
			}

			// Pre-compile regex for ~ and !~ operators
			if op == "~" || op == "!~" {
				re, err := regexp.Compile(value)
				if err != nil {
					return nil, fmt.Errorf("invalid regex in where clause '%s': %w", clause, err)
				}
				wc.regex = re
			}

			return wc, nil
		}
	}

	return nil, fmt.Errorf("no valid operator found in where clause: %s (use =, !=, ~, !~, >=, <=, ^, $)", clause)
}

func knownField(field string) bool {
	switch strings.ToLower(field) {
	case "level", "message", "source", "correlation_id":
		return true
	}
	return false
}

// Match checks if a console entry matches this where clause
func (wc *WhereClause) Match(entry *domain.LogEntry) bool {
	fieldValue := wc.getFieldValue(entry)

	switch wc.Operator {
	case "=":
		return strings.EqualFold(fieldValue, wc.Value)
	case "!=":
		return !strings.EqualFold(fieldValue, wc.Value)
	case "~":
		return wc.regex.MatchString(fieldValue)
	case "!~":
		return !wc.regex.MatchString(fieldValue)
	case "^":
		return strings.HasPrefix(fieldValue, wc.Value)
	case "$":
		return strings.HasSuffix(fieldValue, wc.Value)
	case ">=":
		return wc.compareLevel(entry, true)
	case "<=":
		return wc.compareLevel(entry, false)
	}

	return false
}

func (wc *WhereClause) getFieldValue(entry *domain.LogEntry) string {
	switch wc.Field {
	case "level":
		return string(entry.Level)
	case "message":
		return entry.Message
	case "source":
		return entry.Source
	case "correlation_id":
		return entry.CorrelationID
	default:
		return ""
	}
}

// compareLevel handles >= and <= comparisons for log levels
func (wc *WhereClause) compareLevel(entry *domain.LogEntry, greaterOrEqual bool) bool {
	if wc.Field != "level" {
		return false
	}

	entryPriority := entry.Level.Priority()
	targetPriority := domain.ParseLogLevel(wc.Value).Priority()

	if greaterOrEqual {
		return entryPriority >= targetPriority
	}
	return entryPriority <= targetPriority
}

// WhereFilter applies multiple where clauses (AND logic)
type WhereFilter struct {
	clauses []*WhereClause
}

// NewWhereFilter creates a filter from multiple where clause strings.
// No clauses yields a nil filter, which matches everything.
func NewWhereFilter(whereClauses []string) (*WhereFilter, error) {
	if len(whereClauses) == 0 {
		return nil, nil
	}

	filter := &WhereFilter{}
	for _, clause := range whereClauses {
		wc, err := ParseWhereClause(clause)
		if err != nil {
			return nil, err
		}
		filter.clauses = append(filter.clauses, wc)
	}

	return filter, nil
}

// Match returns true if the entry matches ALL where clauses
func (f *WhereFilter) Match(entry *domain.LogEntry) bool {
	if f == nil {
		return true
	}
	for _, clause := range f.clauses {
		if !clause.Match(entry) {
			return false
		}
	}
	return true
}
