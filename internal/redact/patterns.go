package redact

import (
	"fmt"
	"regexp"
)

// tier groups the name terms and value shapes added at one sensitivity level.
// Name terms are matched case-insensitively as substrings of variable, key
// and header names; value shapes are matched against string contents.
type tier struct {
	level       SensitivityLevel
	nameTerms   []string
	valueShapes []string
}

var tiers = []tier{
	{
		level: SensitivityLow,
		nameTerms: []string{
			`passw(or)?d`, `passwd`, `\bpwd\b`, `secret`, `token`, `api[_-]?key`, `apikey`,
			`auth`, `credential`, `private[_-]?key`, `access[_-]?key`, `client[_-]?secret`,
			`bearer`, `jwt`, `cookie`, `session[_-]?id`, `signature`, `salt`, `passphrase`,
		},
		valueShapes: []string{
			`(?i)\bbearer\s+[a-z0-9\-._~+/]+=*`,
			`\beyJ[a-zA-Z0-9_-]{5,}\.[a-zA-Z0-9_-]{5,}\.[a-zA-Z0-9_-]*`,
			`\bAKIA[0-9A-Z]{16}\b`,
			`-----BEGIN [A-Z ]*PRIVATE KEY-----`,
			`\b(?:sk|pk|rk)_(?:live|test)_[0-9a-zA-Z]{8,}`,
			`\bgh[pousr]_[A-Za-z0-9]{20,}`,
			`\bxox[abprs]-[A-Za-z0-9-]{10,}`,
			`(?i)\b(?:password|passwd|pwd|secret|token|api[_-]?key|apikey|client[_-]?secret)\s*[=:]\s*\S+`,
		},
	},
	{
		level: SensitivityMedium,
		nameTerms: []string{
			`e-?mail`, `phone`, `mobile`, `\bssn\b`, `social[_-]?security`, `credit[_-]?card`,
			`card[_-]?number`, `\bcvv\b`, `\bcvc\b`, `\biban\b`, `account[_-]?number`,
			`routing[_-]?number`, `\bdob\b`, `birth`, `address`, `passport`, `license`, `tax[_-]?id`,
		},
		valueShapes: []string{
			`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`,
			`\b(?:\d[ -]?){12,15}\d\b`,
			`\b\d{3}-\d{2}-\d{4}\b`,
		},
	},
	{
		level: SensitivityHigh,
		nameTerms: []string{
			`user`, `login`, `name`, `\bip\b`, `ip[_-]?addr`, `location`, `\blat\b`, `\blng\b`,
			`latitude`, `longitude`, `postal`, `\bzip\b`, `device[_-]?id`, `account`, `customer`,
		},
		valueShapes: []string{
			`\b(?:\d{1,3}\.){3}\d{1,3}\b`,
			`\+?\d{1,3}[ .-]?\(?\d{3}\)?[ .-]?\d{3}[ .-]?\d{4}\b`,
		},
	},
}

// patternSet is the compiled, cumulative set of patterns for a level
type patternSet struct {
	names  []*regexp.Regexp
	values []*regexp.Regexp
}

var compiled = map[SensitivityLevel]*patternSet{}

func init() {
	acc := &patternSet{}
	for _, t := range tiers {
		for _, term := range t.nameTerms {
			acc.names = append(acc.names, regexp.MustCompile(`(?i)`+term))
		}
		for _, shape := range t.valueShapes {
			acc.values = append(acc.values, regexp.MustCompile(shape))
		}
		compiled[t.level] = &patternSet{
			names:  append([]*regexp.Regexp{}, acc.names...),
			values: append([]*regexp.Regexp{}, acc.values...),
		}
	}
}

// Patterns returns the source of every name and value pattern active at level.
// Each level's list is a superset of the levels below it.
func Patterns(level SensitivityLevel) []string {
	set := compiled[ParseSensitivityLevel(string(level))]
	out := make([]string, 0, len(set.names)+len(set.values))
	for _, re := range set.names {
		out = append(out, re.String())
	}
	for _, re := range set.values {
		out = append(out, re.String())
	}
	return out
}

// ExtraPattern is an operator-supplied value pattern
type ExtraPattern struct {
	Name  string `mapstructure:"name" yaml:"name" json:"name"`
	Regex string `mapstructure:"regex" yaml:"regex" json:"regex"`
}

// CompileExtra validates and compiles operator patterns.
func CompileExtra(extra []ExtraPattern) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(extra))
	for _, p := range extra {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p.Name, err)
		}
		out = append(out, re)
	}
	return out, nil
}
