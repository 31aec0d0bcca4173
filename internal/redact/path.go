package redact

import (
	"regexp"
	"strings"
)

// HomePlaceholder replaces a user's home directory in paths and traces
const HomePlaceholder = "~"

var homeDirPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/Users/[^/\s:'"()]+`),
	regexp.MustCompile(`/home/[^/\s:'"()]+`),
	regexp.MustCompile(`(?i)[a-z]:[\\/](?:Users|Documents and Settings)[\\/][^\\/\s:'"()]+`),
}

// /root only counts at the start of a path token, not inside /srv/root/...
var rootHomePattern = regexp.MustCompile(`(^|[\s('"=])/root(/|$)`)

// ~alice/... names another user's home
var tildeUserPattern = regexp.MustCompile(`(^|[\s('"=])~[A-Za-z0-9._-]+(/|$)`)

// SanitizePath replaces OS-specific home-directory segments with ~.
func SanitizePath(p string) string {
	if p == "" {
		return p
	}
	for _, re := range homeDirPatterns {
		p = re.ReplaceAllString(p, HomePlaceholder)
	}
	p = tildeUserPattern.ReplaceAllString(p, "${1}"+HomePlaceholder+"${2}")
	return rootHomePattern.ReplaceAllString(p, "${1}"+HomePlaceholder+"${2}")
}

// SanitizeTrace sanitizes each line of a multi-line trace independently.
func SanitizeTrace(trace string) string {
	if trace == "" {
		return trace
	}
	lines := strings.Split(trace, "\n")
	for i, line := range lines {
		lines[i] = SanitizePath(line)
	}
	return strings.Join(lines, "\n")
}
