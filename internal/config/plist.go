package config

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"howett.net/plist"
)

// privacyKeys are accepted at the top level of a property list and moved
// under the privacy section, matching how IDE preference domains store them
var privacyKeys = map[string]bool{
	"redact_sensitive_variables": true,
	"redact_file_contents":       true,
	"redact_network_data":        true,
	"max_variable_value_length":  true,
	"max_stack_frames":           true,
	"max_console_entries":        true,
	"sensitivity_level":          true,
	"extra_patterns":             true,
}

// readPlist decodes a property list (XML, binary or OpenStep) into a
// settings map with snake_case keys
func readPlist(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if _, err := plist.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	settings, _ := normalizeKeys(raw).(map[string]any)
	privacy, _ := settings["privacy"].(map[string]any)
	if privacy == nil {
		privacy = make(map[string]any)
	}
	for k, v := range settings {
		if privacyKeys[k] {
			privacy[k] = v
			delete(settings, k)
		}
	}
	if len(privacy) > 0 {
		settings["privacy"] = privacy
	}
	return settings, nil
}

func normalizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[snakeCase(k)] = normalizeKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeKeys(val)
		}
		return out
	case uint64:
		return int(t)
	default:
		return v
	}
}

// snakeCase converts camelCase and kebab-case keys; snake_case passes through
func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if i > 0 && runes[i-1] != '_' && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
