package redact

import "strings"

// SensitivityLevel selects how many pattern tiers are active
type SensitivityLevel string

const (
	SensitivityLow    SensitivityLevel = "low"
	SensitivityMedium SensitivityLevel = "medium"
	SensitivityHigh   SensitivityLevel = "high"
)

// ParseSensitivityLevel is case-insensitive and falls back to medium
func ParseSensitivityLevel(s string) SensitivityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SensitivityLow
	case "high":
		return SensitivityHigh
	default:
		return SensitivityMedium
	}
}

// Valid reports whether s names a known level
func (l SensitivityLevel) Valid() bool {
	switch l {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return true
	}
	return false
}

func (l SensitivityLevel) tiers() int {
	switch l {
	case SensitivityLow:
		return 1
	case SensitivityHigh:
		return 3
	default:
		return 2
	}
}
