package redact

// Settings are the privacy options loaded from configuration. Each toggle is
// independent; missing values fall back to DefaultSettings.
type Settings struct {
	RedactSensitiveVariables bool             `mapstructure:"redact_sensitive_variables" yaml:"redact_sensitive_variables" json:"redact_sensitive_variables"`
	RedactFileContents       bool             `mapstructure:"redact_file_contents" yaml:"redact_file_contents" json:"redact_file_contents"`
	RedactNetworkData        bool             `mapstructure:"redact_network_data" yaml:"redact_network_data" json:"redact_network_data"`
	MaxVariableValueLength   int              `mapstructure:"max_variable_value_length" yaml:"max_variable_value_length" json:"max_variable_value_length"`
	MaxStackFrames           int              `mapstructure:"max_stack_frames" yaml:"max_stack_frames" json:"max_stack_frames"`
	MaxConsoleEntries        int              `mapstructure:"max_console_entries" yaml:"max_console_entries" json:"max_console_entries"`
	SensitivityLevel         SensitivityLevel `mapstructure:"sensitivity_level" yaml:"sensitivity_level" json:"sensitivity_level"`
	ExtraPatterns            []ExtraPattern   `mapstructure:"extra_patterns" yaml:"extra_patterns,omitempty" json:"extra_patterns,omitempty"`
}

// DefaultSettings redacts everything at medium sensitivity
func DefaultSettings() Settings {
	return Settings{
		RedactSensitiveVariables: true,
		RedactFileContents:       true,
		RedactNetworkData:        true,
		MaxVariableValueLength:   DefaultMaxValueLength,
		MaxStackFrames:           20,
		MaxConsoleEntries:        50,
		SensitivityLevel:         SensitivityMedium,
	}
}

// Normalized replaces non-positive limits and unknown levels with defaults
func (s Settings) Normalized() Settings {
	d := DefaultSettings()
	if s.MaxVariableValueLength <= 0 {
		s.MaxVariableValueLength = d.MaxVariableValueLength
	}
	if s.MaxStackFrames <= 0 {
		s.MaxStackFrames = d.MaxStackFrames
	}
	if s.MaxConsoleEntries <= 0 {
		s.MaxConsoleEntries = d.MaxConsoleEntries
	}
	s.SensitivityLevel = ParseSensitivityLevel(string(s.SensitivityLevel))
	return s
}

// Engine builds the redaction engine these settings describe
func (s Settings) Engine() (*Engine, error) {
	s = s.Normalized()
	extra, err := CompileExtra(s.ExtraPatterns)
	if err != nil {
		return nil, err
	}
	return NewEngine(s.SensitivityLevel,
		WithMaxValueLength(s.MaxVariableValueLength),
		WithExtraPatterns(extra),
	), nil
}
