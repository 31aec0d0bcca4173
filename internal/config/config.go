package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/redact"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Format  string `mapstructure:"format" yaml:"format" json:"format"`
	Quiet   bool   `mapstructure:"quiet" yaml:"quiet" json:"quiet"`
	Verbose bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Privacy    redact.Settings  `mapstructure:"privacy" yaml:"privacy" json:"privacy"`
	Retention  RetentionConfig  `mapstructure:"retention" yaml:"retention" json:"retention"`
	Escalation EscalationConfig `mapstructure:"escalation" yaml:"escalation" json:"escalation"`
	Console    ConsoleConfig    `mapstructure:"console" yaml:"console" json:"console"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store" json:"store"`
}

// RetentionConfig bounds history per session and sets the eviction tick
type RetentionConfig struct {
	MaxAge   time.Duration `mapstructure:"max_age" yaml:"max_age" json:"max_age"`
	MaxSize  int           `mapstructure:"max_size" yaml:"max_size" json:"max_size"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

// Policy returns the retention policy part of the config
func (r RetentionConfig) Policy() domain.RetentionPolicy {
	return domain.RetentionPolicy{MaxAge: r.MaxAge, MaxSize: r.MaxSize}
}

// EscalationConfig controls hand-off to the analysis client
type EscalationConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// ConsoleConfig controls console buffering
type ConsoleConfig struct {
	Dedupe       bool          `mapstructure:"dedupe" yaml:"dedupe" json:"dedupe"`
	DedupeWindow time.Duration `mapstructure:"dedupe_window" yaml:"dedupe_window" json:"dedupe_window"`
}

// StoreConfig locates the history archive
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format:  "auto",
		Quiet:   false,
		Verbose: false,
		Privacy: redact.DefaultSettings(),
		Retention: RetentionConfig{
			MaxAge:   time.Hour,
			MaxSize:  50,
			Interval: time.Minute,
		},
		Escalation: EscalationConfig{
			Enabled: true,
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{Path: DefaultStorePath()},
	}
}

// DefaultStorePath is the archive location under the user cache directory
func DefaultStorePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "dcw", "history.db")
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	var errs []error
	switch c.Format {
	case "auto", "ndjson", "text":
	default:
		errs = append(errs, fmt.Errorf("format must be auto, ndjson or text, got %q", c.Format))
	}
	if lvl := strings.ToLower(strings.TrimSpace(string(c.Privacy.SensitivityLevel))); lvl != "" && !redact.SensitivityLevel(lvl).Valid() {
		errs = append(errs, fmt.Errorf("privacy.sensitivity_level must be low, medium or high, got %q", c.Privacy.SensitivityLevel))
	}
	if _, err := redact.CompileExtra(c.Privacy.ExtraPatterns); err != nil {
		errs = append(errs, err)
	}
	if c.Retention.MaxAge < 0 || c.Retention.MaxSize < 0 {
		errs = append(errs, errors.New("retention.max_age and retention.max_size must not be negative"))
	}
	return errors.Join(errs...)
}

func newViper() *viper.Viper {
	v := viper.New()

	// Environment variables
	v.SetEnvPrefix("DCW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Short aliases for the settings most often overridden
	_ = v.BindEnv("format", "DCW_FORMAT")
	_ = v.BindEnv("quiet", "DCW_QUIET")
	_ = v.BindEnv("verbose", "DCW_VERBOSE")
	_ = v.BindEnv("privacy.sensitivity_level", "DCW_PRIVACY_SENSITIVITY_LEVEL", "DCW_SENSITIVITY_LEVEL")
	_ = v.BindEnv("retention.max_age", "DCW_RETENTION_MAX_AGE", "DCW_MAX_AGE")
	_ = v.BindEnv("retention.max_size", "DCW_RETENTION_MAX_SIZE", "DCW_MAX_SIZE")
	_ = v.BindEnv("store.path", "DCW_STORE_PATH", "DCW_STORE")

	setDefaults(v, Default())
	return v
}

// setDefaults registers every key so env overrides and Unmarshal see them
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("format", cfg.Format)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("verbose", cfg.Verbose)

	v.SetDefault("privacy.redact_sensitive_variables", cfg.Privacy.RedactSensitiveVariables)
	v.SetDefault("privacy.redact_file_contents", cfg.Privacy.RedactFileContents)
	v.SetDefault("privacy.redact_network_data", cfg.Privacy.RedactNetworkData)
	v.SetDefault("privacy.max_variable_value_length", cfg.Privacy.MaxVariableValueLength)
	v.SetDefault("privacy.max_stack_frames", cfg.Privacy.MaxStackFrames)
	v.SetDefault("privacy.max_console_entries", cfg.Privacy.MaxConsoleEntries)
	v.SetDefault("privacy.sensitivity_level", string(cfg.Privacy.SensitivityLevel))

	v.SetDefault("retention.max_age", cfg.Retention.MaxAge)
	v.SetDefault("retention.max_size", cfg.Retention.MaxSize)
	v.SetDefault("retention.interval", cfg.Retention.Interval)

	v.SetDefault("escalation.enabled", cfg.Escalation.Enabled)
	v.SetDefault("escalation.timeout", cfg.Escalation.Timeout)

	v.SetDefault("console.dedupe", cfg.Console.Dedupe)
	v.SetDefault("console.dedupe_window", cfg.Console.DedupeWindow)

	v.SetDefault("store.path", cfg.Store.Path)
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigType("yaml")
	// Add config paths (in order of precedence, highest first)
	// 1. Current directory (dcw.yaml or .dcw.yaml)
	// 2. User config directory
	// 3. Home directory
	// 4. System-wide config
	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	return decode(v)
}

// LoadFromFile loads configuration from a specific file. Property lists
// (.plist) are accepted alongside YAML, JSON and TOML.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()

	if strings.EqualFold(filepath.Ext(path), ".plist") {
		settings, err := readPlist(path)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, err
		}
		return decode(v)
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Privacy = cfg.Privacy.Normalized()
	return cfg, nil
}

// searchPaths lists candidate config files, highest precedence first
func searchPaths() []string {
	var dirs []string
	dirs = append(dirs, ".")
	if configDir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(configDir, "dcw"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	dirs = append(dirs, "/etc/dcw")

	var paths []string
	for _, dir := range dirs {
		for _, name := range []string{"dcw.yaml", "dcw.yml", ".dcw.yaml", ".dcwrc"} {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths
}

func findConfigFile() string {
	for _, p := range searchPaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// ConfigFile returns the path to the config file Load would read, or ""
func ConfigFile() string {
	path := findConfigFile()
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
