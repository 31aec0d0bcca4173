package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vburojevic/dcw/internal/config"
	"github.com/vburojevic/dcw/internal/output"
)

// ConfigCmd groups configuration subcommands
type ConfigCmd struct {
	Show     ConfigShowCmd     `cmd:"" default:"1" help:"Show the effective configuration"`
	Path     ConfigPathCmd     `cmd:"" help:"Show which config file is in use"`
	Generate ConfigGenerateCmd `cmd:"" help:"Print a config file with default values"`
	Import   ConfigImportCmd   `cmd:"" help:"Convert a config file (e.g. an IDE .plist) to YAML"`
}

// ConfigShowCmd prints the effective configuration
type ConfigShowCmd struct{}

// ConfigOutput is the NDJSON config record
type ConfigOutput struct {
	Type          string `json:"type"` // "config"
	SchemaVersion int    `json:"schemaVersion"`
	ConfigFile    string `json:"config_file,omitempty"`
	*config.Config
}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if globals.Format == "ndjson" {
		return json.NewEncoder(globals.Stdout).Encode(ConfigOutput{
			Type:          "config",
			SchemaVersion: output.SchemaVersion,
			ConfigFile:    configPath(globals),
			Config:        cfg,
		})
	}

	fmt.Fprintln(globals.Stdout, "Current Configuration:")
	if path := configPath(globals); path != "" {
		fmt.Fprintf(globals.Stdout, "  file: %s\n", path)
	}
	fmt.Fprintf(globals.Stdout, "  format: %s\n", cfg.Format)
	fmt.Fprintf(globals.Stdout, "  quiet: %v\n", cfg.Quiet)
	fmt.Fprintf(globals.Stdout, "  verbose: %v\n", cfg.Verbose)
	fmt.Fprintln(globals.Stdout)
	fmt.Fprintln(globals.Stdout, "Privacy:")
	fmt.Fprintf(globals.Stdout, "  redact_sensitive_variables: %v\n", cfg.Privacy.RedactSensitiveVariables)
	fmt.Fprintf(globals.Stdout, "  redact_file_contents: %v\n", cfg.Privacy.RedactFileContents)
	fmt.Fprintf(globals.Stdout, "  redact_network_data: %v\n", cfg.Privacy.RedactNetworkData)
	fmt.Fprintf(globals.Stdout, "  max_variable_value_length: %d\n", cfg.Privacy.MaxVariableValueLength)
	fmt.Fprintf(globals.Stdout, "  max_stack_frames: %d\n", cfg.Privacy.MaxStackFrames)
	fmt.Fprintf(globals.Stdout, "  max_console_entries: %d\n", cfg.Privacy.MaxConsoleEntries)
	fmt.Fprintf(globals.Stdout, "  sensitivity_level: %s\n", cfg.Privacy.SensitivityLevel)
	for _, p := range cfg.Privacy.ExtraPatterns {
		fmt.Fprintf(globals.Stdout, "  extra pattern %s: %s\n", p.Name, p.Regex)
	}
	fmt.Fprintln(globals.Stdout)
	fmt.Fprintln(globals.Stdout, "Retention:")
	fmt.Fprintf(globals.Stdout, "  max_age: %s\n", cfg.Retention.MaxAge)
	fmt.Fprintf(globals.Stdout, "  max_size: %d\n", cfg.Retention.MaxSize)
	fmt.Fprintf(globals.Stdout, "  interval: %s\n", cfg.Retention.Interval)
	fmt.Fprintln(globals.Stdout)
	fmt.Fprintln(globals.Stdout, "Escalation:")
	fmt.Fprintf(globals.Stdout, "  enabled: %v\n", cfg.Escalation.Enabled)
	fmt.Fprintf(globals.Stdout, "  timeout: %s\n", cfg.Escalation.Timeout)
	fmt.Fprintln(globals.Stdout)
	fmt.Fprintf(globals.Stdout, "Store:\n  path: %s\n", cfg.Store.Path)
	return nil
}

// ConfigPathCmd prints the config file location
type ConfigPathCmd struct{}

// ConfigPathOutput is the NDJSON config_path record
type ConfigPathOutput struct {
	Type          string `json:"type"` // "config_path"
	SchemaVersion int    `json:"schemaVersion"`
	Path          string `json:"path"`
	Found         bool   `json:"found"`
}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := configPath(globals)
	if globals.Format == "ndjson" {
		return json.NewEncoder(globals.Stdout).Encode(ConfigPathOutput{
			Type:          "config_path",
			SchemaVersion: output.SchemaVersion,
			Path:          path,
			Found:         path != "",
		})
	}
	if path == "" {
		fmt.Fprintln(globals.Stdout, "No configuration file found (using defaults)")
		fmt.Fprintln(globals.Stdout, "Searched: ./dcw.yaml, ~/.config/dcw/dcw.yaml, ~/.dcw.yaml, /etc/dcw/dcw.yaml")
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Config file: %s\n", path)
	return nil
}

// ConfigGenerateCmd prints a default config file
type ConfigGenerateCmd struct{}

// Run executes the config generate command
func (c *ConfigGenerateCmd) Run(globals *Globals) error {
	data, err := config.Default().YAML()
	if err != nil {
		return outputErrorCommon(globals, "CONFIG_GENERATE_FAILED", err.Error())
	}
	_, err = globals.Stdout.Write(data)
	return err
}

// ConfigImportCmd converts a config file to YAML
type ConfigImportCmd struct {
	File string `arg:"" type:"existingfile" help:"Config file to import (.plist, .yaml, .json, .toml)"`
	Out  string `short:"o" type:"path" help:"Write YAML here instead of stdout"`
}

// Run executes the config import command
func (c *ConfigImportCmd) Run(globals *Globals) error {
	cfg, err := config.LoadFromFile(c.File)
	if err != nil {
		return outputErrorCommon(globals, "CONFIG_IMPORT_FAILED", err.Error(), "check the file is a valid property list or YAML")
	}
	data, err := cfg.YAML()
	if err != nil {
		return outputErrorCommon(globals, "CONFIG_IMPORT_FAILED", err.Error())
	}
	if c.Out == "" {
		_, err = globals.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(c.Out, data, 0o644); err != nil {
		return outputErrorCommon(globals, "CONFIG_IMPORT_FAILED", err.Error())
	}
	if !globals.Quiet {
		fmt.Fprintf(globals.Stderr, "Wrote %s\n", c.Out)
	}
	return nil
}

func configPath(globals *Globals) string {
	if globals.ConfigPath != "" {
		return globals.ConfigPath
	}
	return config.ConfigFile()
}
