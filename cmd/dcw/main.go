package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/vburojevic/dcw/internal/cli"
	"github.com/vburojevic/dcw/internal/config"
)

const quickStart = `dcw - debug context watcher for AI agents

Quick start:
  adapter | dcw ingest                  Capture, redact and escalate debug events
  dcw ingest events.ndjson --stats      Replay a recorded session
  dcw history -s SESSION                Archived contexts for a session

For help:
  dcw --help                            All commands and flags
  dcw schema                            JSON Schema for every record type
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	var c cli.CLI

	// An explicit --config is honored before kong parses so its values
	// become flag defaults
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	vars := kong.Vars{
		"config_format": cfg.Format,
	}

	ctx := kong.Parse(&c,
		kong.Name("dcw"),
		kong.Description("Debug Context Watcher: capture, redact and rank debugger state for AI agents\n\nAI agents: run 'dcw schema' for machine-readable record definitions"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	globals := cli.NewGlobalsWithConfig(&c, cfg)
	if err := ctx.Run(globals); err != nil {
		os.Exit(1)
	}
}

func loadConfig(args []string) (*config.Config, error) {
	for i, arg := range args {
		if (arg == "--config" || arg == "-c") && i+1 < len(args) {
			return config.LoadFromFile(args[i+1])
		}
		if path, ok := strings.CutPrefix(arg, "--config="); ok && path != "" {
			return config.LoadFromFile(path)
		}
	}
	return config.Load()
}
