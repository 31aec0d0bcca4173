package cli

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/vburojevic/dcw/internal/config"
	"github.com/vburojevic/dcw/internal/output"
)

// Set by ldflags at release time
var (
	Version = "dev"
	Commit  = "none"
)

// Globals holds state shared by every command
type Globals struct {
	Format     string
	Quiet      bool
	Verbose    bool
	ConfigPath string
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
	Config     *config.Config
}

// CLI is the kong command tree
type CLI struct {
	Format     string `short:"f" enum:"auto,ndjson,text" default:"${config_format}" help:"Output format (auto picks text on a terminal, ndjson otherwise)"`
	Quiet      bool   `short:"q" help:"Suppress non-error output"`
	Verbose    bool   `short:"v" help:"Debug logging to stderr"`
	ConfigFile string `name:"config" short:"c" type:"path" help:"Config file (yaml, json, toml or plist)"`

	Ingest  IngestCmd  `cmd:"" help:"Ingest an NDJSON stream of raw debug events"`
	History HistoryCmd `cmd:"" help:"Show archived debug contexts"`
	Stats   StatsCmd   `cmd:"" help:"Show archive statistics"`
	Clear   ClearCmd   `cmd:"" help:"Clear archived history"`
	Config  ConfigCmd  `cmd:"" help:"Show or generate configuration"`
	Schema  SchemaCmd  `cmd:"" help:"Print JSON Schema for NDJSON output"`
	Version VersionCmd `cmd:"" help:"Print version"`
}

// NewGlobalsWithConfig merges parsed flags over the loaded config
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	if cfg == nil {
		cfg = config.Default()
	}
	g := &Globals{
		Format:     resolveFormat(c.Format, os.Stdout),
		Quiet:      c.Quiet || cfg.Quiet,
		Verbose:    c.Verbose || cfg.Verbose,
		ConfigPath: c.ConfigFile,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Config:     cfg,
	}
	return g
}

// resolveFormat maps "auto" to text on a terminal and ndjson otherwise
func resolveFormat(format string, out *os.File) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" && format != "auto" {
		return format
	}
	if out != nil && (isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())) {
		return "text"
	}
	return "ndjson"
}

// writer returns the record writer for the selected format
func (g *Globals) writer() output.Writer {
	if g.Format == "text" {
		return output.NewTextWriter(g.Stdout)
	}
	return output.NewNDJSONWriter(g.Stdout)
}
