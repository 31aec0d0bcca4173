package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
	"github.com/vburojevic/dcw/internal/aggregator"
	"github.com/vburojevic/dcw/internal/config"
	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/filter"
	"github.com/vburojevic/dcw/internal/output"
	"github.com/vburojevic/dcw/internal/retention"
	"github.com/vburojevic/dcw/internal/store"
	"go.uber.org/zap"
)

// maxLineSize bounds a single NDJSON event
const maxLineSize = 8 * 1024 * 1024

// IngestCmd runs the capture pipeline over an NDJSON event stream
type IngestCmd struct {
	File         string        `arg:"" optional:"" type:"existingfile" help:"NDJSON event file (default: stdin)"`
	Projections  bool          `help:"Emit the ranked projection of every escalated context"`
	NoEscalate   bool          `name:"no-escalate" help:"Never hand contexts to the analyzer"`
	AnalyzerCmd  string        `name:"analyzer-cmd" help:"Command that reads a projection on stdin and prints an insight"`
	NoArchive    bool          `name:"no-archive" help:"Do not archive committed contexts"`
	WatchConfig  bool          `name:"watch-config" help:"Reload privacy and retention settings when the config file changes"`
	Dedupe       bool          `help:"Fold repeated console lines"`
	DedupeWindow time.Duration `name:"dedupe-window" help:"Fold window for --dedupe (0 folds consecutive repeats only)"`
	Pattern      string        `short:"p" help:"Only show console lines matching this regex"`
	Exclude      []string      `short:"x" help:"Hide console lines matching these regexes"`
	Where        []string      `short:"w" help:"Console where clauses, e.g. level>=warn or message~timeout"`
	Stats        bool          `help:"Emit a stats record at end of stream"`
}

// controlRecord is a non-event line on the input stream
type controlRecord struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Run executes the ingest command
func (c *IngestCmd) Run(globals *Globals) error {
	cfg := globals.Config
	escalate := cfg.Escalation.Enabled && !c.NoEscalate
	if err := validateFlags(globals, c.Projections, !c.NoEscalate, c.AnalyzerCmd); err != nil {
		return err
	}
	console, err := c.consoleFilter()
	if err != nil {
		return outputErrorCommon(globals, "INVALID_FILTER", err.Error(), "check --pattern, --exclude and --where syntax")
	}

	in := globals.Stdin
	if c.File != "" {
		f, err := os.Open(c.File)
		if err != nil {
			return outputErrorCommon(globals, "OPEN_FAILED", err.Error())
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(globals, "ingest")
	defer func() { _ = logger.Sync() }()
	w := globals.writer()

	var archive *store.Store
	if !c.NoArchive {
		archive, err = store.Open(cfg.Store.Path)
		if err != nil {
			logger.Warn("archive unavailable, continuing without it", zap.String("path", cfg.Store.Path), zap.Error(err))
			archive = nil
		} else {
			defer archive.Close()
		}
	}

	opts := []aggregator.Option{
		aggregator.WithLogger(logger),
		aggregator.WithEscalationTimeout(cfg.Escalation.Timeout),
	}
	if archive != nil {
		opts = append(opts, aggregator.WithArchive(archive))
	}
	if c.Dedupe || cfg.Console.Dedupe {
		window := cfg.Console.DedupeWindow
		if c.DedupeWindow > 0 {
			window = c.DedupeWindow
		}
		opts = append(opts, aggregator.WithConsoleDedupe(window))
	}

	// the sink needs the clock, which the aggregator owns
	var agg *aggregator.Aggregator
	if escalate {
		sink := aggregator.SinkFunc(func(insight domain.Insight) {
			if err := w.WriteInsight(insight); err != nil {
				logger.Warn("write insight failed", zap.Error(err))
			}
			if archive != nil {
				if err := archive.SaveInsight(ctx, insight, agg.Clock().Now()); err != nil {
					logger.Warn("archive insight failed", zap.String("context_id", insight.ContextID), zap.Error(err))
				}
			}
		})
		opts = append(opts, aggregator.WithAnalyzer(newAnalyzer(c.AnalyzerCmd), sink))
	}

	agg, err = aggregator.New(cfg.Privacy, opts...)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_CONFIG", err.Error(), "fix the privacy section of the config file")
	}
	defer agg.Close()

	manager := retention.NewManager(agg, cfg.Retention.Policy(),
		retention.WithClock(agg.Clock()),
		retention.WithLogger(logger))

	var bg sync.WaitGroup
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer func() {
		cancelBg()
		bg.Wait()
	}()
	bg.Add(1)
	go func() {
		defer bg.Done()
		manager.Run(bgCtx, cfg.Retention.Interval)
	}()

	if c.WatchConfig {
		path := globals.ConfigPath
		if path == "" {
			path = config.ConfigFile()
		}
		if path == "" {
			logger.Warn("--watch-config set but no config file found")
		} else if watcher, err := config.NewWatcher(path, cfg, func(next *config.Config) {
			if err := agg.UpdateSettings(next.Privacy); err != nil {
				logger.Warn("privacy reload rejected", zap.Error(err))
				return
			}
			manager.SetPolicy(next.Retention.Policy())
		}, config.WithWatchLogger(logger)); err != nil {
			logger.Warn("config watch unavailable", zap.Error(err))
		} else {
			bg.Add(1)
			go func() {
				defer bg.Done()
				_ = watcher.Run(bgCtx)
			}()
		}
	}

	if err := c.consume(ctx, in, globals, w, agg, console, logger); err != nil {
		return outputErrorCommon(globals, "STREAM_FAILED", err.Error())
	}

	agg.Wait()
	for _, end := range agg.Finish() {
		_ = w.WriteSessionEnd(end)
	}
	manager.EvictNow()
	if archive != nil {
		if n, err := archive.Prune(ctx, manager.Policy(), agg.Clock().Now()); err != nil {
			logger.Warn("archive prune failed", zap.Error(err))
		} else if n > 0 {
			logger.Debug("archive pruned", zap.Int("removed", n))
		}
	}
	if c.Stats {
		return w.WriteStats(agg.Stats())
	}
	return nil
}

func (c *IngestCmd) consume(ctx context.Context, in io.Reader, globals *Globals, w output.Writer, agg *aggregator.Aggregator, console *filter.Pipeline, logger *zap.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		if !gjson.ValidBytes(data) {
			_ = w.WriteError("INVALID_EVENT", fmt.Sprintf("line %d is not valid JSON", line), "send one JSON object per line")
			continue
		}

		switch kind := gjson.GetBytes(data, "type").String(); kind {
		case "", "event":
		case "terminate", "clear", "stats":
			var ctl controlRecord
			_ = json.Unmarshal(data, &ctl)
			c.control(ctl, w, agg)
			continue
		default:
			_ = w.WriteError("UNKNOWN_RECORD", fmt.Sprintf("line %d has unknown type %q", line, kind), "use event, terminate, clear or stats")
			continue
		}

		var raw domain.RawEvent
		if err := json.Unmarshal(data, &raw); err != nil {
			_ = w.WriteError("INVALID_EVENT", fmt.Sprintf("line %d: %v", line, err), "check field types against 'dcw schema --type event'")
			continue
		}

		res := agg.Ingest(ctx, raw)
		if res.Start != nil {
			_ = w.WriteSessionStart(res.Start)
		}
		if res.Rejected != nil {
			_ = w.WriteError("SESSION_TERMINATED", fmt.Sprintf("session %s: %v", res.Context.SessionID, res.Rejected))
			continue
		}
		if !globals.Quiet {
			dc := res.Context
			if console != nil {
				dc = dc.Clone()
				dc.ConsoleOutput = filterConsole(dc.ConsoleOutput, console)
			}
			if err := w.WriteContext(dc, res.Errors); err != nil {
				return err
			}
		}
		if c.Projections && res.Escalated {
			_ = w.WriteProjection(aggregator.Rank(res.Context, raw.UserQuery, raw.Language))
		}
		logger.Debug("line processed", zap.Int("line", line), zap.String("context_id", res.Context.ID))
	}
	return scanner.Err()
}

func (c *IngestCmd) control(ctl controlRecord, w output.Writer, agg *aggregator.Aggregator) {
	switch ctl.Type {
	case "terminate":
		if ctl.SessionID == "" {
			_ = w.WriteError("INVALID_CONTROL", "terminate requires session_id")
			return
		}
		if end := agg.Terminate(ctl.SessionID); end != nil {
			_ = w.WriteSessionEnd(end)
		}
	case "clear":
		_ = w.WriteCleared(ctl.SessionID, agg.ClearHistory(ctl.SessionID))
	case "stats":
		_ = w.WriteStats(agg.Stats())
	}
}

func (c *IngestCmd) consoleFilter() (*filter.Pipeline, error) {
	var pattern *regexp.Regexp
	if c.Pattern != "" {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		pattern = re
	}
	excludes := make([]*regexp.Regexp, 0, len(c.Exclude))
	for _, x := range c.Exclude {
		re, err := regexp.Compile(x)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern: %w", err)
		}
		excludes = append(excludes, re)
	}
	var where *filter.WhereFilter
	if len(c.Where) > 0 {
		wf, err := filter.NewWhereFilter(c.Where)
		if err != nil {
			return nil, err
		}
		where = wf
	}
	return filter.NewPipeline(pattern, excludes, where), nil
}

func filterConsole(entries []domain.LogEntry, p *filter.Pipeline) []domain.LogEntry {
	out := make([]domain.LogEntry, 0, len(entries))
	for i := range entries {
		if p.Match(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out
}
