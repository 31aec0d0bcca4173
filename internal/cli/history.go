package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/vburojevic/dcw/internal/output"
	"github.com/vburojevic/dcw/internal/store"
)

// HistoryCmd shows archived contexts
type HistoryCmd struct {
	Session  string `short:"s" help:"Only this session"`
	Limit    int    `short:"n" default:"50" help:"Newest N contexts (0 for all)"`
	Sessions bool   `help:"List archived sessions instead of contexts"`
	Insights bool   `help:"Show archived insights instead of contexts"`
}

// SessionsOutput lists archived sessions in NDJSON
type SessionsOutput struct {
	Type          string              `json:"type"` // "sessions"
	SchemaVersion int                 `json:"schemaVersion"`
	Sessions      []store.SessionInfo `json:"sessions"`
}

func openArchive(globals *Globals) (*store.Store, error) {
	s, err := store.Open(globals.Config.Store.Path)
	if err != nil {
		return nil, outputErrorCommon(globals, "ARCHIVE_UNAVAILABLE", err.Error(), "check store.path in the config file")
	}
	return s, nil
}

// Run executes the history command
func (c *HistoryCmd) Run(globals *Globals) error {
	s, err := openArchive(globals)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	switch {
	case c.Sessions:
		return c.listSessions(ctx, globals, s)
	case c.Insights:
		return c.listInsights(ctx, globals, s)
	}

	history, err := s.History(ctx, c.Session, c.Limit)
	if err != nil {
		return outputErrorCommon(globals, "QUERY_FAILED", err.Error())
	}
	if globals.Format == "text" {
		if len(history) == 0 {
			fmt.Fprintln(globals.Stdout, "No archived contexts")
			return nil
		}
		return output.HistoryTable(globals.Stdout, history)
	}
	w := output.NewNDJSONWriter(globals.Stdout)
	for _, dc := range history {
		if err := w.WriteContext(dc, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *HistoryCmd) listSessions(ctx context.Context, globals *Globals, s *store.Store) error {
	sessions, err := s.Sessions(ctx)
	if err != nil {
		return outputErrorCommon(globals, "QUERY_FAILED", err.Error())
	}
	if c.Session != "" {
		sessions = lo.Filter(sessions, func(info store.SessionInfo, _ int) bool { return info.ID == c.Session })
	}
	if globals.Format != "text" {
		return json.NewEncoder(globals.Stdout).Encode(SessionsOutput{
			Type:          "sessions",
			SchemaVersion: output.SchemaVersion,
			Sessions:      sessions,
		})
	}

	table := tablewriter.NewWriter(globals.Stdout)
	table.Header("Session", "Contexts", "First", "Last")
	for _, info := range sessions {
		if err := table.Append(info.ID, fmt.Sprint(info.Contexts),
			info.First.Format(time.RFC3339), info.Last.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return table.Render()
}

func (c *HistoryCmd) listInsights(ctx context.Context, globals *Globals, s *store.Store) error {
	insights, err := s.Insights(ctx, c.Session)
	if err != nil {
		return outputErrorCommon(globals, "QUERY_FAILED", err.Error())
	}
	w := globals.writer()
	for _, in := range insights {
		if err := w.WriteInsight(in); err != nil {
			return err
		}
	}
	return nil
}
