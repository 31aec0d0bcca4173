package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/output"
	"github.com/vburojevic/dcw/internal/store"
)

// StatsCmd summarizes the archive
type StatsCmd struct{}

// ArchiveStatsOutput is the NDJSON record for archive statistics
type ArchiveStatsOutput struct {
	SchemaVersion int `json:"schemaVersion"`
	store.Summary
}

// Run executes the stats command
func (c *StatsCmd) Run(globals *Globals) error {
	s, err := openArchive(globals)
	if err != nil {
		return err
	}
	defer s.Close()

	sum, err := s.Stats(context.Background())
	if err != nil {
		return outputErrorCommon(globals, "QUERY_FAILED", err.Error())
	}

	if globals.Format != "text" {
		return json.NewEncoder(globals.Stdout).Encode(ArchiveStatsOutput{
			SchemaVersion: output.SchemaVersion,
			Summary:       sum,
		})
	}

	table := tablewriter.NewWriter(globals.Stdout)
	table.Header("Metric", "Value")
	rows := [][]string{
		{"contexts", fmt.Sprint(sum.Contexts)},
		{"sessions", fmt.Sprint(sum.Sessions)},
		{"exceptions", fmt.Sprint(sum.Exceptions)},
		{"insights", fmt.Sprint(sum.Insights)},
		{"fallback insights", fmt.Sprint(sum.Fallbacks)},
	}
	types := lo.Map(lo.Keys(sum.ByType), func(t domain.EventType, _ int) string { return string(t) })
	sort.Strings(types)
	for _, t := range types {
		rows = append(rows, []string{"  " + t, fmt.Sprint(sum.ByType[domain.EventType(t)])})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
