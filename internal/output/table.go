package output

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/vburojevic/dcw/internal/domain"
)

// StatsTable renders pipeline counters as a two-column table
func StatsTable(w io.Writer, s domain.PipelineStats) error {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")

	rows := [][]string{
		{"total events", strconv.Itoa(s.TotalEvents)},
	}
	types := make([]string, 0, len(s.EventsByType))
	for t := range s.EventsByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		rows = append(rows, []string{"  " + t, strconv.Itoa(s.EventsByType[domain.EventType(t)])})
	}
	rows = append(rows,
		[]string{"rejected", strconv.Itoa(s.Rejected)},
		[]string{"sessions", strconv.Itoa(s.Sessions)},
		[]string{"stored contexts", strconv.Itoa(s.StoredContexts)},
		[]string{"evicted", strconv.Itoa(s.Evicted)},
		[]string{"escalations", strconv.Itoa(s.Escalations)},
		[]string{"escalation errors", strconv.Itoa(s.EscalationErrors)},
		[]string{"insights dropped", strconv.Itoa(s.InsightsDropped)},
		[]string{"avg latency", s.AvgLatency.Round(time.Microsecond).String()},
		[]string{"max latency", s.MaxLatency.Round(time.Microsecond).String()},
	)
	kinds := make([]string, 0, len(s.RecoveredErrors))
	for k := range s.RecoveredErrors {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		rows = append(rows, []string{"recovered " + k, strconv.Itoa(s.RecoveredErrors[domain.ErrorKind(k)])})
	}
	if !s.LastEventAt.IsZero() {
		rows = append(rows, []string{"last event", s.LastEventAt.UTC().Format(time.RFC3339)})
	}

	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// HistoryTable renders one row per stored context, oldest first
func HistoryTable(w io.Writer, history []*domain.DebugContext) error {
	table := tablewriter.NewWriter(w)
	table.Header("Time", "Session", "Event", "Location", "Vars", "Frames", "Error")

	rows := make([][]string, 0, len(history))
	for _, dc := range history {
		errText := ""
		if dc.Exception != nil {
			errText = dc.Exception.Message
		}
		rows = append(rows, []string{
			dc.Timestamp.UTC().Format("15:04:05"),
			dc.SessionID,
			string(dc.EventType),
			fmt.Sprintf("%s:%d", dc.SourceLocation.File, dc.SourceLocation.Line),
			strconv.Itoa(len(dc.Variables)),
			strconv.Itoa(len(dc.StackTrace)),
			errText,
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
