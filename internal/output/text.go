package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/vburojevic/dcw/internal/domain"
)

var (
	eventStyles = map[domain.EventType]lipgloss.Style{
		domain.EventBreakpoint: lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		domain.EventException:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		domain.EventStep:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		domain.EventConsole:    lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
	}
	levelStyles = map[domain.LogLevel]lipgloss.Style{
		domain.LogLevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		domain.LogLevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		domain.LogLevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	insightStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("86")).
			Padding(0, 1)
)

// TextWriter renders records for a human at a terminal
type TextWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextWriter creates a text writer on w
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

func (t *TextWriter) println(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.w, s)
	return err
}

func styleEvent(e domain.EventType) string {
	label := "[" + string(e) + "]"
	if st, ok := eventStyles[e]; ok {
		return st.Render(label)
	}
	return label
}

func (t *TextWriter) WriteContext(dc *domain.DebugContext, recovered []error) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s:%d:%d  %s",
		styleEvent(dc.EventType),
		dc.SessionID,
		dc.SourceLocation.File, dc.SourceLocation.Line, dc.SourceLocation.Column,
		dimStyle.Render(dc.Timestamp.Format("15:04:05.000")))
	if dc.Exception != nil {
		name := dc.Exception.Name
		if name == "" {
			name = "Error"
		}
		fmt.Fprintf(&b, "\n  %s", errorStyle.Render(name+": "+dc.Exception.Message))
	}
	for _, v := range dc.Variables {
		fmt.Fprintf(&b, "\n  %s %s = %s", dimStyle.Render(string(v.Scope)), v.Name, v.Value)
	}
	for i, f := range dc.StackTrace {
		if i == 5 {
			fmt.Fprintf(&b, "\n  %s", dimStyle.Render(fmt.Sprintf("... %d more frames", len(dc.StackTrace)-i)))
			break
		}
		fmt.Fprintf(&b, "\n  at %s (%s:%d:%d)", f.Name, f.File, f.Line, f.Column)
	}
	for _, e := range dc.ConsoleOutput {
		line := fmt.Sprintf("%-5s %s", e.Level, e.Message)
		if st, ok := levelStyles[e.Level]; ok {
			line = st.Render(line)
		}
		fmt.Fprintf(&b, "\n  %s", line)
	}
	for _, r := range dc.NetworkActivity {
		line := fmt.Sprintf("%s %s -> %d", r.Method, r.URL, r.Status)
		if r.Failed() {
			line = errorStyle.Render(line)
		}
		fmt.Fprintf(&b, "\n  %s", line)
	}
	for _, err := range recovered {
		fmt.Fprintf(&b, "\n  %s", dimStyle.Render("recovered: "+err.Error()))
	}
	return t.println(b.String())
}

func (t *TextWriter) WriteProjection(p domain.AIReadyContext) error {
	return t.println(dimStyle.Render("projection: ") + p.Summary)
}

func (t *TextWriter) WriteInsight(i domain.Insight) error {
	title := "Insight"
	if i.Fallback {
		title = "Insight (local fallback)"
	}
	return t.println(insightStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render(title+" "+i.SessionID),
		i.Text,
	)))
}

func (t *TextWriter) WriteSessionStart(s *domain.SessionStart) error {
	return t.println(dimStyle.Render(fmt.Sprintf("── session %s started (%s) ──", s.SessionID, s.EventType)))
}

func (t *TextWriter) WriteSessionEnd(s *domain.SessionEnd) error {
	return t.println(dimStyle.Render(fmt.Sprintf("── session %s ended (%s): %d events, %d exceptions, %ds ──",
		s.SessionID, s.Reason, s.Summary.TotalEvents, s.Summary.Exceptions, s.Summary.DurationSeconds)))
}

func (t *TextWriter) WriteStats(s domain.PipelineStats) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return StatsTable(t.w, s)
}

func (t *TextWriter) WriteCleared(sessionID string, removed int) error {
	scope := "all sessions"
	if sessionID != "" {
		scope = "session " + sessionID
	}
	return t.println(fmt.Sprintf("Cleared %d contexts from %s", removed, scope))
}

func (t *TextWriter) WriteError(code, message string, hint ...string) error {
	line := errorStyle.Render(fmt.Sprintf("Error [%s]: %s", code, message))
	if len(hint) > 0 && hint[0] != "" {
		line += dimStyle.Render(" (hint: " + hint[0] + ")")
	}
	return t.println(line)
}
