package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/vburojevic/dcw/internal/aggregator"
	"github.com/vburojevic/dcw/internal/domain"
)

// newAnalyzer returns the analysis client for ingest. An empty command
// analyzes locally from the projection alone.
func newAnalyzer(command string) aggregator.Analyzer {
	if strings.TrimSpace(command) == "" {
		return aggregator.AnalyzerFunc(localAnalyze)
	}
	return &execAnalyzer{command: command}
}

func localAnalyze(_ context.Context, p domain.AIReadyContext) (string, error) {
	return aggregator.FallbackInsight(p), nil
}

// execAnalyzer pipes each projection as JSON into a shell command and
// reads the insight from its stdout
type execAnalyzer struct {
	command string
}

func (a *execAnalyzer) Analyze(ctx context.Context, p domain.AIReadyContext) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", a.command)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(),
		"DCW_LANGUAGE="+p.CodeContext.Language,
		"DCW_FRAMEWORK="+string(p.CodeContext.Framework),
		"DCW_SUMMARY="+p.Summary,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("analyzer: %w: %s", err, msg)
		}
		return "", fmt.Errorf("analyzer: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
