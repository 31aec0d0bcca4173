package cli

import (
	"encoding/json"
	"fmt"

	"github.com/vburojevic/dcw/internal/output"
)

// VersionCmd prints the build version
type VersionCmd struct{}

// VersionOutput is the NDJSON version record
type VersionOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
}

// Run executes the version command
func (c *VersionCmd) Run(globals *Globals) error {
	if globals.Format == "text" {
		fmt.Fprintf(globals.Stdout, "dcw %s (%s)\n", Version, Commit)
		return nil
	}
	return json.NewEncoder(globals.Stdout).Encode(VersionOutput{
		Type:          "version",
		SchemaVersion: output.SchemaVersion,
		Version:       Version,
		Commit:        Commit,
	})
}
