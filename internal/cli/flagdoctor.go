package cli

// validateFlags centralizes common flag combinations to keep behavior consistent.
func validateFlags(globals *Globals, projections, escalate bool, analyzerCmd string) error {
	if analyzerCmd != "" && !escalate {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--analyzer-cmd has no effect with --no-escalate", "drop --analyzer-cmd or --no-escalate")
	}
	if projections && globals != nil && globals.Format != "ndjson" {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--projections requires ndjson output", "add --format ndjson or remove --projections")
	}
	// quiet + text is confusing for agents; steer to ndjson
	if globals != nil && globals.Format == "text" && globals.Quiet {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--quiet is only supported with ndjson output", "switch to --format ndjson or drop --quiet")
	}
	return nil
}
