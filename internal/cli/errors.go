package cli

import (
	"errors"
)

// outputErrorCommon normalizes error emission across commands, respecting
// ndjson vs text formats so AI agents always get machine-readable failures.
func outputErrorCommon(globals *Globals, code, message string, hint ...string) error {
	if globals != nil {
		if globals.Format == "ndjson" {
			_ = globals.writer().WriteError(code, message, hint...)
		} else {
			// text errors go to stderr so piped stdout stays clean
			w := *globals
			w.Stdout = globals.Stderr
			_ = w.writer().WriteError(code, message, hint...)
		}
	}
	return errors.New(message)
}
