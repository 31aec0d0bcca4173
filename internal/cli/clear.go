package cli

import "context"

// ClearCmd deletes archived history
type ClearCmd struct {
	Session string `short:"s" help:"Only this session (default: everything)"`
}

// Run executes the clear command
func (c *ClearCmd) Run(globals *Globals) error {
	s, err := openArchive(globals)
	if err != nil {
		return err
	}
	defer s.Close()

	removed, err := s.Clear(context.Background(), c.Session)
	if err != nil {
		return outputErrorCommon(globals, "CLEAR_FAILED", err.Error())
	}
	return globals.writer().WriteCleared(c.Session, removed)
}
