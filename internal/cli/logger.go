package cli

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the pipeline logger. Verbose runs log JSON at debug level
// to stderr so stdout stays a clean record stream; otherwise only warnings
// and errors are logged.
func newLogger(globals *Globals, command string) *zap.Logger {
	if globals == nil {
		return zap.NewNop()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	switch {
	case globals.Verbose:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case globals.Quiet:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("command", command))
}
