package config

import (
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// NewLogger builds the daemon logger at the given level (debug, info,
// warn, error). Console encoding without timestamps suits the journal.
func NewLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.NotValidf("log_level %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = ""
	cfg.DisableStacktrace = true
	log, err := cfg.Build()
	if err != nil {
		return nil, errors.Annotate(err, "build logger")
	}
	return log.Sugar(), nil
}
