package app

import (
	"io"

	"go.uber.org/zap"

	"github.com/YoshitsuguKoike/gatechain/internal/app/config"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// ConfigureLogger builds the process logger from configuration and installs
// it as the global logger. levelOverride wins over the configured level when set.
func ConfigureLogger(cfg config.Config, levelOverride string, w io.Writer) *zap.SugaredLogger {
	level := cfg.LogLevel()
	if levelOverride != "" {
		level = levelOverride
	}
	l := logging.New(level, cfg.LogFormat(), w)
	logging.SetLogger(l)
	return l
}
