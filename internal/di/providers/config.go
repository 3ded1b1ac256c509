// Package providers contains dependency injection providers for docwatch.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/docwatch/internal/config"
	"github.com/listenupapp/docwatch/internal/logger"
)

// LoggerHandle wraps the logger so its file sink is closed on shutdown.
type LoggerHandle struct {
	*logger.Logger
}

// Shutdown implements do.Shutdownable.
func (h *LoggerHandle) Shutdown() error {
	return h.Close()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*LoggerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
		File:        cfg.Logger.File,
		// With a log file the terminal stays free for the shell.
		Quiet: cfg.Logger.File != "",
	})

	log.Info("Starting docwatch",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"debounce_window", cfg.Watch.DebounceWindow,
		"self_write_timeout", cfg.Watch.SelfWriteTimeout,
		"fingerprint", cfg.Watch.FingerprintMode,
		"journal", cfg.Journal.Enabled,
	)

	return &LoggerHandle{Logger: log}, nil
}
