package app

import (
	"io"
	"log/slog"

	"github.com/vk/typegrid/internal/config"
	"github.com/vk/typegrid/internal/sequencer"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle. Each App owns an isolated logger and registry stack, so tests
// can construct fresh instances without touching global state.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *config.Config
	seq    *sequencer.Sequencer
}

// New is the constructor for the main application. It returns a fully
// initialized App instance with its own sequencer.
func New(outW io.Writer, cfg *config.Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	seq := sequencer.New(sequencer.Options{
		StrictArbitration: cfg.StrictArbitration,
		ForcePortable:     cfg.ForcePortable,
	})
	logger.Debug("Registry stack created.",
		"strict_arbitration", cfg.StrictArbitration,
		"force_portable", cfg.ForcePortable)

	return &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		seq:    seq,
	}
}

// Sequencer returns the application's registry entry point. This is
// primarily for testing.
func (a *App) Sequencer() *sequencer.Sequencer {
	return a.seq
}
