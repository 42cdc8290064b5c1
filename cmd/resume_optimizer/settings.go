package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/config"
	"github.com/jonathan/resume-optimizer/internal/db"
	"github.com/jonathan/resume-optimizer/internal/pipeline"
)

// resolve loads the config file, applies explicitly set flags, then defaults
// and environment fallbacks. override applies command-specific flags.
func (g *globalFlags) resolve(cmd *cobra.Command, override func(*config.Config)) (config.Config, error) {
	var cfg config.Config
	if g.configPath != "" {
		loaded, err := config.LoadConfig(g.configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return cfg, err
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.OutputDir = g.outputDir
	}
	if flags.Changed("index-dir") {
		cfg.IndexDir = g.indexDir
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = g.databaseURL
	}
	if flags.Changed("verbose") {
		cfg.Verbose = g.verbose
	}
	if override != nil {
		override(&cfg)
	}

	cfg = cfg.MergeWithDefaults(config.Config{})
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// backend is the artifact store and optional run history for a command.
type backend struct {
	store   artifacts.Store
	tracker pipeline.Tracker
	close   func()
}

var _ pipeline.RunScoped = (*db.ArtifactStore)(nil)

// openBackend uses PostgreSQL when a database URL is configured and the
// output directory otherwise.
func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	if cfg.DatabaseURL == "" {
		store, err := artifacts.NewFileStore(cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		return &backend{store: store, close: func() {}}, nil
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &backend{
		store:   db.NewArtifactStore(database),
		tracker: db.NewTracker(database),
		close:   database.Close,
	}, nil
}
