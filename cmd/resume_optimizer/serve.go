package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-optimizer/internal/config"
	"github.com/jonathan/resume-optimizer/internal/server"
	"github.com/jonathan/resume-optimizer/internal/server/ratelimit"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		port int
		rf   reasoningFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start an HTTP server that exposes REST endpoints for running the pipeline and reading artifacts.

Bearer auth is enabled when JWT_SECRET is set. Rate limits are read from RATE_LIMIT_* env vars.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.resolve(cmd, func(c *config.Config) { rf.apply(cmd, c) })
			if err != nil {
				return err
			}
			return runServe(cmd, cfg, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	rf.register(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, cfg config.Config, port int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := newLogger(cmd.ErrOrStderr(), true)

	jwtCfg, err := config.OptionalJWTConfig()
	if err != nil {
		return err
	}
	if jwtCfg == nil {
		logger.Warn("JWT_SECRET not set; API endpoints are unauthenticated")
	}

	deps, err := buildCollaborators(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	srv, err := server.New(server.Config{
		Port:        port,
		Store:       be.store,
		IndexDir:    cfg.IndexDir,
		ChunkTokens: cfg.ChunkTokens,
		Embedder:    deps.embedder,
		Runner:      deps.runner,
		Credentials: deps.creds,
		Tracker:     be.tracker,
		JWT:         jwtCfg,
		RateLimit:   ratelimit.LoadConfig(),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.ListenAndServe(ctx)
}
