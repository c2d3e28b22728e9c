package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/n1dhiparate/admit-assist/internal/api"
	"github.com/n1dhiparate/admit-assist/internal/brochure"
	"github.com/n1dhiparate/admit-assist/internal/buildinfo"
	"github.com/n1dhiparate/admit-assist/internal/config"
	"github.com/n1dhiparate/admit-assist/internal/connwatch"
	"github.com/n1dhiparate/admit-assist/internal/llm"
)

// shutdownTimeout bounds how long in-flight requests may drain.
const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), g)
		},
	}
}

// runServe loads config, wires the assistant, and serves HTTP until
// SIGINT or SIGTERM. The brochure watcher, when enabled, runs alongside
// the server in the same errgroup.
//
// The shutdown sequence is:
//  1. The signal cancels the group context
//  2. HTTP drains in-flight requests for up to shutdownTimeout
//  3. The watcher returns and the store is closed
func runServe(ctx context.Context, g *globals) error {
	logger := config.NewLogger(g.stdout, slog.LevelInfo, "text")
	logger.Info("starting Admit-Assist",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"branch", buildinfo.GitBranch,
		"built", buildinfo.BuildTime,
	)

	cfg, err := loadConfig(g.configPath, logger)
	if err != nil {
		return err
	}

	// Validate already rejected bad levels; the error is unreachable here.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger = config.NewLogger(g.stdout, level, cfg.LogFormat)

	logger.Info("configuration",
		"port", cfg.Listen.Port,
		"student_id", cfg.StudentID,
		"brochure", cfg.Brochure.Path,
		"provider", cfg.Generation.Provider,
		"model", cfg.Generation.Model,
		"store", cfg.Store.Driver,
	)

	app := newApplication(ctx, cfg, g.studentID, logger)
	defer app.Close()

	// Load eagerly so a missing brochure is reported at startup.
	app.brochure.Document()

	server := api.NewServer(api.Config{
		Address:           cfg.Listen.Address,
		Port:              cfg.Listen.Port,
		StudentID:         app.studentID,
		AllowedOrigins:    cfg.CORS.AllowedOrigins,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, app.service, app.brochure, app.metrics, logger)

	conns := connwatch.NewManager(logger)
	conns.Add("store", app.store.Ping, connwatch.DefaultBackoff())
	if p, ok := app.generator.(llm.Pinger); ok {
		conns.Add("generation", p.Ping, connwatch.DefaultBackoff())
	}
	server.SetDependencies(dependencyStatus(conns))
	logger.Info("watching dependencies", "services", conns.Names())

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		if err := server.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	grp.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	grp.Go(func() error { return conns.Run(gctx) })

	if cfg.Brochure.Watch {
		grp.Go(func() error {
			// A watcher that cannot start only loses hot reload;
			// POST /admin/brochure/reload still works.
			if err := brochure.Watch(gctx, app.brochure); err != nil {
				logger.Warn("brochure watcher stopped", "error", err)
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return err
	}

	logger.Info("Admit-Assist stopped")
	return nil
}

// dependencyStatus adapts connwatch health to the API's /health shape.
func dependencyStatus(m *connwatch.Manager) func() map[string]api.DependencyStatus {
	return func() map[string]api.DependencyStatus {
		status := m.Status()
		out := make(map[string]api.DependencyStatus, len(status))
		for name, s := range status {
			ds := api.DependencyStatus{
				Name:      s.Name,
				Ready:     s.Ready,
				LastError: s.LastError,
			}
			if !s.LastCheck.IsZero() {
				ds.LastCheck = s.LastCheck.Format(time.RFC3339)
			}
			out[name] = ds
		}
		return out
	}
}
