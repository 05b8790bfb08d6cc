// Command shotlistd runs the video analysis daemon: the HTTP streaming
// surface, the orchestration core, and the periodic stale-task reaper.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Ensure local environment overrides are loaded
	_ "github.com/joho/godotenv/autoload"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"

	"github.com/shotlist/shotlist/analysis"
	"github.com/shotlist/shotlist/config"
	"github.com/shotlist/shotlist/pkg/slogx"
	"github.com/shotlist/shotlist/server"
	"github.com/shotlist/shotlist/store"
)

const reapInterval = time.Minute

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelInfo}),
	))
}

func main() {
	if err := mainE(context.Background()); err != nil {
		slog.Error("shotlistd exited", slogx.Error(err))
		os.Exit(1)
	}
}

func mainE(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Production() {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
		slog.SetDefault(slog.New(
			zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelInfo}),
		))
	}

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	tasks := store.NewTasks(pool)
	svc := analysis.NewService(
		tasks,
		store.NewUsers(pool),
		store.NewModels(pool),
		analysis.WithCost(cfg.AnalysisCost),
	)
	reaper := analysis.NewReaper(
		tasks,
		analysis.WithPendingTimeout(cfg.PendingTimeout),
		analysis.WithProcessingTimeout(cfg.ProcessingTimeout),
		analysis.WithTestKeywords(cfg.TestURLKeywords),
	)

	go reaper.RunEvery(ctx, reapInterval)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.New(svc, reaper).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("addr", srv.Addr), slog.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
