// Gatherer pulls articles from a user-managed set of RSS/Atom feeds into a
// single deduplicated, time-ordered store, and serves it over a small JSON
// API.
//
// Ingestion is triggered over HTTP; set SYNC_INTERVAL for a built-in
// periodic trigger instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-envconfig"
	_ "golang.org/x/crypto/x509roots/fallback"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/mknowles/gatherer/internal/api"
	"github.com/mknowles/gatherer/internal/fetch"
	"github.com/mknowles/gatherer/internal/ingest"
	"github.com/mknowles/gatherer/internal/migrations"
	"github.com/mknowles/gatherer/internal/sqlite"
	"github.com/mknowles/gatherer/logger"
)

type config struct {
	Port     int    `env:"PORT, default=4444"`
	Database string `env:"DATABASE, required"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`

	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT, default=10s"`
	FetchConcurrency int           `env:"FETCH_CONCURRENCY, default=8"`

	// When zero, ingestion only runs when triggered over the API.
	SyncInterval time.Duration `env:"SYNC_INTERVAL, default=0"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	// Determine which logger format to use
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if cfg.LoggerFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	l := slog.New(logger.NewContextHandler(handler))
	slog.SetDefault(l)

	// Start the application
	if err := run(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	slog.Info("running", "config", cfg)

	// Connect to the db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000", cfg.Database))
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	repo := sqlite.New(dbx)
	ingester := ingest.New(repo, fetch.New(cfg.FetchTimeout), cfg.FetchTimeout, cfg.FetchConcurrency)
	s := api.NewServer(api.Config{Port: cfg.Port}, repo, ingester)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Start the server
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}

		return nil
	})
	g.Go(func() error {
		// Block from shutting down until the group is canceled
		<-gCtx.Done()

		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}

		return nil
	})

	if cfg.SyncInterval > 0 {
		g.Go(func() error {
			return ingester.RunEvery(gCtx, cfg.SyncInterval)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("error running: %s", err)
	}

	return nil
}
