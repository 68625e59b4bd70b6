// Package main is the querygrid janitor. It expires selections nobody has
// touched within selection.ttl and periodically logs pool usage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"querygrid/internal/config"
	"querygrid/internal/domain/selection"
	"querygrid/internal/infrastructure/storage/postgres"
	"querygrid/internal/infrastructure/storage/postgres/grid_repo"
	"querygrid/pkg/logger"
)

const statsInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	once := flag.Bool("once", false, "purge once and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	poolCfg.ApplicationName = "querygrid-janitor"
	poolCfg.MaxConns = 2
	poolCfg.MinConns = 1

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)
	// Purging never needs row keys.
	service := selection.NewService(grid_repo.NewSelectionRepo(txManager), nil, txManager)

	j := &janitor{
		service:  service,
		pool:     pool,
		ttl:      cfg.Selection.TTL,
		interval: cfg.Selection.PurgeInterval,
		log:      log.WithComponent(logger.ComponentJanitor),
	}

	if *once {
		if err := j.purge(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	log.Infow("starting querygrid janitor", "ttl", j.ttl, "interval", j.interval)
	if err := j.Run(ctx); err != nil {
		log.Errorw("janitor stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("janitor stopped")
}

type janitor struct {
	service  *selection.Service
	pool     *postgres.Pool
	ttl      time.Duration
	interval time.Duration
	log      *logger.Logger
}

// Run purges on every interval tick until ctx is cancelled. Purge failures
// are logged and retried on the next tick.
func (j *janitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		_ = j.purge(ctx)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				_ = j.purge(ctx)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				j.pool.LogStats(ctx)
			}
		}
	})

	return g.Wait()
}

func (j *janitor) purge(ctx context.Context) error {
	start := time.Now()
	n, err := j.service.Purge(ctx, j.ttl)
	if err != nil {
		if ctx.Err() == nil {
			j.log.Errorw("selection purge failed", "error", err)
		}
		return err
	}
	j.log.Infow("selections purged",
		"removed", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
