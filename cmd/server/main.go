// Package main is the entry point for the querygrid API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"querygrid/internal/config"
	"querygrid/internal/domain/auth"
	"querygrid/internal/domain/rows"
	"querygrid/internal/domain/selection"
	"querygrid/internal/domain/views"
	gridselection "querygrid/internal/grid/selection"
	"querygrid/internal/infrastructure/cache"
	v1 "querygrid/internal/infrastructure/http/v1"
	"querygrid/internal/infrastructure/http/v1/middleware"
	"querygrid/internal/infrastructure/storage/postgres"
	"querygrid/internal/infrastructure/storage/postgres/grid_repo"
	"querygrid/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var _ gridselection.Store = (*selection.Service)(nil)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
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

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting querygrid server", "version", version)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	pool.LogStats(ctx)

	txManager := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)

	// --- Metadata ---
	registry, err := setupMetadataRegistry(cfg.Queries)
	if err != nil {
		log.Fatalw("failed to build metadata registry", "error", err)
	}
	log.Infow("metadata registry initialized", "queries", len(registry.List()))

	// --- Services ---
	viewRepo, err := grid_repo.NewViewRepo(txManager, cfg.Views.CompressThreshold)
	if err != nil {
		log.Fatalw("failed to create view repository", "error", err)
	}
	var viewStore views.Repository = viewRepo
	if cfg.Views.Cache {
		viewCache := cache.NewViewCache(viewRepo, pool.Pool, grid_repo.ViewsChannel)
		if err := viewCache.Start(ctx); err != nil {
			log.Fatalw("failed to start view cache", "error", err)
		}
		defer viewCache.Stop()
		viewStore = viewCache
	}
	viewService := views.NewService(viewStore, registry)

	rowService := rows.NewService(grid_repo.NewRowRepo(txManager), registry, viewService, rows.Limits{
		DefaultMaxRows: cfg.Grid.DefaultMaxRows,
		MaxRowsLimit:   cfg.Grid.MaxRowsLimit,
	})

	selectionService := selection.NewService(grid_repo.NewSelectionRepo(txManager), rowService, txManager)

	// --- Auth ---
	var validator middleware.JWTValidator
	if cfg.Auth.JWTSecret != "" {
		jwtService, err := auth.NewJWTService(auth.JWTConfig{
			Secret:         cfg.Auth.JWTSecret,
			Issuer:         cfg.Auth.Issuer,
			AccessTokenTTL: cfg.Auth.TokenTTL,
		})
		if err != nil {
			log.Fatalw("failed to create jwt service", "error", err)
		}
		validator = jwtService
	} else {
		log.Warn("auth.jwt_secret not set: every caller is the guest user")
	}

	// --- Router ---
	handler, err := v1.NewHandler(v1.RouterConfig{
		Mode:           cfg.Server.GinMode,
		Logger:         log,
		Database:       pool,
		Version:        version,
		JWTValidator:   validator,
		AuthRequired:   cfg.Auth.Required,
		Registry:       registry,
		Rows:           rowService,
		Selection:      selectionService,
		Views:          viewService,
		DefaultMaxRows: cfg.Grid.DefaultMaxRows,
		CORSOrigins:    cfg.Server.CORSOrigins,
	})
	if err != nil {
		log.Fatalw("failed to build router", "error", err)
	}

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
