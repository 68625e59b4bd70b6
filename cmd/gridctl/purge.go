package main

import (
	"context"
	"fmt"

	"querygrid/internal/domain/selection"
	"querygrid/internal/infrastructure/storage/postgres"
	"querygrid/internal/infrastructure/storage/postgres/grid_repo"
)

func purge(ctx context.Context, args []string) error {
	cmd := newCommand("purge")
	ttl := cmd.Duration("ttl", 0, "expire selections untouched this long; defaults to selection.ttl")
	cfg, err := cmd.load(args)
	if err != nil {
		return err
	}
	if *ttl <= 0 {
		*ttl = cfg.Selection.TTL
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.DSN))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)
	svc := selection.NewService(grid_repo.NewSelectionRepo(txManager), nil, txManager)

	n, err := svc.Purge(ctx, *ttl)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Removed %d selection(s) untouched for %s\n", n, *ttl)
	return nil
}
