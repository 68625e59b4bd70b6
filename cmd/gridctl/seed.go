package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"querygrid/internal/infrastructure/storage/postgres"
)

var (
	demoFolders    = []string{"/", "/sales", "/sales/emea", "/sales/apac", "/engineering", "/engineering/platform"}
	demoFirstNames = []string{"Ann", "Bob", "Chloe", "Dmitri", "Eve", "Farid", "Grace", "Hiro", "Ines", "Jon"}
	demoLastNames  = []string{"Archer", "Brandt", "Costa", "Dahl", "Evans", "Fischer", "Garcia", "Haas"}
)

var demoColumns = []string{"folder", "name", "age", "salary", "hired_at", "active"}

func seed(ctx context.Context, args []string) error {
	cmd := newCommand("seed")
	count := cmd.Int("count", 500, "number of people to insert")
	truncate := cmd.Bool("truncate", false, "empty demo_people first")
	cfg, err := cmd.load(args)
	if err != nil {
		return err
	}
	if *count <= 0 {
		return fmt.Errorf("--count must be positive")
	}

	log := newLogger(cfg)
	defer log.Sync() //nolint:errcheck

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.DSN))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)
	inserter := postgres.NewBatchInserter(txManager)

	rows := demoPeople(rand.New(rand.NewPCG(1, 2)), *count, time.Now().UTC())

	var inserted int64
	err = txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if *truncate {
			if _, err := txManager.GetQuerier(ctx).Exec(ctx, "TRUNCATE demo_people RESTART IDENTITY"); err != nil {
				return fmt.Errorf("truncate demo_people: %w", err)
			}
		}
		n, err := inserter.CopyFromSlice(ctx, "demo_people", demoColumns, rows)
		inserted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("seed demo_people: %w", err)
	}

	log.Infow("demo data seeded", "table", "demo_people", "rows", inserted)
	return nil
}

// demoPeople builds count rows matching demoColumns. Every seventh person has
// no age so missing-value filters have something to match.
func demoPeople(rng *rand.Rand, count int, now time.Time) [][]any {
	rows := make([][]any, 0, count)
	for i := 0; i < count; i++ {
		name := demoFirstNames[rng.IntN(len(demoFirstNames))] + " " + demoLastNames[rng.IntN(len(demoLastNames))]

		var age any
		if i%7 != 6 {
			age = int32(20 + rng.IntN(45))
		}

		salary := decimal.NewFromInt(int64(30000 + rng.IntN(90000))).
			Add(decimal.New(int64(rng.IntN(100)), -2))

		hired := now.AddDate(0, 0, -rng.IntN(3650)).Truncate(24 * time.Hour)

		rows = append(rows, []any{
			demoFolders[i%len(demoFolders)],
			name,
			age,
			salary.InexactFloat64(),
			hired,
			rng.IntN(10) > 0,
		})
	}
	return rows
}
