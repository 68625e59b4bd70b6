package selection

import (
	"context"
	"fmt"
	"time"

	"querygrid/internal/core/apperror"
	appctx "querygrid/internal/core/context"
	"querygrid/internal/core/tx"
	"querygrid/internal/domain/query"
	"querygrid/pkg/logger"
)

// Service implements the selection half of the Query API for the current
// user. Its method set matches what grid clients call remotely.
type Service struct {
	repo      Repository
	keys      KeySource
	txManager tx.Manager
}

func NewService(repo Repository, keys KeySource, txManager tx.Manager) *Service {
	return &Service{repo: repo, keys: keys, txManager: txManager}
}

func requireKey(key string) error {
	if key == "" {
		return apperror.NewValidation("selectionKey is required")
	}
	return nil
}

// GetSelected returns the selected row ids.
func (s *Service) GetSelected(ctx context.Context, key string) ([]string, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}
	ids, err := s.repo.Get(ctx, appctx.GetUserID(ctx), key)
	if err != nil {
		return nil, fmt.Errorf("get selected: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// SetSelected checks or unchecks ids and returns the resulting count.
func (s *Service) SetSelected(ctx context.Context, key string, ids []string, checked bool) (int, error) {
	if err := requireKey(key); err != nil {
		return 0, err
	}
	owner := appctx.GetUserID(ctx)

	var count int
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if checked {
			_, err = s.repo.Add(ctx, owner, key, ids)
		} else {
			_, err = s.repo.Remove(ctx, owner, key, ids)
		}
		if err != nil {
			return err
		}
		count, err = s.repo.Count(ctx, owner, key)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("set selected: %w", err)
	}

	logger.Debug(ctx, "selection updated", "key", key, "ids", len(ids), "checked", checked, "count", count)
	return count, nil
}

// ClearSelected empties the selection. The returned count is always zero.
func (s *Service) ClearSelected(ctx context.Context, key string) (int, error) {
	if err := requireKey(key); err != nil {
		return 0, err
	}
	if _, err := s.repo.Clear(ctx, appctx.GetUserID(ctx), key); err != nil {
		return 0, fmt.Errorf("clear selected: %w", err)
	}
	return 0, nil
}

// SelectAll selects every row matching req's filters, across all pages.
func (s *Service) SelectAll(ctx context.Context, key string, req query.Request) (int, error) {
	if err := requireKey(key); err != nil {
		return 0, err
	}
	if s.keys == nil {
		return 0, apperror.NewConfiguration("selectAll needs a row key source")
	}

	ids, err := s.keys.SelectKeys(ctx, req)
	if err != nil {
		return 0, err
	}

	owner := appctx.GetUserID(ctx)
	var added, count int
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if added, err = s.repo.Add(ctx, owner, key, ids); err != nil {
			return err
		}
		count, err = s.repo.Count(ctx, owner, key)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("select all: %w", err)
	}

	logger.Info(ctx, "selected all rows",
		"key", key,
		"schema", req.SchemaName,
		"query", req.QueryName,
		"matched", len(ids),
		"added", added,
	)
	return count, nil
}

// Purge removes selections nobody touched within ttl.
func (s *Service) Purge(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, apperror.NewValidation("selection ttl must be positive")
	}
	n, err := s.repo.PurgeExpired(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("purge selections: %w", err)
	}
	return n, nil
}
