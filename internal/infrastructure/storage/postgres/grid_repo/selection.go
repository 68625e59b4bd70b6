package grid_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"querygrid/internal/domain/selection"
	"querygrid/internal/infrastructure/storage/postgres"
)

const (
	selectionsTable    = "grid_selections"
	selectionKeysTable = "grid_selection_keys"

	// copyThreshold is the batch size above which Add switches from a single
	// INSERT ... SELECT unnest to the COPY protocol.
	copyThreshold = 500
)

var _ selection.Repository = (*SelectionRepo)(nil)

type SelectionRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
}

func NewSelectionRepo(txManager *postgres.TxManager) *SelectionRepo {
	return &SelectionRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
	}
}

func (r *SelectionRepo) Get(ctx context.Context, owner, key string) ([]string, error) {
	sql, args, err := builder().
		Select("row_id").
		From(selectionsTable).
		Where(squirrel.Eq{"owner_id": owner, "selection_key": key}).
		OrderBy("row_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []string
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("get selection: %w", err)
	}
	return ids, nil
}

func (r *SelectionRepo) Count(ctx context.Context, owner, key string) (int, error) {
	sql, args, err := builder().
		Select("COUNT(*)").
		From(selectionsTable).
		Where(squirrel.Eq{"owner_id": owner, "selection_key": key}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var n int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count selection: %w", err)
	}
	return n, nil
}

// touch upserts the key row. Inside a transaction the row lock it takes
// serializes concurrent writers of the same selection.
func (r *SelectionRepo) touch(ctx context.Context, owner, key string) error {
	sql, args, err := builder().
		Insert(selectionKeysTable).
		Columns("owner_id", "selection_key", "touched_at").
		Values(owner, key, squirrel.Expr("NOW()")).
		Suffix("ON CONFLICT (owner_id, selection_key) DO UPDATE SET touched_at = EXCLUDED.touched_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("touch selection: %w", err)
	}
	return nil
}

// Add inserts ids not yet selected. Large batches go through COPY, which
// needs a transaction; Add opens one when the caller has not.
func (r *SelectionRepo) Add(ctx context.Context, owner, key string, ids []string) (int, error) {
	ids = dedupe(ids)

	var added int
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.touch(ctx, owner, key); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if len(ids) <= copyThreshold {
			sql, args, err := builder().
				Insert(selectionsTable).
				Columns("owner_id", "selection_key", "row_id").
				Select(squirrel.Select().
					Column("?", owner).
					Column("?", key).
					Column("unnest(CAST(? AS TEXT[]))", ids)).
				Suffix("ON CONFLICT DO NOTHING").
				ToSql()
			if err != nil {
				return fmt.Errorf("build insert: %w", err)
			}
			tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
			if err != nil {
				return fmt.Errorf("insert selection: %w", err)
			}
			added = int(tag.RowsAffected())
			return nil
		}

		existing, err := r.Get(ctx, owner, key)
		if err != nil {
			return err
		}
		missing := subtract(ids, existing)
		n, err := r.inserter.CopyStrings(ctx, selectionsTable,
			[]string{"owner_id", "selection_key", "row_id"},
			[]any{owner, key}, missing)
		if err != nil {
			return fmt.Errorf("copy selection: %w", err)
		}
		added = int(n)
		return nil
	})
	return added, err
}

func (r *SelectionRepo) Remove(ctx context.Context, owner, key string, ids []string) (int, error) {
	if err := r.touch(ctx, owner, key); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	sql, args, err := builder().
		Delete(selectionsTable).
		Where(squirrel.Eq{"owner_id": owner, "selection_key": key}).
		Where("row_id = ANY(CAST(? AS TEXT[]))", ids).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("remove selection: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Clear drops the key row; its rows go with it through ON DELETE CASCADE.
func (r *SelectionRepo) Clear(ctx context.Context, owner, key string) (int, error) {
	n, err := r.Count(ctx, owner, key)
	if err != nil {
		return 0, err
	}

	sql, args, err := builder().
		Delete(selectionKeysTable).
		Where(squirrel.Eq{"owner_id": owner, "selection_key": key}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return 0, fmt.Errorf("clear selection: %w", err)
	}
	return n, nil
}

func (r *SelectionRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	sql, args, err := builder().
		Delete(selectionKeysTable).
		Where(squirrel.Lt{"touched_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("purge selections: %w", err)
	}
	return tag.RowsAffected(), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func subtract(ids, existing []string) []string {
	have := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		have[id] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
