package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchInserter bulk-loads rows with the COPY protocol. Selecting every row of
// a large grid inserts thousands of ids at once, which plain INSERTs handle
// poorly.
type BatchInserter struct {
	txManager *TxManager
}

func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyFromSlice inserts rows (each matching columns) into table.
// It must run inside a transaction.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	t := b.txManager.GetTx(ctx)
	if t == nil {
		return 0, fmt.Errorf("CopyFromSlice requires transaction context")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return t.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}

// CopyStrings inserts one row per value: the fixed prefix values followed by
// the value itself.
func (b *BatchInserter) CopyStrings(ctx context.Context, table string, columns []string, prefix []any, values []string) (int64, error) {
	rows := make([][]any, len(values))
	for i, v := range values {
		row := make([]any, 0, len(prefix)+1)
		row = append(row, prefix...)
		rows[i] = append(row, v)
	}
	return b.CopyFromSlice(ctx, table, columns, rows)
}

// BatchQuery is one statement queued in a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// ExecuteBatch sends queries in a single round-trip and checks every result.
// Outside a transaction the pool runs the batch implicitly transactional.
func (b *BatchInserter) ExecuteBatch(ctx context.Context, queries []BatchQuery) error {
	if len(queries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}

	results := b.txManager.GetQuerier(ctx).SendBatch(ctx, batch)
	defer results.Close()

	for i := range queries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch query %d failed: %w", i, err)
		}
	}
	return nil
}
