package grid_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"querygrid/internal/domain/filter"
	"querygrid/internal/domain/query"
	"querygrid/internal/domain/views"
	"querygrid/internal/infrastructure/storage/postgres"
)

const viewsTable = "grid_views"

// DefaultCompressThreshold is the definition size in bytes above which
// views are stored zstd-compressed.
const DefaultCompressThreshold = 4 * 1024

// ViewsChannel is notified with "schema.query" whenever views change, on
// commit of the writing transaction.
const ViewsChannel = "grid_views_changed"

const notifySQL = "SELECT pg_notify($1, $2)"

var _ views.Repository = (*ViewRepo)(nil)

// viewBody is the stored part of a view; identity lives in columns.
type viewBody struct {
	Columns []string          `json:"columns,omitempty"`
	Filters []filter.Clause   `json:"filters,omitempty"`
	Sort    []query.SortField `json:"sort,omitempty"`
	MaxRows int               `json:"maxRows,omitempty"`
}

type viewRow struct {
	ViewName   string    `db:"view_name"`
	OwnerID    string    `db:"owner_id"`
	Label      string    `db:"label"`
	IsDefault  bool      `db:"is_default"`
	Definition []byte    `db:"definition"`
	Compressed bool      `db:"compressed"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type ViewRepo struct {
	txManager         *postgres.TxManager
	batch             *postgres.BatchInserter
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewViewRepo creates a view repository. A non-positive threshold uses
// DefaultCompressThreshold.
func NewViewRepo(txManager *postgres.TxManager, compressThreshold int) (*ViewRepo, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if compressThreshold <= 0 {
		compressThreshold = DefaultCompressThreshold
	}
	return &ViewRepo{
		txManager:         txManager,
		batch:             postgres.NewBatchInserter(txManager),
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: compressThreshold,
	}, nil
}

func (r *ViewRepo) List(ctx context.Context, schema, queryName, owner string) ([]query.ViewDef, error) {
	sql, args, err := builder().
		Select(postgres.Columns[viewRow]()...).
		From(viewsTable).
		Where(squirrel.Eq{"schema_name": schema, "query_name": queryName}).
		Where(squirrel.Eq{"owner_id": []string{views.SharedOwner, owner}}).
		OrderBy("view_name", "owner_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var stored []viewRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &stored, sql, args...); err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}

	out := make([]query.ViewDef, 0, len(stored))
	for _, row := range stored {
		v, err := r.decode(row)
		if err != nil {
			return nil, fmt.Errorf("view %q: %w", row.ViewName, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Save upserts every view in one batch. When one of them is the default the
// owner's other views lose that flag.
func (r *ViewRepo) Save(ctx context.Context, schema, queryName, owner string, list []query.ViewDef) error {
	var queries []postgres.BatchQuery

	for _, v := range list {
		if !v.Default {
			continue
		}
		sql, args, err := builder().
			Update(viewsTable).
			Set("is_default", false).
			Where(squirrel.Eq{"schema_name": schema, "query_name": queryName, "owner_id": owner}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build reset default: %w", err)
		}
		queries = append(queries, postgres.BatchQuery{SQL: sql, Args: args})
		break
	}

	for _, v := range list {
		definition, compressed, err := r.encode(v)
		if err != nil {
			return fmt.Errorf("view %q: %w", v.Name, err)
		}
		sql, args, err := builder().
			Insert(viewsTable).
			Columns("schema_name", "query_name", "view_name", "owner_id", "label", "is_default", "definition", "compressed", "updated_at").
			Values(schema, queryName, v.Name, owner, v.Label, v.Default, definition, compressed, squirrel.Expr("NOW()")).
			Suffix(`ON CONFLICT (schema_name, query_name, view_name, owner_id) DO UPDATE SET
				label = EXCLUDED.label,
				is_default = EXCLUDED.is_default,
				definition = EXCLUDED.definition,
				compressed = EXCLUDED.compressed,
				updated_at = EXCLUDED.updated_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert: %w", err)
		}
		queries = append(queries, postgres.BatchQuery{SQL: sql, Args: args})
	}
	queries = append(queries, postgres.BatchQuery{SQL: notifySQL, Args: []any{ViewsChannel, schema + "." + queryName}})

	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return r.batch.ExecuteBatch(ctx, queries)
	})
}

func (r *ViewRepo) Delete(ctx context.Context, schema, queryName, owner, name string) (bool, error) {
	sql, args, err := builder().
		Delete(viewsTable).
		Where(squirrel.Eq{
			"schema_name": schema,
			"query_name":  queryName,
			"owner_id":    owner,
			"view_name":   name,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete: %w", err)
	}
	var deleted bool
	err = r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txManager.GetQuerier(ctx)
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("delete view: %w", err)
		}
		if deleted = tag.RowsAffected() > 0; !deleted {
			return nil
		}
		_, err = q.Exec(ctx, notifySQL, ViewsChannel, schema+"."+queryName)
		return err
	})
	return deleted, err
}

func (r *ViewRepo) encode(v query.ViewDef) ([]byte, bool, error) {
	raw, err := json.Marshal(viewBody{
		Columns: v.Columns,
		Filters: v.Filters,
		Sort:    v.Sort,
		MaxRows: v.MaxRows,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal view: %w", err)
	}
	if len(raw) <= r.compressThreshold {
		return raw, false, nil
	}
	return r.encoder.EncodeAll(raw, nil), true, nil
}

func (r *ViewRepo) decode(row viewRow) (query.ViewDef, error) {
	raw := row.Definition
	if row.Compressed {
		var err error
		if raw, err = r.decoder.DecodeAll(raw, nil); err != nil {
			return query.ViewDef{}, fmt.Errorf("decompress view: %w", err)
		}
	}

	var body viewBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return query.ViewDef{}, fmt.Errorf("unmarshal view: %w", err)
	}

	return query.ViewDef{
		Name:    row.ViewName,
		Label:   row.Label,
		Owner:   row.OwnerID,
		Shared:  row.OwnerID == views.SharedOwner,
		Default: row.IsDefault,
		Columns: body.Columns,
		Filters: body.Filters,
		Sort:    body.Sort,
		MaxRows: body.MaxRows,
	}, nil
}
