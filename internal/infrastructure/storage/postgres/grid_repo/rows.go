// Package grid_repo provides PostgreSQL implementations of the grid row,
// selection and view repositories.
package grid_repo

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"querygrid/internal/core/apperror"
	"querygrid/internal/domain/filter"
	"querygrid/internal/domain/query"
	"querygrid/internal/domain/rows"
	"querygrid/internal/grid/params"
	"querygrid/internal/infrastructure/storage/postgres"
	"querygrid/internal/metadata"
)

// sourceAlias names the CTE wrapping SQL-backed queries.
const sourceAlias = "src"

var _ rows.Repository = (*RowRepo)(nil)

// RowRepo runs grid row plans. Table-backed queries read the table directly;
// SQL-backed queries are wrapped in a CTE with @name parameters bound as
// placeholders.
type RowRepo struct {
	txManager *postgres.TxManager
}

func NewRowRepo(txManager *postgres.TxManager) *RowRepo {
	return &RowRepo{txManager: txManager}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Select returns one page. For paged plans the total count runs concurrently
// on a second pool connection; inside a transaction both run sequentially.
func (r *RowRepo) Select(ctx context.Context, plan rows.Plan) (query.Result, error) {
	filtered, err := buildFiltered(plan, selectList(plan))
	if err != nil {
		return query.Result{}, err
	}

	pageSQL, pageArgs, err := paginate(filtered, plan).ToSql()
	if err != nil {
		return query.Result{}, fmt.Errorf("build query: %w", err)
	}

	var countSQL string
	var countArgs []any
	if plan.Paged() {
		countSQL, countArgs, err = builder().Select("COUNT(*)").FromSelect(filtered, "sub").ToSql()
		if err != nil {
			return query.Result{}, fmt.Errorf("build count query: %w", err)
		}
	}

	querier := r.txManager.GetQuerier(ctx)
	var (
		items []map[string]any
		total int64
	)
	fetch := func(ctx context.Context) error {
		if err := pgxscan.Select(ctx, querier, &items, pageSQL, pageArgs...); err != nil {
			return fmt.Errorf("select rows: %w", err)
		}
		return nil
	}
	count := func(ctx context.Context) error {
		if countSQL == "" {
			return nil
		}
		if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		return nil
	}

	if r.txManager.GetTx(ctx) != nil {
		if err := fetch(ctx); err != nil {
			return query.Result{}, err
		}
		if err := count(ctx); err != nil {
			return query.Result{}, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return fetch(gctx) })
		g.Go(func() error { return count(gctx) })
		if err := g.Wait(); err != nil {
			return query.Result{}, err
		}
	}

	if items == nil {
		items = []map[string]any{}
	}
	for _, row := range items {
		normalizeRow(row)
	}
	if countSQL == "" {
		total = int64(len(items))
	}

	return query.Result{
		Rows:       items,
		RowCount:   len(items),
		TotalCount: &total,
	}, nil
}

// SelectKeys returns every matching key as text.
func (r *RowRepo) SelectKeys(ctx context.Context, plan rows.Plan) ([]string, error) {
	keyExpr := fmt.Sprintf("CAST(%s AS TEXT)", quote(plan.Def.KeyColumn))
	q, err := buildFiltered(plan, []string{keyExpr})
	if err != nil {
		return nil, err
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var keys []string
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &keys, sql, args...); err != nil {
		return nil, fmt.Errorf("select keys: %w", err)
	}
	return keys, nil
}

func selectList(plan rows.Plan) []string {
	cols := make([]string, len(plan.Columns))
	for i, c := range plan.Columns {
		cols[i] = quote(c.Name)
	}
	return cols
}

// buildFiltered returns SELECT cols FROM source WHERE ..., without ordering
// or paging, so it can double as the count subquery.
func buildFiltered(plan rows.Plan, cols []string) (squirrel.SelectBuilder, error) {
	def := plan.Def
	q := builder().Select(cols...)

	if def.SQL != "" {
		body, args := bindParameters(def.SQL, plan.Parameters)
		q = q.Prefix("WITH "+sourceAlias+" AS ("+body+")", args...).From(sourceAlias)
	} else {
		q = q.From(pgx.Identifier(strings.Split(def.Table, ".")).Sanitize())
	}

	for _, c := range plan.Filters {
		cond, err := clauseCondition(def, c)
		if err != nil {
			return q, err
		}
		if cond != nil {
			q = q.Where(cond)
		}
	}

	if cond := containerCondition(def, plan.ContainerFilter, plan.Container); cond != nil {
		q = q.Where(cond)
	}

	switch plan.ShowRows {
	case query.ShowSelected, query.ShowUnselected:
		op := "IN"
		if plan.ShowRows == query.ShowUnselected {
			op = "NOT IN"
		}
		q = q.Where(squirrel.Expr(
			fmt.Sprintf("CAST(%s AS TEXT) %s (SELECT row_id FROM %s WHERE owner_id = ? AND selection_key = ?)",
				quote(def.KeyColumn), op, selectionsTable),
			plan.Owner, plan.SelectionKey,
		))
	}

	return q, nil
}

// paginate adds ordering and the paging window. The key column always closes
// the ordering so pages are stable.
func paginate(q squirrel.SelectBuilder, plan rows.Plan) squirrel.SelectBuilder {
	keyed := false
	for _, s := range plan.Sort {
		dir := "ASC"
		if s.Descending {
			dir = "DESC"
		}
		q = q.OrderBy(quote(s.Field) + " " + dir)
		if strings.EqualFold(s.Field, plan.Def.KeyColumn) {
			keyed = true
		}
	}
	if !keyed {
		q = q.OrderBy(quote(plan.Def.KeyColumn) + " ASC")
	}

	if plan.Limit > 0 {
		q = q.Limit(uint64(plan.Limit))
	}
	if plan.Offset > 0 {
		q = q.Offset(uint64(plan.Offset))
	}
	return q
}

var parameterRef = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_]*)`)

// bindParameters replaces @name references with placeholders. A parameter
// without a value binds NULL so the SQL can fall back with COALESCE.
func bindParameters(sql string, values map[string]string) (string, []any) {
	var args []any
	body := parameterRef.ReplaceAllStringFunc(sql, func(ref string) string {
		if v, ok := values[ref[1:]]; ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
		return "?"
	})
	return body, args
}

func clauseCondition(def metadata.QueryDef, c filter.Clause) (squirrel.Sqlizer, error) {
	if c.Operator == filter.Search && c.Field == filter.AnyField {
		return searchCondition(def, c.Values()), nil
	}

	col, ok := def.Column(c.Field)
	if !ok {
		return nil, apperror.NewUnknownColumn(def.Schema, def.Name, c.Field)
	}
	name := quote(col.Name)

	values := c.Values()
	first := func() (any, error) {
		if len(values) == 0 {
			return nil, apperror.NewValidation(fmt.Sprintf("filter %s needs a value", c))
		}
		return convertValue(col, values[0])
	}

	switch c.Operator {
	case filter.Equal, filter.NotEqual, filter.NotEqualOrMissing,
		filter.Greater, filter.GreaterOrEqual, filter.Less, filter.LessOrEqual:
		v, err := first()
		if err != nil {
			return nil, err
		}
		switch c.Operator {
		case filter.Equal:
			return squirrel.Eq{name: v}, nil
		case filter.NotEqual:
			return squirrel.NotEq{name: v}, nil
		case filter.NotEqualOrMissing:
			return squirrel.Or{squirrel.NotEq{name: v}, squirrel.Eq{name: nil}}, nil
		case filter.Greater:
			return squirrel.Gt{name: v}, nil
		case filter.GreaterOrEqual:
			return squirrel.GtOrEq{name: v}, nil
		case filter.Less:
			return squirrel.Lt{name: v}, nil
		default:
			return squirrel.LtOrEq{name: v}, nil
		}

	case filter.IsBlank, filter.HasMissingValue:
		if col.Type == metadata.TypeString {
			return squirrel.Or{squirrel.Eq{name: nil}, squirrel.Eq{name: ""}}, nil
		}
		return squirrel.Eq{name: nil}, nil
	case filter.IsNonBlank, filter.NoMissingValue:
		if col.Type == metadata.TypeString {
			return squirrel.And{squirrel.NotEq{name: nil}, squirrel.NotEq{name: ""}}, nil
		}
		return squirrel.NotEq{name: nil}, nil

	case filter.DateEqual, filter.DateNotEqual, filter.DateGreater,
		filter.DateGreaterOrEqual, filter.DateLess, filter.DateLessOrEqual:
		if len(values) == 0 {
			return nil, apperror.NewValidation(fmt.Sprintf("filter %s needs a value", c))
		}
		day, err := parseDay(values[0])
		if err != nil {
			return nil, apperror.NewValidation(fmt.Sprintf("invalid date %q for column %s", values[0], col.Name))
		}
		next := day.AddDate(0, 0, 1)
		switch c.Operator {
		case filter.DateEqual:
			return squirrel.And{squirrel.GtOrEq{name: day}, squirrel.Lt{name: next}}, nil
		case filter.DateNotEqual:
			return squirrel.Or{squirrel.Lt{name: day}, squirrel.GtOrEq{name: next}}, nil
		case filter.DateGreater:
			return squirrel.GtOrEq{name: next}, nil
		case filter.DateGreaterOrEqual:
			return squirrel.GtOrEq{name: day}, nil
		case filter.DateLess:
			return squirrel.Lt{name: day}, nil
		default:
			return squirrel.Lt{name: next}, nil
		}

	case filter.Contains, filter.Search:
		return squirrel.ILike{textExpr(col): "%" + escapeLike(firstOrEmpty(values)) + "%"}, nil
	case filter.DoesNotContain:
		return squirrel.Or{
			squirrel.NotILike{textExpr(col): "%" + escapeLike(firstOrEmpty(values)) + "%"},
			squirrel.Eq{name: nil},
		}, nil
	case filter.StartsWith:
		return squirrel.ILike{textExpr(col): escapeLike(firstOrEmpty(values)) + "%"}, nil
	case filter.DoesNotStartWith:
		return squirrel.Or{
			squirrel.NotILike{textExpr(col): escapeLike(firstOrEmpty(values)) + "%"},
			squirrel.Eq{name: nil},
		}, nil

	case filter.InList, filter.NotInList:
		list := make([]any, 0, len(values))
		for _, raw := range values {
			v, err := convertValue(col, raw)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		if c.Operator == filter.InList {
			return squirrel.Eq{name: list}, nil
		}
		return squirrel.NotEq{name: list}, nil

	case filter.ContainsOneOf:
		or := squirrel.Or{}
		for _, v := range values {
			or = append(or, squirrel.ILike{textExpr(col): "%" + escapeLike(v) + "%"})
		}
		return or, nil
	case filter.ContainsNoneOf:
		and := squirrel.And{}
		for _, v := range values {
			and = append(and, squirrel.NotILike{textExpr(col): "%" + escapeLike(v) + "%"})
		}
		return squirrel.Or{and, squirrel.Eq{name: nil}}, nil

	case filter.Between, filter.NotBetween:
		if len(values) != 2 {
			return nil, apperror.NewValidation(fmt.Sprintf("filter %s needs two bounds", c))
		}
		low, err := convertValue(col, values[0])
		if err != nil {
			return nil, err
		}
		high, err := convertValue(col, values[1])
		if err != nil {
			return nil, err
		}
		if c.Operator == filter.Between {
			return squirrel.And{squirrel.GtOrEq{name: low}, squirrel.LtOrEq{name: high}}, nil
		}
		return squirrel.Or{squirrel.Lt{name: low}, squirrel.Gt{name: high}}, nil
	}

	return nil, apperror.NewValidation(fmt.Sprintf("unsupported filter operator %q", c.Operator))
}

// searchCondition matches text in any string column.
func searchCondition(def metadata.QueryDef, values []string) squirrel.Sqlizer {
	text := firstOrEmpty(values)
	if text == "" {
		return nil
	}
	or := squirrel.Or{}
	for _, col := range def.Columns {
		if col.Type == metadata.TypeString {
			or = append(or, squirrel.ILike{quote(col.Name): "%" + escapeLike(text) + "%"})
		}
	}
	if len(or) == 0 {
		return squirrel.Expr("FALSE")
	}
	return or
}

// containerCondition scopes rows by a "/"-separated folder path column.
func containerCondition(def metadata.QueryDef, scope query.ContainerFilter, container string) squirrel.Sqlizer {
	if def.ContainerColumn == "" || container == "" || scope == query.ContainerAllFolders {
		return nil
	}
	name := quote(def.ContainerColumn)
	below := escapeLike(strings.TrimSuffix(container, "/")+"/") + "%"

	switch scope {
	case query.ContainerCurrentAndSubfolders:
		return squirrel.Or{squirrel.Eq{name: container}, squirrel.Like{name: below}}
	case query.ContainerCurrentAndParents:
		return squirrel.Expr(
			fmt.Sprintf("(%s = ? OR ? LIKE rtrim(%s, '/') || '/%%')", name, name),
			container, container,
		)
	default:
		return squirrel.Eq{name: container}
	}
}

// textExpr casts non-text columns so LIKE operators work on any type.
func textExpr(col metadata.ColumnDef) string {
	if col.Type == metadata.TypeString {
		return quote(col.Name)
	}
	return fmt.Sprintf("CAST(%s AS TEXT)", quote(col.Name))
}

func convertValue(col metadata.ColumnDef, raw string) (any, error) {
	invalid := func() error {
		return apperror.NewValidation(fmt.Sprintf("invalid value %q for column %s", raw, col.Name)).
			WithDetail("column", col.Name)
	}

	switch col.Type {
	case metadata.TypeInteger, metadata.TypeNumber:
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, invalid()
		}
		if col.Type == metadata.TypeInteger && !d.IsInteger() {
			return nil, invalid()
		}
		return d, nil
	case metadata.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, invalid()
		}
		return b, nil
	case metadata.TypeDate, metadata.TypeTimestamp:
		t, err := parseTime(raw)
		if err != nil {
			return nil, invalid()
		}
		return t, nil
	default:
		return raw, nil
	}
}

var timeLayouts = []string{
	params.DateFormat,
	"2006/01/02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	time.DateOnly,
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}

func parseDay(raw string) (time.Time, error) {
	t, err := parseTime(raw)
	if err != nil {
		return t, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// normalizeRow converts driver values that do not serialize cleanly.
func normalizeRow(row map[string]any) {
	for k, v := range row {
		switch val := v.(type) {
		case pgtype.Numeric:
			row[k] = numericValue(val)
		case [16]byte:
			row[k] = fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
		}
	}
}

func numericValue(n pgtype.Numeric) any {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
