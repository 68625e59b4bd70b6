package rows

import (
	"context"
	"strings"

	"querygrid/internal/core/apperror"
	appctx "querygrid/internal/core/context"
	"querygrid/internal/domain/filter"
	"querygrid/internal/domain/query"
	"querygrid/internal/metadata"
	"querygrid/pkg/logger"
)

// Limits caps page sizes.
type Limits struct {
	DefaultMaxRows int
	MaxRowsLimit   int
}

// DefaultLimits matches the grid's client-side page size.
func DefaultLimits() Limits {
	return Limits{DefaultMaxRows: 100, MaxRowsLimit: 5000}
}

// Service answers selectRows.
type Service struct {
	repo     Repository
	registry *metadata.Registry
	views    ViewResolver
	limits   Limits
}

// NewService creates a row service. views may be nil when saved views are
// not available.
func NewService(repo Repository, registry *metadata.Registry, views ViewResolver, limits Limits) *Service {
	if limits.DefaultMaxRows <= 0 {
		limits.DefaultMaxRows = DefaultLimits().DefaultMaxRows
	}
	if limits.MaxRowsLimit < limits.DefaultMaxRows {
		limits.MaxRowsLimit = limits.DefaultMaxRows
	}
	return &Service{repo: repo, registry: registry, views: views, limits: limits}
}

// Definition returns the metadata of schema.query.
func (s *Service) Definition(schema, name string) (metadata.QueryDef, error) {
	def, ok := s.registry.Get(schema, name)
	if !ok {
		return metadata.QueryDef{}, apperror.NewNotFound("query", schema+"."+name)
	}
	return def, nil
}

// SelectRows fetches one page of rows for req.
func (s *Service) SelectRows(ctx context.Context, req query.Request) (query.Result, error) {
	plan, err := s.Plan(ctx, req)
	if err != nil {
		return query.Result{}, err
	}

	if plan.ShowRows == query.ShowNone || (plan.ShowRows == query.ShowSelected && plan.SelectionKey == "") {
		var zero int64
		return query.Result{
			Rows:       []map[string]any{},
			TotalCount: &zero,
			Columns:    plan.Def.Meta(plan.Columns),
		}, nil
	}

	result, err := s.repo.Select(ctx, plan)
	if err != nil {
		return query.Result{}, err
	}
	result.Columns = plan.Def.Meta(plan.Columns)

	logger.Debug(ctx, "rows selected",
		"schema", plan.Def.Schema,
		"query", plan.Def.Name,
		"rows", result.RowCount,
	)
	return result, nil
}

// SelectKeys returns every row key matching req's filters, for selectAll.
// Paging and showRows are ignored: selecting all means all filtered rows.
func (s *Service) SelectKeys(ctx context.Context, req query.Request) ([]string, error) {
	req.Offset = 0
	req.MaxRows = 0
	req.ShowRows = query.ShowAll

	plan, err := s.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.repo.SelectKeys(ctx, plan)
}

// Plan validates req and merges it with its view.
func (s *Service) Plan(ctx context.Context, req query.Request) (Plan, error) {
	if err := req.Validate(); err != nil {
		return Plan{}, err
	}

	def, err := s.Definition(req.SchemaName, req.QueryName)
	if err != nil {
		return Plan{}, err
	}

	view, err := s.view(ctx, req)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Def:             def,
		ShowRows:        req.ShowRows,
		Owner:           appctx.GetUserID(ctx),
		SelectionKey:    req.SelectionKey,
		ContainerFilter: req.ContainerFilter,
		Container:       req.Container,
		Parameters:      req.Parameters,
	}
	if plan.ShowRows == "" {
		plan.ShowRows = query.ShowPaginated
	}

	names := req.Columns
	if len(names) == 0 {
		names = view.Columns
	}
	if plan.Columns, err = s.columns(def, names); err != nil {
		return Plan{}, err
	}

	clauses := make([]filter.Clause, 0, len(view.Filters)+len(req.Filters))
	clauses = append(clauses, view.Filters...)
	clauses = append(clauses, req.Filters...)
	for _, c := range clauses {
		if c.Operator == filter.Search && c.Field == filter.AnyField {
			plan.Filters = append(plan.Filters, c)
			continue
		}
		col, ok := def.Column(c.Field)
		if !ok {
			return Plan{}, apperror.NewUnknownColumn(def.Schema, def.Name, c.Field)
		}
		c.Field = col.Name
		plan.Filters = append(plan.Filters, c)
	}

	sort := req.Sort
	if len(sort) == 0 {
		sort = view.Sort
	}
	if len(sort) == 0 {
		sort = query.ParseSort(def.DefaultSort)
	}
	for _, f := range sort {
		col, ok := def.Column(f.Field)
		if !ok {
			return Plan{}, apperror.NewUnknownColumn(def.Schema, def.Name, f.Field)
		}
		plan.Sort = append(plan.Sort, query.SortField{Field: col.Name, Descending: f.Descending})
	}

	if plan.ShowRows == query.ShowPaginated {
		plan.Offset = max(req.Offset, 0)
		plan.Limit = s.pageSize(req.MaxRows, view.MaxRows)
	}
	return plan, nil
}

func (s *Service) view(ctx context.Context, req query.Request) (query.ViewDef, error) {
	if s.views == nil {
		return query.ViewDef{}, nil
	}
	view, ok, err := s.views.ResolveView(ctx, req.SchemaName, req.QueryName, req.ViewName)
	if err != nil {
		return query.ViewDef{}, err
	}
	if !ok && req.ViewName != "" {
		return query.ViewDef{}, apperror.NewNotFound("view", req.ViewName)
	}
	return view, nil
}

// columns resolves requested names, always including the key column. With no
// names every visible column is returned.
func (s *Service) columns(def metadata.QueryDef, names []string) ([]metadata.ColumnDef, error) {
	var out []metadata.ColumnDef
	if len(names) == 0 {
		for _, c := range def.Columns {
			if !c.Hidden || strings.EqualFold(c.Name, def.KeyColumn) {
				out = append(out, c)
			}
		}
		return out, nil
	}

	seen := make(map[string]bool, len(names)+1)
	for _, name := range names {
		col, ok := def.Column(name)
		if !ok {
			return nil, apperror.NewUnknownColumn(def.Schema, def.Name, name)
		}
		if seen[strings.ToLower(col.Name)] {
			continue
		}
		seen[strings.ToLower(col.Name)] = true
		out = append(out, col)
	}
	if !seen[strings.ToLower(def.KeyColumn)] {
		key, _ := def.Column(def.KeyColumn)
		out = append(out, key)
	}
	return out, nil
}

func (s *Service) pageSize(requested, viewDefault int) int {
	n := requested
	if n <= 0 {
		n = viewDefault
	}
	if n <= 0 {
		n = s.limits.DefaultMaxRows
	}
	return min(n, s.limits.MaxRowsLimit)
}
