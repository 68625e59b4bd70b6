package region

import (
	"context"
	"strconv"
	"strings"

	"querygrid/internal/core/apperror"
	appctx "querygrid/internal/core/context"
	"querygrid/internal/domain/filter"
	"querygrid/internal/domain/query"
	"querygrid/internal/grid/params"
)

// Direction is a sort direction as written by column headers.
type Direction string

const (
	Ascending  Direction = "+"
	Descending Direction = "-"
)

// ViewChangeOptions tunes ChangeView.
type ViewChangeOptions struct {
	// FullSwitch also drops every filter and the sort.
	FullSwitch bool
	// Parameters are applied together with the view change.
	Parameters map[string]string
}

// change is one pending mutation.
type change struct {
	event  EventType
	pairs  params.Pairs
	skips  []string
	drop   []string // exact keys removed before serialization
	detail any

	// derive computes pairs from the current state once the mutation lock is held.
	derive func(State) (params.Pairs, any)
}

// hookScope marks a context handed to this region's before-hooks.
type hookScope struct{}

// apply runs the before-hooks, serializes and hands the region to the refresher.
// A mutation issued from one of the region's own before-hooks with the hook's
// context fails with CONFLICT instead of waiting on opMu.
func (r *Region) apply(ctx context.Context, c change) error {
	if owner, _ := ctx.Value(hookScope{}).(*Region); owner == r {
		return apperror.NewConflict("region changed from its own before-hook").
			WithDetail("region", r.cfg.Name).
			WithDetail("event", string(c.event))
	}
	ctx = appctx.WithRegion(ctx, r.cfg.Name)

	r.opMu.Lock()
	if r.Destroyed() {
		r.opMu.Unlock()
		return errDestroyed(r.cfg.Name)
	}
	if c.derive != nil {
		c.pairs, c.detail = c.derive(r.State())
	}

	e := &Event{
		Type:     c.event,
		Region:   r.cfg.Name,
		NewPairs: c.pairs,
		Skips:    c.skips,
		Detail:   c.detail,
	}
	if err := r.hooks.Run(context.WithValue(ctx, hookScope{}, r), e); err != nil {
		r.opMu.Unlock()
		r.log.WithContext(ctx).Debugw("change canceled", "event", c.event, "reason", err)
		return apperror.NewCanceled(string(c.event)).WithCause(err)
	}

	r.mu.Lock()
	prev := r.stateLocked()
	current := r.pairs
	if len(c.drop) > 0 {
		current = dropKeys(current, c.drop)
	}
	r.pairs = params.Serialize(r.cfg.Name, current, e.NewPairs, e.Skips)
	r.mu.Unlock()
	r.opMu.Unlock()

	after := &Event{Type: AfterChange, Region: r.cfg.Name, Detail: c.event, Previous: &prev}
	for _, err := range r.hooks.RunAll(ctx, after) {
		r.log.WithContext(ctx).Warnw("change hook failed", "event", c.event, "error", err)
	}
	return r.refresh(ctx)
}

// knownColumn logs a warning and returns false when the metadata lacks field.
// Lookup paths ("Owner/Name") are checked on their first segment.
func (r *Region) knownColumn(ctx context.Context, field string) bool {
	if r.columns == nil || field == "" {
		return true
	}
	root, _, _ := strings.Cut(field, "/")
	if r.columns.HasColumn(r.cfg.SchemaName, r.cfg.QueryName, root) {
		return true
	}
	err := apperror.NewUnknownColumn(r.cfg.SchemaName, r.cfg.QueryName, field)
	r.log.WithContext(ctx).Warnw("ignoring change on unknown column", "column", field, "error", err)
	return false
}

// --- Filters ---

// AddFilter appends clauses. Existing clauses on the same fields stay; they
// compose with AND. Paging resets to the first page.
func (r *Region) AddFilter(ctx context.Context, clauses ...filter.Clause) error {
	pairs := make(params.Pairs, 0, len(clauses))
	for _, c := range clauses {
		if err := c.Validate(); err != nil {
			return apperror.NewValidation(err.Error()).WithDetail("filter", c.String())
		}
		if !r.knownColumn(ctx, c.Field) {
			return nil
		}
		pairs = append(pairs, params.FilterPair(r.cfg.Name, c))
	}
	if len(pairs) == 0 {
		return nil
	}
	return r.apply(ctx, change{
		event:  BeforeFilterChange,
		pairs:  pairs,
		skips:  []string{params.Offset},
		detail: clauses,
	})
}

// RemoveFilter drops every clause with the same field and operator.
func (r *Region) RemoveFilter(ctx context.Context, c filter.Clause) error {
	return r.apply(ctx, change{
		event:  BeforeFilterChange,
		skips:  []string{params.Offset},
		drop:   []string{params.FilterKey(r.cfg.Name, c)},
		detail: c,
	})
}

// RemoveColumnFilters drops every clause on field.
func (r *Region) RemoveColumnFilters(ctx context.Context, field string) error {
	return r.apply(ctx, change{
		event:  BeforeFilterChange,
		skips:  []string{params.FieldFilterPrefix(r.cfg.Name, field), params.Offset},
		detail: field,
	})
}

// ReplaceFilter swaps replaced for c. With replaced nil, every clause on c's
// field is replaced.
func (r *Region) ReplaceFilter(ctx context.Context, c filter.Clause, replaced *filter.Clause) error {
	if err := c.Validate(); err != nil {
		return apperror.NewValidation(err.Error()).WithDetail("filter", c.String())
	}
	if !r.knownColumn(ctx, c.Field) {
		return nil
	}

	ch := change{
		event:  BeforeFilterChange,
		pairs:  params.Pairs{params.FilterPair(r.cfg.Name, c)},
		skips:  []string{params.Offset},
		detail: c,
	}
	if replaced != nil {
		ch.drop = []string{params.FilterKey(r.cfg.Name, *replaced)}
	} else {
		ch.skips = append(ch.skips, params.FieldFilterPrefix(r.cfg.Name, c.Field))
	}
	return r.apply(ctx, ch)
}

// ClearAllFilters drops every filter clause and nothing else.
func (r *Region) ClearAllFilters(ctx context.Context) error {
	return r.apply(ctx, change{
		event: BeforeFilterChange,
		skips: []string{params.AllFilters, params.Offset},
	})
}

// --- Sort ---

// ChangeSort makes field the primary sort. An existing entry for field is
// removed first; other entries keep their relative order.
func (r *Region) ChangeSort(ctx context.Context, field string, dir Direction) error {
	if field == "" {
		return apperror.NewValidation("sort field is required")
	}
	if !r.knownColumn(ctx, field) {
		return nil
	}

	return r.apply(ctx, change{
		event: BeforeSortChange,
		skips: []string{params.Sort, params.Offset},
		derive: func(s State) (params.Pairs, any) {
			next := make([]query.SortField, 0, len(s.Sort)+1)
			next = append(next, query.SortField{Field: field, Descending: dir == Descending})
			next = append(next, withoutSortField(s.Sort, field)...)
			return params.Pairs{params.P(params.Sort, query.FormatSort(next))}, next
		},
	})
}

// ClearSort removes field from the sort. An empty sort removes the key.
func (r *Region) ClearSort(ctx context.Context, field string) error {
	return r.apply(ctx, change{
		event: BeforeSortChange,
		skips: []string{params.Sort, params.Offset},
		derive: func(s State) (params.Pairs, any) {
			rest := withoutSortField(s.Sort, field)
			if len(rest) == 0 {
				return nil, rest
			}
			return params.Pairs{params.P(params.Sort, query.FormatSort(rest))}, rest
		},
	})
}

func withoutSortField(fields []query.SortField, field string) []query.SortField {
	var out []query.SortField
	for _, f := range fields {
		if !strings.EqualFold(f.Field, field) {
			out = append(out, f)
		}
	}
	return out
}

// --- Paging ---

// SetPageOffset moves the window. Negative offsets are treated as 0. Any
// non-paginated showRows mode is cleared.
func (r *Region) SetPageOffset(ctx context.Context, offset int) error {
	if offset < 0 {
		offset = 0
	}
	var pairs params.Pairs
	if offset > 0 {
		pairs = params.Pairs{params.P(params.Offset, strconv.Itoa(offset))}
	}
	return r.apply(ctx, change{
		event:  BeforeOffsetChange,
		pairs:  pairs,
		skips:  []string{params.Offset, params.ShowRows},
		detail: offset,
	})
}

// SetMaxRows sets the page size and returns to the first page in paginated
// mode. Non-positive values fall back to the region default.
func (r *Region) SetMaxRows(ctx context.Context, maxRows int) error {
	if maxRows <= 0 {
		maxRows = r.cfg.DefaultMaxRows
	}
	return r.apply(ctx, change{
		event:  BeforeMaxRowsChange,
		pairs:  params.Pairs{params.P(params.MaxRows, strconv.Itoa(maxRows))},
		skips:  []string{params.Offset, params.MaxRows, params.ShowRows},
		detail: maxRows,
	})
}

// ShowAll drops paging and shows every row.
func (r *Region) ShowAll(ctx context.Context) error { return r.setShowRows(ctx, query.ShowAll) }

// ShowSelected shows only selected rows.
func (r *Region) ShowSelected(ctx context.Context) error {
	return r.setShowRows(ctx, query.ShowSelected)
}

// ShowUnselected shows only unselected rows.
func (r *Region) ShowUnselected(ctx context.Context) error {
	return r.setShowRows(ctx, query.ShowUnselected)
}

// ShowNone hides every row.
func (r *Region) ShowNone(ctx context.Context) error { return r.setShowRows(ctx, query.ShowNone) }

// ShowPaged returns to paginated mode, keeping maxRows.
func (r *Region) ShowPaged(ctx context.Context) error {
	return r.setShowRows(ctx, query.ShowPaginated)
}

func (r *Region) setShowRows(ctx context.Context, mode query.ShowRows) error {
	if mode == query.ShowPaginated {
		return r.apply(ctx, change{
			event:  BeforeShowRowsChange,
			skips:  []string{params.ShowRows, params.Offset},
			detail: mode,
		})
	}
	return r.apply(ctx, change{
		event:  BeforeShowRowsChange,
		pairs:  params.Pairs{params.P(params.ShowRows, string(mode))},
		skips:  []string{params.Offset, params.MaxRows, params.ShowRows},
		detail: mode,
	})
}

// --- View, scope, columns ---

// ChangeView switches the view or report. Paging always resets.
func (r *Region) ChangeView(ctx context.Context, view ViewReference, opts ViewChangeOptions) error {
	skips := []string{params.Offset, params.ShowRows, params.ViewName, params.ReportID}
	if opts.FullSwitch {
		skips = append(skips, params.AllFilters, params.Sort)
	}

	var pairs params.Pairs
	switch {
	case view.Name == "":
	case view.Kind == ViewKindReport:
		pairs = append(pairs, params.P(params.ReportID, view.Name))
	default:
		pairs = append(pairs, params.P(params.ViewName, view.Name))
	}
	var paramPairs params.Pairs
	for _, k := range sortedKeys(opts.Parameters) {
		paramPairs = append(paramPairs, params.P(params.ParamPrefix+k, opts.Parameters[k]))
	}

	return r.apply(ctx, change{
		event:  BeforeChangeView,
		pairs:  append(pairs, paramPairs...),
		skips:  skips,
		drop:   qualifiedKeys(r.cfg.Name, paramPairs),
		detail: view,
	})
}

// SetContainerFilter changes the container scope. Empty restores the query default.
func (r *Region) SetContainerFilter(ctx context.Context, cf query.ContainerFilter) error {
	if !cf.Valid() {
		return apperror.NewValidation("unknown container filter").
			WithDetail("containerFilterName", string(cf))
	}
	var pairs params.Pairs
	if cf != "" {
		pairs = params.Pairs{params.P(params.ContainerFilter, string(cf))}
	}
	return r.apply(ctx, change{
		event:  BeforeContainerFilterChange,
		pairs:  pairs,
		skips:  []string{params.ContainerFilter, params.Offset},
		detail: cf,
	})
}

// SetColumns overrides the view's column list. Nil restores the view's columns.
func (r *Region) SetColumns(ctx context.Context, columns []string) error {
	for _, c := range columns {
		if !r.knownColumn(ctx, c) {
			return nil
		}
	}
	var pairs params.Pairs
	if len(columns) > 0 {
		pairs = params.Pairs{params.P(params.Columns, strings.Join(columns, ","))}
	}
	return r.apply(ctx, change{
		event:  BeforeColumnsChange,
		pairs:  pairs,
		skips:  []string{params.Columns},
		detail: columns,
	})
}

// --- Parameters ---

// SetParameters sets named query parameters. Keys not mentioned keep their value.
func (r *Region) SetParameters(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	keys := sortedKeys(values)
	pairs := make(params.Pairs, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			return apperror.NewValidation("parameter name is required")
		}
		pairs = append(pairs, params.P(params.ParamPrefix+k, values[k]))
	}
	// Exact keys are dropped: "param.a" must not remove "param.ab".
	return r.apply(ctx, change{
		event:  BeforeSetParametersChange,
		pairs:  pairs,
		skips:  []string{params.Offset},
		drop:   qualifiedKeys(r.cfg.Name, pairs),
		detail: values,
	})
}

// ClearAllParameters drops every named parameter.
func (r *Region) ClearAllParameters(ctx context.Context) error {
	return r.apply(ctx, change{
		event: BeforeClearAllParameters,
		skips: []string{params.ParamPrefix, params.Offset},
	})
}

func qualifiedKeys(region string, ps params.Pairs) []string {
	keys := make([]string, len(ps))
	for i, p := range ps {
		keys[i] = params.Key(region, p.Key)
	}
	return keys
}

func dropKeys(ps params.Pairs, keys []string) params.Pairs {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := make(params.Pairs, 0, len(ps))
	for _, p := range ps {
		if _, ok := drop[p.Key]; !ok {
			out = append(out, p)
		}
	}
	return out
}
