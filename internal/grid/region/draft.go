package region

import (
	"context"
	"sync"

	"querygrid/internal/core/apperror"
	"querygrid/internal/domain/filter"
	"querygrid/internal/grid/params"
)

// FilterDraft collects edits to one column's filters without touching region
// state. Nothing reaches the pairs, the URL or the refresher until Commit.
type FilterDraft struct {
	region *Region
	field  string

	mu      sync.Mutex
	clauses []filter.Clause
	done    bool
}

// EditFilters starts a draft for field, seeded with its current clauses.
func (r *Region) EditFilters(field string) *FilterDraft {
	var current []filter.Clause
	for _, c := range r.State().Filters {
		if c.Field == field {
			current = append(current, c)
		}
	}
	return &FilterDraft{region: r, field: field, clauses: current}
}

// Field returns the column being edited.
func (d *FilterDraft) Field() string { return d.field }

// Set replaces the pending clauses. The field of each clause is forced to the
// draft's column.
func (d *FilterDraft) Set(clauses ...filter.Clause) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clauses = d.clauses[:0]
	for _, c := range clauses {
		c.Field = d.field
		d.clauses = append(d.clauses, c)
	}
}

// Clauses returns the pending clauses.
func (d *FilterDraft) Clauses() []filter.Clause {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]filter.Clause(nil), d.clauses...)
}

// Discard abandons the draft.
func (d *FilterDraft) Discard() {
	d.mu.Lock()
	d.done = true
	d.mu.Unlock()
}

// Commit replaces every clause on the column with the pending ones as a
// single filter change.
func (d *FilterDraft) Commit(ctx context.Context) error {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return apperror.NewConflict("filter draft already finished").WithDetail("field", d.field)
	}
	clauses := append([]filter.Clause(nil), d.clauses...)
	d.done = true
	d.mu.Unlock()

	r := d.region
	if !r.knownColumn(ctx, d.field) {
		return nil
	}
	pairs := make(params.Pairs, 0, len(clauses))
	for _, c := range clauses {
		if err := c.Validate(); err != nil {
			return apperror.NewValidation(err.Error()).WithDetail("filter", c.String())
		}
		pairs = append(pairs, params.FilterPair(r.cfg.Name, c))
	}
	return r.apply(ctx, change{
		event:  BeforeFilterChange,
		pairs:  pairs,
		skips:  []string{params.FieldFilterPrefix(r.cfg.Name, d.field), params.Offset},
		detail: clauses,
	})
}
