package rows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygrid/internal/core/apperror"
	appctx "querygrid/internal/core/context"
	"querygrid/internal/domain/filter"
	"querygrid/internal/domain/query"
	"querygrid/internal/metadata"
)

type recordingRepo struct {
	plans  []Plan
	result query.Result
	keys   []string
}

func (r *recordingRepo) Select(_ context.Context, plan Plan) (query.Result, error) {
	r.plans = append(r.plans, plan)
	return r.result, nil
}

func (r *recordingRepo) SelectKeys(_ context.Context, plan Plan) ([]string, error) {
	r.plans = append(r.plans, plan)
	return r.keys, nil
}

type staticViews map[string]query.ViewDef

func (v staticViews) ResolveView(_ context.Context, _, _, name string) (query.ViewDef, bool, error) {
	view, ok := v[name]
	return view, ok, nil
}

func peopleRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	require.NoError(t, reg.Register(metadata.QueryDef{
		Schema:      "core",
		Name:        "People",
		Table:       "demo_people",
		KeyColumn:   "id",
		DefaultSort: "name",
		Columns: []metadata.ColumnDef{
			{Name: "id", Type: metadata.TypeInteger},
			{Name: "name", Type: metadata.TypeString},
			{Name: "age", Type: metadata.TypeInteger},
			{Name: "salary", Type: metadata.TypeNumber, Hidden: true},
		},
	}))
	return reg
}

func peopleRequest() query.Request {
	return query.Request{SchemaName: "core", QueryName: "People"}
}

func TestPlan_Defaults(t *testing.T) {
	repo := &recordingRepo{}
	svc := NewService(repo, peopleRegistry(t), nil, Limits{})

	plan, err := svc.Plan(context.Background(), peopleRequest())
	require.NoError(t, err)

	assert.Equal(t, query.ShowPaginated, plan.ShowRows)
	assert.Equal(t, 100, plan.Limit)
	assert.Equal(t, 0, plan.Offset)
	assert.Equal(t, []query.SortField{{Field: "name"}}, plan.Sort)
	assert.Equal(t, appctx.GuestUserID, plan.Owner)

	var names []string
	for _, c := range plan.Columns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"id", "name", "age"}, names, "hidden columns are left out")
}

func TestPlan_ResolvesColumnSpelling(t *testing.T) {
	svc := NewService(&recordingRepo{}, peopleRegistry(t), nil, Limits{})

	req := peopleRequest()
	req.Columns = []string{"NAME", "Age"}
	req.Filters = []filter.Clause{filter.NewGreaterThan("AGE", "30")}
	req.Sort = []query.SortField{{Field: "Age", Descending: true}}

	plan, err := svc.Plan(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, plan.Columns, 3, "key column is appended")
	assert.Equal(t, "name", plan.Columns[0].Name)
	assert.Equal(t, "id", plan.Columns[2].Name)
	assert.Equal(t, "age", plan.Filters[0].Field)
	assert.Equal(t, []query.SortField{{Field: "age", Descending: true}}, plan.Sort)
}

func TestPlan_UnknownColumn(t *testing.T) {
	svc := NewService(&recordingRepo{}, peopleRegistry(t), nil, Limits{})

	tests := []struct {
		name   string
		mutate func(r *query.Request)
	}{
		{"column", func(r *query.Request) { r.Columns = []string{"nope"} }},
		{"filter", func(r *query.Request) { r.Filters = []filter.Clause{filter.NewEqual("nope", "1")} }},
		{"sort", func(r *query.Request) { r.Sort = []query.SortField{{Field: "nope"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := peopleRequest()
			tt.mutate(&req)
			_, err := svc.Plan(context.Background(), req)
			assert.True(t, apperror.HasCode(err, apperror.CodeUnknownColumn), "got %v", err)
		})
	}
}

func TestPlan_UnknownQuery(t *testing.T) {
	svc := NewService(&recordingRepo{}, peopleRegistry(t), nil, Limits{})

	_, err := svc.Plan(context.Background(), query.Request{SchemaName: "core", QueryName: "Missing"})
	assert.True(t, apperror.IsNotFound(err))
}

func TestPlan_MergesView(t *testing.T) {
	views := staticViews{
		"adults": {
			Name:    "adults",
			Columns: []string{"name"},
			Filters: []filter.Clause{filter.NewGreaterThan("age", "17")},
			Sort:    []query.SortField{{Field: "age"}},
			MaxRows: 25,
		},
	}
	svc := NewService(&recordingRepo{}, peopleRegistry(t), views, Limits{})

	req := peopleRequest()
	req.ViewName = "adults"
	req.Filters = []filter.Clause{filter.NewContains("name", "an")}

	plan, err := svc.Plan(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, plan.Filters, 2, "view filters and request filters combine")
	assert.Equal(t, filter.Greater, plan.Filters[0].Operator)
	assert.Equal(t, []query.SortField{{Field: "age"}}, plan.Sort)
	assert.Equal(t, 25, plan.Limit)
	assert.Equal(t, "name", plan.Columns[0].Name)

	t.Run("request overrides view sort and size", func(t *testing.T) {
		req.Sort = []query.SortField{{Field: "name", Descending: true}}
		req.MaxRows = 10
		plan, err := svc.Plan(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, []query.SortField{{Field: "name", Descending: true}}, plan.Sort)
		assert.Equal(t, 10, plan.Limit)
	})

	t.Run("missing named view", func(t *testing.T) {
		req.ViewName = "absent"
		_, err := svc.Plan(context.Background(), req)
		assert.True(t, apperror.IsNotFound(err))
	})
}

func TestPlan_PageSize(t *testing.T) {
	svc := NewService(&recordingRepo{}, peopleRegistry(t), nil, Limits{DefaultMaxRows: 20, MaxRowsLimit: 50})

	req := peopleRequest()
	req.MaxRows = 500
	req.Offset = -5
	plan, err := svc.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 50, plan.Limit)
	assert.Equal(t, 0, plan.Offset)

	req.ShowRows = query.ShowAll
	req.Offset = 40
	plan, err = svc.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.Limit)
	assert.Equal(t, 0, plan.Offset)
	assert.False(t, plan.Paged())
}

func TestSelectRows(t *testing.T) {
	total := int64(3)
	repo := &recordingRepo{result: query.Result{
		Rows:       []map[string]any{{"id": 1}, {"id": 2}},
		RowCount:   2,
		TotalCount: &total,
	}}
	svc := NewService(repo, peopleRegistry(t), nil, Limits{})

	res, err := svc.SelectRows(context.Background(), peopleRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
	require.NotEmpty(t, res.Columns)
	assert.True(t, res.Columns[0].Key)

	t.Run("showRows none skips the repository", func(t *testing.T) {
		req := peopleRequest()
		req.ShowRows = query.ShowNone
		before := len(repo.plans)

		res, err := svc.SelectRows(context.Background(), req)
		require.NoError(t, err)
		assert.Empty(t, res.Rows)
		assert.Equal(t, int64(0), *res.TotalCount)
		assert.Len(t, repo.plans, before)
	})

	t.Run("selected without a key is empty", func(t *testing.T) {
		req := peopleRequest()
		req.ShowRows = query.ShowSelected
		before := len(repo.plans)

		res, err := svc.SelectRows(context.Background(), req)
		require.NoError(t, err)
		assert.Empty(t, res.Rows)
		assert.Len(t, repo.plans, before)
	})
}

func TestSelectKeys_IgnoresPaging(t *testing.T) {
	repo := &recordingRepo{keys: []string{"1", "2"}}
	svc := NewService(repo, peopleRegistry(t), nil, Limits{})

	req := peopleRequest()
	req.Offset = 100
	req.MaxRows = 10
	req.ShowRows = query.ShowSelected

	keys, err := svc.SelectKeys(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, keys)

	plan := repo.plans[len(repo.plans)-1]
	assert.Equal(t, query.ShowAll, plan.ShowRows)
	assert.Equal(t, 0, plan.Limit)
	assert.Equal(t, 0, plan.Offset)
}
