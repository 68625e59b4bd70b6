package views

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

type memoryRepo struct {
	views map[string][]query.ViewDef // owner -> views
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{views: make(map[string][]query.ViewDef)}
}

func (m *memoryRepo) List(_ context.Context, _, _, owner string) ([]query.ViewDef, error) {
	out := append([]query.ViewDef{}, m.views[SharedOwner]...)
	if owner != SharedOwner {
		out = append(out, m.views[owner]...)
	}
	return out, nil
}

func (m *memoryRepo) Save(_ context.Context, _, _, owner string, views []query.ViewDef) error {
	for _, v := range views {
		_, _ = m.Delete(context.Background(), "", "", owner, v.Name)
		m.views[owner] = append(m.views[owner], v)
	}
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, _, _, owner, name string) (bool, error) {
	list := m.views[owner]
	for i, v := range list {
		if v.Name == name {
			m.views[owner] = append(list[:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func newService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	reg := metadata.NewRegistry()
	require.NoError(t, reg.Register(metadata.QueryDef{
		Schema:    "core",
		Name:      "People",
		Table:     "demo_people",
		KeyColumn: "id",
		Columns: []metadata.ColumnDef{
			{Name: "id", Type: metadata.TypeInteger},
			{Name: "name", Type: metadata.TypeString},
			{Name: "age", Type: metadata.TypeInteger, Hidden: true},
		},
	}))
	repo := newMemoryRepo()
	return NewService(repo, reg), repo
}

func asUser(id string, admin bool) context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{UserID: id, IsAdmin: admin})
}

func TestGetQueryViews_BuiltinDefault(t *testing.T) {
	svc, _ := newService(t)

	resp, err := svc.GetQueryViews(asUser("u1", false), "core", "People")
	require.NoError(t, err)

	require.Len(t, resp.Views, 1)
	v := resp.Views[0]
	assert.Equal(t, "", v.Name)
	assert.True(t, v.Default)
	assert.Equal(t, []string{"id", "name"}, v.Columns)
	assert.Equal(t, "People", resp.QueryName)
}

func TestSaveQueryViews_PersonalHidesShared(t *testing.T) {
	svc, _ := newService(t)
	admin := asUser("admin", true)
	user := asUser("u1", false)

	require.NoError(t, svc.SaveQueryViews(admin, "core", "People", []query.ViewDef{
		{Name: "compact", Columns: []string{"name"}},
	}, true))
	require.NoError(t, svc.SaveQueryViews(user, "core", "People", []query.ViewDef{
		{Name: "compact", Columns: []string{"id", "age"}},
		{Name: "mine", Columns: []string{"name"}},
	}, false))

	resp, err := svc.GetQueryViews(user, "core", "People")
	require.NoError(t, err)
	require.Len(t, resp.Views, 3)
	assert.Equal(t, "", resp.Views[0].Name)
	assert.Equal(t, "compact", resp.Views[1].Name)
	assert.Equal(t, []string{"id", "age"}, resp.Views[1].Columns)
	assert.False(t, resp.Views[1].Shared)
	assert.Equal(t, "u1", resp.Views[1].Owner)

	other, err := svc.GetQueryViews(asUser("u2", false), "core", "People")
	require.NoError(t, err)
	require.Len(t, other.Views, 2)
	assert.Equal(t, []string{"name"}, other.Views[1].Columns)
	assert.True(t, other.Views[1].Shared)
}

func TestSaveQueryViews_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := asUser("u1", false)

	tests := []struct {
		name  string
		views []query.ViewDef
		code  string
	}{
		{"empty", nil, apperror.CodeValidation},
		{"unknown column", []query.ViewDef{{Name: "x", Columns: []string{"nope"}}}, apperror.CodeUnknownColumn},
		{"unknown filter", []query.ViewDef{{Name: "x", Filters: []filter.Clause{filter.NewEqual("nope", "1")}}}, apperror.CodeUnknownColumn},
		{"bad filter", []query.ViewDef{{Name: "x", Filters: []filter.Clause{{Field: "name", Operator: filter.Equal}}}}, apperror.CodeValidation},
		{"unknown sort", []query.ViewDef{{Name: "x", Sort: []query.SortField{{Field: "nope"}}}}, apperror.CodeUnknownColumn},
		{"duplicate", []query.ViewDef{{Name: "x"}, {Name: "x"}}, apperror.CodeValidation},
		{"two defaults", []query.ViewDef{{Name: "a", Default: true}, {Name: "b", Default: true}}, apperror.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.SaveQueryViews(ctx, "core", "People", tt.views, false)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}

	err := svc.SaveQueryViews(ctx, "core", "Missing", []query.ViewDef{{Name: "x"}}, false)
	assert.True(t, apperror.IsNotFound(err))
}

func TestSaveQueryViews_SharedNeedsAdmin(t *testing.T) {
	svc, _ := newService(t)

	err := svc.SaveQueryViews(asUser("u1", false), "core", "People", []query.ViewDef{{Name: "x"}}, true)
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))

	err = svc.DeleteQueryView(asUser("u1", false), "core", "People", "x", true)
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
}

func TestDeleteQueryView(t *testing.T) {
	svc, _ := newService(t)
	ctx := asUser("u1", false)

	require.NoError(t, svc.SaveQueryViews(ctx, "core", "People", []query.ViewDef{{Name: "x"}}, false))
	require.NoError(t, svc.DeleteQueryView(ctx, "core", "People", "x", false))

	err := svc.DeleteQueryView(ctx, "core", "People", "x", false)
	assert.True(t, apperror.IsNotFound(err))
}

func TestResolveView(t *testing.T) {
	svc, _ := newService(t)
	admin := asUser("admin", true)
	user := asUser("u1", false)

	require.NoError(t, svc.SaveQueryViews(admin, "core", "People", []query.ViewDef{
		{Name: "everyone", Default: true, MaxRows: 50},
	}, true))

	v, ok, err := svc.ResolveView(user, "core", "People", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "everyone", v.Name)

	require.NoError(t, svc.SaveQueryViews(user, "core", "People", []query.ViewDef{
		{Name: "own", Default: true},
	}, false))

	v, ok, err = svc.ResolveView(user, "core", "People", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "own", v.Name, "a personal default wins")

	_, ok, err = svc.ResolveView(user, "core", "People", "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}
