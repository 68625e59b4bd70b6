package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygrid/internal/domain/query"
)

type countingRepo struct {
	lists   int
	views   map[string][]query.ViewDef // owner -> views
	failing bool
}

func (r *countingRepo) List(_ context.Context, _, _, owner string) ([]query.ViewDef, error) {
	r.lists++
	if r.failing {
		return nil, errors.New("db down")
	}
	return r.views[owner], nil
}

func (r *countingRepo) Save(_ context.Context, _, _, owner string, list []query.ViewDef) error {
	r.views[owner] = append(r.views[owner], list...)
	return nil
}

func (r *countingRepo) Delete(_ context.Context, _, _, owner, name string) (bool, error) {
	for i, v := range r.views[owner] {
		if v.Name == name {
			r.views[owner] = append(r.views[owner][:i], r.views[owner][i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func newRepo() *countingRepo {
	return &countingRepo{views: map[string][]query.ViewDef{
		"ann": {{Name: "mine", Owner: "ann"}},
	}}
}

func TestViewCache_HitsAfterFirstList(t *testing.T) {
	repo := newRepo()
	c := NewViewCache(repo, nil, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		list, err := c.List(ctx, "core", "People", "ann")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	}
	assert.Equal(t, 1, repo.lists)

	_, err := c.List(ctx, "core", "People", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lists, "owners are cached separately")
	assert.Equal(t, 2, c.Len())
}

func TestViewCache_ReturnsCopies(t *testing.T) {
	c := NewViewCache(newRepo(), nil, "")
	ctx := context.Background()

	list, err := c.List(ctx, "core", "People", "ann")
	require.NoError(t, err)
	list[0].Name = "changed"

	again, err := c.List(ctx, "core", "People", "ann")
	require.NoError(t, err)
	assert.Equal(t, "mine", again[0].Name)
}

func TestViewCache_WritesInvalidateQuery(t *testing.T) {
	repo := newRepo()
	c := NewViewCache(repo, nil, "")
	ctx := context.Background()

	_, _ = c.List(ctx, "core", "People", "ann")
	_, _ = c.List(ctx, "core", "Orders", "ann")
	require.Equal(t, 2, c.Len())

	require.NoError(t, c.Save(ctx, "core", "People", "", []query.ViewDef{{Name: "shared"}}))
	assert.Equal(t, 1, c.Len(), "only core.People is dropped")

	list, err := c.List(ctx, "core", "People", "ann")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	deleted, err := c.Delete(ctx, "core", "People", "ann", "mine")
	require.NoError(t, err)
	assert.True(t, deleted)

	list, err = c.List(ctx, "core", "People", "ann")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestViewCache_Invalidate(t *testing.T) {
	c := NewViewCache(newRepo(), nil, "")
	ctx := context.Background()

	_, _ = c.List(ctx, "core", "People", "ann")
	_, _ = c.List(ctx, "core", "Orders", "ann")

	c.Invalidate(" CORE.people ")
	assert.Equal(t, 1, c.Len())

	c.Invalidate("")
	assert.Zero(t, c.Len())
}

func TestViewCache_ErrorsAreNotCached(t *testing.T) {
	repo := newRepo()
	repo.failing = true
	c := NewViewCache(repo, nil, "")
	ctx := context.Background()

	_, err := c.List(ctx, "core", "People", "ann")
	require.Error(t, err)
	assert.Zero(t, c.Len())

	repo.failing = false
	_, err = c.List(ctx, "core", "People", "ann")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lists)
}

func TestViewCache_StartWithoutPool(t *testing.T) {
	c := NewViewCache(newRepo(), nil, "")
	require.NoError(t, c.Start(context.Background()))
	c.Stop()
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"grid_views_changed"`, quoteIdent("grid_views_changed"))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}
