package grid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygrid/internal/domain/filter"
	"querygrid/internal/domain/query"
	"querygrid/internal/grid/headerlock"
	"querygrid/internal/grid/region"
	"querygrid/internal/grid/render"
	"querygrid/internal/grid/selection"
	"querygrid/pkg/logger"
)

type nullMount struct {
	mu   sync.Mutex
	html string
}

func (m *nullMount) Replace(html string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.html = html
}

func (m *nullMount) ShowError(string) {}
func (m *nullMount) SetLoading(bool)  {}

type dom map[string]render.Mount

func (d dom) Mount(target string) (render.Mount, bool) {
	m, ok := d[target]
	return m, ok
}

type pageFetcher struct{}

func (pageFetcher) FetchContent(_ context.Context, req render.ContentRequest) (render.Content, error) {
	c := render.Content{HTML: "<table/>", RowIDs: []string{"1", "2", "3"}}
	if v, _ := req.Pairs.Get(req.Region + ".showRows"); v == "selected" {
		c.CheckedIDs = []string{"1", "2", "3"}
	} else {
		c.CheckedIDs = []string{"2"}
	}
	c.SelectedCount = 3
	return c, nil
}

type nopStore struct{}

func (nopStore) GetSelected(context.Context, string) ([]string, error) { return nil, nil }
func (nopStore) SetSelected(context.Context, string, []string, bool) (int, error) {
	return 0, nil
}
func (nopStore) ClearSelected(context.Context, string) (int, error) { return 0, nil }
func (nopStore) SelectAll(context.Context, string, query.Request) (int, error) {
	return 0, nil
}

func TestPage_RefreshUpdatesSelection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mount := &nullMount{}
	p := NewPage("?A.selectionKey=sel-1&B.sort=Name", Deps{
		Store:   nopStore{},
		Fetcher: pageFetcher{},
		Dom:     dom{"grid-A": mount},
		Logger:  logger.NewNop(),
	})

	g, err := p.Add(Config{
		Region: region.Config{Name: "A", SchemaName: "core", QueryName: "Users"},
		Render: render.Config{Mode: render.ModeAsync, Target: "grid-A"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sel-1", g.Selection.Key())

	require.NoError(t, g.Region.AddFilter(ctx, filter.NewEqual("Name", "x")))
	require.NoError(t, g.Renderer.Wait(ctx))

	assert.Equal(t, 3, g.Selection.SelectionCount())
	assert.Equal(t, selection.Indeterminate, g.Selection.HeaderState())

	require.NoError(t, g.Region.ShowSelected(ctx))
	require.NoError(t, g.Renderer.Wait(ctx))
	assert.Equal(t, selection.Checked, g.Selection.HeaderState())

	require.NoError(t, p.Close(ctx))
	assert.True(t, g.Region.Destroyed())
}

func TestPage_DuplicateAndInvalidGrids(t *testing.T) {
	p := NewPage("", Deps{Logger: logger.NewNop(), Navigator: navFunc(func(string) error { return nil })})
	cfg := Config{
		Region: region.Config{Name: "A", SchemaName: "core", QueryName: "Users"},
		Render: render.Config{Mode: render.ModeFullPage},
	}

	_, err := p.Add(cfg)
	require.NoError(t, err)
	_, err = p.Add(cfg)
	assert.Error(t, err)

	_, err = p.Add(Config{
		Region: region.Config{Name: "B", SchemaName: "core", QueryName: "Users"},
		Render: render.Config{Mode: render.ModeAsync},
	})
	assert.Error(t, err)

	_, ok := p.Grid("A")
	assert.True(t, ok)
	assert.True(t, p.Remove(context.Background(), "A"))
	_, ok = p.Grid("A")
	assert.False(t, ok)
}

type navFunc func(string) error

func (f navFunc) Navigate(url string) error { return f(url) }

type stillGeometry struct{}

func (stillGeometry) HeaderTop() float64         { return 100 }
func (stillGeometry) TableBottom() float64       { return 500 }
func (stillGeometry) TableLeft() float64         { return 0 }
func (stillGeometry) ColumnWidths() []float64    { return nil }
func (stillGeometry) Scroll() (float64, float64) { return 0, 0 }

type noHeader struct{}

func (noHeader) ShowAt(float64, float64) {}
func (noHeader) MoveTo(float64)          {}
func (noHeader) Hide()                   {}
func (noHeader) SyncWidths([]float64)    {}

type silentSource struct{ unsubscribed bool }

func (s *silentSource) Subscribe(func(headerlock.Event)) func() {
	return func() { s.unsubscribed = true }
}

func TestGrid_HeaderLockFollowsRegion(t *testing.T) {
	p := NewPage("", Deps{Logger: logger.NewNop(), Navigator: navFunc(func(string) error { return nil })})
	g, err := p.Add(Config{
		Region: region.Config{Name: "A", SchemaName: "core", QueryName: "Users"},
		Render: render.Config{Mode: render.ModeFullPage},
	})
	require.NoError(t, err)

	src := &silentSource{}
	tr, err := g.LockHeader(stillGeometry{}, noHeader{}, src, headerlock.WithLogger(logger.NewNop()))
	require.NoError(t, err)
	_, err = g.LockHeader(stillGeometry{}, noHeader{}, src)
	assert.Error(t, err)

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, headerlock.Disabled, tr.State())
	assert.True(t, src.unsubscribed)
}
