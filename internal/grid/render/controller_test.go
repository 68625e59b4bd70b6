package render

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygrid/internal/core/apperror"
	"querygrid/internal/domain/filter"
	"querygrid/internal/grid/region"
	"querygrid/pkg/logger"
)

type fakeMount struct {
	mu       sync.Mutex
	html     string
	replaced int
	errors   []string
	loading  []bool
}

func (m *fakeMount) Replace(html string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.html = html
	m.replaced++
}

func (m *fakeMount) ShowError(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, message)
}

func (m *fakeMount) SetLoading(loading bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = append(m.loading, loading)
}

func (m *fakeMount) isLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loading) > 0 && m.loading[len(m.loading)-1]
}

func (m *fakeMount) snapshot() (string, int, []string, []bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.html, m.replaced, append([]string(nil), m.errors...), append([]bool(nil), m.loading...)
}

type fakeDom map[string]*fakeMount

func (d fakeDom) Mount(target string) (Mount, bool) {
	m, ok := d[target]
	if !ok {
		return nil, false
	}
	return m, true
}

type fetcherFunc func(ctx context.Context, req ContentRequest) (Content, error)

func (f fetcherFunc) FetchContent(ctx context.Context, req ContentRequest) (Content, error) {
	return f(ctx, req)
}

type recordingNavigator struct{ urls []string }

func (n *recordingNavigator) Navigate(url string) error {
	n.urls = append(n.urls, url)
	return nil
}

type recordingAlerter struct{ messages []string }

func (a *recordingAlerter) Alert(message string) { a.messages = append(a.messages, message) }

func newAsync(t *testing.T, cfg Config, fetch fetcherFunc, opts ...Option) (*Controller, *fakeMount) {
	t.Helper()
	mount := &fakeMount{}
	if cfg.Target == "" {
		cfg.Target = "grid-A"
	}
	cfg.Mode = ModeAsync
	all := append([]Option{
		WithDom(fakeDom{"grid-A": mount}),
		WithFetcher(fetch),
		WithLogger(logger.NewNop()),
	}, opts...)
	c, err := New(cfg, all...)
	require.NoError(t, err)
	return c, mount
}

func newRegion(t *testing.T, initial string, c *Controller) *region.Region {
	t.Helper()
	r, err := region.New(region.Config{
		Name:         "A",
		SchemaName:   "core",
		QueryName:    "Users",
		InitialQuery: initial,
	}, region.WithRefresher(c), region.WithLogger(logger.NewNop()))
	require.NoError(t, err)
	return r
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew_ValidatesMode(t *testing.T) {
	_, err := New(Config{Mode: ModeAsync}, WithFetcher(fetcherFunc(nil)), WithDom(fakeDom{}))
	assert.True(t, apperror.HasCode(err, apperror.CodeConfiguration))

	_, err = New(Config{Mode: ModeFullPage})
	assert.True(t, apperror.HasCode(err, apperror.CodeConfiguration))

	_, err = New(Config{Mode: "sideways"})
	assert.True(t, apperror.HasCode(err, apperror.CodeConfiguration))
}

func TestFullPage_NavigatesWithAllRegions(t *testing.T) {
	nav := &recordingNavigator{}
	c, err := New(Config{Mode: ModeFullPage, BasePath: "/grid"}, WithNavigator(nav), WithLogger(logger.NewNop()))
	require.NoError(t, err)
	r := newRegion(t, "B.x=1&A.sort=Name", c)

	require.NoError(t, r.ChangeSort(context.Background(), "Age", region.Ascending))

	assert.Equal(t, []string{"/grid?B.x=1&A.sort=Age%2CName"}, nav.urls)
	assert.Equal(t, Idle, c.Status())
}

func TestAsync_SwapsContentAndSendsFlags(t *testing.T) {
	ctx := waitCtx(t)
	var got ContentRequest
	var rendered Content
	c, mount := newAsync(t, Config{BodyClass: "embedded"}, func(_ context.Context, req ContentRequest) (Content, error) {
		got = req
		return Content{HTML: "<table></table>", RowCount: 2, RowIDs: []string{"1", "2"}}, nil
	}, WithRendered(func(_ context.Context, _ *region.Region, content Content) {
		rendered = content
	}))
	r := newRegion(t, "B.x=1", c)

	require.NoError(t, r.AddFilter(ctx, filter.NewEqual("Name", "x")))
	require.NoError(t, c.Wait(ctx))

	html, replaced, errs, _ := mount.snapshot()
	assert.Equal(t, "<table></table>", html)
	assert.Equal(t, 1, replaced)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"1", "2"}, rendered.RowIDs)

	assert.Equal(t, "A", got.Region)
	assert.Equal(t, "Users", got.QueryName)
	for key, want := range map[string]string{
		"B.x":         "1",
		"A.Name~eq":   "x",
		FlagAsync:     "true",
		FlagFrame:     "none",
		FlagShowTitle: "false",
		FlagBodyClass: "embedded",
	} {
		v, ok := got.Pairs.Get(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, v, key)
	}
	assert.Equal(t, Idle, c.Status())
}

func TestAsync_MissingTargetIsLoud(t *testing.T) {
	alerter := &recordingAlerter{}
	c, err := New(Config{Mode: ModeAsync, Target: "nowhere"},
		WithDom(fakeDom{}),
		WithFetcher(fetcherFunc(func(context.Context, ContentRequest) (Content, error) {
			t.Fatal("fetch must not run without a mount")
			return Content{}, nil
		})),
		WithAlerter(alerter),
		WithLogger(logger.NewNop()),
	)
	require.NoError(t, err)
	r := newRegion(t, "", c)

	err = r.AddFilter(context.Background(), filter.NewEqual("Name", "x"))

	assert.True(t, apperror.HasCode(err, apperror.CodeRenderTargetMissing))
	assert.Len(t, alerter.messages, 1)
	assert.True(t, r.Pairs().Has("A.Name~eq"))
}

func TestAsync_MissingTargetSuppressed(t *testing.T) {
	alerter := &recordingAlerter{}
	c, err := New(Config{Mode: ModeAsync, Target: "nowhere", SuppressRenderErrors: true},
		WithDom(fakeDom{}),
		WithFetcher(fetcherFunc(func(context.Context, ContentRequest) (Content, error) {
			return Content{}, nil
		})),
		WithAlerter(alerter),
		WithLogger(logger.NewNop()),
	)
	require.NoError(t, err)

	assert.NoError(t, newRegion(t, "", c).Refresh(context.Background()))
	assert.Empty(t, alerter.messages)
}

func TestAsync_StaleResponseDiscarded(t *testing.T) {
	ctx := waitCtx(t)
	release := make(chan struct{})
	c, mount := newAsync(t, Config{}, func(_ context.Context, req ContentRequest) (Content, error) {
		if v, _ := req.Pairs.Get("A.Name~eq"); v == "a" {
			<-release
			return Content{HTML: "first"}, nil
		}
		return Content{HTML: "second"}, nil
	})
	r := newRegion(t, "", c)

	require.NoError(t, r.AddFilter(ctx, filter.NewEqual("Name", "a")))
	first := c.Last()
	require.NoError(t, r.ReplaceFilter(ctx, filter.NewEqual("Name", "b"), nil))
	second := c.Last()
	require.NotSame(t, first, second)

	content, err := second.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", content.HTML)

	close(release)
	content, err = first.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", content.HTML)
	assert.True(t, first.Stale())
	assert.False(t, second.Stale())

	html, replaced, _, _ := mount.snapshot()
	assert.Equal(t, "second", html)
	assert.Equal(t, 1, replaced)
}

func TestAsync_FailureRendersInline(t *testing.T) {
	ctx := waitCtx(t)
	c, mount := newAsync(t, Config{}, func(context.Context, ContentRequest) (Content, error) {
		return Content{}, errors.New("connection refused")
	})
	r := newRegion(t, "", c)

	require.NoError(t, r.Refresh(ctx))
	_, err := c.Last().Wait(ctx)

	assert.True(t, apperror.HasCode(err, apperror.CodeTransport))
	_, replaced, errs, _ := mount.snapshot()
	assert.Zero(t, replaced)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Error loading A")
	assert.Contains(t, errs[0], "connection refused")
}

func TestAsync_FailureCallbackReplacesInlineError(t *testing.T) {
	ctx := waitCtx(t)
	var failed error
	c, mount := newAsync(t, Config{}, func(context.Context, ContentRequest) (Content, error) {
		return Content{}, apperror.NewTransport("render", errors.New("503"))
	}, WithCallbacks(Callbacks{
		Failure: func(_ context.Context, _ *region.Region, err error) { failed = err },
	}))
	r := newRegion(t, "", c)

	require.NoError(t, r.Refresh(ctx))
	require.NoError(t, c.Wait(ctx))

	assert.Error(t, failed)
	_, _, errs, _ := mount.snapshot()
	assert.Empty(t, errs)
}

func TestAsync_TimeoutIsAFailure(t *testing.T) {
	ctx := waitCtx(t)
	c, mount := newAsync(t, Config{Timeout: 20 * time.Millisecond}, func(ctx context.Context, _ ContentRequest) (Content, error) {
		<-ctx.Done()
		return Content{}, ctx.Err()
	})
	r := newRegion(t, "", c)

	require.NoError(t, r.Refresh(ctx))
	_, err := c.Last().Wait(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, _, errs, _ := mount.snapshot()
	assert.Len(t, errs, 1)
}

func TestAsync_SpinnerOnlyForSlowResponses(t *testing.T) {
	ctx := waitCtx(t)

	t.Run("fast", func(t *testing.T) {
		c, mount := newAsync(t, Config{SpinnerDelay: time.Second}, func(context.Context, ContentRequest) (Content, error) {
			return Content{HTML: "ok"}, nil
		})
		require.NoError(t, newRegion(t, "", c).Refresh(ctx))
		require.NoError(t, c.Wait(ctx))

		_, _, _, loading := mount.snapshot()
		assert.NotContains(t, loading, true)
	})

	t.Run("slow", func(t *testing.T) {
		release := make(chan struct{})
		c, mount := newAsync(t, Config{SpinnerDelay: 10 * time.Millisecond}, func(context.Context, ContentRequest) (Content, error) {
			<-release
			return Content{HTML: "ok"}, nil
		})
		require.NoError(t, newRegion(t, "", c).Refresh(ctx))

		assert.Eventually(t, mount.isLoading, time.Second, 5*time.Millisecond)
		assert.Equal(t, Requesting, c.Status())

		close(release)
		require.NoError(t, c.Wait(ctx))
		assert.False(t, mount.isLoading())
		assert.Equal(t, Idle, c.Status())
	})
}
