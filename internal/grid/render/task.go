package render

import "context"

// Task is one asynchronous refresh.
type Task struct {
	Generation uint64

	done    chan struct{}
	content Content
	err     error
	stale   bool
}

// Wait blocks until the request finished and returns its outcome, whether
// or not it was rendered.
func (t *Task) Wait(ctx context.Context) (Content, error) {
	select {
	case <-t.done:
		return t.content, t.err
	case <-ctx.Done():
		return Content{}, ctx.Err()
	}
}

// Stale reports whether a newer refresh superseded this one. Valid after Wait.
func (t *Task) Stale() bool {
	select {
	case <-t.done:
		return t.stale
	default:
		return false
	}
}
