package selection

import (
	"context"

	"querygrid/internal/core/apperror"
)

// Callbacks is the success/failure contract used by page scripts. With no
// Failure set, errors are logged.
type Callbacks struct {
	Success func(count int)
	Failure func(err error)
}

// Task is a running selection call.
type Task struct {
	done  chan struct{}
	count int
	err   error
}

// Wait blocks until the call finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (int, error) {
	select {
	case <-t.done:
		return t.count, t.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Go runs op in the background and dispatches its result to cb. Panics in op
// are reported as internal errors through the failure path.
func (s *Synchronizer) Go(ctx context.Context, op func(context.Context) (int, error), cb Callbacks) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer func() {
			if rec := recover(); rec != nil {
				t.count, t.err = 0, apperror.NewInternal(nil).WithDetail("panic", rec)
				s.fail(ctx, cb, t.err)
			}
		}()

		t.count, t.err = op(ctx)
		if t.err != nil {
			s.fail(ctx, cb, t.err)
			return
		}
		if cb.Success != nil {
			cb.Success(t.count)
		}
	}()
	return t
}

func (s *Synchronizer) fail(ctx context.Context, cb Callbacks, err error) {
	if cb.Failure != nil {
		cb.Failure(err)
		return
	}
	s.log.WithContext(ctx).Errorw("selection request failed", "key", s.key, "error", err)
}
