package vfs

import (
	gosync "sync"
	"sync/atomic"
)

// asyncTask runs a single unit of work on its own goroutine. The work
// function polls Cancelled at its step boundaries; cancellation is a
// request, not a preemption. The finish callback fires exactly once,
// after the work function returns, with the cancelled flag.
type asyncTask struct {
	fn       func(t *asyncTask)
	onFinish func(cancelled bool)

	cancelled atomic.Bool
	finished  atomic.Bool
	runOnce   gosync.Once
	done      chan struct{}
}

func newAsyncTask(fn func(t *asyncTask), onFinish func(cancelled bool)) *asyncTask {
	return &asyncTask{
		fn:       fn,
		onFinish: onFinish,
		done:     make(chan struct{}),
	}
}

// Run starts the background goroutine. Repeated calls are no-ops.
func (t *asyncTask) Run() {
	t.runOnce.Do(func() {
		go func() {
			defer close(t.done)
			t.fn(t)
			t.finished.Store(true)
			if t.onFinish != nil {
				t.onFinish(t.cancelled.Load())
			}
		}()
	})
}

// Cancel requests an early exit. The work function keeps running until
// it next observes the flag; callers needing completion use Join.
func (t *asyncTask) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether cancellation has been requested.
func (t *asyncTask) Cancelled() bool {
	return t.cancelled.Load()
}

// Finished reports whether the work function has returned.
func (t *asyncTask) Finished() bool {
	return t.finished.Load()
}

// Join blocks until the goroutine has exited and the finish callback ran.
func (t *asyncTask) Join() {
	<-t.done
}
