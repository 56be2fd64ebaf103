package vfs

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsyncTask_RunToCompletion(t *testing.T) {
	var ran atomic.Bool
	var finishes atomic.Int32
	var finishedCancelled atomic.Bool

	task := newAsyncTask(func(*asyncTask) {
		ran.Store(true)
	}, func(cancelled bool) {
		finishes.Add(1)
		finishedCancelled.Store(cancelled)
	})

	assert.False(t, task.Finished())
	task.Run()
	task.Run() // repeated calls are no-ops
	task.Join()

	assert.True(t, ran.Load())
	assert.True(t, task.Finished())
	assert.Equal(t, int32(1), finishes.Load(), "finish callback fires exactly once")
	assert.False(t, finishedCancelled.Load())
}

func TestAsyncTask_Cancellation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var steps atomic.Int32

	task := newAsyncTask(func(task *asyncTask) {
		close(started)
		<-release
		for i := 0; i < 100; i++ {
			if task.Cancelled() {
				return
			}
			steps.Add(1)
		}
	}, nil)

	task.Run()
	<-started
	task.Cancel()
	close(release)
	task.Join()

	assert.True(t, task.Cancelled())
	assert.True(t, task.Finished())
	assert.Equal(t, int32(0), steps.Load(), "work observed the flag at the first boundary")
}

func TestAsyncTask_FinishReportsCancellation(t *testing.T) {
	cancelled := make(chan bool, 1)
	task := newAsyncTask(func(task *asyncTask) {}, func(c bool) { cancelled <- c })

	task.Cancel()
	task.Run()
	task.Join()

	assert.True(t, <-cancelled)
}
