package vfs

import (
	"context"
	"runtime"
	gosync "sync"

	"github.com/disintegration/imaging"
	"github.com/marusama/semaphore/v2"
)

const (
	thumbnailSizeSmall = 128
	thumbnailSizeBig   = 256
)

type thumbRequest struct {
	file *File
	big  bool
}

// thumbnailer is the per-directory on-demand helper: a FIFO request
// queue drained by one background task, with decodes bounded by a
// semaphore. A cancelled thumbnailer finishes its in-flight work but
// emits no further signals.
type thumbnailer struct {
	dir  *Dir
	task *asyncTask
	sem  semaphore.Semaphore

	mu    gosync.Mutex
	queue []thumbRequest
	seen  map[string]struct{}
	done  bool
}

func newThumbnailer(d *Dir) *thumbnailer {
	workers := runtime.GOMAXPROCS(0)
	if workers > 4 {
		workers = 4
	}
	t := &thumbnailer{
		dir:  d,
		sem:  semaphore.New(workers),
		seen: make(map[string]struct{}),
	}
	t.task = newAsyncTask(t.run, func(bool) { d.onThumbnailerFinished(t) })
	return t
}

// request enqueues one (file, size) pair, deduplicated. Returns false
// if the helper already drained its queue and exited; the caller then
// retries with a fresh helper.
func (t *thumbnailer) request(file *File, big bool) bool {
	key := file.Path()
	if big {
		key += "\x00big"
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	if _, dup := t.seen[key]; dup {
		return true
	}
	t.seen[key] = struct{}{}
	t.queue = append(t.queue, thumbRequest{file: file, big: big})
	return true
}

func (t *thumbnailer) pop() (thumbRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 || t.task.Cancelled() {
		t.done = true
		return thumbRequest{}, false
	}
	req := t.queue[0]
	t.queue = t.queue[1:]
	return req, true
}

func (t *thumbnailer) run(task *asyncTask) {
	var wg gosync.WaitGroup
	for {
		req, ok := t.pop()
		if !ok {
			break
		}
		if err := t.sem.Acquire(context.Background(), 1); err != nil {
			break
		}
		wg.Add(1)
		go func(req thumbRequest) {
			defer wg.Done()
			defer t.sem.Release(1)
			t.load(req, task)
		}(req)
	}
	wg.Wait()
}

func (t *thumbnailer) load(req thumbRequest, task *asyncTask) {
	if task.Cancelled() || !req.file.IsImage() {
		return
	}

	size := thumbnailSizeSmall
	if req.big {
		size = thumbnailSizeBig
	}

	img, err := imaging.Open(req.file.Path(), imaging.AutoOrientation(true))
	if err != nil {
		sub("thumbnail").Debug("decode failed", "path", req.file.Path(), "err", err)
		return
	}
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	if task.Cancelled() {
		// abandoned mid-flight, no signal
		return
	}
	req.file.setThumbnail(thumb, req.big)
	t.dir.emitThumbnailLoaded(req.file)
}
