package vfs

import (
	"os"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	if err := Init(); err != nil {
		panic(err)
	}
	code := m.Run()
	Shutdown()
	os.Exit(code)
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// settle gives in-flight event dispatch a moment to drain before
// asserting that something did NOT happen.
func settle() {
	time.Sleep(150 * time.Millisecond)
}

// newListedDir constructs a directory outside the cache, waits for the
// scan to finish and detaches its monitor, so tests can drive the
// notification protocol by hand without racing live events.
func newListedDir(t *testing.T, path string) *Dir {
	t.Helper()
	d := newDir(path, nil)
	d.task.Run()
	waitFor(t, d.IsFileListed, "initial scan")

	d.mu.Lock()
	m := d.monitor
	d.monitor = nil
	d.mu.Unlock()
	if m != nil {
		m.Remove()
	}
	t.Cleanup(d.Release)
	return d
}
