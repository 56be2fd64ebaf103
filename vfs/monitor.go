package vfs

import (
	"fmt"
	"path/filepath"
	gosync "sync"

	"github.com/fsnotify/fsnotify"
)

// MonitorEvent is the abstract kind of a filesystem change notification.
type MonitorEvent int

const (
	MonitorEventCreated MonitorEvent = iota
	MonitorEventDeleted
	MonitorEventChanged
	MonitorEventOther
)

func (e MonitorEvent) String() string {
	switch e {
	case MonitorEventCreated:
		return "created"
	case MonitorEventDeleted:
		return "deleted"
	case MonitorEventChanged:
		return "changed"
	default:
		return "other"
	}
}

// MonitorCallback receives translated events for one registration.
// Callbacks are invoked serially from the hub's dispatch goroutine.
type MonitorCallback func(event MonitorEvent, path string)

// Monitor is one logical registration against a watched path. Multiple
// monitors on the same real (symlink-resolved) path share a single
// platform watch so watch-descriptor limits are not exhausted by tabs
// viewing the same directory.
type Monitor struct {
	hub      *monitorHub
	path     string // path as requested by the caller
	realPath string // symlink-resolved watch key
	callback MonitorCallback
	removed  bool
}

// Path returns the path this monitor was registered with.
func (m *Monitor) Path() string { return m.path }

// Remove detaches this registration. The platform watch is dropped when
// the last registration on the real path is removed. Safe to call once
// per monitor; later calls are no-ops.
func (m *Monitor) Remove() {
	m.hub.removeMonitor(m)
}

// monitorHub owns the process-wide fsnotify watcher and the registry of
// shared watch entries. All event dispatch happens on a single goroutine,
// so monitor callbacks never run concurrently with each other.
type monitorHub struct {
	mu      gosync.Mutex
	fsw     *fsnotify.Watcher
	watches map[string]*watchEntry // real path → shared entry
	closed  bool
	wg      gosync.WaitGroup
}

type watchEntry struct {
	realPath string
	monitors []*Monitor
}

func newMonitorHub() (*monitorHub, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	h := &monitorHub{
		fsw:     fsw,
		watches: make(map[string]*watchEntry),
	}
	h.wg.Add(1)
	go h.dispatchLoop()
	return h, nil
}

// addMonitor installs a watch (or joins an existing one) and registers
// the callback. Fails if the platform watch cannot be installed.
func (h *monitorHub) addMonitor(path string, cb MonitorCallback) (*Monitor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", path, err)
	}

	// inotify does not follow symlinks, watch the real path
	realPath, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", path, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("monitor hub is closed")
	}

	entry, ok := h.watches[realPath]
	if !ok {
		if err := h.fsw.Add(realPath); err != nil {
			return nil, fmt.Errorf("add watch on %q: %w", realPath, err)
		}
		entry = &watchEntry{realPath: realPath}
		h.watches[realPath] = entry
	}

	m := &Monitor{hub: h, path: abs, realPath: realPath, callback: cb}
	entry.monitors = append(entry.monitors, m)
	return m, nil
}

func (h *monitorHub) removeMonitor(m *Monitor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m.removed {
		return
	}
	m.removed = true

	entry, ok := h.watches[m.realPath]
	if !ok {
		return
	}
	for i, mm := range entry.monitors {
		if mm == m {
			entry.monitors = append(entry.monitors[:i], entry.monitors[i+1:]...)
			break
		}
	}
	if len(entry.monitors) == 0 {
		delete(h.watches, m.realPath)
		if !h.closed {
			h.fsw.Remove(m.realPath) //nolint:errcheck
		}
	}
}

func (h *monitorHub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.watches = make(map[string]*watchEntry)
	h.mu.Unlock()

	h.fsw.Close() //nolint:errcheck
	h.wg.Wait()
}

func (h *monitorHub) dispatchLoop() {
	defer h.wg.Done()
	l := sub("monitor")

	for {
		select {
		case ev, ok := <-h.fsw.Events:
			if !ok {
				return
			}
			h.dispatch(ev)

		case err, ok := <-h.fsw.Errors:
			if !ok {
				return
			}
			l.Warn("watcher error", "err", err)
		}
	}
}

// dispatch translates one raw notification and fans it out to every
// registration that can see it. Watches are always added with absolute
// paths, so fsnotify reports absolute event names. When both a path and
// its parent directory are watched, the kernel raises the change on both
// descriptors but fsnotify reports them with the same Name; the path's
// own registrations see it as a self event and the parent's as a child
// event, so deliver to both entries. Each monitor sees the event path
// re-rooted at its own registered path, so directories reached through
// different symlinks each observe their own view.
func (h *monitorHub) dispatch(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)
	kind := translateOp(ev.Op)

	h.mu.Lock()
	var monitors []*Monitor
	if entry, ok := h.watches[name]; ok {
		monitors = append(monitors, entry.monitors...)
	}
	if parent := filepath.Dir(name); parent != name {
		if entry, ok := h.watches[parent]; ok {
			monitors = append(monitors, entry.monitors...)
		}
	}
	h.mu.Unlock()

	for _, m := range monitors {
		m.callback(kind, rebaseEventPath(name, m.realPath, m.path))
	}
}

// translateOp maps fsnotify ops onto the abstract event kinds.
func translateOp(op fsnotify.Op) MonitorEvent {
	switch {
	case op.Has(fsnotify.Create):
		return MonitorEventCreated
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		// a rename away from the watched directory is a deletion
		// from its point of view, the destination raises a create
		return MonitorEventDeleted
	case op.Has(fsnotify.Write), op.Has(fsnotify.Chmod):
		return MonitorEventChanged
	default:
		return MonitorEventOther
	}
}

// rebaseEventPath rewrites an event path under the real watch path into
// the equivalent path under the monitor's registered path.
func rebaseEventPath(name, realPath, monitorPath string) string {
	if realPath == monitorPath {
		return name
	}
	rel, err := filepath.Rel(realPath, name)
	if err != nil || rel == "." {
		return monitorPath
	}
	return filepath.Join(monitorPath, rel)
}
