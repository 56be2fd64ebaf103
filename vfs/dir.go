package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	gosync "sync"
	"sync/atomic"

	"github.com/maruel/natural"
	"github.com/samber/lo"
	"golang.org/x/sys/unix"
)

// scanEntryHook, if set, runs for every entry the scan visits.
// Replaceable in tests.
var scanEntryHook func(name string)

const hiddenControlFile = ".hidden"

// Dir is the live, observable model of one filesystem directory. It is
// populated by a background scan, kept current by monitor events, and
// shared through the directory cache: all panels viewing the same path
// hold references to one instance.
//
// The file collection and the two pending-event sets are mutated from
// both the scan goroutine and the monitor dispatch goroutine; a single
// mutex serializes them. Signals are always emitted with the mutex
// released so subscribers may read the directory freely.
type Dir struct {
	path string

	mu             gosync.Mutex
	files          []*File
	changedPending []*File
	createdPending []string
	hiddenCount    int
	fileListed     bool
	loadComplete   bool

	avoidChanges    atomic.Bool
	monitorDegraded atomic.Bool

	monitor     *Monitor
	task        *asyncTask
	thumbnailer *thumbnailer

	sigCreated   signal[*File]
	sigChanged   signal[*File] // nil payload: the directory's own metadata changed
	sigDeleted   signal[*File] // nil payload: the directory itself is gone
	sigListed    signal[bool]  // payload: scan was cancelled
	sigThumbnail signal[*File]

	cache *dirCache
	refs  int // guarded by cache.mu
}

func newDir(path string, cache *dirCache) *Dir {
	d := &Dir{path: path, cache: cache}
	d.avoidChanges.Store(ShouldAvoidLiveChanges(path))
	d.task = newAsyncTask(d.loadThread, d.onLoadFinished)
	return d
}

// Path returns the canonical absolute path, which is also the cache key.
func (d *Dir) Path() string { return d.path }

// Release drops one reference. When the last owner releases, the
// directory leaves the cache, the in-flight scan is cancelled and
// joined, and the monitor detaches.
func (d *Dir) Release() {
	if d.cache != nil {
		d.cache.release(d)
	} else {
		d.destroy()
	}
}

// --- signal connectors ---

// OnFileCreated subscribes to new entries appearing after the scan.
func (d *Dir) OnFileCreated(fn func(*File)) SignalHandle { return d.sigCreated.connect(fn) }

// OnFileChanged subscribes to entry metadata changes. A nil file means
// the directory's own metadata changed, not its contents.
func (d *Dir) OnFileChanged(fn func(*File)) SignalHandle { return d.sigChanged.connect(fn) }

// OnFileDeleted subscribes to entry removals. A nil file means the
// directory itself was removed and the whole collection was cleared.
func (d *Dir) OnFileDeleted(fn func(*File)) SignalHandle { return d.sigDeleted.connect(fn) }

// OnFileListed subscribes to scan completion; the flag reports whether
// the scan was cancelled. Fires exactly once per directory instance.
func (d *Dir) OnFileListed(fn func(cancelled bool)) SignalHandle { return d.sigListed.connect(fn) }

// OnThumbnailLoaded subscribes to thumbnail completions for files still
// present in the collection.
func (d *Dir) OnThumbnailLoaded(fn func(*File)) SignalHandle { return d.sigThumbnail.connect(fn) }

// --- initial scan ---

// loadThread is the background scan. The monitor is installed before
// enumeration begins, otherwise entries created during the scan window
// would be silently missed.
func (d *Dir) loadThread(t *asyncTask) {
	l := sub("dir")

	monitor, err := addDefaultMonitor(d.path, d.onMonitorEvent)
	if err != nil {
		// degraded mode: one-time listing only, never auto-refreshes
		l.Warn("monitor install failed, live updates disabled", "path", d.path, "err", err)
		d.monitorDegraded.Store(true)
	} else {
		d.mu.Lock()
		d.monitor = monitor
		d.mu.Unlock()
	}

	hidden := d.readHiddenNames()

	entries, err := os.ReadDir(d.path)
	if err != nil {
		l.Warn("scan failed", "path", d.path, "err", err)
		return
	}

	for _, ent := range entries {
		if t.Cancelled() {
			break
		}
		name := ent.Name()
		if scanEntryHook != nil {
			scanEntryHook(name)
		}

		if lo.Contains(hidden, name) {
			d.mu.Lock()
			d.hiddenCount++
			d.mu.Unlock()
			continue
		}

		f, err := NewFile(filepath.Join(d.path, name))
		if err != nil {
			// entry vanished between readdir and stat
			continue
		}

		d.mu.Lock()
		// a created event may have raced the scan to this entry
		if d.findFileLocked(name, nil) == nil {
			d.files = append(d.files, f)
		}
		d.mu.Unlock()
	}

	l.Debug("scan complete", "path", d.path, "files", d.Len(), "hidden", d.HiddenCount(),
		"cancelled", t.Cancelled())
}

func (d *Dir) onLoadFinished(cancelled bool) {
	d.mu.Lock()
	d.fileListed = true
	d.loadComplete = true
	d.mu.Unlock()
	d.sigListed.emit(cancelled)
}

// readHiddenNames loads the .hidden control file: one relative filename
// per line, trailing whitespace stripped, blank lines skipped, absolute
// paths ignored with a warning.
func (d *Dir) readHiddenNames() []string {
	hiddenPath := filepath.Join(d.path, hiddenControlFile)

	// test access first, open() on a missing file can stall on NFS
	if unix.Access(hiddenPath, unix.R_OK) != nil {
		return nil
	}

	data, err := os.ReadFile(hiddenPath)
	if err != nil {
		return nil
	}

	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		name := strings.TrimRight(line, " \t\r")
		if name == "" {
			continue
		}
		if filepath.IsAbs(name) {
			sub("dir").Warn("absolute path ignored in control file", "path", hiddenPath, "entry", name)
			continue
		}
		names = append(names, name)
	}
	return names
}

// --- incremental updates ---

func (d *Dir) onMonitorEvent(event MonitorEvent, path string) {
	switch event {
	case MonitorEventCreated:
		d.EmitFileCreated(path, false)
	case MonitorEventDeleted:
		d.EmitFileDeleted(path, nil)
	case MonitorEventChanged:
		d.EmitFileChanged(path, nil, false)
	case MonitorEventOther:
	}
}

func (d *Dir) isSelf(name string) bool {
	return filepath.IsAbs(name) && filepath.Clean(name) == d.path
}

// EmitFileCreated records a creation notification for name and
// reconciles immediately. Creations are processed even in avoid-changes
// mode. A name already present in the collection degrades to a change.
func (d *Dir) EmitFileCreated(name string, force bool) {
	_ = force
	if d.isSelf(name) {
		// the directory itself reappeared, nothing to merge
		return
	}

	base := filepath.Base(name)
	d.mu.Lock()
	if !lo.Contains(d.createdPending, base) {
		d.createdPending = append(d.createdPending, base)
	}
	d.mu.Unlock()

	d.updateChangedFiles()
	d.updateCreatedFiles()
}

// EmitFileDeleted records a deletion notification. If name resolves to
// the directory's own path the whole collection is cleared and a single
// nil deletion fires. Otherwise the entry goes through the pending
// change set, where Update discovers the path is gone and evicts it.
func (d *Dir) EmitFileDeleted(name string, file *File) {
	if d.isSelf(name) {
		d.mu.Lock()
		d.files = nil
		d.changedPending = nil
		d.createdPending = nil
		d.mu.Unlock()
		d.sigDeleted.emit(nil)
		return
	}

	base := filepath.Base(name)
	d.mu.Lock()
	found := d.findFileLocked(base, file)
	if found == nil {
		d.mu.Unlock()
		return
	}
	if !lo.Contains(d.changedPending, found) {
		d.changedPending = append(d.changedPending, found)
	}
	d.mu.Unlock()

	d.updateChangedFiles()
	d.updateCreatedFiles()
}

// EmitFileChanged records a change notification. With avoid-changes set
// and force false the event is suppressed entirely: no re-stat, no
// signal. A nil-payload change fires when name is the directory itself.
// A change whose re-stat finds the path gone resolves into a deletion.
func (d *Dir) EmitFileChanged(name string, file *File, force bool) {
	if !force && d.avoidChanges.Load() {
		return
	}

	if d.isSelf(name) {
		d.sigChanged.emit(nil)
		return
	}

	base := filepath.Base(name)
	d.mu.Lock()
	found := d.findFileLocked(base, file)
	if found == nil || lo.Contains(d.changedPending, found) {
		d.mu.Unlock()
		return
	}

	if !force {
		prev := found.snapshot()
		if !found.Update() {
			d.removeFileLocked(found)
			d.mu.Unlock()
			d.sigDeleted.emit(found)
			return
		}
		if sameStat(prev, found.snapshot()) {
			// nothing observable changed, drop the event
			d.mu.Unlock()
			return
		}
	}

	d.changedPending = append(d.changedPending, found)
	d.mu.Unlock()

	d.updateChangedFiles()
	d.updateCreatedFiles()
}

// updateChangedFiles reconciles the pending-changed set: entries that
// still exist signal a change, entries whose path is gone are evicted
// and signal a deletion.
func (d *Dir) updateChangedFiles() {
	var changed, deleted []*File

	d.mu.Lock()
	pending := d.changedPending
	d.changedPending = nil
	for _, f := range pending {
		if f.Update() {
			changed = append(changed, f)
		} else if d.removeFileLocked(f) {
			deleted = append(deleted, f)
		}
	}
	d.mu.Unlock()

	for _, f := range changed {
		d.sigChanged.emit(f)
	}
	for _, f := range deleted {
		d.sigDeleted.emit(f)
	}
}

// updateCreatedFiles reconciles the pending-created set: unseen names
// that still exist join the collection and signal creation, names
// already present degrade to a change, vanished names drop silently.
func (d *Dir) updateCreatedFiles() {
	var created, changed, deleted []*File

	d.mu.Lock()
	pending := d.createdPending
	d.createdPending = nil
	for _, name := range pending {
		found := d.findFileLocked(name, nil)
		if found == nil {
			f, err := NewFile(filepath.Join(d.path, name))
			if err != nil {
				continue
			}
			d.files = append(d.files, f)
			created = append(created, f)
		} else if found.Update() {
			changed = append(changed, found)
		} else if d.removeFileLocked(found) {
			deleted = append(deleted, found)
		}
	}
	d.mu.Unlock()

	for _, f := range created {
		d.sigCreated.emit(f)
	}
	for _, f := range changed {
		d.sigChanged.emit(f)
	}
	for _, f := range deleted {
		d.sigDeleted.emit(f)
	}
}

func (d *Dir) findFileLocked(name string, file *File) *File {
	for _, f := range d.files {
		if f == file || f.name == name {
			return f
		}
	}
	return nil
}

func (d *Dir) removeFileLocked(file *File) bool {
	for i, f := range d.files {
		if f == file {
			d.files = append(d.files[:i], d.files[i+1:]...)
			return true
		}
	}
	return false
}

// --- accessors ---

// Files returns a snapshot of the collection in natural name order.
func (d *Dir) Files() []*File {
	d.mu.Lock()
	files := make([]*File, len(d.files))
	copy(files, d.files)
	d.mu.Unlock()

	sort.Slice(files, func(i, j int) bool {
		return natural.Less(files[i].name, files[j].name)
	})
	return files
}

// FindFile locates an entry by filename.
func (d *Dir) FindFile(name string) *File {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findFileLocked(name, nil)
}

func (d *Dir) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.files)
}

// IsFileListed reports whether the initial scan has completed,
// successfully or cancelled.
func (d *Dir) IsFileListed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fileListed
}

func (d *Dir) IsLoadComplete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadComplete
}

func (d *Dir) IsDirectoryEmpty() bool {
	return d.Len() == 0
}

// HiddenCount reports how many entries the .hidden control file
// suppressed during the scan.
func (d *Dir) HiddenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hiddenCount
}

// AvoidChanges reports whether live-update re-stats are suppressed.
func (d *Dir) AvoidChanges() bool {
	return d.avoidChanges.Load()
}

// SetAvoidChanges toggles avoid-changes mode directly.
func (d *Dir) SetAvoidChanges(avoid bool) {
	d.avoidChanges.Store(avoid)
}

// UpdateAvoidChanges re-queries the volume table, picking up mount
// changes under this path.
func (d *Dir) UpdateAvoidChanges() {
	d.avoidChanges.Store(ShouldAvoidLiveChanges(d.path))
}

// MonitorDegraded reports a failed monitor installation: the scan
// results stand, but no live updates will ever arrive.
func (d *Dir) MonitorDegraded() bool {
	return d.monitorDegraded.Load()
}

// AddHidden appends the file's name to the .hidden control file. It
// only affects future scans; the live collection is untouched.
func (d *Dir) AddHidden(file *File) error {
	hiddenPath := filepath.Join(d.path, hiddenControlFile)
	fh, err := os.OpenFile(hiddenPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %q: %w", hiddenPath, err)
	}
	defer fh.Close()
	if _, err := fmt.Fprintln(fh, file.Name()); err != nil {
		return fmt.Errorf("write %q: %w", hiddenPath, err)
	}
	return nil
}

// ReloadMimeType re-resolves every file's mime type and signals a
// change for each, so views refresh icons and descriptions.
func (d *Dir) ReloadMimeType() {
	files := d.Files()
	for _, f := range files {
		f.ReloadMimeType()
	}
	for _, f := range files {
		d.sigChanged.emit(f)
	}
}

// --- thumbnails ---

// LoadThumbnail enqueues an asynchronous thumbnail request, creating
// the thumbnailer helper and starting its task on first use.
func (d *Dir) LoadThumbnail(file *File, big bool) {
	for {
		d.mu.Lock()
		t := d.thumbnailer
		isNew := false
		if t == nil {
			t = newThumbnailer(d)
			d.thumbnailer = t
			isNew = true
		}
		d.mu.Unlock()

		if t.request(file, big) {
			if isNew {
				t.task.Run()
			}
			return
		}

		// helper drained its queue and exited, retire it and retry
		d.mu.Lock()
		if d.thumbnailer == t {
			d.thumbnailer = nil
		}
		d.mu.Unlock()
	}
}

// CancelAllThumbnailRequests abandons the thumbnailer; in-flight
// requests finish without firing signals.
func (d *Dir) CancelAllThumbnailRequests() {
	d.mu.Lock()
	t := d.thumbnailer
	d.thumbnailer = nil
	d.mu.Unlock()
	if t != nil {
		t.task.Cancel()
	}
}

// UnloadThumbnails releases every decoded image of the given size, for
// bulk memory reclaim after thumbnails are toggled off.
func (d *Dir) UnloadThumbnails(big bool) {
	for _, f := range d.Files() {
		if big {
			f.UnloadBigThumbnail()
		} else {
			f.UnloadSmallThumbnail()
		}
	}
	// thousands of decoded images may just have been dropped, push the
	// freed pages back to the OS
	debug.FreeOSMemory()
}

func (d *Dir) onThumbnailerFinished(t *thumbnailer) {
	d.mu.Lock()
	if d.thumbnailer == t {
		d.thumbnailer = nil
	}
	d.mu.Unlock()
}

// emitThumbnailLoaded forwards a completion for files still present.
func (d *Dir) emitThumbnailLoaded(file *File) {
	d.mu.Lock()
	found := d.findFileLocked(file.name, file)
	d.mu.Unlock()
	if found == file {
		d.sigThumbnail.emit(file)
	}
}

// --- teardown ---

func (d *Dir) destroy() {
	d.task.Cancel()
	d.task.Join()

	d.mu.Lock()
	t := d.thumbnailer
	d.thumbnailer = nil
	m := d.monitor
	d.monitor = nil
	d.mu.Unlock()

	if t != nil {
		t.task.Cancel()
	}
	if m != nil {
		m.Remove()
	}
}
