package vfs

import (
	"fmt"
	gosync "sync"
)

// Package-scoped services: the monitor hub, the directory registry,
// the mime resolver and the volume table. Explicit init/teardown keeps
// them constructible repeatedly in a test harness.
var (
	initMu      gosync.Mutex
	defaultHub  *monitorHub
	defaultDirs *dirCache
)

// Init brings up the vfs services. It fails when the platform watch
// subsystem cannot be initialized; without any monitor capability no
// directory could ever detect external changes, so callers should treat
// that as fatal at startup. Idempotent.
func Init() error {
	initMu.Lock()
	defer initMu.Unlock()
	if defaultHub != nil {
		return nil
	}

	hub, err := newMonitorHub()
	if err != nil {
		return fmt.Errorf("init vfs: %w", err)
	}
	defaultHub = hub
	defaultDirs = newDirCache()

	mimeMu.Lock()
	defaultMime = newMimeResolver()
	mimeMu.Unlock()

	volMu.Lock()
	defaultVolumes = newVolumeTable()
	volMu.Unlock()

	return nil
}

// Shutdown tears everything down: registered directories, the watch
// subsystem and the mime cache. Init may be called again afterwards.
func Shutdown() {
	initMu.Lock()
	defer initMu.Unlock()

	if defaultDirs != nil {
		defaultDirs.shutdown()
		defaultDirs = nil
	}
	if defaultHub != nil {
		defaultHub.close()
		defaultHub = nil
	}

	mimeMu.Lock()
	if defaultMime != nil {
		defaultMime.stop()
		defaultMime = nil
	}
	mimeMu.Unlock()

	volMu.Lock()
	defaultVolumes = nil
	volMu.Unlock()
}

// GetOrCreate returns the shared directory instance for path, starting
// a background scan if none is live. The caller owns one reference and
// must Release it.
func GetOrCreate(path string) (*Dir, error) {
	initMu.Lock()
	dirs := defaultDirs
	initMu.Unlock()
	if dirs == nil {
		return nil, fmt.Errorf("vfs not initialized")
	}
	return dirs.getOrCreate(path)
}

// OpenDirCount reports how many directory instances are currently
// registered.
func OpenDirCount() int {
	initMu.Lock()
	dirs := defaultDirs
	initMu.Unlock()
	if dirs == nil {
		return 0
	}
	return dirs.len()
}

// AddMonitor registers a callback for change events on path.
func AddMonitor(path string, cb MonitorCallback) (*Monitor, error) {
	return addDefaultMonitor(path, cb)
}

func addDefaultMonitor(path string, cb MonitorCallback) (*Monitor, error) {
	initMu.Lock()
	hub := defaultHub
	initMu.Unlock()
	if hub == nil {
		return nil, fmt.Errorf("vfs not initialized")
	}
	return hub.addMonitor(path, cb)
}

// openDirs returns the live directory instances, empty when the vfs is
// not initialized.
func openDirs() []*Dir {
	initMu.Lock()
	dirs := defaultDirs
	initMu.Unlock()
	if dirs == nil {
		return nil
	}
	return dirs.snapshot()
}
