package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"
)

// dirCache guarantees a single live Dir instance per canonical path
// while at least one owner holds a reference. Entries leave the
// registry exactly when the last reference is released; a later lookup
// constructs a fresh instance with a fresh scan.
type dirCache struct {
	mu   gosync.Mutex
	dirs map[string]*Dir
}

func newDirCache() *dirCache {
	return &dirCache{dirs: make(map[string]*Dir)}
}

// canonicalPath resolves the cache key: absolute, cleaned, symlinks
// resolved so two routes to the same directory share one instance.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return filepath.Clean(abs), nil
}

// getOrCreate returns the live instance for path with its reference
// count bumped, or constructs one. Construction registers the instance
// before the scan starts, so a concurrent lookup can never trigger a
// second scan.
func (c *dirCache) getOrCreate(path string) (*Dir, error) {
	canonical, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if d, ok := c.dirs[canonical]; ok {
		d.refs++
		c.mu.Unlock()
		return d, nil
	}

	fi, err := os.Stat(canonical)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("stat %q: %w", canonical, err)
	}
	if !fi.IsDir() {
		c.mu.Unlock()
		return nil, fmt.Errorf("%q is not a directory", canonical)
	}

	d := newDir(canonical, c)
	d.refs = 1
	c.dirs[canonical] = d
	c.mu.Unlock()

	d.task.Run()
	return d, nil
}

func (c *dirCache) release(d *Dir) {
	c.mu.Lock()
	d.refs--
	if d.refs > 0 {
		c.mu.Unlock()
		return
	}
	delete(c.dirs, d.path)
	c.mu.Unlock()

	d.destroy()
}

// snapshot returns the currently registered directories.
func (c *dirCache) snapshot() []*Dir {
	c.mu.Lock()
	defer c.mu.Unlock()
	dirs := make([]*Dir, 0, len(c.dirs))
	for _, d := range c.dirs {
		dirs = append(dirs, d)
	}
	return dirs
}

func (c *dirCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirs)
}

// shutdown tears down every registered directory regardless of
// outstanding references. Process-exit path only.
func (c *dirCache) shutdown() {
	c.mu.Lock()
	dirs := make([]*Dir, 0, len(c.dirs))
	for _, d := range c.dirs {
		dirs = append(dirs, d)
	}
	c.dirs = make(map[string]*Dir)
	c.mu.Unlock()

	for _, d := range dirs {
		d.destroy()
	}
}
