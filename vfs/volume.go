package vfs

import (
	"path/filepath"
	"strings"
	gosync "sync"

	"github.com/shirou/gopsutil/v4/disk"
)

// partitionsFn is the mount-table source, replaceable in tests.
var partitionsFn = func() ([]disk.PartitionStat, error) {
	return disk.Partitions(true)
}

// netFSTypes are filesystems where a re-stat on every change event is
// expensive enough to thrash the UI; directories on them default to
// avoid-changes mode.
var netFSTypes = map[string]struct{}{
	"nfs":        {},
	"nfs4":       {},
	"cifs":       {},
	"smbfs":      {},
	"smb3":       {},
	"sshfs":      {},
	"fuse.sshfs": {},
	"ftpfs":      {},
	"curlftpfs":  {},
	"davfs":      {},
	"davfs2":     {},
	"afs":        {},
	"9p":         {},
}

type mountPoint struct {
	point  string
	fstype string
}

// volumeTable is a snapshot of the mount table used to answer whether a
// path lives on a volume that should avoid live-update churn.
type volumeTable struct {
	mu     gosync.Mutex
	mounts []mountPoint
}

func newVolumeTable() *volumeTable {
	t := &volumeTable{}
	t.refresh()
	return t
}

// refresh re-reads the mount table. Call after mount/unmount activity.
func (t *volumeTable) refresh() {
	parts, err := partitionsFn()
	if err != nil {
		sub("volume").Warn("mount table read failed", "err", err)
		return
	}
	mounts := make([]mountPoint, 0, len(parts))
	for _, p := range parts {
		mounts = append(mounts, mountPoint{point: filepath.Clean(p.Mountpoint), fstype: p.Fstype})
	}
	t.mu.Lock()
	t.mounts = mounts
	t.mu.Unlock()
}

// shouldAvoidLiveChanges matches path against the longest mountpoint
// prefix and reports whether that mount's filesystem is in the
// avoid-changes set.
func (t *volumeTable) shouldAvoidLiveChanges(path string) bool {
	path = filepath.Clean(path)

	t.mu.Lock()
	defer t.mu.Unlock()

	best := ""
	fstype := ""
	for _, m := range t.mounts {
		if !pathHasPrefix(path, m.point) {
			continue
		}
		if len(m.point) > len(best) {
			best = m.point
			fstype = m.fstype
		}
	}
	if best == "" {
		return false
	}
	_, avoid := netFSTypes[strings.ToLower(fstype)]
	return avoid
}

func pathHasPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator))
}

// ShouldAvoidLiveChanges reports whether path sits on a volume where
// live-update re-stats should be suppressed (network mounts).
func ShouldAvoidLiveChanges(path string) bool {
	volMu.Lock()
	t := defaultVolumes
	volMu.Unlock()
	if t == nil {
		return false
	}
	return t.shouldAvoidLiveChanges(path)
}

// RefreshVolumes re-reads the mount table snapshot.
func RefreshVolumes() {
	volMu.Lock()
	t := defaultVolumes
	volMu.Unlock()
	if t != nil {
		t.refresh()
	}
}

var (
	volMu          gosync.Mutex
	defaultVolumes *volumeTable
)
