package vfs

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mholt/archives"
	"golang.org/x/sys/unix"
)

// FileType is the coarse classification derived from stat mode bits.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeDirectory
	FileTypeRegular
	FileTypeSymlink
	FileTypeSocket
	FileTypeFifo
	FileTypeBlockDevice
	FileTypeCharDevice
	FileTypeOther
)

func (t FileType) String() string {
	switch t {
	case FileTypeDirectory:
		return "directory"
	case FileTypeRegular:
		return "regular"
	case FileTypeSymlink:
		return "symlink"
	case FileTypeSocket:
		return "socket"
	case FileTypeFifo:
		return "fifo"
	case FileTypeBlockDevice:
		return "block"
	case FileTypeCharDevice:
		return "char"
	case FileTypeOther:
		return "other"
	default:
		return "unknown"
	}
}

const timeFormat = "2006-01-02 15:04:05"

// statInfo is one cached statx snapshot.
type statInfo struct {
	size     int64
	blocks   int64
	blksize  int64
	nlink    uint32
	mode     uint16
	uid      uint32
	gid      uint32
	ino      uint64
	atime    time.Time
	mtime    time.Time
	ctime    time.Time
	btime    time.Time
	hasBtime bool
	attrs    uint64
	attrMask uint64
}

func lstatx(path string) (statInfo, error) {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path,
		unix.AT_SYMLINK_NOFOLLOW|unix.AT_STATX_SYNC_AS_STAT,
		unix.STATX_BASIC_STATS|unix.STATX_BTIME, &stx)
	if err != nil {
		return statInfo{}, err
	}

	si := statInfo{
		size:     int64(stx.Size),
		blocks:   int64(stx.Blocks),
		blksize:  int64(stx.Blksize),
		nlink:    stx.Nlink,
		mode:     stx.Mode,
		uid:      stx.Uid,
		gid:      stx.Gid,
		ino:      stx.Ino,
		atime:    statxTime(stx.Atime),
		mtime:    statxTime(stx.Mtime),
		ctime:    statxTime(stx.Ctime),
		attrs:    stx.Attributes,
		attrMask: stx.Attributes_mask,
	}
	if stx.Mask&unix.STATX_BTIME != 0 {
		si.btime = statxTime(stx.Btime)
		si.hasBtime = true
	}
	return si, nil
}

func statxTime(ts unix.StatxTimestamp) time.Time {
	return time.Unix(ts.Sec, int64(ts.Nsec))
}

// sameStat reports whether two snapshots describe an unchanged entry.
func sameStat(a, b statInfo) bool {
	return a.size == b.size &&
		a.mode == b.mode &&
		a.uid == b.uid &&
		a.gid == b.gid &&
		a.mtime.Equal(b.mtime) &&
		a.ctime.Equal(b.ctime)
}

// File is a snapshot of one filesystem entry's metadata, owned by the
// directory that discovered it. Derived fields are only as fresh as the
// last Update call.
type File struct {
	path string // real path on the filesystem
	name string // filename relative to the owning directory

	mu    gosync.Mutex
	stat  statInfo
	ftype FileType

	displaySize       string
	displaySizeBytes  string
	displaySizeOnDisk string
	displayOwner      string
	displayGroup      string
	displayPerm       string
	displayATime      string
	displayBTime      string
	displayCTime      string
	displayMTime      string

	mime    *MimeType
	mimeGen uint64

	hidden       bool
	desktopEntry bool

	smallThumb image.Image
	bigThumb   image.Image
}

// NewFile stats path and builds a fresh snapshot. Entries that vanished
// between discovery and stat surface as an error, callers skip them.
func NewFile(path string) (*File, error) {
	name := filepath.Base(path)
	f := &File{
		path:         path,
		name:         name,
		hidden:       strings.HasPrefix(name, "."),
		desktopEntry: strings.HasSuffix(name, ".desktop"),
	}
	si, err := lstatx(path)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	f.applyStat(si)
	return f, nil
}

// Update re-stats the underlying path and refreshes every derived field.
// Returns false when the path no longer exists; the owning directory is
// responsible for evicting the entity, Update never touches collections.
func (f *File) Update() bool {
	si, err := lstatx(f.path)
	if err != nil {
		return false
	}
	f.applyStat(si)
	return true
}

func (f *File) applyStat(si statInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stat = si
	f.ftype = classifyMode(si.mode)

	f.displaySize = humanize.IBytes(uint64(si.size))
	f.displaySizeBytes = humanize.Comma(si.size) + " B"
	f.displaySizeOnDisk = humanize.IBytes(uint64(si.blocks) * 512)
	f.displayPerm = permString(si.mode)
	f.displayOwner = lookupOwner(si.uid)
	f.displayGroup = lookupGroup(si.gid)
	f.displayATime = si.atime.Format(timeFormat)
	f.displayCTime = si.ctime.Format(timeFormat)
	f.displayMTime = si.mtime.Format(timeFormat)
	if si.hasBtime {
		f.displayBTime = si.btime.Format(timeFormat)
	} else {
		f.displayBTime = ""
	}
}

func (f *File) snapshot() statInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stat
}

func (f *File) Name() string { return f.name }
func (f *File) Path() string { return f.path }

// URI returns the file:// URI of the real path.
func (f *File) URI() string {
	u := url.URL{Scheme: "file", Path: f.path}
	return u.String()
}

func (f *File) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stat.size
}

func (f *File) SizeOnDisk() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stat.blocks * 512
}

func (f *File) Blocks() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stat.blocks
}

func (f *File) Inode() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stat.ino
}

func (f *File) ATime() time.Time { return f.timeField(func(s statInfo) time.Time { return s.atime }) }
func (f *File) BTime() time.Time { return f.timeField(func(s statInfo) time.Time { return s.btime }) }
func (f *File) CTime() time.Time { return f.timeField(func(s statInfo) time.Time { return s.ctime }) }
func (f *File) MTime() time.Time { return f.timeField(func(s statInfo) time.Time { return s.mtime }) }

func (f *File) timeField(get func(statInfo) time.Time) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return get(f.stat)
}

func (f *File) DisplaySize() string        { return f.stringField(&f.displaySize) }
func (f *File) DisplaySizeInBytes() string { return f.stringField(&f.displaySizeBytes) }
func (f *File) DisplaySizeOnDisk() string  { return f.stringField(&f.displaySizeOnDisk) }
func (f *File) DisplayOwner() string       { return f.stringField(&f.displayOwner) }
func (f *File) DisplayGroup() string       { return f.stringField(&f.displayGroup) }
func (f *File) DisplayPermissions() string { return f.stringField(&f.displayPerm) }
func (f *File) DisplayATime() string       { return f.stringField(&f.displayATime) }
func (f *File) DisplayBTime() string       { return f.stringField(&f.displayBTime) }
func (f *File) DisplayCTime() string       { return f.stringField(&f.displayCTime) }
func (f *File) DisplayMTime() string       { return f.stringField(&f.displayMTime) }

func (f *File) stringField(p *string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *p
}

func (f *File) Type() FileType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ftype
}

func (f *File) IsDirectory() bool     { return f.Type() == FileTypeDirectory }
func (f *File) IsRegularFile() bool   { return f.Type() == FileTypeRegular }
func (f *File) IsSymlink() bool       { return f.Type() == FileTypeSymlink }
func (f *File) IsSocket() bool        { return f.Type() == FileTypeSocket }
func (f *File) IsFifo() bool          { return f.Type() == FileTypeFifo }
func (f *File) IsBlockDevice() bool   { return f.Type() == FileTypeBlockDevice }
func (f *File) IsCharDevice() bool    { return f.Type() == FileTypeCharDevice }
func (f *File) IsOther() bool         { return f.Type() == FileTypeOther }
func (f *File) IsHidden() bool        { return f.hidden }
func (f *File) IsDesktopEntry() bool  { return f.desktopEntry }

func (f *File) IsExecutable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ftype == FileTypeRegular && f.stat.mode&0111 != 0
}

func (f *File) IsImage() bool { return strings.HasPrefix(f.MimeType().Type(), "image/") }
func (f *File) IsVideo() bool { return strings.HasPrefix(f.MimeType().Type(), "video/") }
func (f *File) IsAudio() bool { return strings.HasPrefix(f.MimeType().Type(), "audio/") }

func (f *File) IsText() bool {
	mt := f.MimeType().Type()
	return strings.HasPrefix(mt, "text/") ||
		strings.HasSuffix(mt, "+xml") ||
		strings.HasSuffix(mt, "/json") ||
		strings.HasSuffix(mt, "+json") ||
		mt == "application/javascript"
}

// IsArchive reports whether the filename matches a known archive or
// compression format.
func (f *File) IsArchive() bool {
	if f.IsDirectory() {
		return false
	}
	_, _, err := archives.Identify(context.Background(), f.name, nil)
	return err == nil
}

// filesystem attribute flags, false when the filesystem does not
// report the attribute

func (f *File) IsCompressed() bool { return f.attrFlag(unix.STATX_ATTR_COMPRESSED) }
func (f *File) IsImmutable() bool  { return f.attrFlag(unix.STATX_ATTR_IMMUTABLE) }
func (f *File) IsAppendOnly() bool { return f.attrFlag(unix.STATX_ATTR_APPEND) }
func (f *File) IsNoDump() bool     { return f.attrFlag(unix.STATX_ATTR_NODUMP) }
func (f *File) IsEncrypted() bool  { return f.attrFlag(unix.STATX_ATTR_ENCRYPTED) }
func (f *File) IsVerity() bool     { return f.attrFlag(unix.STATX_ATTR_VERITY) }
func (f *File) IsDax() bool        { return f.attrFlag(unix.STATX_ATTR_DAX) }

func (f *File) attrFlag(flag uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stat.attrMask&flag != 0 && f.stat.attrs&flag != 0
}

// MimeType resolves the mime type lazily. The returned object is shared
// across all files resolving to the same type.
func (f *File) MimeType() *MimeType {
	f.mu.Lock()
	defer f.mu.Unlock()
	gen := mimeGeneration()
	if f.mime == nil || f.mimeGen != gen {
		f.mime = resolveMimeType(f.name, f.ftype, f.desktopEntry)
		f.mimeGen = gen
	}
	return f.mime
}

// ReloadMimeType forces re-resolution, used after the mime database
// changed.
func (f *File) ReloadMimeType() {
	f.mu.Lock()
	f.mime = nil
	f.mu.Unlock()
	f.MimeType()
}

// --- thumbnails ---

// IsThumbnailLoaded reports whether a decoded image is present for the
// requested size.
func (f *File) IsThumbnailLoaded(big bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if big {
		return f.bigThumb != nil
	}
	return f.smallThumb != nil
}

func (f *File) SmallThumbnail() image.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.smallThumb
}

func (f *File) BigThumbnail() image.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bigThumb
}

func (f *File) setThumbnail(img image.Image, big bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if big {
		f.bigThumb = img
	} else {
		f.smallThumb = img
	}
}

// UnloadSmallThumbnail releases the decoded small image.
func (f *File) UnloadSmallThumbnail() {
	f.setThumbnail(nil, false)
}

// UnloadBigThumbnail releases the decoded big image.
func (f *File) UnloadBigThumbnail() {
	f.setThumbnail(nil, true)
}

// --- helpers ---

func classifyMode(mode uint16) FileType {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return FileTypeDirectory
	case unix.S_IFREG:
		return FileTypeRegular
	case unix.S_IFLNK:
		return FileTypeSymlink
	case unix.S_IFSOCK:
		return FileTypeSocket
	case unix.S_IFIFO:
		return FileTypeFifo
	case unix.S_IFBLK:
		return FileTypeBlockDevice
	case unix.S_IFCHR:
		return FileTypeCharDevice
	default:
		return FileTypeOther
	}
}

func permString(mode uint16) string {
	var b [10]byte
	switch classifyMode(mode) {
	case FileTypeDirectory:
		b[0] = 'd'
	case FileTypeSymlink:
		b[0] = 'l'
	case FileTypeSocket:
		b[0] = 's'
	case FileTypeFifo:
		b[0] = 'p'
	case FileTypeBlockDevice:
		b[0] = 'b'
	case FileTypeCharDevice:
		b[0] = 'c'
	default:
		b[0] = '-'
	}
	const rwx = "rwxrwxrwx"
	for i := 0; i < 9; i++ {
		if mode&(1<<uint(8-i)) != 0 {
			b[i+1] = rwx[i]
		} else {
			b[i+1] = '-'
		}
	}
	return string(b[:])
}

var (
	ownerCache gosync.Map // uid → username
	groupCache gosync.Map // gid → group name
)

func lookupOwner(uid uint32) string {
	if v, ok := ownerCache.Load(uid); ok {
		return v.(string)
	}
	name := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(name); err == nil {
		name = u.Username
	}
	ownerCache.Store(uid, name)
	return name
}

func lookupGroup(gid uint32) string {
	if v, ok := groupCache.Load(gid); ok {
		return v.(string)
	}
	name := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(name); err == nil {
		name = g.Name
	}
	groupCache.Store(gid, name)
	return name
}
