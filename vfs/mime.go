package vfs

import (
	"mime"
	"path/filepath"
	"strings"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	mimeUnknown   = "application/octet-stream"
	mimeDirectory = "inode/directory"
	mimeDesktop   = "application/x-desktop"
)

// MimeType is a shared, immutable mime-type descriptor. Files resolving
// to the same type string share one instance through the process cache.
type MimeType struct {
	typ         string
	description string
}

func (m *MimeType) Type() string        { return m.typ }
func (m *MimeType) Description() string { return m.description }
func (m *MimeType) IsUnknown() bool     { return m.typ == mimeUnknown }

// mimeResolver hands out shared MimeType objects. Idle entries fall out
// of the cache after a while which is the refcount-style sharing the
// model asks for: hot types stay one object, cold ones get rebuilt.
type mimeResolver struct {
	cache *ttlcache.Cache[string, *MimeType]
	gen   atomic.Uint64
}

var (
	mimeMu      gosync.Mutex
	defaultMime *mimeResolver
)

func newMimeResolver() *mimeResolver {
	r := &mimeResolver{
		cache: ttlcache.New[string, *MimeType](
			ttlcache.WithTTL[string, *MimeType](10 * time.Minute),
		),
	}
	go r.cache.Start()
	return r
}

func (r *mimeResolver) stop() {
	r.cache.Stop()
}

func (r *mimeResolver) shared(typ string) *MimeType {
	if item := r.cache.Get(typ); item != nil {
		return item.Value()
	}
	mt := &MimeType{typ: typ, description: mimeDescription(typ)}
	r.cache.Set(typ, mt, ttlcache.DefaultTTL)
	return mt
}

// reload empties the cache and bumps the generation counter; files
// notice the bump and re-resolve lazily.
func (r *mimeResolver) reload() {
	r.cache.DeleteAll()
	r.gen.Add(1)
}

func mimeGeneration() uint64 {
	mimeMu.Lock()
	r := defaultMime
	mimeMu.Unlock()
	if r == nil {
		return 0
	}
	return r.gen.Load()
}

// ReloadMimeDatabase drops every cached mime-type object and pushes the
// reload to every open directory. Invoke when the system mime database
// changed.
func ReloadMimeDatabase() {
	mimeMu.Lock()
	r := defaultMime
	mimeMu.Unlock()
	if r != nil {
		r.reload()
	}
	for _, d := range openDirs() {
		d.ReloadMimeType()
	}
}

// resolveMimeType maps a filename and type classification onto a shared
// mime-type object. Extension based: the byte-sniffing database is an
// external collaborator, this only covers what a listing needs.
func resolveMimeType(name string, ftype FileType, desktopEntry bool) *MimeType {
	mimeMu.Lock()
	r := defaultMime
	mimeMu.Unlock()
	if r == nil {
		// resolver not initialized, hand out an unshared object
		typ := mimeTypeByName(name, ftype, desktopEntry)
		return &MimeType{typ: typ, description: mimeDescription(typ)}
	}
	return r.shared(mimeTypeByName(name, ftype, desktopEntry))
}

func mimeTypeByName(name string, ftype FileType, desktopEntry bool) string {
	if ftype == FileTypeDirectory {
		return mimeDirectory
	}
	if desktopEntry {
		return mimeDesktop
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return mimeUnknown
	}

	if typ := mime.TypeByExtension(ext); typ != "" {
		// strip parameters like "; charset=utf-8"
		if i := strings.IndexByte(typ, ';'); i >= 0 {
			typ = strings.TrimSpace(typ[:i])
		}
		return typ
	}
	return mimeTypeByExtension(ext)
}

// mimeTypeByExtension covers common extensions missing from the system
// table.
func mimeTypeByExtension(ext string) string {
	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".flv":
		return "video/x-flv"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".wav":
		return "audio/x-wav"
	case ".m4a":
		return "audio/mp4"
	case ".md":
		return "text/markdown"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".toml":
		return "application/toml"
	case ".go", ".py", ".rs", ".c", ".h", ".cpp", ".sh", ".rb", ".php", ".sql":
		return "text/plain"
	case ".7z":
		return "application/x-7z-compressed"
	case ".rar":
		return "application/vnd.rar"
	case ".deb":
		return "application/vnd.debian.binary-package"
	case ".iso":
		return "application/x-iso9660-image"
	default:
		return mimeUnknown
	}
}

func mimeDescription(typ string) string {
	switch typ {
	case mimeDirectory:
		return "folder"
	case mimeDesktop:
		return "desktop entry"
	case mimeUnknown:
		return "unknown"
	}
	major, minor, ok := strings.Cut(typ, "/")
	if !ok {
		return typ
	}
	minor = strings.TrimPrefix(minor, "x-")
	minor = strings.TrimPrefix(minor, "vnd.")
	switch major {
	case "text":
		return minor + " document"
	case "image", "video", "audio":
		return minor + " " + major
	default:
		return minor + " file"
	}
}
