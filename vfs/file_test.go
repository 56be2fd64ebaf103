package vfs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFile_Metadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	f, err := NewFile(path)
	require.NoError(t, err)

	assert.Equal(t, "hello.txt", f.Name())
	assert.Equal(t, path, f.Path())
	assert.Equal(t, int64(5), f.Size())
	assert.True(t, f.IsRegularFile())
	assert.False(t, f.IsDirectory())
	assert.False(t, f.IsHidden())
	assert.False(t, f.IsDesktopEntry())
	assert.False(t, f.IsExecutable())

	assert.Equal(t, "5 B", f.DisplaySize())
	assert.Equal(t, "5 B", f.DisplaySizeInBytes())
	assert.NotEmpty(t, f.DisplaySizeOnDisk())
	assert.NotEmpty(t, f.DisplayOwner())
	assert.NotEmpty(t, f.DisplayGroup())
	assert.NotEmpty(t, f.DisplayMTime())
	assert.Equal(t, "-rw-r--r--", f.DisplayPermissions())
	assert.False(t, f.MTime().IsZero())

	assert.True(t, strings.HasPrefix(f.URI(), "file:///"))
}

func TestNewFile_Vanished(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestFile_Classification(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "folder"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.txt"), []byte("x"), 0644))
	require.NoError(t, os.Symlink(filepath.Join(dir, "plain.txt"), filepath.Join(dir, "link")))

	folder, err := NewFile(filepath.Join(dir, "folder"))
	require.NoError(t, err)
	assert.Equal(t, FileTypeDirectory, folder.Type())
	assert.Equal(t, mimeDirectory, folder.MimeType().Type())
	assert.True(t, strings.HasPrefix(folder.DisplayPermissions(), "d"))

	plain, err := NewFile(filepath.Join(dir, "plain.txt"))
	require.NoError(t, err)
	assert.Equal(t, FileTypeRegular, plain.Type())

	link, err := NewFile(filepath.Join(dir, "link"))
	require.NoError(t, err)
	assert.Equal(t, FileTypeSymlink, link.Type())
	assert.True(t, link.IsSymlink())
	assert.True(t, strings.HasPrefix(link.DisplayPermissions(), "l"))
}

func TestFile_HiddenAndDesktopEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".dotfile"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.desktop"), []byte("[Desktop Entry]"), 0644))

	dot, err := NewFile(filepath.Join(dir, ".dotfile"))
	require.NoError(t, err)
	assert.True(t, dot.IsHidden())

	app, err := NewFile(filepath.Join(dir, "app.desktop"))
	require.NoError(t, err)
	assert.True(t, app.IsDesktopEntry())
	assert.Equal(t, mimeDesktop, app.MimeType().Type())
}

func TestFile_Executable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))

	f, err := NewFile(path)
	require.NoError(t, err)
	assert.True(t, f.IsExecutable())
}

func TestFile_ContentClasses(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name  string
		check func(*File) bool
	}{
		{"notes.txt", (*File).IsText},
		{"photo.png", (*File).IsImage},
		{"clip.mp4", (*File).IsVideo},
		{"song.flac", (*File).IsAudio},
		{"bundle.tar.gz", (*File).IsArchive},
		{"archive.zip", (*File).IsArchive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
			f, err := NewFile(path)
			require.NoError(t, err)
			assert.True(t, tt.check(f))
		})
	}

	plain := filepath.Join(dir, "notes.txt")
	f, err := NewFile(plain)
	require.NoError(t, err)
	assert.False(t, f.IsArchive())
	assert.False(t, f.IsImage())
}

func TestFile_UpdateRefreshes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grow.txt")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0644))

	f, err := NewFile(path)
	require.NoError(t, err)
	require.Equal(t, int64(5), f.Size())

	require.NoError(t, os.WriteFile(path, []byte("1234567890"), 0644))
	// WriteFile's perm only applies at creation, the mode change needs Chmod
	require.NoError(t, os.Chmod(path, 0600))
	require.True(t, f.Update())

	assert.Equal(t, int64(10), f.Size())
	assert.Equal(t, "-rw-------", f.DisplayPermissions())
}

func TestFile_UpdateDetectsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	f, err := NewFile(path)
	require.NoError(t, err)

	sizeBefore := f.Size()
	require.NoError(t, os.Remove(path))

	assert.False(t, f.Update())
	assert.Equal(t, sizeBefore, f.Size(), "stale snapshot is kept, eviction is the owner's job")
}

func TestFile_AttributeFlagsDegradeToFalse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	f, err := NewFile(path)
	require.NoError(t, err)

	// ordinary files on ordinary filesystems report none of these
	assert.False(t, f.IsImmutable())
	assert.False(t, f.IsAppendOnly())
	assert.False(t, f.IsEncrypted())
	assert.False(t, f.IsVerity())
	assert.False(t, f.IsDax())
}

func TestFile_ThumbnailSlots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	f, err := NewFile(path)
	require.NoError(t, err)

	assert.False(t, f.IsThumbnailLoaded(false))
	assert.False(t, f.IsThumbnailLoaded(true))
	assert.Nil(t, f.SmallThumbnail())

	f.UnloadSmallThumbnail()
	f.UnloadBigThumbnail()
	assert.False(t, f.IsThumbnailLoaded(false))
}

func TestSameStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	a, err := lstatx(path)
	require.NoError(t, err)
	b, err := lstatx(path)
	require.NoError(t, err)
	assert.True(t, sameStat(a, b))

	require.NoError(t, os.WriteFile(path, []byte("different length"), 0644))
	c, err := lstatx(path)
	require.NoError(t, err)
	assert.False(t, sameStat(a, c))
}

func TestPermString(t *testing.T) {
	assert.Equal(t, "-rw-r--r--", permString(0o100644))
	assert.Equal(t, "-rwxr-xr-x", permString(0o100755))
	assert.Equal(t, "drwx------", permString(0o040700))
}
