package vfs

import (
	"image"
	"image/color"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	require.NoError(t, imaging.Save(img, path))
}

func TestThumbnailer_LoadsSmallAndBig(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "photo.png"), 640, 480)

	d := newListedDir(t, dir)
	f := d.FindFile("photo.png")
	require.NotNil(t, f)
	require.True(t, f.IsImage())

	var loads atomic.Int32
	d.OnThumbnailLoaded(func(got *File) {
		assert.Same(t, f, got)
		loads.Add(1)
	})

	d.LoadThumbnail(f, false)
	waitFor(t, func() bool { return f.IsThumbnailLoaded(false) }, "small thumbnail")

	small := f.SmallThumbnail()
	require.NotNil(t, small)
	bounds := small.Bounds()
	assert.LessOrEqual(t, bounds.Dx(), thumbnailSizeSmall)
	assert.LessOrEqual(t, bounds.Dy(), thumbnailSizeSmall)

	d.LoadThumbnail(f, true)
	waitFor(t, func() bool { return f.IsThumbnailLoaded(true) }, "big thumbnail")

	big := f.BigThumbnail()
	require.NotNil(t, big)
	assert.LessOrEqual(t, big.Bounds().Dx(), thumbnailSizeBig)
	assert.Greater(t, big.Bounds().Dx(), bounds.Dx())

	waitFor(t, func() bool { return loads.Load() == 2 }, "completion signals")
}

func TestThumbnailer_SkipsNonImages(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "notes.txt")

	d := newListedDir(t, dir)
	f := d.FindFile("notes.txt")
	require.NotNil(t, f)

	var loads atomic.Int32
	d.OnThumbnailLoaded(func(*File) { loads.Add(1) })

	d.LoadThumbnail(f, false)
	settle()

	assert.False(t, f.IsThumbnailLoaded(false))
	assert.Equal(t, int32(0), loads.Load())
}

func TestThumbnailer_UnloadReclaims(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "a.png"), 320, 240)
	writeTestImage(t, filepath.Join(dir, "b.png"), 320, 240)

	d := newListedDir(t, dir)
	for _, name := range []string{"a.png", "b.png"} {
		f := d.FindFile(name)
		require.NotNil(t, f)
		d.LoadThumbnail(f, false)
	}
	waitFor(t, func() bool {
		return d.FindFile("a.png").IsThumbnailLoaded(false) &&
			d.FindFile("b.png").IsThumbnailLoaded(false)
	}, "thumbnails loaded")

	d.UnloadThumbnails(false)
	assert.False(t, d.FindFile("a.png").IsThumbnailLoaded(false))
	assert.False(t, d.FindFile("b.png").IsThumbnailLoaded(false))
}

func TestThumbnailer_CancelAbandonsQuietly(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "a.png"), 320, 240)

	d := newListedDir(t, dir)
	f := d.FindFile("a.png")
	require.NotNil(t, f)

	d.LoadThumbnail(f, false)
	d.CancelAllThumbnailRequests()

	// a later request still works with a fresh helper
	d.LoadThumbnail(f, true)
	waitFor(t, func() bool { return f.IsThumbnailLoaded(true) }, "post-cancel request")
}
