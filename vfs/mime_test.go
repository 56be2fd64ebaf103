package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMimeTypeByName(t *testing.T) {
	tests := []struct {
		name     string
		ftype    FileType
		expected string
	}{
		{"folder", FileTypeDirectory, mimeDirectory},
		{"readme.txt", FileTypeRegular, "text/plain"},
		{"page.html", FileTypeRegular, "text/html"},
		{"photo.png", FileTypeRegular, "image/png"},
		{"clip.mp4", FileTypeRegular, "video/mp4"},
		{"song.flac", FileTypeRegular, "audio/flac"},
		{"notes.md", FileTypeRegular, "text/markdown"},
		{"noext", FileTypeRegular, mimeUnknown},
		{"data.xyzq", FileTypeRegular, mimeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, mimeTypeByName(tt.name, tt.ftype, false))
		})
	}

	assert.Equal(t, mimeDesktop, mimeTypeByName("app.desktop", FileTypeRegular, true))
}

func TestMimeResolver_SharesInstances(t *testing.T) {
	a := resolveMimeType("one.txt", FileTypeRegular, false)
	b := resolveMimeType("two.txt", FileTypeRegular, false)

	assert.Same(t, a, b, "same type string, one shared object")
	assert.Equal(t, "text/plain", a.Type())
	assert.NotEmpty(t, a.Description())
	assert.False(t, a.IsUnknown())

	u := resolveMimeType("mystery.xyzq", FileTypeRegular, false)
	assert.True(t, u.IsUnknown())
}

func TestMimeResolver_Reload(t *testing.T) {
	before := resolveMimeType("a.txt", FileTypeRegular, false)
	gen := mimeGeneration()

	ReloadMimeDatabase()

	assert.Equal(t, gen+1, mimeGeneration())
	after := resolveMimeType("a.txt", FileTypeRegular, false)
	assert.NotSame(t, before, after, "cache was emptied")
	assert.Equal(t, before.Type(), after.Type())
}

func TestMimeDescription(t *testing.T) {
	assert.Equal(t, "folder", mimeDescription(mimeDirectory))
	assert.Equal(t, "plain document", mimeDescription("text/plain"))
	assert.Equal(t, "png image", mimeDescription("image/png"))
	assert.Equal(t, "unknown", mimeDescription(mimeUnknown))
}
