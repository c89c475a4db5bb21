package murmur

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func mediaContent(header []byte, size int) []byte {
	content := make([]byte, size)
	copy(content, header)
	return content
}

var jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 0x4a, 0x46, 0x49, 0x46, 0x00, 0x01}
var pngHeader = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d}
var gifHeader = []byte("GIF89a______")
var webpHeader = []byte("RIFF\x00\x00\x00\x00WEBP")
var mp4Header = []byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}
var webmHeader = []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

func TestSniffMediaFormat(t *testing.T) {
	format, ok := SniffMediaFormat(jpegHeader)
	assert.Equal(t, true, ok)
	assert.Equal(t, MediaFormatJpeg, format)

	format, ok = SniffMediaFormat(pngHeader)
	assert.Equal(t, true, ok)
	assert.Equal(t, MediaFormatPng, format)

	format, ok = SniffMediaFormat(gifHeader)
	assert.Equal(t, true, ok)
	assert.Equal(t, MediaFormatGif, format)

	format, ok = SniffMediaFormat(webpHeader)
	assert.Equal(t, true, ok)
	assert.Equal(t, MediaFormatWebp, format)

	format, ok = SniffMediaFormat(mp4Header)
	assert.Equal(t, true, ok)
	assert.Equal(t, MediaFormatMp4, format)

	format, ok = SniffMediaFormat(webmHeader)
	assert.Equal(t, true, ok)
	assert.Equal(t, MediaFormatWebm, format)

	// RIFF without the WEBP fourcc is not an image
	_, ok = SniffMediaFormat([]byte("RIFF\x00\x00\x00\x00WAVE"))
	assert.Equal(t, false, ok)

	// too short to sniff
	_, ok = SniffMediaFormat([]byte{0xff, 0xd8, 0xff})
	assert.Equal(t, false, ok)

	_, ok = SniffMediaFormat(mediaContent([]byte("plain text"), 64))
	assert.Equal(t, false, ok)
}

func TestValidateMediaFormatMismatch(t *testing.T) {
	// JPEG content behind a .png name is rejected, even though both are images
	_, err := ValidateMedia("photo.png", mediaContent(jpegHeader, 1024))
	assert.NotEqual(t, nil, err)

	_, err = ValidateMedia("photo.jpg", mediaContent(jpegHeader, 1024))
	assert.Equal(t, nil, err)
}

func TestValidateMediaSizeCeilings(t *testing.T) {
	// just under and at the image ceiling
	format, err := ValidateMedia("photo.jpg", mediaContent(jpegHeader, MaxImageBytes))
	assert.Equal(t, nil, err)
	assert.Equal(t, MediaFormatJpeg, format)

	_, err = ValidateMedia("photo.jpg", mediaContent(jpegHeader, MaxImageBytes+1))
	assert.NotEqual(t, nil, err)

	// a video larger than the image ceiling is fine under the video ceiling
	format, err = ValidateMedia("clip.webm", mediaContent(webmHeader, MaxImageBytes+1))
	assert.Equal(t, nil, err)
	assert.Equal(t, MediaFormatWebm, format)

	_, err = ValidateMedia("clip.webm", mediaContent(webmHeader, MaxVideoBytes+1))
	assert.NotEqual(t, nil, err)
}

func TestValidateMediaUnknownExtension(t *testing.T) {
	_, err := ValidateMedia("document.pdf", mediaContent(jpegHeader, 1024))
	assert.NotEqual(t, nil, err)

	_, err = ValidateMedia("noextension", mediaContent(jpegHeader, 1024))
	assert.NotEqual(t, nil, err)
}

func TestMediaFormatForFilename(t *testing.T) {
	// extension aliases map to the canonical format
	format, ok := MediaFormatForFilename("clip.MOV")
	assert.Equal(t, true, ok)
	assert.Equal(t, MediaFormatMp4, format)

	format, ok = MediaFormatForFilename("photo.JPEG")
	assert.Equal(t, true, ok)
	assert.Equal(t, MediaFormatJpeg, format)

	format, ok = MediaFormatForFilename("clip.mkv")
	assert.Equal(t, true, ok)
	assert.Equal(t, MediaFormatWebm, format)
}

func TestMediaFormatKind(t *testing.T) {
	assert.Equal(t, MediaKindImage, MediaFormatPng.Kind())
	assert.Equal(t, MediaKindImage, MediaFormatWebp.Kind())
	assert.Equal(t, MediaKindVideo, MediaFormatMp4.Kind())
	assert.Equal(t, MediaKindVideo, MediaFormatWebm.Kind())
}
