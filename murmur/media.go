package murmur

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strings"
)

type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

type MediaFormat string

const (
	MediaFormatJpeg MediaFormat = "jpeg"
	MediaFormatPng  MediaFormat = "png"
	MediaFormatGif  MediaFormat = "gif"
	MediaFormatWebp MediaFormat = "webp"
	MediaFormatMp4  MediaFormat = "mp4"
	MediaFormatWebm MediaFormat = "webm"
)

func (self MediaFormat) Kind() MediaKind {
	switch self {
	case MediaFormatJpeg, MediaFormatPng, MediaFormatGif, MediaFormatWebp:
		return MediaKindImage
	case MediaFormatMp4, MediaFormatWebm:
		return MediaKindVideo
	default:
		panic(fmt.Sprintf("unknown media format: %s", self))
	}
}

const MaxImageBytes = 5 * 1024 * 1024
const MaxVideoBytes = 25 * 1024 * 1024

// leading byte window that is enough to match every known signature
const SniffWindowSize = 12

func maxBytesForKind(kind MediaKind) int64 {
	switch kind {
	case MediaKindVideo:
		return MaxVideoBytes
	default:
		return MaxImageBytes
	}
}

// matches the leading bytes of `header` against known binary signatures
func SniffMediaFormat(header []byte) (MediaFormat, bool) {
	if len(header) < SniffWindowSize {
		return "", false
	}

	// JPEG: FF D8 FF
	if bytes.HasPrefix(header, []byte{0xff, 0xd8, 0xff}) {
		return MediaFormatJpeg, true
	}
	// PNG: 89 50 4E 47
	if bytes.HasPrefix(header, []byte{0x89, 0x50, 0x4e, 0x47}) {
		return MediaFormatPng, true
	}
	// GIF: "GIF8"
	if bytes.HasPrefix(header, []byte("GIF8")) {
		return MediaFormatGif, true
	}
	// WebP: "RIFF"...."WEBP"
	if bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")) {
		return MediaFormatWebp, true
	}
	// MP4/MOV: "ftyp" at offset 4
	if bytes.Equal(header[4:8], []byte("ftyp")) {
		return MediaFormatMp4, true
	}
	// WebM/MKV: EBML header 1A 45 DF A3
	if bytes.HasPrefix(header, []byte{0x1a, 0x45, 0xdf, 0xa3}) {
		return MediaFormatWebm, true
	}

	return "", false
}

// declared format from the file name extension
func MediaFormatForFilename(name string) (MediaFormat, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		return MediaFormatJpeg, true
	case ".png":
		return MediaFormatPng, true
	case ".gif":
		return MediaFormatGif, true
	case ".webp":
		return MediaFormatWebp, true
	case ".mp4", ".mov", ".m4v":
		return MediaFormatMp4, true
	case ".webm", ".mkv":
		return MediaFormatWebm, true
	default:
		return "", false
	}
}

// validates locally selected media before any upload begins:
// the sniffed format must match the declared format,
// and the size must be under the ceiling for the media kind
func ValidateMedia(name string, content []byte) (MediaFormat, error) {
	declaredFormat, ok := MediaFormatForFilename(name)
	if !ok {
		return "", fmt.Errorf("unsupported media file: %s", name)
	}

	window := content
	if SniffWindowSize < len(window) {
		window = window[:SniffWindowSize]
	}
	sniffedFormat, ok := SniffMediaFormat(window)
	if !ok {
		return "", fmt.Errorf("unrecognized media format: %s", name)
	}
	if sniffedFormat != declaredFormat {
		return "", fmt.Errorf(
			"media content (%s) does not match the declared format (%s)",
			sniffedFormat,
			declaredFormat,
		)
	}

	maxBytes := maxBytesForKind(sniffedFormat.Kind())
	if maxBytes < int64(len(content)) {
		return "", fmt.Errorf(
			"%s must be at most %d bytes (%d)",
			sniffedFormat.Kind(),
			maxBytes,
			len(content),
		)
	}

	return sniffedFormat, nil
}

func ValidateMediaFile(filePath string) (MediaFormat, []byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", nil, err
	}
	format, err := ValidateMedia(path.Base(filePath), content)
	if err != nil {
		return "", nil, err
	}
	return format, content, nil
}
