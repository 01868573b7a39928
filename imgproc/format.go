// Package imgproc detects image formats from raw bytes and normalizes icons
// to a requested size and format.
//
// Detection is a magic-number sniff, never a full decode. Normalization
// follows a strict policy: vectors bypass untouched unless a raster format
// is explicitly requested, ICO containers are reduced to their largest
// frame, and any processing failure degrades to the original bytes.
package imgproc

import (
	"bytes"
	"strings"
)

// Format identifies an image container format.
type Format string

const (
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatICO     Format = "ico"
	FormatBMP     Format = "bmp"
	FormatSVG     Format = "svg"
	FormatUnknown Format = ""
)

// ParseFormat maps a user-supplied format name to a Format.
// Accepts the common aliases ("jpg", "jpeg", "x-icon").
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, true
	case "jpg", "jpeg":
		return FormatJPEG, true
	case "gif":
		return FormatGIF, true
	case "webp":
		return FormatWebP, true
	case "ico", "x-icon", "vnd.microsoft.icon":
		return FormatICO, true
	case "bmp":
		return FormatBMP, true
	case "svg", "svg+xml":
		return FormatSVG, true
	}
	return FormatUnknown, false
}

// ContentType returns the MIME type for f, or application/octet-stream when
// unknown.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	case FormatWebP:
		return "image/webp"
	case FormatICO:
		return "image/x-icon"
	case FormatBMP:
		return "image/bmp"
	case FormatSVG:
		return "image/svg+xml"
	}
	return "application/octet-stream"
}

// IsVector reports whether f is a scalable format.
func (f Format) IsVector() bool { return f == FormatSVG }

// Detect sniffs the format of b from magic numbers (or, for SVG, a leading
// tag scan). Returns FormatUnknown when b matches no known image container.
func Detect(b []byte) Format {
	switch {
	case len(b) >= 8 && bytes.Equal(b[:8], []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case len(b) >= 3 && bytes.Equal(b[:3], []byte{0xFF, 0xD8, 0xFF}):
		return FormatJPEG
	case len(b) >= 6 && (bytes.Equal(b[:6], []byte("GIF87a")) || bytes.Equal(b[:6], []byte("GIF89a"))):
		return FormatGIF
	case len(b) >= 12 && bytes.Equal(b[:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return FormatWebP
	case len(b) >= 6 && bytes.Equal(b[:4], []byte{0x00, 0x00, 0x01, 0x00}) && b[4] > 0:
		return FormatICO
	case len(b) >= 2 && bytes.Equal(b[:2], []byte("BM")):
		return FormatBMP
	case looksLikeSVG(b):
		return FormatSVG
	}
	return FormatUnknown
}

// IsImage reports whether b sniffs as any supported image format.
func IsImage(b []byte) bool { return Detect(b) != FormatUnknown }

// looksLikeSVG scans the first kilobyte for an opening <svg tag. SVG has no
// magic number; documents may start with a BOM, an XML declaration, comments
// or a DOCTYPE before the root element.
func looksLikeSVG(b []byte) bool {
	head := b
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimPrefix(head, []byte{0xEF, 0xBB, 0xBF})
	s := strings.ToLower(string(head))
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "<svg") {
		return true
	}
	if strings.HasPrefix(trimmed, "<?xml") || strings.HasPrefix(trimmed, "<!--") || strings.HasPrefix(trimmed, "<!doctype svg") {
		return strings.Contains(s, "<svg")
	}
	return false
}
