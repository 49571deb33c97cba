// Package imageio reads and writes panorama files as cubemap pixel buffers.
package imageio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vearutop/cubemap"
)

var (
	// ErrUnsupportedFormat is returned for unknown extensions and for content
	// that does not match the expected format.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrSourceUnavailable is returned when an input file cannot be read.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// Format is an image file format.
type Format int

const (
	FormatPNG Format = iota
	FormatJPEG
	FormatTIFF
	FormatBMP
	FormatEXR
	FormatHDR
)

// Extensions lists the file extensions recognized by FormatFromPath, lowercase with the dot.
var Extensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".exr", ".hdr"}

var formatNames = map[string]Format{
	"png":  FormatPNG,
	"jpg":  FormatJPEG,
	"jpeg": FormatJPEG,
	"tif":  FormatTIFF,
	"tiff": FormatTIFF,
	"bmp":  FormatBMP,
	"exr":  FormatEXR,
	"hdr":  FormatHDR,
}

// ParseFormat resolves a format name or extension such as "exr" or ".jpg".
func ParseFormat(s string) (Format, error) {
	f, ok := formatNames[strings.TrimPrefix(strings.ToLower(s), ".")]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
	return f, nil
}

// FormatFromPath resolves the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return 0, fmt.Errorf("%w: %s has no extension", ErrUnsupportedFormat, path)
	}
	return ParseFormat(ext)
}

// Ext returns the canonical extension with the leading dot.
func (f Format) Ext() string {
	switch f {
	case FormatPNG:
		return ".png"
	case FormatJPEG:
		return ".jpg"
	case FormatTIFF:
		return ".tif"
	case FormatBMP:
		return ".bmp"
	case FormatEXR:
		return ".exr"
	case FormatHDR:
		return ".hdr"
	default:
		return ""
	}
}

func (f Format) String() string {
	if ext := f.Ext(); ext != "" {
		return ext[1:]
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// IsFloat reports whether the format stores unclamped floating point samples.
func (f Format) IsFloat() bool {
	return f == FormatEXR || f == FormatHDR
}

// Encoding returns the color encoding conventionally used by the format:
// float formats hold linear light, 8-bit formats hold sRGB.
func (f Format) Encoding() cubemap.Encoding {
	if f.IsFloat() {
		return cubemap.EncodingLinear
	}
	return cubemap.EncodingSRGB
}

// HasAlpha reports whether the format can carry an alpha channel.
func (f Format) HasAlpha() bool {
	switch f {
	case FormatJPEG, FormatHDR:
		return false
	default:
		return true
	}
}
