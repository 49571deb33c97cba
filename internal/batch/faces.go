package batch

import (
	"fmt"
	"strings"

	"github.com/vearutop/cubemap"
	"github.com/vearutop/cubemap/internal/imageio"
)

// FacePlaceholder in a face pattern is replaced by the face name: +X, -X, +Y, -Y, +Z, -Z.
const FacePlaceholder = "%"

// FacePaths expands pattern into one path per face, in cubemap.AllFaces order.
func FacePaths(pattern string) ([6]string, error) {
	var paths [6]string
	if !strings.Contains(pattern, FacePlaceholder) {
		return paths, fmt.Errorf("face pattern %q has no %s placeholder", pattern, FacePlaceholder)
	}
	for _, f := range cubemap.AllFaces {
		paths[f] = strings.ReplaceAll(pattern, FacePlaceholder, f.String())
	}
	return paths, nil
}

// WriteFaces splits a cube cross into six files named by pattern. The format
// follows the pattern extension.
func WriteFaces(pattern string, cross *cubemap.PixelBuffer, opt imageio.EncodeOptions) ([]string, error) {
	paths, err := FacePaths(pattern)
	if err != nil {
		return nil, err
	}
	f, err := imageio.FormatFromPath(pattern)
	if err != nil {
		return nil, err
	}
	faces, err := cubemap.SplitFaces(cross)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(paths))
	for _, face := range cubemap.AllFaces {
		if err := imageio.WriteFile(paths[face], faces[face], f, opt); err != nil {
			return written, err
		}
		written = append(written, paths[face])
	}
	return written, nil
}

// ReadFaces reads six face files named by pattern and assembles them into a
// cube cross. All faces must share the format of the first one.
func ReadFaces(pattern string) (*cubemap.PixelBuffer, imageio.Format, error) {
	paths, err := FacePaths(pattern)
	if err != nil {
		return nil, 0, err
	}

	var (
		faces  cubemap.Faces
		format imageio.Format
	)
	for _, face := range cubemap.AllFaces {
		buf, f, err := imageio.ReadFile(paths[face])
		if err != nil {
			return nil, 0, err
		}
		if face == cubemap.FacePosX {
			format = f
		} else if f != format {
			return nil, 0, fmt.Errorf("%w: face %s is %s, want %s", imageio.ErrUnsupportedFormat, face, f, format)
		}
		faces[face] = buf
	}

	unifyChannels(&faces)
	cross, err := cubemap.MergeFaces(faces)
	if err != nil {
		return nil, 0, err
	}
	return cross, format, nil
}

// unifyChannels widens faces to the largest channel count among them, since
// decoders drop alpha from opaque images.
func unifyChannels(faces *cubemap.Faces) {
	want := 0
	for _, b := range faces {
		want = max(want, b.Channels)
	}
	for i, b := range faces {
		if b.Channels != want {
			faces[i] = widen(b, want)
		}
	}
}

func widen(b *cubemap.PixelBuffer, ch int) *cubemap.PixelBuffer {
	out := cubemap.NewPixelBuffer(b.Width, b.Height, ch)
	n := b.Width * b.Height
	for i := 0; i < n; i++ {
		px := out.Pix[i*ch : (i+1)*ch]
		src := b.Pix[i*b.Channels : (i+1)*b.Channels]
		if len(src) == 1 {
			px[0], px[1], px[2] = src[0], src[0], src[0]
		} else {
			copy(px, src)
		}
		if ch == 4 && len(src) < 4 {
			px[3] = 1
		}
	}
	return out
}

// facesBase turns a face pattern into a plain path for naming outputs.
func facesBase(pattern string) string {
	for _, sep := range []string{"_", "-", "."} {
		pattern = strings.ReplaceAll(pattern, sep+FacePlaceholder, "")
	}
	return strings.ReplaceAll(pattern, FacePlaceholder, "")
}
