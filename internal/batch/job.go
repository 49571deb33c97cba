// Package batch converts panorama files and directory trees of them.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vearutop/cubemap"
	"github.com/vearutop/cubemap/internal/imageio"
)

// Direction is the conversion direction of a job.
type Direction int

const (
	// EquirectToCube converts equirectangular panoramas to cube crosses.
	EquirectToCube Direction = iota
	// CubeToEquirect converts cube crosses to equirectangular panoramas.
	CubeToEquirect
)

// ParseDirection accepts "e2c", "c2e" and the long forms.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "e2c", "equirect-to-cube", "equirectangular-to-cubemap":
		return EquirectToCube, nil
	case "c2e", "cube-to-equirect", "cubemap-to-equirectangular":
		return CubeToEquirect, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

func (d Direction) String() string {
	if d == CubeToEquirect {
		return "c2e"
	}
	return "e2c"
}

// Target is the projection the direction produces.
func (d Direction) Target() cubemap.Projection {
	if d == CubeToEquirect {
		return cubemap.ProjectionEquirectangular
	}
	return cubemap.ProjectionCubemap
}

// Tag is the file name marker of converted files, also used to skip them.
func (d Direction) Tag() string {
	return "_" + d.Target().String()
}

// Job describes one conversion. Zero values pick defaults.
type Job struct {
	// Input is the source file. Run sets it for every file it visits.
	Input     string
	Direction Direction
	// SeparateAlpha writes RGB and alpha to separate files.
	SeparateAlpha bool
	// OutputDir defaults to the directory of the input.
	OutputDir string
	// OutputFormat is a format name, empty keeps the input format.
	OutputFormat string
	// InputEncoding overrides the encoding implied by the input format ("linear" or "srgb").
	InputEncoding string

	FaceSize int
	Width    int
	Height   int

	JPEGQuality int
	HalfFloat   bool
	// Workers bounds per-image resampling parallelism.
	Workers int
	// FacesPattern, if set, names six per-face files, "%" standing for the
	// face name. Cube outputs are also written as faces; cube inputs are read
	// from faces instead of Input.
	FacesPattern string
}

// ParseEncoding accepts "linear" and "srgb".
func ParseEncoding(s string) (cubemap.Encoding, error) {
	switch strings.ToLower(s) {
	case "linear":
		return cubemap.EncodingLinear, nil
	case "srgb", "gamma":
		return cubemap.EncodingSRGB, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q", s)
	}
}

// OutputPath names the file for one output of converting input:
// <stem><tag><suffix><ext> in dir, or next to the input if dir is empty.
// The input extension is kept as written when f is the input format.
func OutputPath(input, dir string, d Direction, suffix string, f imageio.Format) string {
	if dir == "" {
		dir = filepath.Dir(input)
	}
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if in, err := imageio.FormatFromPath(base); err != nil || in != f {
		ext = f.Ext()
	}
	return filepath.Join(dir, stem+d.Tag()+suffix+ext)
}

// ConvertFile runs one job and returns the paths it wrote.
func ConvertFile(ctx context.Context, job Job) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	var (
		src   *cubemap.PixelBuffer
		inFmt imageio.Format
		input = job.Input
		err   error
	)
	if job.Direction == CubeToEquirect && job.FacesPattern != "" {
		src, inFmt, err = ReadFaces(job.FacesPattern)
		input = facesBase(job.FacesPattern)
	} else {
		src, inFmt, err = imageio.ReadFile(job.Input)
	}
	if err != nil {
		return nil, err
	}

	outFmt := inFmt
	if job.OutputFormat != "" {
		if outFmt, err = imageio.ParseFormat(job.OutputFormat); err != nil {
			return nil, err
		}
	}

	enc := inFmt.Encoding()
	if job.InputEncoding != "" {
		if enc, err = ParseEncoding(job.InputEncoding); err != nil {
			return nil, err
		}
	}
	outEnc := outFmt.Encoding()

	opts := func(o *cubemap.Options) {
		o.FaceSize = job.FaceSize
		o.Width = job.Width
		o.Height = job.Height
		o.Workers = job.Workers
		o.OutputEncoding = &outEnc
		o.ClampOutput = !outFmt.IsFloat()
	}

	var res *cubemap.Result
	switch job.Direction {
	case EquirectToCube:
		res, err = cubemap.ConvertEquirectToCube(src, enc, job.SeparateAlpha, opts)
	case CubeToEquirect:
		res, err = cubemap.ConvertCubeToEquirect(src, enc, job.SeparateAlpha, opts)
	default:
		err = fmt.Errorf("unknown direction %d", job.Direction)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", input, err)
	}

	if job.OutputDir != "" {
		if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
			return nil, err
		}
	}

	encOpt := imageio.EncodeOptions{JPEGQuality: job.JPEGQuality, HalfFloat: job.HalfFloat}
	var written []string
	for _, out := range res.Outputs {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		path := OutputPath(input, job.OutputDir, job.Direction, out.Suffix(), outFmt)
		if err := imageio.WriteFile(path, out.Buffer, outFmt, encOpt); err != nil {
			return written, err
		}
		written = append(written, path)

		if job.FacesPattern != "" && job.Direction == EquirectToCube {
			paths, err := WriteFaces(suffixPattern(job.FacesPattern, out.Suffix()), out.Buffer, encOpt)
			written = append(written, paths...)
			if err != nil {
				return written, err
			}
		}
	}

	slog.Debug("converted",
		"path", input,
		"direction", job.Direction.String(),
		"out", written,
		"elapsed", time.Since(start).String())
	return written, nil
}

// suffixPattern inserts suffix before the extension of a face pattern.
func suffixPattern(pattern, suffix string) string {
	if suffix == "" {
		return pattern
	}
	ext := filepath.Ext(pattern)
	return strings.TrimSuffix(pattern, ext) + suffix + ext
}
