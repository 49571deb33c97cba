package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearutop/cubemap"
	"github.com/vearutop/cubemap/internal/imageio"
)

func writeImage(t *testing.T, path string, w, h, ch int) {
	t.Helper()
	buf := cubemap.NewPixelBuffer(w, h, ch)
	for i := range buf.Pix {
		buf.Pix[i] = float32(i%97) / 97
	}
	f, err := imageio.FormatFromPath(path)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, imageio.WriteFile(path, buf, f, imageio.EncodeOptions{}))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("E2C")
	require.NoError(t, err)
	assert.Equal(t, EquirectToCube, d)

	d, err = ParseDirection("cube-to-equirect")
	require.NoError(t, err)
	assert.Equal(t, CubeToEquirect, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)

	assert.Equal(t, "_cubemap", EquirectToCube.Tag())
	assert.Equal(t, "_equirectangular", CubeToEquirect.Tag())
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("in", "pano_cubemap.exr"),
		OutputPath(filepath.Join("in", "pano.png"), "", EquirectToCube, "", imageio.FormatEXR))
	assert.Equal(t, filepath.Join("out", "pano_cubemap_rgb.png"),
		OutputPath(filepath.Join("in", "pano.png"), "out", EquirectToCube, "_rgb", imageio.FormatPNG))
	assert.Equal(t, filepath.Join("in", "sky_equirectangular_alpha.jpg"),
		OutputPath(filepath.Join("in", "sky.jpg"), "", CubeToEquirect, "_alpha", imageio.FormatJPEG))
	assert.Equal(t, filepath.Join("in", "pano_cubemap.jpeg"),
		OutputPath(filepath.Join("in", "pano.jpeg"), "", EquirectToCube, "", imageio.FormatJPEG))
	assert.Equal(t, filepath.Join("in", "pano_cubemap_rgb.TIFF"),
		OutputPath(filepath.Join("in", "pano.TIFF"), "", EquirectToCube, "_rgb", imageio.FormatTIFF))
	assert.Equal(t, filepath.Join("in", "pano_cubemap.exr"),
		OutputPath(filepath.Join("in", "pano.tiff"), "", EquirectToCube, "", imageio.FormatEXR))
}

func TestShouldSkip(t *testing.T) {
	assert.True(t, ShouldSkip("/a/Pano_CubeMap.exr", EquirectToCube))
	assert.False(t, ShouldSkip("/a/pano_cubemap.exr", CubeToEquirect))
	assert.True(t, ShouldSkip("/a/x_equirectangular_rgb.png", CubeToEquirect))
	assert.False(t, ShouldSkip("/cubemap/pano.exr", EquirectToCube))
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "pano.png")
	writeImage(t, in, 64, 32, 4)

	written, err := ConvertFile(context.Background(), Job{Input: in, Direction: EquirectToCube})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "pano_cubemap.png")}, written)

	cross, f, err := imageio.ReadFile(written[0])
	require.NoError(t, err)
	assert.Equal(t, imageio.FormatPNG, f)
	assert.Equal(t, 64, cross.Width)
	assert.Equal(t, 48, cross.Height)

	written, err = ConvertFile(context.Background(), Job{
		Input:         written[0],
		Direction:     CubeToEquirect,
		SeparateAlpha: true,
		OutputFormat:  "exr",
		HalfFloat:     true,
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "pano_cubemap_equirectangular_rgb.exr"),
		filepath.Join(dir, "pano_cubemap_equirectangular_alpha.exr"),
	}, written)

	eq, _, err := imageio.ReadFile(written[1])
	require.NoError(t, err)
	assert.Equal(t, 128, eq.Width)
	assert.Equal(t, 64, eq.Height)
	require.Equal(t, 4, eq.Channels)
	assert.Equal(t, float32(1), eq.At(3, 3, 3))
	assert.Equal(t, eq.At(3, 3, 0), eq.At(3, 3, 1))
}

func TestConvertFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ConvertFile(context.Background(), Job{Input: filepath.Join(dir, "nope.png")})
	assert.True(t, errors.Is(err, imageio.ErrSourceUnavailable))

	notCross := filepath.Join(dir, "flat.png")
	writeImage(t, notCross, 40, 20, 3)
	_, err = ConvertFile(context.Background(), Job{Input: notCross, Direction: CubeToEquirect})
	assert.True(t, errors.Is(err, cubemap.ErrInvalidInput))

	_, err = ConvertFile(context.Background(), Job{Input: notCross, OutputFormat: "gif"})
	assert.True(t, errors.Is(err, imageio.ErrUnsupportedFormat))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ConvertFile(ctx, Job{Input: notCross})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFacesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "pano.exr")
	writeImage(t, in, 32, 16, 3)

	pattern := filepath.Join(dir, "faces", "pano_%.exr")
	require.NoError(t, os.MkdirAll(filepath.Dir(pattern), 0o755))

	written, err := ConvertFile(context.Background(), Job{
		Input:        in,
		Direction:    EquirectToCube,
		FacesPattern: pattern,
	})
	require.NoError(t, err)
	require.Len(t, written, 7)
	assert.Equal(t, filepath.Join(dir, "faces", "pano_+X.exr"), written[1])
	assert.Equal(t, filepath.Join(dir, "faces", "pano_-Z.exr"), written[6])

	cross, _, err := imageio.ReadFile(written[0])
	require.NoError(t, err)
	merged, f, err := ReadFaces(pattern)
	require.NoError(t, err)
	assert.Equal(t, imageio.FormatEXR, f)
	assert.Equal(t, cross.Pix, merged.Pix)

	written, err = ConvertFile(context.Background(), Job{
		Direction:    CubeToEquirect,
		FacesPattern: pattern,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "faces", "pano_equirectangular.exr")}, written)
}

func TestFacePaths(t *testing.T) {
	paths, err := FacePaths("f_%.png")
	require.NoError(t, err)
	assert.Equal(t, [6]string{"f_+X.png", "f_-X.png", "f_+Y.png", "f_-Y.png", "f_+Z.png", "f_-Z.png"}, paths)

	_, err = FacePaths("f.png")
	assert.Error(t, err)

	assert.Equal(t, "pano.exr", facesBase("pano_%.exr"))
	assert.Equal(t, "f_rgb.png", suffixPattern("f.png", "_rgb"))
}

func TestReadFacesMixedChannels(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "%.png")
	paths, err := FacePaths(pattern)
	require.NoError(t, err)
	for i, p := range paths {
		ch := 3
		if i == 0 {
			ch = 4
		}
		writeImage(t, p, 8, 8, ch)
	}

	cross, _, err := ReadFaces(pattern)
	require.NoError(t, err)
	assert.Equal(t, 4, cross.Channels)
	assert.Equal(t, 32, cross.Width)
	assert.Equal(t, 24, cross.Height)
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "a.png"), 32, 16, 4)
	writeImage(t, filepath.Join(root, "sub", "b.exr"), 32, 16, 3)
	writeImage(t, filepath.Join(root, "sub", "old_Cubemap.png"), 32, 24, 3)
	writeImage(t, filepath.Join(root, "bad.jpg"), 2, 1, 3)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0o600))

	rep, err := Run(context.Background(), root, Job{Direction: EquirectToCube}, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "a.png"), filepath.Join(root, "sub", "b.exr")}, rep.Converted)
	assert.Equal(t, []string{filepath.Join(root, "sub", "old_Cubemap.png")}, rep.Skipped)
	require.Len(t, rep.Failed, 1)
	assert.True(t, errors.Is(rep.Failed[filepath.Join(root, "bad.jpg")], cubemap.ErrInvalidInput))
	assert.Equal(t, []string{
		filepath.Join(root, "a_cubemap.png"),
		filepath.Join(root, "sub", "b_cubemap.exr"),
	}, rep.Written)

	for _, p := range rep.Written {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestRunOutputDir(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	writeImage(t, filepath.Join(root, "x", "p.png"), 32, 16, 3)

	rep, err := Run(context.Background(), root, Job{Direction: EquirectToCube, SeparateAlpha: true, OutputDir: out}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "x", "p_cubemap_alpha.png"),
		filepath.Join(out, "x", "p_cubemap_rgb.png"),
	}, rep.Written)
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "a.png"), 32, 16, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := Run(ctx, root, Job{}, 1)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, rep)
	assert.Empty(t, rep.Converted)
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "b.HDR"), 4, 2, 3)
	writeImage(t, filepath.Join(root, "a.tif"), 4, 2, 3)
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.gif"), []byte("GIF89a"), 0o600))

	files, err := Find(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.tif"), filepath.Join(root, "b.HDR")}, files)

	_, err = Find(filepath.Join(root, "missing"))
	assert.Error(t, err)
}
