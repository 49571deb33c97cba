package cubemap

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smoothColor is a pattern that is continuous on the sphere.
func smoothColor(d Vec3) [4]float32 {
	return [4]float32{
		float32(0.5 + 0.4*d.X),
		float32(0.5 + 0.4*d.Y),
		float32(0.5 + 0.4*d.Z),
		float32(0.6 + 0.3*d.Y*d.Z),
	}
}

func equirectPixelDir(x, y, w, h int) Vec3 {
	lon := (float64(x)+0.5)/float64(w)*2*math.Pi - math.Pi
	lat := math.Pi/2 - (float64(y)+0.5)/float64(h)*math.Pi
	return LonLatToDirection(lon, lat)
}

func makeEquirect(w, h, ch int, fn func(Vec3) [4]float32) *PixelBuffer {
	buf := NewPixelBuffer(w, h, ch)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := fn(equirectPixelDir(x, y, w, h))
			for i := 0; i < ch; i++ {
				buf.Set(x, y, i, c[i])
			}
		}
	}
	return buf
}

func makeCube(fs, ch int, fn func(Vec3) [4]float32) *PixelBuffer {
	var faces Faces
	for _, f := range AllFaces {
		face := NewPixelBuffer(fs, fs, ch)
		for y := 0; y < fs; y++ {
			for x := 0; x < fs; x++ {
				u := 2*(float64(x)+0.5)/float64(fs) - 1
				v := 2*(float64(y)+0.5)/float64(fs) - 1
				c := fn(FaceUVToDirection(f, u, v))
				for i := 0; i < ch; i++ {
					face.Set(x, y, i, c[i])
				}
			}
		}
		faces[f] = face
	}
	cross, err := MergeFaces(faces)
	if err != nil {
		panic(err)
	}
	return cross
}

func mse(a, b *PixelBuffer) float64 {
	var sum float64
	for i := range a.Pix {
		d := float64(a.Pix[i] - b.Pix[i])
		sum += d * d
	}
	return sum / float64(len(a.Pix))
}

func combined(t *testing.T, res *Result) *PixelBuffer {
	t.Helper()
	out, ok := res.Output(RoleCombined)
	require.True(t, ok)
	return out.Buffer
}

func TestDimensionContract(t *testing.T) {
	src := NewPixelBuffer(400, 200, 4)

	cube, err := ConvertEquirectToCube(src, EncodingSRGB, false, func(o *Options) {
		o.FaceSize = 100
	})
	require.NoError(t, err)
	assert.Equal(t, ProjectionCubemap, cube.Projection)
	c := combined(t, cube)
	assert.Equal(t, 400, c.Width)
	assert.Equal(t, 300, c.Height)
	assert.Equal(t, 4, c.Channels)

	eq, err := ConvertCubeToEquirect(c, EncodingSRGB, false)
	require.NoError(t, err)
	assert.Equal(t, ProjectionEquirectangular, eq.Projection)
	e := combined(t, eq)
	assert.Equal(t, 800, e.Width)
	assert.Equal(t, 400, e.Height)
}

func TestDefaultFaceSize(t *testing.T) {
	res, err := ConvertEquirectToCube(NewPixelBuffer(64, 32, 3), EncodingLinear, false)
	require.NoError(t, err)
	c := combined(t, res)
	assert.Equal(t, 64, c.Width)
	assert.Equal(t, 48, c.Height)
	assert.Equal(t, 4, c.Channels)
}

func TestExplicitEquirectSize(t *testing.T) {
	res, err := ConvertCubeToEquirect(NewPixelBuffer(40, 30, 4), EncodingLinear, false, func(o *Options) {
		o.Width = 50
		o.Height = 20
	})
	require.NoError(t, err)
	e := combined(t, res)
	assert.Equal(t, 50, e.Width)
	assert.Equal(t, 20, e.Height)
}

func TestRoundTrip(t *testing.T) {
	for _, enc := range []Encoding{EncodingLinear, EncodingSRGB} {
		t.Run(enc.String(), func(t *testing.T) {
			src := makeEquirect(256, 128, 4, smoothColor)

			cube, err := ConvertEquirectToCube(src, enc, false)
			require.NoError(t, err)

			back, err := ConvertCubeToEquirect(combined(t, cube), enc, false, func(o *Options) {
				o.Width = src.Width
				o.Height = src.Height
			})
			require.NoError(t, err)

			assert.Less(t, mse(src, combined(t, back)), 1e-3)
		})
	}
}

func TestCubeSeamsResolveNeighbours(t *testing.T) {
	const fs = 64
	src := makeCube(fs, 4, smoothColor)

	res, err := ConvertCubeToEquirect(src, EncodingLinear, false)
	require.NoError(t, err)
	e := combined(t, res)

	var maxErr float64
	for y := 0; y < e.Height; y++ {
		for x := 0; x < e.Width; x++ {
			want := smoothColor(equirectPixelDir(x, y, e.Width, e.Height))
			for c := 0; c < 4; c++ {
				maxErr = math.Max(maxErr, math.Abs(float64(e.At(x, y, c)-want[c])))
			}
		}
	}
	assert.Less(t, maxErr, 0.03)
}

func TestCubeTileEdgesAreContinuous(t *testing.T) {
	src := makeEquirect(512, 256, 4, smoothColor)
	res, err := ConvertEquirectToCube(src, EncodingLinear, false)
	require.NoError(t, err)
	c := combined(t, res)
	fs := c.Width / 4

	// Pixel pairs straddling shared edges, as (x, y) in the cross.
	type pair struct{ ax, ay, bx, by int }
	var pairs []pair
	for i := 0; i < fs; i++ {
		pairs = append(pairs,
			pair{2*fs - 1, fs + i, 2 * fs, fs + i}, // +Z | +X
			pair{3*fs - 1, fs + i, 3 * fs, fs + i}, // +X | -Z
			pair{fs - 1, fs + i, fs, fs + i},       // -X | +Z
			pair{4*fs - 1, fs + i, 0, fs + i},      // -Z | -X, wraps around the cross
			pair{fs + i, fs - 1, fs + i, fs},       // +Y above +Z
			pair{fs + i, 2*fs - 1, fs + i, 2 * fs}, // +Z above -Y
		)
	}

	for _, p := range pairs {
		for ch := 0; ch < 4; ch++ {
			d := math.Abs(float64(c.At(p.ax, p.ay, ch) - c.At(p.bx, p.by, ch)))
			require.Less(t, d, 0.05, "pixels (%d,%d) and (%d,%d)", p.ax, p.ay, p.bx, p.by)
		}
	}
}

func TestEquirectLongitudeWrap(t *testing.T) {
	src := makeCube(32, 4, smoothColor)
	res, err := ConvertCubeToEquirect(src, EncodingLinear, false)
	require.NoError(t, err)
	e := combined(t, res)

	for y := 0; y < e.Height; y++ {
		for ch := 0; ch < 4; ch++ {
			d := math.Abs(float64(e.At(0, y, ch) - e.At(e.Width-1, y, ch)))
			require.Less(t, d, 0.05, "row %d", y)
		}
	}
}

func TestBlankCellsStayZero(t *testing.T) {
	src := makeEquirect(64, 32, 4, func(Vec3) [4]float32 { return [4]float32{1, 1, 1, 1} })
	res, err := ConvertEquirectToCube(src, EncodingLinear, false)
	require.NoError(t, err)
	c := combined(t, res)
	fs := c.Width / 4

	for _, cell := range [][2]int{{0, 0}, {2, 0}, {3, 0}, {0, 2}, {2, 2}, {3, 2}} {
		for y := 0; y < fs; y++ {
			for x := 0; x < fs; x++ {
				for ch := 0; ch < 4; ch++ {
					require.Zero(t, c.At(cell[0]*fs+x, cell[1]*fs+y, ch))
				}
			}
		}
	}
	assert.InDelta(t, 1, c.At(fs+fs/2, fs+fs/2, 3), 1e-6)
}

func TestAlphaIndependence(t *testing.T) {
	rgba := makeEquirect(128, 64, 4, func(d Vec3) [4]float32 {
		c := smoothColor(d)
		c[3] = 1
		return c
	})
	rgb := makeEquirect(128, 64, 3, smoothColor)

	for _, enc := range []Encoding{EncodingLinear, EncodingSRGB} {
		a, err := ConvertEquirectToCube(rgba, enc, false)
		require.NoError(t, err)
		b, err := ConvertEquirectToCube(rgb, enc, false)
		require.NoError(t, err)
		assert.Equal(t, combined(t, a).Pix, combined(t, b).Pix, enc.String())
	}

	// A varying alpha does not leak into RGB.
	varying := makeEquirect(128, 64, 4, func(d Vec3) [4]float32 {
		c := smoothColor(d)
		c[3] = float32(0.5 + 0.5*d.X)
		return c
	})
	a, err := ConvertEquirectToCube(varying, EncodingSRGB, false)
	require.NoError(t, err)
	b, err := ConvertEquirectToCube(rgba, EncodingSRGB, false)
	require.NoError(t, err)
	pa, pb := combined(t, a).Pix, combined(t, b).Pix
	for i := 0; i < len(pa); i += 4 {
		require.Equal(t, pb[i:i+3], pa[i:i+3])
	}
}

func TestSeparateAlphaOutputs(t *testing.T) {
	src := makeEquirect(128, 64, 4, smoothColor)

	whole, err := ConvertEquirectToCube(src, EncodingSRGB, false)
	require.NoError(t, err)
	split, err := ConvertEquirectToCube(src, EncodingSRGB, true)
	require.NoError(t, err)

	require.Len(t, split.Outputs, 2)
	rgb, ok := split.Output(RoleRGB)
	require.True(t, ok)
	alpha, ok := split.Output(RoleAlpha)
	require.True(t, ok)
	_, ok = split.Output(RoleCombined)
	assert.False(t, ok)

	assert.Equal(t, "_rgb", rgb.Suffix())
	assert.Equal(t, "_alpha", alpha.Suffix())
	assert.Equal(t, EncodingSRGB, rgb.Encoding)
	assert.Equal(t, EncodingLinear, alpha.Encoding)

	w := combined(t, whole).Pix
	rp, ap := rgb.Buffer.Pix, alpha.Buffer.Pix
	require.Len(t, rp, len(w))
	require.Len(t, ap, len(w))
	for i := 0; i < len(w); i += 4 {
		require.Equal(t, w[i:i+3], rp[i:i+3])
		require.Equal(t, float32(1), rp[i+3])
		require.Equal(t, []float32{w[i+3], w[i+3], w[i+3], 1}, ap[i:i+4])
	}
}

func TestGrayInput(t *testing.T) {
	src := makeEquirect(64, 32, 1, smoothColor)
	res, err := ConvertEquirectToCube(src, EncodingLinear, false)
	require.NoError(t, err)
	c := combined(t, res)
	fs := c.Width / 4
	x, y := fs+fs/2, fs+fs/2
	assert.Equal(t, c.At(x, y, 0), c.At(x, y, 1))
	assert.Equal(t, c.At(x, y, 0), c.At(x, y, 2))
	assert.Equal(t, float32(1), c.At(x, y, 3))
}

func TestOutputEncodingAndClamp(t *testing.T) {
	src := makeEquirect(64, 32, 3, func(Vec3) [4]float32 { return [4]float32{0.21404, 4, -1} })
	srgb := EncodingSRGB
	res, err := ConvertEquirectToCube(src, EncodingLinear, false, func(o *Options) {
		o.OutputEncoding = &srgb
		o.ClampOutput = true
	})
	require.NoError(t, err)
	out, _ := res.Output(RoleCombined)
	assert.Equal(t, EncodingSRGB, out.Encoding)

	fs := out.Buffer.Width / 4
	x, y := fs+1, fs+1
	assert.InDelta(t, 0.5, out.Buffer.At(x, y, 0), 1e-4)
	assert.Equal(t, float32(1), out.Buffer.At(x, y, 1))
	assert.Equal(t, float32(0), out.Buffer.At(x, y, 2))
}

func TestHDRValuesSurvive(t *testing.T) {
	src := makeEquirect(64, 32, 3, func(Vec3) [4]float32 { return [4]float32{12, 0.5, 300} })
	res, err := ConvertEquirectToCube(src, EncodingLinear, false)
	require.NoError(t, err)
	c := combined(t, res)
	fs := c.Width / 4
	assert.InDelta(t, 12, c.At(fs, fs, 0), 1e-4)
	assert.InDelta(t, 300, c.At(fs, fs, 2), 1e-3)
}

func TestInputDoesNotChange(t *testing.T) {
	src := makeEquirect(64, 32, 4, smoothColor)
	orig := src.Clone()
	_, err := ConvertEquirectToCube(src, EncodingSRGB, true)
	require.NoError(t, err)
	assert.Equal(t, orig.Pix, src.Pix)
}

func TestInvalidInputs(t *testing.T) {
	for _, tc := range []struct {
		name string
		fn   func() error
	}{
		{"nil", func() error {
			_, err := ConvertEquirectToCube(nil, EncodingLinear, false)
			return err
		}},
		{"two channels", func() error {
			_, err := ConvertEquirectToCube(NewPixelBuffer(8, 4, 2), EncodingLinear, false)
			return err
		}},
		{"short pix", func() error {
			buf := &PixelBuffer{Width: 8, Height: 4, Channels: 3, Pix: make([]float32, 10)}
			_, err := ConvertEquirectToCube(buf, EncodingLinear, false)
			return err
		}},
		{"tiny equirect", func() error {
			_, err := ConvertEquirectToCube(NewPixelBuffer(3, 2, 3), EncodingLinear, false)
			return err
		}},
		{"not a cross", func() error {
			_, err := ConvertCubeToEquirect(NewPixelBuffer(40, 20, 3), EncodingLinear, false)
			return err
		}},
		{"same projection", func() error {
			_, err := Resample(NewPixelBuffer(8, 4, 3), ProjectionEquirectangular, ProjectionEquirectangular, 8, 4, InterpolationBilinear, 1)
			return err
		}},
		{"cube destination not a cross", func() error {
			_, err := Resample(NewPixelBuffer(8, 4, 3), ProjectionEquirectangular, ProjectionCubemap, 10, 10, InterpolationBilinear, 1)
			return err
		}},
		{"ragged cube destination", func() error {
			_, err := Resample(NewPixelBuffer(400, 200, 3), ProjectionEquirectangular, ProjectionCubemap, 403, 300, InterpolationBilinear, 1)
			return err
		}},
		{"cube destination extra rows", func() error {
			_, err := Resample(NewPixelBuffer(400, 200, 3), ProjectionEquirectangular, ProjectionCubemap, 400, 302, InterpolationBilinear, 1)
			return err
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fn()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput), err.Error())
		})
	}
}

func TestGuessProjection(t *testing.T) {
	for _, tc := range []struct {
		w, h int
		want Projection
		ok   bool
	}{
		{400, 300, ProjectionCubemap, true},
		{800, 400, ProjectionEquirectangular, true},
		{100, 100, 0, false},
		{0, 10, 0, false},
	} {
		got, ok := GuessProjection(tc.w, tc.h)
		assert.Equal(t, tc.ok, ok, "%dx%d", tc.w, tc.h)
		if tc.ok {
			assert.Equal(t, tc.want, got)
		}
	}
}

func BenchmarkConvertEquirectToCube(b *testing.B) {
	src := makeEquirect(1024, 512, 4, smoothColor)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ConvertEquirectToCube(src, EncodingSRGB, false); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConvertCubeToEquirect(b *testing.B) {
	src := makeCube(256, 4, smoothColor)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ConvertCubeToEquirect(src, EncodingSRGB, false); err != nil {
			b.Fatal(err)
		}
	}
}

func TestRaggedCubeSource(t *testing.T) {
	cross := makeCube(100, 4, smoothColor)
	ragged := NewPixelBuffer(403, 302, cross.Channels)
	for y := 0; y < cross.Height; y++ {
		copy(ragged.Pix[y*ragged.Width*ragged.Channels:], cross.Pix[y*cross.Width*cross.Channels:(y+1)*cross.Width*cross.Channels])
	}

	want, err := ConvertCubeToEquirect(cross, EncodingLinear, false)
	require.NoError(t, err)
	got, err := ConvertCubeToEquirect(ragged, EncodingLinear, false)
	require.NoError(t, err)

	assert.Equal(t, 800, got.Outputs[0].Buffer.Width)
	assert.Equal(t, 400, got.Outputs[0].Buffer.Height)
	assert.Equal(t, want.Outputs[0].Buffer.Pix, got.Outputs[0].Buffer.Pix)
}
