package cubemap

import (
	"fmt"
	"math"
	"runtime"
	"sync"
)

// tap addresses the four source pixels blended into one destination pixel.
// Indices are pixel offsets into the source, i00 < 0 marks a pixel with no source
// (a blank cell of a cube cross).
type tap struct {
	i00, i10, i01, i11 int
	fx, fy             float32
}

var blankTap = tap{i00: -1}

var tapPool = sync.Pool{
	New: func() any {
		buf := make([]tap, 0)
		return &buf
	},
}

// source turns a direction into a tap on the source buffer.
type source interface {
	tap(d Vec3) tap
}

// destination computes the direction of every pixel of one destination row.
type destination interface {
	mapRow(y int, src source, taps []tap)
}

// Resample remaps src from one projection to another with the given output size.
// It works on any channel count; channels are never mixed. A cubemap destination
// must be exactly 4x3 faces, while a cubemap source may carry leftover columns
// and rows (see CubeFaceSize). Same-projection resampling is rejected.
func Resample(src *PixelBuffer, from, to Projection, dstW, dstH int, interp Interpolation, workers int) (*PixelBuffer, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if from == to {
		return nil, fmt.Errorf("%w: resampling %s to itself is not supported", ErrInvalidInput, from)
	}
	if dstW <= 0 || dstH <= 0 {
		return nil, fmt.Errorf("%w: destination %dx%d", ErrInvalidInput, dstW, dstH)
	}

	var (
		s source
		d destination
	)
	switch from {
	case ProjectionEquirectangular:
		s = equirectSource{w: src.Width, h: src.Height, nearest: interp == InterpolationNearest}
	case ProjectionCubemap:
		fs, err := CubeFaceSize(src.Width, src.Height)
		if err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
		s = cubeSource{fs: fs, w: src.Width, nearest: interp == InterpolationNearest}
	default:
		return nil, fmt.Errorf("%w: unknown source projection %s", ErrInvalidInput, from)
	}
	switch to {
	case ProjectionEquirectangular:
		d = equirectDestination{w: dstW, h: dstH}
	case ProjectionCubemap:
		fs, err := CubeFaceSize(dstW, dstH)
		if err != nil {
			return nil, fmt.Errorf("destination: %w", err)
		}
		if dstW != fs*diceColumns || dstH != fs*diceRows {
			return nil, fmt.Errorf("%w: destination %dx%d is not exactly 4x3 faces of %d", ErrInvalidInput, dstW, dstH, fs)
		}
		d = cubeDestination{fs: fs, w: dstW}
	default:
		return nil, fmt.Errorf("%w: unknown destination projection %s", ErrInvalidInput, to)
	}

	dst := NewPixelBuffer(dstW, dstH, src.Channels)
	parallelFor(workers, dstH, func(start, end int) {
		taps := getTaps(dstW)
		defer putTaps(taps)
		for y := start; y < end; y++ {
			d.mapRow(y, s, taps)
			interpolateRow(dst, y, src, taps)
		}
	})
	return dst, nil
}

func interpolateRow(dst *PixelBuffer, y int, src *PixelBuffer, taps []tap) {
	ch := src.Channels
	row := dst.Pix[y*dst.Width*ch : (y+1)*dst.Width*ch]
	sp := src.Pix
	for x, t := range taps {
		if t.i00 < 0 {
			continue
		}
		w00 := (1 - t.fx) * (1 - t.fy)
		w10 := t.fx * (1 - t.fy)
		w01 := (1 - t.fx) * t.fy
		w11 := t.fx * t.fy
		o00, o10, o01, o11 := t.i00*ch, t.i10*ch, t.i01*ch, t.i11*ch
		out := row[x*ch : x*ch+ch]
		for c := range out {
			out[c] = sp[o00+c]*w00 + sp[o10+c]*w10 + sp[o01+c]*w01 + sp[o11+c]*w11
		}
	}
}

type equirectSource struct {
	w, h    int
	nearest bool
}

func (s equirectSource) tap(d Vec3) tap {
	lon, lat := DirectionToLonLat(d)
	sx := (lon+math.Pi)/(2*math.Pi)*float64(s.w) - 0.5
	sy := (math.Pi/2-lat)/math.Pi*float64(s.h) - 0.5
	if s.nearest {
		x := wrapInt(int(math.Round(sx)), s.w)
		y := clampInt(int(math.Round(sy)), 0, s.h-1)
		i := y*s.w + x
		return tap{i00: i, i10: i, i01: i, i11: i}
	}

	x0f, y0f := math.Floor(sx), math.Floor(sy)
	x0, y0 := int(x0f), int(y0f)
	xa, xb := wrapInt(x0, s.w), wrapInt(x0+1, s.w)
	ya, yb := clampInt(y0, 0, s.h-1), clampInt(y0+1, 0, s.h-1)
	return tap{
		i00: ya*s.w + xa,
		i10: ya*s.w + xb,
		i01: yb*s.w + xa,
		i11: yb*s.w + xb,
		fx:  float32(sx - x0f),
		fy:  float32(sy - y0f),
	}
}

type cubeSource struct {
	fs, w   int
	nearest bool
}

func (s cubeSource) tap(d Vec3) tap {
	f, u, v := DirectionToFaceUV(d)
	size := float64(s.fs)
	px := (u+1)/2*size - 0.5
	py := (v+1)/2*size - 0.5
	if s.nearest {
		x := clampInt(int(math.Round(px)), 0, s.fs-1)
		y := clampInt(int(math.Round(py)), 0, s.fs-1)
		i := s.index(f, x, y)
		return tap{i00: i, i10: i, i01: i, i11: i}
	}

	x0f, y0f := math.Floor(px), math.Floor(py)
	x0, y0 := int(x0f), int(y0f)
	return tap{
		i00: s.index(f, x0, y0),
		i10: s.index(f, x0+1, y0),
		i01: s.index(f, x0, y0+1),
		i11: s.index(f, x0+1, y0+1),
		fx:  float32(px - x0f),
		fy:  float32(py - y0f),
	}
}

// index returns the cross pixel offset of face pixel (x, y). Pixels outside the
// face are looked up on the neighbouring face the sphere continues into.
func (s cubeSource) index(f Face, x, y int) int {
	if x < 0 || y < 0 || x >= s.fs || y >= s.fs {
		size := float64(s.fs)
		u := 2*(float64(x)+0.5)/size - 1
		v := 2*(float64(y)+0.5)/size - 1
		var nu, nv float64
		f, nu, nv = DirectionToFaceUV(faceDirection(f, u, v))
		x = clampInt(int(math.Floor((nu+1)/2*size)), 0, s.fs-1)
		y = clampInt(int(math.Floor((nv+1)/2*size)), 0, s.fs-1)
	}
	ox, oy := FaceOrigin(f, s.fs)
	return (oy+y)*s.w + ox + x
}

type equirectDestination struct {
	w, h int
}

func (e equirectDestination) mapRow(y int, src source, taps []tap) {
	lat := math.Pi/2 - (float64(y)+0.5)/float64(e.h)*math.Pi
	for x := range taps {
		lon := (float64(x)+0.5)/float64(e.w)*2*math.Pi - math.Pi
		taps[x] = src.tap(LonLatToDirection(lon, lat))
	}
}

type cubeDestination struct {
	fs, w int
}

func (c cubeDestination) mapRow(y int, src source, taps []tap) {
	size := float64(c.fs)
	v := 2*(float64(y%c.fs)+0.5)/size - 1
	for x := range taps {
		f := faceAt(x, y, c.fs)
		if f < 0 {
			taps[x] = blankTap
			continue
		}
		u := 2*(float64(x%c.fs)+0.5)/size - 1
		taps[x] = src.tap(faceDirection(f, u, v))
	}
}

func parallelFor(workers, total int, fn func(start, end int)) {
	if total <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > total {
		workers = total
	}
	if workers <= 1 {
		fn(0, total)
		return
	}
	step := (total + workers - 1) / workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * step
		end := start + step
		if end > total {
			end = total
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

func getTaps(n int) []tap {
	bufPtr := tapPool.Get().(*[]tap)
	buf := *bufPtr
	if cap(buf) < n {
		return make([]tap, n)
	}
	return buf[:n]
}

func putTaps(buf []tap) {
	if buf == nil {
		return
	}
	buf = buf[:0]
	tapPool.Put(&buf)
}

func wrapInt(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
