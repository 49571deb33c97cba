package cubemap

import "fmt"

// ConvertEquirectToCube projects an equirectangular panorama onto a cube cross.
//
// The face size defaults to src.Width/4, so the output is 4*faceSize by 3*faceSize.
// With separateAlpha the result holds an RGB buffer (alpha forced to 1) and an alpha
// buffer (alpha replicated into RGB), otherwise a single RGBA buffer.
func ConvertEquirectToCube(src *PixelBuffer, enc Encoding, separateAlpha bool, opts ...func(o *Options)) (*Result, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	opt := collectOptions(opts)

	fs := opt.FaceSize
	if fs == 0 {
		fs = src.Width / diceColumns
	}
	if fs <= 0 {
		return nil, fmt.Errorf("%w: face size %d for %dx%d source", ErrInvalidInput, fs, src.Width, src.Height)
	}

	return convert(src, enc, separateAlpha, opt,
		ProjectionEquirectangular, ProjectionCubemap, fs*diceColumns, fs*diceRows)
}

// ConvertCubeToEquirect unrolls a cube cross into an equirectangular panorama.
//
// The source must hold 4x3 faces (see CubeFaceSize). The output defaults to
// (width/4)*8 by (height/3)*4, a 2:1 panorama, unless Options.Width and
// Options.Height are set.
func ConvertCubeToEquirect(src *PixelBuffer, enc Encoding, separateAlpha bool, opts ...func(o *Options)) (*Result, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	opt := collectOptions(opts)

	fs, err := CubeFaceSize(src.Width, src.Height)
	if err != nil {
		return nil, err
	}
	w, h := EquirectSize(fs)
	if opt.Width > 0 {
		w = opt.Width
	}
	if opt.Height > 0 {
		h = opt.Height
	}

	return convert(src, enc, separateAlpha, opt,
		ProjectionCubemap, ProjectionEquirectangular, w, h)
}

// EquirectSize returns the default equirectangular size for a cube face size.
func EquirectSize(faceSize int) (width, height int) {
	return faceSize * equirectFacesWide, faceSize * equirectFacesHigh
}

// GuessProjection guesses the projection of an image from its aspect ratio:
// 4:3 is a cube cross and 2:1 an equirectangular panorama.
func GuessProjection(width, height int) (Projection, bool) {
	switch {
	case width <= 0 || height <= 0:
		return 0, false
	case width*diceRows == height*diceColumns:
		return ProjectionCubemap, true
	case width == 2*height:
		return ProjectionEquirectangular, true
	default:
		return 0, false
	}
}

func collectOptions(opts []func(o *Options)) Options {
	var opt Options
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}
	return opt
}

func convert(src *PixelBuffer, enc Encoding, separateAlpha bool, opt Options, from, to Projection, w, h int) (*Result, error) {
	outEnc := enc
	if opt.OutputEncoding != nil {
		outEnc = *opt.OutputEncoding
	}

	work := toLinearRGBA(src, enc)
	dst, err := Resample(work, from, to, w, h, opt.Interpolation, opt.Workers)
	if err != nil {
		return nil, err
	}

	ToEncoded(dst, outEnc)
	if opt.ClampOutput {
		Clamp01(dst)
	}

	res := &Result{Projection: to}
	if !separateAlpha {
		res.Outputs = []Output{{Role: RoleCombined, Buffer: dst, Encoding: outEnc}}
		return res, nil
	}

	rgb, alpha := splitAlpha(dst)
	res.Outputs = []Output{
		{Role: RoleRGB, Buffer: rgb, Encoding: outEnc},
		{Role: RoleAlpha, Buffer: alpha, Encoding: EncodingLinear},
	}
	return res, nil
}

// toLinearRGBA expands src into a fresh RGBA buffer with linear RGB. Single
// channel sources are treated as gray; missing alpha is 1.
func toLinearRGBA(src *PixelBuffer, enc Encoding) *PixelBuffer {
	out := NewPixelBuffer(src.Width, src.Height, 4)
	n := src.Width * src.Height
	sp, op := src.Pix, out.Pix
	switch src.Channels {
	case 1:
		for i := 0; i < n; i++ {
			v := sp[i]
			op[i*4], op[i*4+1], op[i*4+2], op[i*4+3] = v, v, v, 1
		}
	case 3:
		for i := 0; i < n; i++ {
			op[i*4], op[i*4+1], op[i*4+2], op[i*4+3] = sp[i*3], sp[i*3+1], sp[i*3+2], 1
		}
	default:
		copy(op, sp)
	}
	ToLinear(out, enc)
	return out
}

// splitAlpha turns an RGBA buffer into an opaque RGB buffer and an opaque
// alpha-as-gray buffer. The input is reused for the RGB output.
func splitAlpha(buf *PixelBuffer) (rgb, alpha *PixelBuffer) {
	alpha = NewPixelBuffer(buf.Width, buf.Height, 4)
	p, a := buf.Pix, alpha.Pix
	for i := 0; i+4 <= len(p); i += 4 {
		v := p[i+3]
		a[i], a[i+1], a[i+2], a[i+3] = v, v, v, 1
		p[i+3] = 1
	}
	return buf, alpha
}
