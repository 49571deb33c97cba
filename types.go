package cubemap

import (
	"errors"
	"fmt"
)

// ErrInvalidInput reports a buffer or geometry that violates a precondition.
var ErrInvalidInput = errors.New("invalid input")

// Encoding identifies how the RGB samples of a buffer are encoded.
type Encoding int

const (
	// EncodingLinear is linear light.
	EncodingLinear Encoding = iota
	// EncodingSRGB is the sRGB transfer function (gamma encoded).
	EncodingSRGB
)

func (e Encoding) String() string {
	switch e {
	case EncodingLinear:
		return "linear"
	case EncodingSRGB:
		return "srgb"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// Projection identifies a panorama layout.
type Projection int

const (
	// ProjectionEquirectangular maps longitude to x and latitude to y, nominally 2:1.
	ProjectionEquirectangular Projection = iota
	// ProjectionCubemap is six square faces in a 4x3 cross.
	ProjectionCubemap
)

func (p Projection) String() string {
	switch p {
	case ProjectionEquirectangular:
		return "equirectangular"
	case ProjectionCubemap:
		return "cubemap"
	default:
		return fmt.Sprintf("Projection(%d)", int(p))
	}
}

// PixelBuffer is a dense row-major float32 image with interleaved channels.
// Values are not clamped, so HDR data survives unchanged.
type PixelBuffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []float32
}

// NewPixelBuffer allocates a zeroed buffer.
func NewPixelBuffer(width, height, channels int) *PixelBuffer {
	return &PixelBuffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float32, width*height*channels),
	}
}

// Validate checks the dimensions, channel count and backing slice length.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidInput)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidInput, b.Width, b.Height)
	}
	switch b.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("%w: %d channels, want 1, 3 or 4", ErrInvalidInput, b.Channels)
	}
	if want := b.Width * b.Height * b.Channels; len(b.Pix) != want {
		return fmt.Errorf("%w: %d samples for %dx%dx%d, want %d",
			ErrInvalidInput, len(b.Pix), b.Width, b.Height, b.Channels, want)
	}
	return nil
}

// At returns channel c of pixel (x, y).
func (b *PixelBuffer) At(x, y, c int) float32 {
	return b.Pix[(y*b.Width+x)*b.Channels+c]
}

// Set stores channel c of pixel (x, y).
func (b *PixelBuffer) Set(x, y, c int, v float32) {
	b.Pix[(y*b.Width+x)*b.Channels+c] = v
}

// Clone returns a deep copy.
func (b *PixelBuffer) Clone() *PixelBuffer {
	out := *b
	out.Pix = append([]float32(nil), b.Pix...)
	return &out
}

// Interpolation selects how fractional source coordinates are sampled.
type Interpolation int

const (
	// InterpolationBilinear blends the four nearest source pixels.
	InterpolationBilinear Interpolation = iota
	// InterpolationNearest takes the closest source pixel.
	InterpolationNearest
)

// Options controls a projection conversion.
type Options struct {
	// FaceSize overrides the cube face edge for equirectangular to cubemap, 0 means width/4.
	FaceSize int
	// Width and Height override the equirectangular output size, 0 means the 2:1 default.
	Width  int
	Height int
	// OutputEncoding is the RGB encoding of the outputs, nil keeps the input encoding.
	OutputEncoding *Encoding
	// ClampOutput clamps outputs to [0,1] after re-encoding, for 8-bit targets.
	ClampOutput   bool
	Interpolation Interpolation
	// Workers bounds row parallelism, 0 uses GOMAXPROCS.
	Workers int
}

// OutputRole tells what an output buffer carries.
type OutputRole int

const (
	// RoleCombined is RGB with the resampled alpha.
	RoleCombined OutputRole = iota
	// RoleRGB is RGB with alpha forced to 1.
	RoleRGB
	// RoleAlpha is the resampled alpha replicated into RGB, with alpha forced to 1.
	RoleAlpha
)

func (r OutputRole) String() string {
	switch r {
	case RoleCombined:
		return "combined"
	case RoleRGB:
		return "rgb"
	case RoleAlpha:
		return "alpha"
	default:
		return fmt.Sprintf("OutputRole(%d)", int(r))
	}
}

// Output is one RGBA buffer produced by a conversion.
type Output struct {
	Role     OutputRole
	Buffer   *PixelBuffer
	Encoding Encoding
}

// Suffix returns the file name suffix conventionally used for the role.
func (o Output) Suffix() string {
	switch o.Role {
	case RoleRGB:
		return "_rgb"
	case RoleAlpha:
		return "_alpha"
	default:
		return ""
	}
}

// Result holds the buffers of one conversion: a single combined buffer, or an
// RGB and alpha pair.
type Result struct {
	Projection Projection
	Outputs    []Output
}

// Output returns the output with the given role, if present.
func (r *Result) Output(role OutputRole) (Output, bool) {
	for _, o := range r.Outputs {
		if o.Role == role {
			return o, true
		}
	}
	return Output{}, false
}
