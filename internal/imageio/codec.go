package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"github.com/h2non/filetype"
	"github.com/vearutop/cubemap"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func init() {
	filetype.AddMatcher(filetype.NewType("hdr", "image/vnd.radiance"), isRadiance)
}

// EncodeOptions tunes Encode.
type EncodeOptions struct {
	// JPEGQuality is 1..100, 0 means 95.
	JPEGQuality int
	// HalfFloat writes EXR channels as 16-bit floats instead of 32-bit.
	HalfFloat bool
}

// Sniff detects the format from the leading bytes of data.
func Sniff(data []byte) (Format, bool) {
	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		if f, err := ParseFormat(kind.Extension); err == nil {
			return f, true
		}
	}
	if len(data) >= 4 && data[0] == 0x76 && data[1] == 0x2f && data[2] == 0x31 && data[3] == 0x01 {
		return FormatEXR, true
	}
	return 0, false
}

// Decode decodes data as format f into a float buffer with values in the file's
// own encoding (see Format.Encoding). 8-bit formats are scaled to [0,1]. Content
// that is not f yields ErrUnsupportedFormat.
func Decode(data []byte, f Format) (*cubemap.PixelBuffer, error) {
	got, ok := Sniff(data)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized %s content", ErrUnsupportedFormat, f)
	}
	if got != f {
		return nil, fmt.Errorf("%w: expected %s, content is %s", ErrUnsupportedFormat, f, got)
	}

	switch f {
	case FormatEXR:
		return decodeEXR(data)
	case FormatHDR:
		return decodeHDR(data)
	}

	var (
		img image.Image
		err error
	)
	r := bytes.NewReader(data)
	switch f {
	case FormatPNG:
		img, err = png.Decode(r)
	case FormatJPEG:
		img, err = jpeg.Decode(r)
	case FormatTIFF:
		img, err = tiff.Decode(r)
	case FormatBMP:
		img, err = bmp.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f, err)
	}
	return fromImage(img), nil
}

// DecodeAny decodes data in whatever supported format it is.
func DecodeAny(data []byte) (*cubemap.PixelBuffer, Format, error) {
	f, ok := Sniff(data)
	if !ok {
		return nil, 0, fmt.Errorf("%w: unrecognized content", ErrUnsupportedFormat)
	}
	buf, err := Decode(data, f)
	return buf, f, err
}

// Encode writes buf in format f. 8-bit formats clamp samples to [0,1].
func Encode(w io.Writer, buf *cubemap.PixelBuffer, f Format, opt EncodeOptions) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	switch f {
	case FormatEXR:
		return encodeEXR(w, buf, opt.HalfFloat)
	case FormatHDR:
		return encodeHDR(w, buf)
	case FormatPNG:
		return png.Encode(w, toImage(buf, true))
	case FormatJPEG:
		q := opt.JPEGQuality
		if q <= 0 || q > 100 {
			q = 95
		}
		return jpeg.Encode(w, toImage(buf, false), &jpeg.Options{Quality: q})
	case FormatTIFF:
		return tiff.Encode(w, toImage(buf, true), &tiff.Options{Compression: tiff.Deflate})
	case FormatBMP:
		return bmp.Encode(w, toImage(buf, true))
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

type opaquer interface {
	Opaque() bool
}

// fromImage converts img to a float buffer: gray images get 1 channel, opaque
// images 3, others 4 with straight (non-premultiplied) color.
func fromImage(img image.Image) *cubemap.PixelBuffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	ch := 4
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		ch = 1
	default:
		if o, ok := img.(opaquer); ok && o.Opaque() {
			ch = 3
		}
	}

	out := cubemap.NewPixelBuffer(w, h, ch)
	if n, ok := img.(*image.NRGBA); ok && ch == 4 {
		// Straight alpha is read as is, RGBA() would premultiply it.
		for y := 0; y < h; y++ {
			row := n.Pix[y*n.Stride : y*n.Stride+w*4]
			for i, v := range row {
				out.Pix[y*w*4+i] = float32(v) / 0xff
			}
		}
		return out
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			px := out.Pix[(y*w+x)*ch : (y*w+x+1)*ch]
			px[0] = float32(c.R) / 0xffff
			if ch == 1 {
				continue
			}
			px[1] = float32(c.G) / 0xffff
			px[2] = float32(c.B) / 0xffff
			if ch == 4 {
				px[3] = float32(c.A) / 0xffff
			}
		}
	}
	return out
}

// toImage quantizes buf to 8 bits. Without alpha the result is opaque.
func toImage(buf *cubemap.PixelBuffer, alpha bool) image.Image {
	rect := image.Rect(0, 0, buf.Width, buf.Height)
	if buf.Channels == 1 {
		img := image.NewGray(rect)
		for i, v := range buf.Pix {
			img.Pix[i] = quantize(v)
		}
		return img
	}

	img := image.NewNRGBA(rect)
	ch := buf.Channels
	for i, o := 0, 0; i+ch <= len(buf.Pix); i, o = i+ch, o+4 {
		img.Pix[o] = quantize(buf.Pix[i])
		img.Pix[o+1] = quantize(buf.Pix[i+1])
		img.Pix[o+2] = quantize(buf.Pix[i+2])
		img.Pix[o+3] = 0xff
		if alpha && ch == 4 {
			img.Pix[o+3] = quantize(buf.Pix[i+3])
		}
	}
	return img
}

func quantize(v float32) uint8 {
	switch {
	case math.IsNaN(float64(v)) || v <= 0:
		return 0
	case v >= 1:
		return 0xff
	default:
		return uint8(v*0xff + 0.5)
	}
}
