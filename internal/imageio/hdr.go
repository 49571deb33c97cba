package imageio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/vearutop/cubemap"
)

var radianceMagics = []string{"#?RADIANCE", "#?RGBE"}

func isRadiance(data []byte) bool {
	for _, m := range radianceMagics {
		if bytes.HasPrefix(data, []byte(m)) {
			return true
		}
	}
	return false
}

// decodeHDR reads a Radiance RGBE picture with the standard -Y H +X W
// orientation. Flat and run-length encoded scanlines are supported.
func decodeHDR(data []byte) (*cubemap.PixelBuffer, error) {
	if !isRadiance(data) {
		return nil, errors.New("not a Radiance HDR file")
	}
	r := bufio.NewReader(bytes.NewReader(data))

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading Radiance header: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if format, ok := strings.CutPrefix(line, "FORMAT="); ok && format != "32-bit_rle_rgbe" {
			return nil, fmt.Errorf("unsupported Radiance format %q", format)
		}
	}

	res, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading Radiance resolution: %w", err)
	}
	var width, height int
	if _, err := fmt.Sscanf(strings.TrimSpace(res), "-Y %d +X %d", &height, &width); err != nil {
		return nil, fmt.Errorf("unsupported Radiance resolution %q", strings.TrimSpace(res))
	}
	if width <= 0 || height <= 0 {
		return nil, errors.New("invalid Radiance dimensions")
	}

	dst := cubemap.NewPixelBuffer(width, height, 3)
	scan := make([]byte, width*4)
	for y := 0; y < height; y++ {
		if err := readRGBEScanline(r, scan, width); err != nil {
			return nil, fmt.Errorf("scanline %d: %w", y, err)
		}
		row := dst.Pix[y*width*3 : (y+1)*width*3]
		for x := 0; x < width; x++ {
			row[x*3], row[x*3+1], row[x*3+2] = rgbeToFloat(scan[x*4 : x*4+4])
		}
	}
	return dst, nil
}

// readRGBEScanline fills scan with width interleaved RGBE pixels.
func readRGBEScanline(r *bufio.Reader, scan []byte, width int) error {
	head, err := r.Peek(4)
	if err != nil {
		return err
	}
	if width < 8 || width > 0x7fff || head[0] != 2 || head[1] != 2 || head[2]&0x80 != 0 {
		_, err := io.ReadFull(r, scan)
		return err
	}
	if int(head[2])<<8|int(head[3]) != width {
		return errors.New("Radiance scanline width mismatch")
	}
	if _, err := r.Discard(4); err != nil {
		return err
	}

	for c := 0; c < 4; c++ {
		for x := 0; x < width; {
			count, err := r.ReadByte()
			if err != nil {
				return err
			}
			if count > 128 {
				n := int(count - 128)
				v, err := r.ReadByte()
				if err != nil {
					return err
				}
				if x+n > width {
					return errors.New("Radiance run overflows scanline")
				}
				for ; n > 0; n-- {
					scan[x*4+c] = v
					x++
				}
				continue
			}
			n := int(count)
			if n == 0 || x+n > width {
				return errors.New("bad Radiance literal run")
			}
			for ; n > 0; n-- {
				v, err := r.ReadByte()
				if err != nil {
					return err
				}
				scan[x*4+c] = v
				x++
			}
		}
	}
	return nil
}

func rgbeToFloat(p []byte) (r, g, b float32) {
	if p[3] == 0 {
		return 0, 0, 0
	}
	f := float32(math.Ldexp(1, int(p[3])-(128+8)))
	return float32(p[0]) * f, float32(p[1]) * f, float32(p[2]) * f
}

func floatToRGBE(r, g, b float32) [4]byte {
	r, g, b = max(r, 0), max(g, 0), max(b, 0)
	v := max(r, g, b)
	if v < 1e-32 {
		return [4]byte{}
	}
	frac, exp := math.Frexp(float64(v))
	scale := frac * 256 / float64(v)
	return [4]byte{mantissa(r, scale), mantissa(g, scale), mantissa(b, scale), byte(exp + 128)}
}

func mantissa(v float32, scale float64) byte {
	return byte(min(float64(v)*scale, 255))
}

// encodeHDR writes buf as a flat Radiance RGBE picture. Alpha is dropped and
// gray is replicated into RGB.
func encodeHDR(w io.Writer, buf *cubemap.PixelBuffer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y %d +X %d\n", buf.Height, buf.Width)

	ch := buf.Channels
	for i := 0; i+ch <= len(buf.Pix); i += ch {
		r := buf.Pix[i]
		g, b := r, r
		if ch >= 3 {
			g, b = buf.Pix[i+1], buf.Pix[i+2]
		}
		p := floatToRGBE(r, g, b)
		if _, err := bw.Write(p[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
