package cubemap

import "github.com/chewxy/math32"

// SRGBToLinear decodes one sRGB sample. Samples at or below the toe, negatives
// included, take the linear segment, so the power function never sees a negative.
func SRGBToLinear(s float32) float32 {
	if s <= srgbDecodeThreshold {
		return s / srgbLinearSlope
	}
	return math32.Pow((s+srgbOffset)/(1+srgbOffset), srgbGamma)
}

// LinearToSRGB encodes one linear sample with the sRGB transfer function.
func LinearToSRGB(l float32) float32 {
	if l <= srgbEncodeThreshold {
		return l * srgbLinearSlope
	}
	return (1+srgbOffset)*math32.Pow(l, 1/srgbGamma) - srgbOffset
}

// ToLinear decodes the RGB channels of buf in place. The alpha channel of
// 4-channel buffers is left untouched.
func ToLinear(buf *PixelBuffer, enc Encoding) {
	if enc == EncodingLinear {
		return
	}
	applyRGB(buf, SRGBToLinear)
}

// ToEncoded encodes the linear RGB channels of buf in place.
func ToEncoded(buf *PixelBuffer, enc Encoding) {
	if enc == EncodingLinear {
		return
	}
	applyRGB(buf, LinearToSRGB)
}

// Clamp01 clamps every sample of buf to [0,1].
func Clamp01(buf *PixelBuffer) {
	for i, v := range buf.Pix {
		buf.Pix[i] = clamp01(v)
	}
}

func applyRGB(buf *PixelBuffer, fn func(float32) float32) {
	ch := buf.Channels
	color := ch
	if ch == 4 {
		color = 3
	}
	pix := buf.Pix
	for i := 0; i+ch <= len(pix); i += ch {
		for c := 0; c < color; c++ {
			pix[i+c] = fn(pix[i+c])
		}
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
