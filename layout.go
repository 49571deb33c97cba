package cubemap

import "fmt"

// Faces holds one buffer per face, indexed by Face.
type Faces [6]*PixelBuffer

// Dice cross tiles as (column, row):
//
//	      +Y
//	  -X  +Z  +X  -Z
//	      -Y
var diceTiles = [6][2]int{
	FacePosX: {2, 1},
	FaceNegX: {0, 1},
	FacePosY: {1, 0},
	FaceNegY: {1, 2},
	FacePosZ: {1, 1},
	FaceNegZ: {3, 1},
}

// diceFaces is the inverse of diceTiles, -1 marks a blank cell.
var diceFaces = func() [diceRows][diceColumns]Face {
	var out [diceRows][diceColumns]Face
	for r := range out {
		for c := range out[r] {
			out[r][c] = -1
		}
	}
	for f, t := range diceTiles {
		out[t[1]][t[0]] = Face(f)
	}
	return out
}()

// FaceOrigin returns the top-left pixel of a face in a cross with the given face size.
func FaceOrigin(f Face, faceSize int) (x, y int) {
	t := diceTiles[f]
	return t[0] * faceSize, t[1] * faceSize
}

// CubeFaceSize derives the face size of a cross-layout buffer as width/4, which
// must be positive and equal height/3. Both divisions round down, so up to three
// leftover columns and two leftover rows are accepted and ignored when reading.
func CubeFaceSize(width, height int) (int, error) {
	fs := width / diceColumns
	if fs <= 0 || height/diceRows != fs {
		return 0, fmt.Errorf("%w: %dx%d is not a 4x3 cube cross", ErrInvalidInput, width, height)
	}
	return fs, nil
}

// SplitFaces copies the six faces out of a cross-layout buffer.
func SplitFaces(buf *PixelBuffer) (Faces, error) {
	var faces Faces
	if err := buf.Validate(); err != nil {
		return faces, err
	}
	fs, err := CubeFaceSize(buf.Width, buf.Height)
	if err != nil {
		return faces, err
	}
	rowLen := fs * buf.Channels
	for _, f := range AllFaces {
		face := NewPixelBuffer(fs, fs, buf.Channels)
		ox, oy := FaceOrigin(f, fs)
		for y := 0; y < fs; y++ {
			src := ((oy+y)*buf.Width + ox) * buf.Channels
			copy(face.Pix[y*rowLen:(y+1)*rowLen], buf.Pix[src:src+rowLen])
		}
		faces[f] = face
	}
	return faces, nil
}

// MergeFaces assembles six square faces of identical size and channel count into a
// cross-layout buffer. Blank cells are zero.
func MergeFaces(faces Faces) (*PixelBuffer, error) {
	var fs, ch int
	for _, f := range AllFaces {
		face := faces[f]
		if err := face.Validate(); err != nil {
			return nil, fmt.Errorf("face %s: %w", f, err)
		}
		if face.Width != face.Height {
			return nil, fmt.Errorf("%w: face %s is %dx%d, not square", ErrInvalidInput, f, face.Width, face.Height)
		}
		if f == FacePosX {
			fs, ch = face.Width, face.Channels
			continue
		}
		if face.Width != fs || face.Channels != ch {
			return nil, fmt.Errorf("%w: face %s is %dx%dx%d, want %dx%dx%d",
				ErrInvalidInput, f, face.Width, face.Height, face.Channels, fs, fs, ch)
		}
	}

	out := NewPixelBuffer(fs*diceColumns, fs*diceRows, ch)
	rowLen := fs * ch
	for _, f := range AllFaces {
		ox, oy := FaceOrigin(f, fs)
		for y := 0; y < fs; y++ {
			dst := ((oy+y)*out.Width + ox) * ch
			copy(out.Pix[dst:dst+rowLen], faces[f].Pix[y*rowLen:(y+1)*rowLen])
		}
	}
	return out, nil
}

// faceAt returns the face owning cross pixel (x, y), or -1 for blank cells.
func faceAt(x, y, faceSize int) Face {
	return diceFaces[y/faceSize][x/faceSize]
}
