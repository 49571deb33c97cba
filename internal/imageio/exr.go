package imageio

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/vearutop/cubemap"
)

const exrMagic = 20000630

const (
	exrCompressionNone = 0
	exrCompressionZips = 2
	exrCompressionZip  = 3
)

const (
	exrPixelUint  = 0
	exrPixelHalf  = 1
	exrPixelFloat = 2
)

const (
	exrChanOther = -2
	exrChanY     = -1
	exrChanR     = 0
	exrChanG     = 1
	exrChanB     = 2
	exrChanA     = 3
)

// exrZipLines is the number of scanlines in a ZIP compressed block.
const exrZipLines = 16

type exrChannel struct {
	name      string
	pixelType int32
	xSampling int32
	ySampling int32
	role      int
}

func (c exrChannel) bytesPerSample() int {
	if c.pixelType == exrPixelHalf {
		return 2
	}
	return 4
}

// decodeEXR reads a single part scanline OpenEXR image. R, G, B and A channels
// map to RGBA, a lone Y channel gives a gray buffer. Other channels are ignored.
func decodeEXR(data []byte) (*cubemap.PixelBuffer, error) {
	r := bytes.NewReader(data)
	magic, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if magic != exrMagic {
		return nil, errors.New("not an OpenEXR file")
	}
	version, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if version&0x00000200 != 0 {
		return nil, errors.New("tiled OpenEXR not supported")
	}
	if version&0x00000800 != 0 {
		return nil, errors.New("multipart OpenEXR not supported")
	}
	if version&0x00000400 != 0 {
		return nil, errors.New("deep OpenEXR not supported")
	}

	var (
		channels      []exrChannel
		dataWindow    [4]int32
		hasDataWindow bool
		compression   byte = exrCompressionNone
	)

	for {
		name, err := readNullString(r)
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		typ, err := readNullString(r)
		if err != nil {
			return nil, err
		}
		size, err := readI32(r)
		if err != nil {
			return nil, err
		}
		if size < 0 || int64(size) > int64(r.Len()) {
			return nil, errors.New("invalid EXR attribute size")
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}

		switch name {
		case "channels":
			if typ != "chlist" {
				return nil, errors.New("unexpected channels attribute type")
			}
			if channels, err = parseEXRChannels(payload); err != nil {
				return nil, err
			}
		case "dataWindow":
			if typ != "box2i" || len(payload) != 16 {
				return nil, errors.New("invalid dataWindow attribute")
			}
			for i := range dataWindow {
				dataWindow[i] = int32(binary.LittleEndian.Uint32(payload[i*4:]))
			}
			hasDataWindow = true
		case "compression":
			if typ != "compression" || len(payload) < 1 {
				return nil, errors.New("invalid compression attribute")
			}
			compression = payload[0]
		case "tiles":
			return nil, errors.New("tiled OpenEXR not supported")
		}
	}

	if len(channels) == 0 {
		return nil, errors.New("OpenEXR missing channels")
	}
	if !hasDataWindow {
		return nil, errors.New("OpenEXR missing dataWindow")
	}
	for _, ch := range channels {
		if ch.xSampling != 1 || ch.ySampling != 1 {
			return nil, errors.New("OpenEXR subsampled channels are not supported")
		}
	}
	if compression != exrCompressionNone && compression != exrCompressionZips && compression != exrCompressionZip {
		return nil, fmt.Errorf("unsupported OpenEXR compression %d", compression)
	}

	width := int(dataWindow[2]-dataWindow[0]) + 1
	height := int(dataWindow[3]-dataWindow[1]) + 1
	if width <= 0 || height <= 0 {
		return nil, errors.New("invalid OpenEXR dimensions")
	}

	nch := exrBufferChannels(channels)
	if nch == 0 {
		return nil, errors.New("OpenEXR missing R/G/B or Y channels")
	}

	blockLines := 1
	if compression == exrCompressionZip {
		blockLines = exrZipLines
	}
	blockCount := (height + blockLines - 1) / blockLines
	offsets := make([]uint64, blockCount)
	for i := range offsets {
		if offsets[i], err = readU64(r); err != nil {
			return nil, err
		}
	}

	dst := cubemap.NewPixelBuffer(width, height, nch)
	if nch == 4 {
		// Alpha defaults to opaque when the file has no A channel.
		for i := 3; i < len(dst.Pix); i += 4 {
			dst.Pix[i] = 1
		}
	}

	baseY := int(dataWindow[1])
	for block := 0; block < blockCount; block++ {
		if offsets[block] == 0 {
			continue
		}
		if _, err := r.Seek(int64(offsets[block]), io.SeekStart); err != nil {
			return nil, err
		}
		y, err := readI32(r)
		if err != nil {
			return nil, err
		}
		dataSize, err := readI32(r)
		if err != nil {
			return nil, err
		}
		if dataSize < 0 || int64(dataSize) > int64(r.Len()) {
			return nil, errors.New("invalid OpenEXR block size")
		}
		raw := make([]byte, dataSize)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, err
		}

		startY := int(y) - baseY
		if startY < 0 || startY >= height {
			return nil, errors.New("OpenEXR scanline out of bounds")
		}
		lines := blockLines
		if startY+lines > height {
			lines = height - startY
		}

		expected := exrBlockBytes(width, lines, channels)
		unpacked, err := exrDecompress(compression, raw, expected)
		if err != nil {
			return nil, err
		}
		if err := exrDecodeBlock(dst, channels, startY, lines, unpacked); err != nil {
			return nil, err
		}
	}

	return dst, nil
}

// exrBufferChannels picks the buffer layout for the channel list: 4 with alpha,
// 3 for color, 1 for luminance only, 0 when there is nothing to show.
func exrBufferChannels(channels []exrChannel) int {
	var color, lum, alpha bool
	for _, ch := range channels {
		switch ch.role {
		case exrChanR, exrChanG, exrChanB:
			color = true
		case exrChanY:
			lum = true
		case exrChanA:
			alpha = true
		}
	}
	switch {
	case !color && !lum:
		return 0
	case alpha:
		return 4
	case color:
		return 3
	default:
		return 1
	}
}

func parseEXRChannels(data []byte) ([]exrChannel, error) {
	r := bytes.NewReader(data)
	var channels []exrChannel
	for {
		name, err := readNullString(r)
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		pixelType, err := readI32(r)
		if err != nil {
			return nil, err
		}
		if pixelType != exrPixelHalf && pixelType != exrPixelFloat && pixelType != exrPixelUint {
			return nil, fmt.Errorf("unsupported OpenEXR pixel type %d", pixelType)
		}
		// pLinear and three reserved bytes.
		if _, err := r.Seek(4, io.SeekCurrent); err != nil {
			return nil, err
		}
		xSampling, err := readI32(r)
		if err != nil {
			return nil, err
		}
		ySampling, err := readI32(r)
		if err != nil {
			return nil, err
		}
		role := exrChanOther
		switch name {
		case "R", "r":
			role = exrChanR
		case "G", "g":
			role = exrChanG
		case "B", "b":
			role = exrChanB
		case "A", "a":
			role = exrChanA
		case "Y", "y":
			role = exrChanY
		}
		channels = append(channels, exrChannel{
			name:      name,
			pixelType: pixelType,
			xSampling: xSampling,
			ySampling: ySampling,
			role:      role,
		})
	}
	return channels, nil
}

func exrBlockBytes(width, lines int, channels []exrChannel) int {
	total := 0
	for _, ch := range channels {
		total += width * lines * ch.bytesPerSample()
	}
	return total
}

func exrDecompress(compression byte, data []byte, expected int) ([]byte, error) {
	switch compression {
	case exrCompressionNone:
		if len(data) != expected {
			return nil, errors.New("unexpected OpenEXR block size")
		}
		return data, nil
	case exrCompressionZips, exrCompressionZip:
		// Blocks that did not shrink are stored as is.
		if len(data) == expected {
			return data, nil
		}
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		uncompressed, err := io.ReadAll(io.LimitReader(zr, int64(expected)+1))
		if err != nil {
			return nil, err
		}
		if len(uncompressed) != expected {
			return nil, errors.New("unexpected OpenEXR decompressed size")
		}
		undoPredictor(uncompressed)
		return unshuffleBytes(uncompressed), nil
	default:
		return nil, errors.New("unsupported OpenEXR compression")
	}
}

func undoPredictor(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] = byte(int(data[i]) + int(data[i-1]) - 128)
	}
}

func applyPredictor(data []byte) {
	for i := len(data) - 1; i > 0; i-- {
		data[i] = byte(int(data[i]) - int(data[i-1]) + 128)
	}
}

func unshuffleBytes(data []byte) []byte {
	n := (len(data) + 1) / 2
	out := make([]byte, len(data))
	for i := range out {
		if i%2 == 0 {
			out[i] = data[i/2]
		} else {
			out[i] = data[n+i/2]
		}
	}
	return out
}

func shuffleBytes(data []byte) []byte {
	n := (len(data) + 1) / 2
	out := make([]byte, len(data))
	for i, b := range data {
		if i%2 == 0 {
			out[i/2] = b
		} else {
			out[n+i/2] = b
		}
	}
	return out
}

func exrDecodeBlock(dst *cubemap.PixelBuffer, channels []exrChannel, startY, lines int, data []byte) error {
	width := dst.Width
	offset := 0
	for row := 0; row < lines; row++ {
		y := startY + row
		for _, ch := range channels {
			lineBytes := width * ch.bytesPerSample()
			if offset+lineBytes > len(data) {
				return errors.New("OpenEXR block truncated")
			}
			line := data[offset : offset+lineBytes]
			offset += lineBytes

			if ch.role != exrChanOther {
				exrApplyLine(dst, ch.role, y, ch.pixelType, line)
			}
		}
	}
	return nil
}

func exrApplyLine(dst *cubemap.PixelBuffer, role, y int, pixelType int32, line []byte) {
	nch := dst.Channels
	for x := 0; x < dst.Width; x++ {
		var v float32
		switch pixelType {
		case exrPixelHalf:
			v = halfToFloat32(binary.LittleEndian.Uint16(line[x*2:]))
		case exrPixelFloat:
			v = math.Float32frombits(binary.LittleEndian.Uint32(line[x*4:]))
		default:
			v = float32(binary.LittleEndian.Uint32(line[x*4:]))
		}
		px := dst.Pix[(y*dst.Width+x)*nch : (y*dst.Width+x+1)*nch]
		switch {
		case role == exrChanY:
			for c := 0; c < nch && c < 3; c++ {
				px[c] = v
			}
		case role == exrChanA:
			px[3] = v
		case nch >= 3:
			px[role] = v
		}
	}
}

// encodeEXR writes buf as a ZIP compressed scanline OpenEXR file with HALF or
// FLOAT channels. Gray buffers are written as Y, others as (A)BGR.
func encodeEXR(w io.Writer, buf *cubemap.PixelBuffer, half bool) error {
	pixelType := int32(exrPixelFloat)
	if half {
		pixelType = exrPixelHalf
	}

	// Buffer channel index per file channel, in the alphabetical order files require.
	type fileChannel struct {
		name string
		src  int
	}
	var chans []fileChannel
	switch buf.Channels {
	case 1:
		chans = []fileChannel{{"Y", 0}}
	case 3:
		chans = []fileChannel{{"R", 0}, {"G", 1}, {"B", 2}}
	default:
		chans = []fileChannel{{"R", 0}, {"G", 1}, {"B", 2}, {"A", 3}}
	}
	sort.Slice(chans, func(i, j int) bool { return chans[i].name < chans[j].name })

	var hdr bytes.Buffer
	putU32(&hdr, exrMagic)
	putU32(&hdr, 2)

	var chlist bytes.Buffer
	for _, c := range chans {
		chlist.WriteString(c.name)
		chlist.WriteByte(0)
		putU32(&chlist, uint32(pixelType))
		chlist.Write([]byte{0, 0, 0, 0})
		putU32(&chlist, 1)
		putU32(&chlist, 1)
	}
	chlist.WriteByte(0)

	var box bytes.Buffer
	putU32(&box, 0)
	putU32(&box, 0)
	putU32(&box, uint32(buf.Width-1))
	putU32(&box, uint32(buf.Height-1))

	var f32 [4]byte
	var center [8]byte

	writeAttr(&hdr, "channels", "chlist", chlist.Bytes())
	writeAttr(&hdr, "compression", "compression", []byte{exrCompressionZip})
	writeAttr(&hdr, "dataWindow", "box2i", box.Bytes())
	writeAttr(&hdr, "displayWindow", "box2i", box.Bytes())
	writeAttr(&hdr, "lineOrder", "lineOrder", []byte{0})
	binary.LittleEndian.PutUint32(f32[:], math.Float32bits(1))
	writeAttr(&hdr, "pixelAspectRatio", "float", f32[:])
	writeAttr(&hdr, "screenWindowCenter", "v2f", center[:])
	writeAttr(&hdr, "screenWindowWidth", "float", f32[:])
	hdr.WriteByte(0)

	blockCount := (buf.Height + exrZipLines - 1) / exrZipLines
	blocks := make([][]byte, blockCount)
	bps := 4
	if half {
		bps = 2
	}
	for b := range blocks {
		startY := b * exrZipLines
		lines := min(exrZipLines, buf.Height-startY)
		raw := make([]byte, 0, lines*buf.Width*len(chans)*bps)
		for y := startY; y < startY+lines; y++ {
			for _, c := range chans {
				for x := 0; x < buf.Width; x++ {
					v := buf.Pix[(y*buf.Width+x)*buf.Channels+c.src]
					if half {
						raw = binary.LittleEndian.AppendUint16(raw, float32ToHalf(v))
					} else {
						raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v))
					}
				}
			}
		}
		packed, err := exrCompress(raw)
		if err != nil {
			return err
		}

		var block bytes.Buffer
		putU32(&block, uint32(startY))
		putU32(&block, uint32(len(packed)))
		block.Write(packed)
		blocks[b] = block.Bytes()
	}

	offset := uint64(hdr.Len() + 8*blockCount)
	for _, b := range blocks {
		var o [8]byte
		binary.LittleEndian.PutUint64(o[:], offset)
		hdr.Write(o[:])
		offset += uint64(len(b))
	}

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	for _, b := range blocks {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func exrCompress(raw []byte) ([]byte, error) {
	t := shuffleBytes(raw)
	applyPredictor(t)

	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(t); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if out.Len() >= len(raw) {
		return raw, nil
	}
	return out.Bytes(), nil
}

func writeAttr(b *bytes.Buffer, name, typ string, value []byte) {
	b.WriteString(name)
	b.WriteByte(0)
	b.WriteString(typ)
	b.WriteByte(0)
	putU32(b, uint32(len(value)))
	b.Write(value)
}

func putU32(b *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Write(buf[:])
}

func readNullString(r *bytes.Reader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readI32(r *bytes.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}
