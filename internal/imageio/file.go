package imageio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vearutop/cubemap"
)

// ReadFile decodes the image at path, using the extension as the expected format.
func ReadFile(path string) (*cubemap.PixelBuffer, Format, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, 0, err
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	buf, err := Decode(data, f)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	return buf, f, nil
}

// WriteFile encodes buf into a new file at path, replacing any existing file.
func WriteFile(path string, buf *cubemap.PixelBuffer, f Format, opt EncodeOptions) (err error) {
	out, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	w := bufio.NewWriter(out)
	if err := Encode(w, buf, f, opt); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return w.Flush()
}
