// Package image manages the firmware files handed to a transport: the
// original file, a header-stripped copy, or a binary converted from Intel HEX.
// Derived images live in uniquely named temp files that are removed by Close.
package image

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Image is a firmware file ready to be written.
type Image struct {
	// Path of the file holding the bytes to write
	Path string

	// Source is the user-supplied file the image derives from
	Source string

	temp bool
}

// Open wraps an existing file without copying it. Close is a no-op.
func Open(path string) *Image {
	return &Image{Path: path, Source: path}
}

// Temporary reports whether Close removes the backing file.
func (img *Image) Temporary() bool {
	return img.temp
}

// Close releases the backing file of a derived image. It is safe to call more
// than once and on a nil image.
func (img *Image) Close() error {
	if img == nil || !img.temp {
		return nil
	}
	img.temp = false
	if err := os.Remove(img.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove temp image: %w", err)
	}
	return nil
}

// StripHeader copies src without its first n bytes into a new temp file.
// The source file is not modified. On failure no temp file is left behind.
func StripHeader(src string, n int64) (*Image, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open source image: %w", err)
	}
	defer in.Close()

	if _, err := in.Seek(n, io.SeekStart); err != nil {
		return nil, fmt.Errorf("skip %d byte header: %w", n, err)
	}

	return writeTemp(src, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// writeTemp creates <stem>.<uuid>.bin in the temp directory and fills it
// using fill.
func writeTemp(src string, fill func(io.Writer) error) (*Image, error) {
	path := tempName(src)
	out, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp image: %w", err)
	}

	if err := fill(out); err != nil {
		out.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write temp image: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close temp image: %w", err)
	}

	return &Image{Path: path, Source: src, temp: true}, nil
}

func tempName(src string) string {
	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s.%s.bin", stem, uuid.NewString()))
}
