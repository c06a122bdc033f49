package image

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
)

// padByte fills gaps between Intel HEX segments, matching erased flash.
const padByte = 0xFF

// IsHex reports whether path names an Intel HEX file.
func IsHex(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".hex" || ext == ".ihex"
}

// FromHex converts an Intel HEX file into a flat binary starting at the
// lowest data address. Gaps are filled with 0xFF.
func FromHex(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hex image: %w", err)
	}
	defer file.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(file); err != nil {
		return nil, fmt.Errorf("parse hex image %s: %w", path, err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("hex image %s has no data", path)
	}

	start := segments[0].Address
	end := start
	for _, s := range segments {
		if s.Address < start {
			start = s.Address
		}
		if e := s.Address + uint32(len(s.Data)); e > end {
			end = e
		}
	}

	data := mem.ToBinary(start, end-start, padByte)
	return writeTemp(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
