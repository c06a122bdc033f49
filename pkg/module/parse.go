package module

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/edsrzf/mmap-go"
)

const (
	// HeaderSize is the length of the module prefix at the start of an image.
	HeaderSize = 24

	// CRCSize is the length of the trailing CRC32.
	CRCSize = 4

	// SuffixSizeUnknown marks an image whose suffix cannot be verified.
	SuffixSizeUnknown = 0xFFFF

	// DefaultSuffixSize is the suffix length written by current toolchains:
	// product id, product version, reserved, SHA-256 and the size field.
	DefaultSuffixSize = 2 + 2 + 2 + 32 + 2

	// minSuffixSize covers the product id, product version and size fields.
	minSuffixSize = 6
)

var (
	// ErrTooShort is returned for data that cannot hold a prefix and CRC.
	ErrTooShort = errors.New("module: image too short")

	// ErrBadSuffix is returned when the suffix size does not fit the image.
	ErrBadSuffix = errors.New("module: invalid suffix size")
)

// ParseFile decodes the module descriptor of the image at path.
func ParseFile(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	if st.Size() < HeaderSize+CRCSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooShort, st.Size())
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to map image: %w", err)
	}
	defer m.Unmap()

	d, err := Parse(m)
	if err != nil {
		return nil, err
	}
	d.Path = path
	return d, nil
}

// Parse decodes the module descriptor from raw image bytes. The data is only
// read during the call.
func Parse(data []byte) (*Descriptor, error) {
	if len(data) < HeaderSize+CRCSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooShort, len(data))
	}

	le := binary.LittleEndian
	d := &Descriptor{
		StartAddress: le.Uint32(data[0:4]),
		EndAddress:   le.Uint32(data[4:8]),
		Flags:        Flags(data[9]),
		Version:      le.Uint16(data[10:12]),
		PlatformID:   le.Uint16(data[12:14]),
		Function:     Function(data[14]),
		Index:        data[15],
		Size:         len(data),
	}
	for i := range d.Dependencies {
		off := 16 + i*4
		d.Dependencies[i] = Dependency{
			Function: Function(data[off]),
			Index:    data[off+1],
			Version:  le.Uint16(data[off+2 : off+4]),
		}
	}

	crcOff := len(data) - CRCSize
	d.StoredCRC = binary.BigEndian.Uint32(data[crcOff:])
	d.ComputedCRC = crc32.ChecksumIEEE(data[:crcOff])
	d.CRCValid = d.StoredCRC == d.ComputedCRC

	// The suffix size is the last field before the CRC
	d.SuffixSize = le.Uint16(data[crcOff-2 : crcOff])
	if d.SuffixUnknown() {
		return d, nil
	}
	if d.SuffixSize < minSuffixSize || int(d.SuffixSize) > crcOff-HeaderSize {
		// A damaged image often hits the size field too. Report it through
		// the CRC so the caller can still force it.
		if !d.CRCValid {
			return d, nil
		}
		return nil, fmt.Errorf("%w: %d", ErrBadSuffix, d.SuffixSize)
	}
	start := crcOff - int(d.SuffixSize)
	d.ProductID = le.Uint16(data[start : start+2])
	d.ProductVersion = le.Uint16(data[start+2 : start+4])

	return d, nil
}
