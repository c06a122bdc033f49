// Package moduletest builds synthetic module binaries for tests.
package moduletest

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/OpenTraceLab/OpenTraceFlash/pkg/module"
)

// Options describes the image to build.
type Options struct {
	Platform uint16
	Function module.Function
	Index    uint8
	Start    uint32
	Flags    module.Flags
	Body     []byte

	// UnknownSuffix writes only a 0xFFFF suffix size before the CRC.
	UnknownSuffix bool

	// CorruptCRC flips the stored CRC.
	CorruptCRC bool
}

// Build returns a complete image: prefix, body, suffix and CRC.
func Build(opts Options) []byte {
	le := binary.LittleEndian
	body := opts.Body
	if body == nil {
		body = []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}
	}

	var suffix []byte
	if opts.UnknownSuffix {
		suffix = []byte{0xFF, 0xFF}
	} else {
		suffix = make([]byte, module.DefaultSuffixSize)
		le.PutUint16(suffix[0:2], opts.Platform)
		le.PutUint16(suffix[2:4], 1)
		le.PutUint16(suffix[len(suffix)-2:], module.DefaultSuffixSize)
	}

	total := module.HeaderSize + len(body) + len(suffix) + module.CRCSize
	img := make([]byte, 0, total)

	prefix := make([]byte, module.HeaderSize)
	le.PutUint32(prefix[0:4], opts.Start)
	le.PutUint32(prefix[4:8], opts.Start+uint32(total))
	prefix[9] = byte(opts.Flags)
	le.PutUint16(prefix[10:12], 1)
	le.PutUint16(prefix[12:14], opts.Platform)
	prefix[14] = byte(opts.Function)
	prefix[15] = opts.Index

	img = append(img, prefix...)
	img = append(img, body...)
	img = append(img, suffix...)

	crc := crc32.ChecksumIEEE(img)
	if opts.CorruptCRC {
		crc ^= 0xFFFFFFFF
	}
	img = binary.BigEndian.AppendUint32(img, crc)
	return img
}

// WriteFile builds an image and writes it to dir/name.
func WriteFile(dir, name string, opts Options) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(opts), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
