package module_test

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenTraceLab/OpenTraceFlash/pkg/module"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/module/moduletest"
)

func TestParseSystemPart(t *testing.T) {
	data := moduletest.Build(moduletest.Options{
		Platform: 6,
		Function: module.FunctionSystemPart,
		Index:    2,
		Start:    0x08060000,
	})

	d, err := module.Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if d.PlatformID != 6 {
		t.Errorf("PlatformID = %d, want 6", d.PlatformID)
	}
	if d.Function != module.FunctionSystemPart {
		t.Errorf("Function = %s, want system part", d.Function)
	}
	if d.Index != 2 {
		t.Errorf("Index = %d, want 2", d.Index)
	}
	if d.StartAddress != 0x08060000 {
		t.Errorf("StartAddress = 0x%08X, want 0x08060000", d.StartAddress)
	}
	if !d.CRCValid {
		t.Errorf("CRC should be valid (stored %08X computed %08X)", d.StoredCRC, d.ComputedCRC)
	}
	if d.SuffixSize != module.DefaultSuffixSize || d.SuffixUnknown() {
		t.Errorf("SuffixSize = %d", d.SuffixSize)
	}
	if d.ProductID != 6 {
		t.Errorf("ProductID = %d, want 6", d.ProductID)
	}
	if d.Size != len(data) {
		t.Errorf("Size = %d, want %d", d.Size, len(data))
	}
}

func TestParseCorruptCRC(t *testing.T) {
	d, err := module.Parse(moduletest.Build(moduletest.Options{
		Platform:   12,
		Function:   module.FunctionUserPart,
		CorruptCRC: true,
	}))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if d.CRCValid {
		t.Fatalf("expected CRC to be invalid")
	}
}

func TestParseUnknownSuffix(t *testing.T) {
	d, err := module.Parse(moduletest.Build(moduletest.Options{
		Platform:      10,
		Function:      module.FunctionUserPart,
		UnknownSuffix: true,
	}))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !d.SuffixUnknown() {
		t.Fatalf("SuffixSize = %d, want unknown sentinel", d.SuffixSize)
	}
	if d.ProductID != 0 {
		t.Errorf("ProductID = %d, want 0 for unknown suffix", d.ProductID)
	}
}

func TestParseFlags(t *testing.T) {
	d, err := module.Parse(moduletest.Build(moduletest.Options{
		Function: module.FunctionRadioStack,
		Flags:    module.FlagDropModuleInfo | module.FlagCompressed,
	}))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !d.DropModuleInfo() {
		t.Errorf("DropModuleInfo() = false, want true")
	}
	if d.Flags.Has(module.FlagCombined) {
		t.Errorf("unexpected combined flag")
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := module.Parse(make([]byte, module.HeaderSize)); !errors.Is(err, module.ErrTooShort) {
		t.Errorf("expected ErrTooShort, got %v", err)
	}

	// Suffix size larger than the image body
	data := moduletest.Build(moduletest.Options{UnknownSuffix: true})
	n := len(data)
	data[n-6] = 0x00
	data[n-5] = 0x10
	binary.BigEndian.PutUint32(data[n-4:], crc32.ChecksumIEEE(data[:n-4]))
	if _, err := module.Parse(data); !errors.Is(err, module.ErrBadSuffix) {
		t.Errorf("expected ErrBadSuffix, got %v", err)
	}
}

func TestParseDamagedSuffixSize(t *testing.T) {
	data := moduletest.Build(moduletest.Options{
		Platform: 6,
		Function: module.FunctionUserPart,
	})
	// high byte of the suffix size, CRC left stale
	data[len(data)-module.CRCSize-1] ^= 0x40

	d, err := module.Parse(data)
	if err != nil {
		t.Fatalf("damaged image should still decode: %v", err)
	}
	if d.CRCValid {
		t.Error("CRC should be invalid")
	}
	if d.SuffixUnknown() {
		t.Error("suffix must not be treated as unknown, that would skip the CRC check")
	}
	if d.ProductID != 0 || d.ProductVersion != 0 {
		t.Errorf("suffix fields should be empty: %+v", d)
	}
	if d.PlatformID != 6 || d.Function != module.FunctionUserPart {
		t.Errorf("prefix lost: %s", d)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path, err := moduletest.WriteFile(dir, "user.bin", moduletest.Options{
		Platform: 13,
		Function: module.FunctionUserPart,
		Index:    1,
		Start:    0x000D4000,
	})
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := module.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile returned error: %v", err)
	}
	if d.Path != path {
		t.Errorf("Path = %q, want %q", d.Path, path)
	}
	if d.PlatformID != 13 || !d.CRCValid {
		t.Errorf("unexpected descriptor: %s", d)
	}

	empty := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := module.ParseFile(empty); !errors.Is(err, module.ErrTooShort) {
		t.Errorf("expected ErrTooShort for empty file, got %v", err)
	}

	if _, err := module.ParseFile(filepath.Join(dir, "missing.bin")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestFunctionString(t *testing.T) {
	if got := module.FunctionRadioStack.String(); got != "radio stack" {
		t.Errorf("String() = %q", got)
	}
	if got := module.Function(42).String(); got != "unknown (42)" {
		t.Errorf("String() = %q", got)
	}
}
