package image

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcinbor85/gohex"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestStripHeader(t *testing.T) {
	dir := t.TempDir()
	orig := make([]byte, 100)
	for i := range orig {
		orig[i] = byte(i)
	}
	src := writeFile(t, dir, "firmware.bin", orig)

	img, err := StripHeader(src, 24)
	if err != nil {
		t.Fatalf("StripHeader returned error: %v", err)
	}
	defer img.Close()

	if img.Path == src {
		t.Fatalf("stripped image must not reuse the source path")
	}
	if !img.Temporary() {
		t.Errorf("stripped image should be temporary")
	}
	if !strings.HasPrefix(filepath.Base(img.Path), "firmware.") {
		t.Errorf("unexpected temp name %q", img.Path)
	}

	got, err := os.ReadFile(img.Path)
	if err != nil {
		t.Fatalf("read stripped image: %v", err)
	}
	if !bytes.Equal(got, orig[24:]) {
		t.Fatalf("stripped bytes mismatch: got %d bytes", len(got))
	}

	after, _ := os.ReadFile(src)
	if !bytes.Equal(after, orig) {
		t.Fatalf("source image was modified")
	}
}

func TestStripHeaderUniqueNames(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "app.bin", make([]byte, 64))

	a, err := StripHeader(src, 24)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := StripHeader(src, 24)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if a.Path == b.Path {
		t.Fatalf("temp images collide: %s", a.Path)
	}
}

func TestCloseRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "app.bin", make([]byte, 64))

	img, err := StripHeader(src, 24)
	if err != nil {
		t.Fatal(err)
	}
	if err := img.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, err := os.Stat(img.Path); !os.IsNotExist(err) {
		t.Fatalf("temp image still exists after Close")
	}
	if err := img.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	// Passthrough images never touch the source
	orig := Open(src)
	if err := orig.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source removed by Close: %v", err)
	}

	var nilImg *Image
	if err := nilImg.Close(); err != nil {
		t.Fatalf("nil Close returned error: %v", err)
	}
}

func TestStripHeaderMissingSource(t *testing.T) {
	if _, err := StripHeader(filepath.Join(t.TempDir(), "nope.bin"), 24); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestFromHex(t *testing.T) {
	mem := gohex.NewMemory()
	mem.AddBinary(0x08020000, []byte{0x01, 0x02, 0x03, 0x04})
	mem.AddBinary(0x08020008, []byte{0x09, 0x0A})

	var buf bytes.Buffer
	if err := mem.DumpIntelHex(&buf, 16); err != nil {
		t.Fatalf("DumpIntelHex: %v", err)
	}

	dir := t.TempDir()
	path := writeFile(t, dir, "system.hex", buf.Bytes())
	if !IsHex(path) {
		t.Fatalf("IsHex(%s) = false", path)
	}

	img, err := FromHex(path)
	if err != nil {
		t.Fatalf("FromHex returned error: %v", err)
	}
	defer img.Close()

	got, err := os.ReadFile(img.Path)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0xFF, 0xFF, 0xFF, 0x09, 0x0A}
	if !bytes.Equal(got, want) {
		t.Fatalf("binary = % X, want % X", got, want)
	}
}

func TestIsHex(t *testing.T) {
	for path, want := range map[string]bool{
		"a.hex":  true,
		"a.HEX":  true,
		"a.ihex": true,
		"a.bin":  false,
		"hex":    false,
	} {
		if got := IsHex(path); got != want {
			t.Errorf("IsHex(%q) = %v, want %v", path, got, want)
		}
	}
}
