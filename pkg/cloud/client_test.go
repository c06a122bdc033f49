package cloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestGetDevice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v1/devices/my-boron":
			io.WriteString(w, `{"id":"e00fce68ffffffffffffffff","name":"my-boron","platform_id":13,"connected":true}`)
		case "/v1/devices/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/v1/devices/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", BearerToken("tok"))
	ctx := context.Background()

	d, err := c.GetDevice(ctx, "my-boron")
	if err != nil {
		t.Fatalf("GetDevice returned error: %v", err)
	}
	if d.ID != "e00fce68ffffffffffffffff" || d.PlatformID != 13 || !d.Connected {
		t.Fatalf("unexpected device: %+v", d)
	}

	tests := []struct {
		name string
		want error
	}{
		{"unknown", ErrDeviceNotFound},
		{"forbidden", ErrAccessDenied},
		{"broken", ErrBackendUnavailable},
	}
	for _, tt := range tests {
		if _, err := c.GetDevice(ctx, tt.name); !errors.Is(err, tt.want) {
			t.Errorf("GetDevice(%s) error = %v, want %v", tt.name, err, tt.want)
		}
	}

	anon := NewClient(srv.URL, nil)
	if _, err := anon.GetDevice(ctx, "my-boron"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized without token, got %v", err)
	}
}

func TestEmptyTokenRejected(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", BearerToken(""))
	if _, err := c.GetDevice(context.Background(), "x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestFlashDevice(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app.bin")
	lib := filepath.Join(dir, "lib.cpp")
	os.WriteFile(app, []byte("binary"), 0o644)
	os.WriteFile(lib, []byte("source"), 0o644)

	var gotFiles []string
	var gotTarget string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/devices/dev1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"bad form"}`)
			return
		}
		for _, field := range []string{"file", "file1"} {
			if fh := r.MultipartForm.File[field]; len(fh) == 1 {
				gotFiles = append(gotFiles, fh[0].Filename)
			}
		}
		gotTarget = r.FormValue("build_target_version")
		io.WriteString(w, `{"id":"dev1","status":"Update started"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, BearerToken("tok"))
	res, err := c.FlashDevice(context.Background(), "dev1", []string{app, lib}, "4.0.0")
	if err != nil {
		t.Fatalf("FlashDevice returned error: %v", err)
	}
	if res.Status != "Update started" {
		t.Errorf("Status = %q", res.Status)
	}
	if len(gotFiles) != 2 || gotFiles[0] != "app.bin" || gotFiles[1] != "lib.cpp" {
		t.Errorf("uploaded files = %v", gotFiles)
	}
	if gotTarget != "4.0.0" {
		t.Errorf("target = %q, want 4.0.0", gotTarget)
	}

	if _, err := c.FlashDevice(context.Background(), "dev1", nil, ""); !errors.Is(err, ErrNoFiles) {
		t.Errorf("expected ErrNoFiles, got %v", err)
	}
	if _, err := c.FlashDevice(context.Background(), "dev1", []string{filepath.Join(dir, "missing")}, ""); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestFlasherConfirm(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app.bin")
	os.WriteFile(app, []byte("binary"), 0o644)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	f := &Flasher{
		Client:  NewClient(srv.URL, BearerToken("tok")),
		Confirm: func(string) (bool, error) { return false, nil },
	}
	if err := f.FlashCloud(context.Background(), "dev1", []string{app}, "", false); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("request sent despite declined confirmation")
	}

	if err := f.FlashCloud(context.Background(), "dev1", []string{app}, "", true); err != nil {
		t.Fatalf("FlashCloud with yes returned error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
