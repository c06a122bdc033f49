package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultBaseURL is the public device cloud API.
const DefaultBaseURL = "https://api.particle.io"

// Device is a device record from the cloud directory.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PlatformID uint16 `json:"platform_id"`
	ProductID  uint16 `json:"product_id"`
	Connected  bool   `json:"connected"`
	Online     bool   `json:"online"`
}

// FlashResult is the API reply to a flash request.
type FlashResult struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client is a lightweight helper around http.Client for the device cloud API.
type Client struct {
	BaseURL string
	Auth    AuthStrategy
	HTTP    *http.Client
}

func NewClient(baseURL string, auth AuthStrategy) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{BaseURL: trimRightSlash(baseURL), Auth: auth, HTTP: &http.Client{Timeout: 60 * time.Second}}
}

func trimRightSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// GetDevice looks up a device by ID or name.
func (c *Client) GetDevice(ctx context.Context, idOrName string) (*Device, error) {
	var d Device
	req, err := c.newRequest(ctx, http.MethodGet, devicePath(idOrName), nil)
	if err != nil {
		return nil, err
	}
	if err := c.do(req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// FlashDevice uploads files to be flashed over the air. The first file is
// sent as "file", the rest as "file1", "file2", ... target selects the
// system firmware version to build against and may be empty.
func (c *Client) FlashDevice(ctx context.Context, idOrName string, files []string, target string) (*FlashResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i, path := range files {
		field := "file"
		if i > 0 {
			field += strconv.Itoa(i)
		}
		if err := addFile(mw, field, path); err != nil {
			return nil, err
		}
	}
	if target != "" {
		if err := mw.WriteField("build_target_version", target); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPut, devicePath(idOrName), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res FlashResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func addFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	w, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func devicePath(idOrName string) string {
	return "/v1/devices/" + url.PathEscape(idOrName)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.Auth != nil {
		v, err := c.Auth.AuthorizationValue()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", v)
	}
	return req, nil
}

// do sends req and decodes a JSON reply into out; returns sentinel errors
// for well-known statuses.
func (c *Client) do(req *http.Request, out interface{}) error {
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		if out != nil {
			if err := json.Unmarshal(b, out); err != nil {
				return fmt.Errorf("decode: %w", err)
			}
		}
		return nil
	case http.StatusNotFound:
		return ErrDeviceNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrAccessDenied
	default:
		if resp.StatusCode >= 500 {
			return ErrBackendUnavailable
		}
		if msg := apiError(b); msg != "" {
			return errors.New(msg)
		}
		return errors.New(resp.Status)
	}
}

func apiError(b []byte) string {
	var e struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(b, &e) != nil {
		return ""
	}
	if e.Description != "" {
		return e.Description
	}
	return e.Error
}
