package cloud

import "errors"

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAccessDenied       = errors.New("access denied")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNoFiles            = errors.New("no files to flash")
	ErrCanceled           = errors.New("canceled by user")
)
