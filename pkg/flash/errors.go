package flash

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFlash/pkg/module"
)

var (
	ErrUsage                 = errors.New("you must specify a device or a file")
	ErrDeviceLookup          = errors.New("device lookup failed")
	ErrToolchainMissing      = errors.New("dfu-util is not available")
	ErrFileNotFoundOrInvalid = errors.New("file not found or invalid")
	ErrParseFailure          = errors.New("failed to parse module header")
	ErrCRCInvalid            = errors.New("CRC is invalid")
	ErrPlatformMismatch      = errors.New("incorrect platform")
	ErrUnknownModuleFunction = errors.New("unknown module function")
	ErrUnknownDestination    = errors.New("unknown flash destination")
	ErrWriteFailure          = errors.New("write failed")
	ErrAddressOutOfRange     = errors.New("address not writable on device")
)

// DeviceLookupError reports a failed device name resolution.
type DeviceLookupError struct {
	Name string
	Err  error
}

func (e *DeviceLookupError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrDeviceLookup, e.Name, e.Err)
}

func (e *DeviceLookupError) Is(target error) bool { return target == ErrDeviceLookup }
func (e *DeviceLookupError) Unwrap() error        { return e.Err }

// FileError reports an image path that is missing, a directory, or
// unreadable.
type FileError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *FileError) Is(target error) bool { return target == ErrFileNotFoundOrInvalid }
func (e *FileError) Unwrap() error        { return e.Err }

// ParseError wraps a descriptor decode failure with the offending file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v of %s: %v", ErrParseFailure, e.Path, e.Err)
}

func (e *ParseError) Is(target error) bool { return target == ErrParseFailure }
func (e *ParseError) Unwrap() error        { return e.Err }

// CRCError indicates that the stored CRC of an image does not match its
// contents.
type CRCError struct {
	Path     string
	Stored   uint32
	Computed uint32
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("%v for %s: stored 0x%08X, computed 0x%08X; use --force to override",
		ErrCRCInvalid, e.Path, e.Stored, e.Computed)
}

func (e *CRCError) Is(target error) bool { return target == ErrCRCInvalid }

// PlatformMismatchError indicates that the image was built for another
// platform than the connected device.
type PlatformMismatchError struct {
	Image  uint16
	Device uint16
}

func (e *PlatformMismatchError) Error() string {
	return fmt.Sprintf("%v: image is for platform %d, device is platform %d; use --force to override",
		ErrPlatformMismatch, e.Image, e.Device)
}

func (e *PlatformMismatchError) Is(target error) bool { return target == ErrPlatformMismatch }

// ModuleFunctionError indicates a module type that has no flash destination.
type ModuleFunctionError struct {
	Function module.Function
}

func (e *ModuleFunctionError) Error() string {
	return fmt.Sprintf("%v: %s; use --force to flash anyway", ErrUnknownModuleFunction, e.Function)
}

func (e *ModuleFunctionError) Is(target error) bool { return target == ErrUnknownModuleFunction }

// DestinationError indicates that no address could be resolved.
type DestinationError struct {
	Platform string
	Segment  string
	Function module.Function
	Index    uint8
	Err      error
}

func (e *DestinationError) Error() string {
	msg := fmt.Sprintf("%v: segment %q on %s", ErrUnknownDestination, e.Segment, e.Platform)
	if e.Function == module.FunctionSystemPart {
		msg += fmt.Sprintf(" (system part index %d)", e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DestinationError) Is(target error) bool { return target == ErrUnknownDestination }
func (e *DestinationError) Unwrap() error        { return e.Err }

// AddressError indicates that the resolved address is outside the writable
// memory reported by the device.
type AddressError struct {
	Address string
	Layout  string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("%v: %s is outside %q", ErrAddressOutOfRange, e.Address, e.Layout)
}

func (e *AddressError) Is(target error) bool { return target == ErrAddressOutOfRange }

// WriteError wraps a transport failure.
type WriteError struct {
	Address string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%v at %s: %v", ErrWriteFailure, e.Address, e.Err)
}

func (e *WriteError) Is(target error) bool { return target == ErrWriteFailure }
func (e *WriteError) Unwrap() error        { return e.Err }
