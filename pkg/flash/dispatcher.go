// Package flash decides where a firmware image goes and routes it to the
// USB, serial or cloud transport.
package flash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceFlash/pkg/cloud"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/dfu"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/image"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/module"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/segment"
)

// Mode selects the transport.
type Mode int

const (
	ModeCloud Mode = iota
	ModeUSB
	ModeSerial
)

func (m Mode) String() string {
	switch m {
	case ModeCloud:
		return "cloud"
	case ModeUSB:
		return "usb"
	case ModeSerial:
		return "serial"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// Toolchain reports whether the DFU writer can run.
type Toolchain interface {
	Available() bool
}

// DeviceFinder locates a connected device in DFU mode. An empty id accepts
// any compatible device.
type DeviceFinder interface {
	FindDevice(ctx context.Context, id string) (*dfu.Device, error)
}

// KnownApps maps an application alias to an image path.
type KnownApps interface {
	Resolve(platform segment.Platform, name string) (string, bool)
}

// Writer performs the DFU download.
type Writer interface {
	Write(ctx context.Context, req dfu.WriteRequest) error
}

// Directory resolves device names to identifiers.
type Directory interface {
	GetDevice(ctx context.Context, idOrName string) (*cloud.Device, error)
}

type SerialFlasher interface {
	FlashSerial(ctx context.Context, image, port string, yes bool) error
}

type CloudFlasher interface {
	FlashCloud(ctx context.Context, device string, files []string, target string, yes bool) error
}

// Options are the user inputs of a single flash attempt.
type Options struct {
	Device string
	Files  []string
	Mode   Mode

	Factory bool
	Force   bool
	Yes     bool

	// Port is the serial port, empty to auto-detect
	Port string

	// Target is the firmware version for cloud builds
	Target string

	Leave *bool
}

// Dispatcher wires the collaborators of the three flash flows. Only the
// ones used by the selected mode need to be set.
type Dispatcher struct {
	Toolchain Toolchain
	Finder    DeviceFinder
	KnownApps KnownApps
	Writer    Writer
	Directory Directory
	Serial    SerialFlasher
	Cloud     CloudFlasher

	// Out receives the success notification, os.Stdout if nil
	Out io.Writer
}

var deviceIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// IsDeviceID reports whether s is a device identifier rather than a name.
func IsDeviceID(s string) bool {
	return deviceIDPattern.MatchString(s)
}

// Flash runs one flash attempt.
func (d *Dispatcher) Flash(ctx context.Context, opts Options) error {
	if opts.Device == "" && len(opts.Files) == 0 {
		return ErrUsage
	}

	var err error
	switch opts.Mode {
	case ModeUSB:
		err = d.flashUSB(ctx, opts)
	case ModeSerial:
		err = d.flashSerial(ctx, opts)
	case ModeCloud:
		err = d.flashCloud(ctx, opts)
	default:
		err = fmt.Errorf("%w: unsupported mode %s", ErrUsage, opts.Mode)
	}
	if err != nil {
		return err
	}

	out := d.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintln(out, "Flash success!")
	return nil
}

func (d *Dispatcher) flashSerial(ctx context.Context, opts Options) error {
	if d.Serial == nil {
		return errors.New("serial flashing is not configured")
	}
	path := opts.Device
	if len(opts.Files) > 0 {
		path = opts.Files[0]
	}
	if path == "" {
		return ErrUsage
	}
	return d.Serial.FlashSerial(ctx, path, opts.Port, opts.Yes)
}

func (d *Dispatcher) flashCloud(ctx context.Context, opts Options) error {
	if d.Cloud == nil {
		return errors.New("cloud flashing is not configured")
	}
	if opts.Device == "" {
		return fmt.Errorf("%w: no device to flash over the air", ErrUsage)
	}
	return d.Cloud.FlashCloud(ctx, opts.Device, opts.Files, opts.Target, opts.Yes)
}

func (d *Dispatcher) flashUSB(ctx context.Context, opts Options) error {
	path := opts.Device
	var id string
	if len(opts.Files) > 0 {
		path = opts.Files[0]
		if opts.Device != "" {
			var err error
			if id, err = d.deviceID(ctx, opts.Device); err != nil {
				return err
			}
		}
	}

	if d.Toolchain == nil || !d.Toolchain.Available() {
		return ErrToolchainMissing
	}
	if d.Finder == nil || d.Writer == nil {
		return errors.New("USB flashing is not configured")
	}

	dev, err := d.Finder.FindDevice(ctx, id)
	if err != nil {
		return fmt.Errorf("find device: %w", err)
	}
	glog.Infof("found %s", dev.Label())

	img, known, err := d.openImage(path, dev.Platform)
	if err != nil {
		return err
	}
	defer img.Close()

	req := Request{Image: img, KnownApp: known, Factory: opts.Factory, Force: opts.Force, Leave: opts.Leave}
	if !known {
		desc, err := module.ParseFile(img.Path)
		if err != nil {
			return &ParseError{Path: path, Err: err}
		}
		desc.Path = path
		glog.V(1).Infof("module %s", desc)
		req.Descriptor = desc
	}

	plan, err := Resolve(req, dev.Platform)
	if err != nil {
		return err
	}
	defer plan.Close()

	if err := checkLayout(dev, plan.Address); err != nil {
		return err
	}

	glog.Infof("writing %s to %s at %s (leave=%t)", path, plan.Segment, plan.Address, plan.Leave)
	err = d.Writer.Write(ctx, dfu.WriteRequest{
		Interface: 0,
		Image:     plan.Image.Path,
		Address:   plan.Address,
		Leave:     plan.Leave,
		Device:    dev,
	})
	if err != nil {
		return &WriteError{Address: plan.Address, Err: err}
	}
	return nil
}

// deviceID returns arg unchanged when it already is an identifier and asks
// the directory otherwise.
func (d *Dispatcher) deviceID(ctx context.Context, arg string) (string, error) {
	if IsDeviceID(arg) {
		return arg, nil
	}
	if d.Directory == nil {
		return "", &DeviceLookupError{Name: arg, Err: errors.New("no device directory configured")}
	}
	dev, err := d.Directory.GetDevice(ctx, arg)
	if err != nil {
		return "", &DeviceLookupError{Name: arg, Err: err}
	}
	glog.V(1).Infof("device %q is %s", arg, dev.ID)
	return dev.ID, nil
}

// openImage prefers a file on disk and falls back to a known application
// only when nothing exists at path.
func (d *Dispatcher) openImage(path string, platform segment.Platform) (*image.Image, bool, error) {
	fi, err := os.Stat(path)
	switch {
	case err == nil:
		if fi.IsDir() {
			return nil, false, &FileError{Path: path, Reason: "is a directory"}
		}
		if image.IsHex(path) {
			img, err := image.FromHex(path)
			if err != nil {
				return nil, false, &FileError{Path: path, Reason: "invalid Intel HEX file", Err: err}
			}
			return img, false, nil
		}
		return image.Open(path), false, nil

	case errors.Is(err, os.ErrNotExist):
		if d.KnownApps != nil {
			if app, ok := d.KnownApps.Resolve(platform, path); ok {
				glog.Infof("flashing known app %s from %s", path, app)
				return image.Open(app), true, nil
			}
		}
		return nil, false, &FileError{Path: path, Reason: "no such file and not a known app"}

	default:
		return nil, false, &FileError{Path: path, Reason: "cannot read", Err: err}
	}
}

// checkLayout rejects addresses the device does not report as writable.
// Devices without a memory layout are not checked.
func checkLayout(dev *dfu.Device, address string) error {
	if dev.Layout == nil {
		return nil
	}
	addr, err := strconv.ParseUint(address, 0, 32)
	if err != nil {
		return &AddressError{Address: address, Layout: dev.Layout.Name}
	}
	if !dev.Layout.Writable(uint32(addr)) {
		return &AddressError{Address: address, Layout: dev.Layout.Name}
	}
	return nil
}
