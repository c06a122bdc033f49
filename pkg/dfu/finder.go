package dfu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/gousb"
	"github.com/jpillora/backoff"

	"github.com/OpenTraceLab/OpenTraceFlash/pkg/segment"
)

// USB interface class triple of a device in DFU mode.
const (
	ClassApplication = gousb.Class(0xFE)
	SubClassDFU      = gousb.Class(0x01)
	ProtocolDFUMode  = gousb.Protocol(0x02)
)

// ErrNoDevice is returned when no compatible DFU device shows up in time.
var ErrNoDevice = errors.New("dfu: no compatible device found")

// Device describes a connected device in DFU mode.
type Device struct {
	Platform  segment.Platform
	VendorID  uint16
	ProductID uint16
	Serial    string
	Bus       int
	Address   int

	// Layout is the memory map reported by alt setting 0, nil if the
	// device does not publish one.
	Layout *Layout
}

// ID returns the device identifier carried in the USB serial number.
func (d *Device) ID() string {
	return strings.ToLower(d.Serial)
}

// Label returns a user-friendly description for the device.
func (d *Device) Label() string {
	id := d.ID()
	if id == "" {
		id = "no serial"
	}
	return fmt.Sprintf("%s [%s] (VID:PID %04X:%04X bus %d addr %d)",
		d.Platform.Name, id, d.VendorID, d.ProductID, d.Bus, d.Address)
}

// Enumerate lists connected devices in DFU mode whose VID/PID belongs to a
// known platform.
func Enumerate(ctx context.Context) ([]*Device, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		_, ok := segment.ByUSB(uint16(desc.Vendor), uint16(desc.Product))
		return ok
	})
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()
	if err != nil && err != gousb.ErrorAccess {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var results []*Device
	for _, dev := range devs {
		results = append(results, describe(dev))
	}
	return results, nil
}

func describe(dev *gousb.Device) *Device {
	vid, pid := uint16(dev.Desc.Vendor), uint16(dev.Desc.Product)
	platform, _ := segment.ByUSB(vid, pid)
	serial, _ := dev.SerialNumber()

	d := &Device{
		Platform:  platform,
		VendorID:  vid,
		ProductID: pid,
		Serial:    serial,
		Bus:       dev.Desc.Bus,
		Address:   dev.Desc.Address,
	}

	cfg, intf, ok := findDFUInterface(dev.Desc)
	if !ok {
		return d
	}
	desc, err := dev.InterfaceDescription(cfg, intf, 0)
	if err != nil || !strings.HasPrefix(desc, "@") {
		return d
	}
	layout, err := ParseLayout(desc)
	if err != nil {
		glog.Warningf("ignoring memory layout %q of %s: %v", desc, d.Label(), err)
		return d
	}
	d.Layout = layout
	return d
}

// findDFUInterface returns the config and interface number of the DFU-mode
// interface.
func findDFUInterface(desc *gousb.DeviceDesc) (int, int, bool) {
	for num, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == ClassApplication && alt.SubClass == SubClassDFU && alt.Protocol == ProtocolDFUMode {
					return num, intf.Number, true
				}
			}
		}
	}
	return 0, 0, false
}

// Finder locates a compatible DFU device, waiting for it to enumerate.
type Finder struct {
	// Wait bounds how long to poll for the device. Zero means one scan.
	Wait time.Duration

	// Enumerate lists candidate devices; defaults to the package Enumerate.
	Enumerate func(ctx context.Context) ([]*Device, error)
}

// FindDevice returns the device whose serial matches id, or the first
// compatible device when id is empty.
func (f *Finder) FindDevice(ctx context.Context, id string) (*Device, error) {
	enumerate := f.Enumerate
	if enumerate == nil {
		enumerate = Enumerate
	}

	b := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
		Jitter: false,
	}
	deadline := time.Now().Add(f.Wait)

	for {
		devs, err := enumerate(ctx)
		if err != nil {
			return nil, err
		}
		if d := match(devs, id); d != nil {
			return d, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if id != "" {
				return nil, fmt.Errorf("%w with id %s", ErrNoDevice, id)
			}
			return nil, ErrNoDevice
		}

		wait := b.Duration()
		if wait > remaining {
			wait = remaining
		}
		glog.V(1).Infof("waiting %v for DFU device (attempt %.0f)", wait, b.Attempt())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func match(devs []*Device, id string) *Device {
	if id == "" {
		if len(devs) > 1 {
			glog.Warningf("%d DFU devices connected, using %s", len(devs), devs[0].Label())
		}
		if len(devs) > 0 {
			return devs[0]
		}
		return nil
	}
	for _, d := range devs {
		if strings.EqualFold(d.Serial, id) {
			return d
		}
	}
	return nil
}
