// Package serialflash sends firmware to a device in serial listening mode
// using YMODEM.
package serialflash

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultBaud puts the device straight into YMODEM receive mode when
	// the port is opened at this rate.
	DefaultBaud = 28800

	DefaultTimeout = 10 * time.Second

	// USB vendor ID of devices exposing a listening-mode serial port
	vendorID = "2B04"
)

var (
	// ErrNoPort is returned when no port was given and none could be detected.
	ErrNoPort = errors.New("no serial port found")

	// ErrDeclined is returned when the user does not confirm the flash.
	ErrDeclined = errors.New("canceled by user")
)

// OpenFunc opens a serial port at the given rate.
type OpenFunc func(port string, baud int) (io.ReadWriteCloser, error)

// Flasher writes images over a serial port.
type Flasher struct {
	Baud    int
	Timeout time.Duration

	// Confirm asks the user before flashing; nil skips the question.
	Confirm func(msg string) (bool, error)

	// Progress reports bytes sent (optional)
	Progress func(sent, total int)

	// Open and Detect default to go.bug.st/serial.
	Open   OpenFunc
	Detect func() (string, error)
}

// FlashSerial sends the image at path to the device on port. An empty port
// selects the first detected device port.
func (f *Flasher) FlashSerial(ctx context.Context, path, port string, yes bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Annotatef(err, "read image %s", path)
	}

	if port == "" {
		detect := f.Detect
		if detect == nil {
			detect = DetectPort
		}
		if port, err = detect(); err != nil {
			return errors.Trace(err)
		}
		glog.V(1).Infof("using serial port %s", port)
	}

	if !yes && f.Confirm != nil {
		ok, err := f.Confirm(fmt.Sprintf("The device on %s must be in listening mode. Continue?", port))
		if err != nil {
			return errors.Trace(err)
		}
		if !ok {
			return ErrDeclined
		}
	}

	baud := f.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	open := f.Open
	if open == nil {
		open = openPort
	}
	conn, err := open(port, baud)
	if err != nil {
		return errors.Annotatef(err, "open %s", port)
	}
	defer conn.Close()

	timeout := f.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	s := NewSender(conn, timeout)
	s.progress = f.Progress
	if err := s.Send(ctx, filepath.Base(path), data); err != nil {
		return errors.Annotatef(err, "send %s over %s", filepath.Base(path), port)
	}
	return nil
}

func openPort(port string, baud int) (io.ReadWriteCloser, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	// Short reads let the sender poll its own deadline
	if err := p.SetReadTimeout(100 * time.Millisecond); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// DetectPort returns the first USB serial port belonging to a known device.
func DetectPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", errors.Annotate(err, "list serial ports")
	}
	return pickPort(ports)
}

func pickPort(ports []*enumerator.PortDetails) (string, error) {
	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.VID, vendorID) {
			return p.Name, nil
		}
	}
	return "", ErrNoPort
}
