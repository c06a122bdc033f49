package dfu

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

// DefaultUtil is the dfu-util binary looked up on PATH.
const DefaultUtil = "dfu-util"

// dfu-util reports this after a successful download when the device has
// already left DFU mode.
const leaveStatusError = "Error during download get_status"

// WriteRequest describes one dfu-util download.
type WriteRequest struct {
	Interface int
	Image     string
	Address   string
	Leave     bool
	Device    *Device
}

// Args returns the dfu-util arguments for the request.
func (r WriteRequest) Args() []string {
	target := r.Address
	if r.Leave {
		target += ":leave"
	}
	args := []string{
		"-a", strconv.Itoa(r.Interface),
		"-i", "0",
		"-s", target,
		"-D", r.Image,
	}
	if r.Device != nil {
		args = append([]string{"-d", fmt.Sprintf("%04x:%04x", r.Device.VendorID, r.Device.ProductID)}, args...)
		if r.Device.Serial != "" {
			args = append(args, "-S", r.Device.Serial)
		}
	}
	return args
}

// Util drives the dfu-util toolchain.
type Util struct {
	// Path of the dfu-util binary; DefaultUtil when empty
	Path string

	// Progress receives dfu-util output as it runs (optional)
	Progress io.Writer
}

func (u *Util) bin() string {
	if u.Path == "" {
		return DefaultUtil
	}
	return u.Path
}

// Available reports whether dfu-util can be executed.
func (u *Util) Available() bool {
	_, err := exec.LookPath(u.bin())
	return err == nil
}

// Write runs dfu-util for the request and waits for it to finish.
func (u *Util) Write(ctx context.Context, req WriteRequest) error {
	args := req.Args()
	glog.V(1).Infof("%s %s", u.bin(), strings.Join(args, " "))

	var out bytes.Buffer
	var w io.Writer = &out
	if u.Progress != nil {
		w = io.MultiWriter(&out, u.Progress)
	}

	cmd := exec.CommandContext(ctx, u.bin(), args...)
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Run(); err != nil {
		if req.Leave && strings.Contains(out.String(), leaveStatusError) {
			return nil
		}
		return fmt.Errorf("%s: %w: %s", u.bin(), err, lastLine(out.String()))
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
