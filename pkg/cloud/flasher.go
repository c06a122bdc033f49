package cloud

import (
	"context"
	"fmt"

	"github.com/golang/glog"
)

// Flasher flashes devices over the air through the cloud API.
type Flasher struct {
	Client *Client

	// Confirm asks the user before flashing; nil skips the question.
	Confirm func(msg string) (bool, error)
}

// FlashCloud sends files to device. Unless yes is set the user is asked to
// confirm first.
func (f *Flasher) FlashCloud(ctx context.Context, device string, files []string, target string, yes bool) error {
	if len(files) == 0 {
		return ErrNoFiles
	}

	if !yes && f.Confirm != nil {
		ok, err := f.Confirm(fmt.Sprintf("Flash %d file(s) to device %s over the air?", len(files), device))
		if err != nil {
			return err
		}
		if !ok {
			return ErrCanceled
		}
	}

	res, err := f.Client.FlashDevice(ctx, device, files, target)
	if err != nil {
		return fmt.Errorf("flash device %s: %w", device, err)
	}
	glog.V(1).Infof("cloud flash of %s: %s %s", device, res.Status, res.Message)
	return nil
}
