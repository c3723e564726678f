//go:build linux

package audioio

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

// DeviceWatcher watches udev for ALSA "sound" subsystem add/remove events
// and invokes onChange on each one. What onChange does with the event is up
// to the caller; the watcher itself caches and invalidates nothing.
type DeviceWatcher struct {
	logger *log.Logger
}

// NewDeviceWatcher returns a DeviceWatcher.
func NewDeviceWatcher(logger *log.Logger) *DeviceWatcher {
	return &DeviceWatcher{logger: logger}
}

// Run watches for sound-subsystem udev events until ctx is cancelled,
// invoking onChange on every add/remove.
func (w *DeviceWatcher) Run(ctx context.Context, onChange func()) error {
	u := udev.Udev{}
	monitor := u.NewMonitorFromNetlink("udev")
	if err := monitor.FilterAddMatchSubsystem("sound"); err != nil {
		return err
	}

	deviceCh, errCh, err := monitor.DeviceChan(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			w.logger.Warn("udev sound device watch error", "err", err)
		case dev := <-deviceCh:
			w.logger.Info("sound device topology changed", "action", dev.Action(), "syspath", dev.Syspath())
			onChange()
		}
	}
}
