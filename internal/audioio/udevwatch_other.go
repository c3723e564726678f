//go:build !linux

package audioio

import (
	"context"

	"github.com/charmbracelet/log"
)

// DeviceWatcher is a no-op stand-in on platforms without udev; hot-plug
// device changes are only picked up the next time the config collaborator
// is polled for the current device.
type DeviceWatcher struct {
	logger *log.Logger
}

// NewDeviceWatcher returns a DeviceWatcher.
func NewDeviceWatcher(logger *log.Logger) *DeviceWatcher {
	return &DeviceWatcher{logger: logger}
}

// Run blocks until ctx is cancelled and never calls onChange.
func (w *DeviceWatcher) Run(ctx context.Context, onChange func()) error {
	<-ctx.Done()
	return ctx.Err()
}
