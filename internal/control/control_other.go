//go:build !linux

package control

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/audera-project/audera/internal/configstore"
)

// Controller is unavailable on platforms without Linux gpiod chardev
// support. NewController always errors, so callers treat it the same as "no
// GPIO chip present" on Linux: the optional control task is simply not
// started.
type Controller struct{}

// ErrUnsupported is returned by NewController on non-Linux platforms.
var ErrUnsupported = errors.New("control: GPIO control is only supported on linux")

// NewController always returns ErrUnsupported on this platform.
func NewController(logger *log.Logger, store configstore.Store, playerUUID, chipName string, muteLineOffset, statusLEDOffset int) (*Controller, error) {
	return nil, ErrUnsupported
}

// Run never returns normally; callers should not reach here given
// NewController always errors.
func (c *Controller) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// SetPlaying is a no-op on this platform.
func (c *Controller) SetPlaying(playing bool) {}

// Close is a no-op on this platform.
func (c *Controller) Close() {}
