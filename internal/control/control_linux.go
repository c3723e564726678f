//go:build linux

/*------------------------------------------------------------------
 *
 * Purpose:	Optional physical control surface for GPIO-equipped player
 *		nodes: a mute button and a playing-state status LED, the
 *		kind of hardware a Raspberry Pi player build exposes.
 *
 * Description:	Uses github.com/warthog618/go-gpiocdev, one requested line
 *		per physical signal, released on shutdown. Not started
 *		unless a GPIO chip is actually present (see NewController's
 *		error).
 *
 *---------------------------------------------------------------*/
package control

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"

	"github.com/audera-project/audera/internal/configstore"
)

// Controller drives the optional mute button and status LED.
type Controller struct {
	logger     *log.Logger
	store      configstore.Store
	playerUUID string

	chip      *gpiocdev.Chip
	muteLine  *gpiocdev.Line
	statusLED *gpiocdev.Line
}

// NewController opens chipName (e.g. "gpiochip0") and requests the mute
// button's input line and the status LED's output line. It returns an error
// when no such chip exists, so callers only start the task when GPIO
// hardware is actually present.
func NewController(logger *log.Logger, store configstore.Store, playerUUID, chipName string, muteLineOffset, statusLEDOffset int) (*Controller, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("control: open chip %s: %w", chipName, err)
	}

	c := &Controller{logger: logger, store: store, playerUUID: playerUUID, chip: chip}

	muteLine, err := chip.RequestLine(muteLineOffset,
		gpiocdev.AsInput,
		gpiocdev.WithEventHandler(c.onMuteEdge),
		gpiocdev.WithBothEdges,
	)
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("control: request mute line: %w", err)
	}
	c.muteLine = muteLine

	statusLED, err := chip.RequestLine(statusLEDOffset, gpiocdev.AsOutput(0))
	if err != nil {
		_ = muteLine.Close()
		_ = chip.Close()
		return nil, fmt.Errorf("control: request status LED line: %w", err)
	}
	c.statusLED = statusLED

	return c, nil
}

func (c *Controller) onMuteEdge(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventRisingEdge {
		return
	}

	player, err := c.store.Get(c.playerUUID)
	if err != nil {
		c.logger.Warn("control: mute button player lookup failed", "err", err)
		return
	}

	if player.Connected {
		if _, err := c.store.Disconnect(c.playerUUID); err != nil {
			c.logger.Warn("control: mute disconnect failed", "err", err)
		}
	} else {
		if _, err := c.store.Connect(c.playerUUID); err != nil {
			c.logger.Warn("control: unmute connect failed", "err", err)
		}
	}
}

// Run blocks until ctx is cancelled, then releases the GPIO lines. It does
// not drive the status LED itself; SetPlaying does.
func (c *Controller) Run(ctx context.Context) error {
	defer c.Close()
	<-ctx.Done()
	return ctx.Err()
}

// SetPlaying drives the status LED to reflect playing.
func (c *Controller) SetPlaying(playing bool) {
	value := 0
	if playing {
		value = 1
	}
	if err := c.statusLED.SetValue(value); err != nil {
		c.logger.Warn("control: set status LED failed", "err", err)
	}
}

// Close releases the GPIO lines and chip handle.
func (c *Controller) Close() {
	if c.muteLine != nil {
		_ = c.muteLine.Close()
	}
	if c.statusLED != nil {
		_ = c.statusLED.Close()
	}
	if c.chip != nil {
		_ = c.chip.Close()
	}
}
