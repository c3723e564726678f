/*------------------------------------------------------------------
 *
 * Purpose:	Periodically measure the offset between this node's wall
 *		clock and an external reference time source.
 *
 * Description:	Every audera.SyncInterval, Probe queries an NTP server and
 *		stores offset = (external_now - local_now). On failure it
 *		logs and keeps the last known offset; it never aborts the
 *		pipeline. Offset is read with
 *		Probe.Offset() once per frame by the streamer and once per
 *		sync exchange by the player; updates are monotone in wall
 *		time but not in value.
 *
 *---------------------------------------------------------------*/
package clock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
	"github.com/charmbracelet/log"

	"github.com/audera-project/audera/internal/audera"
)

// Probe periodically queries an NTP server and caches the measured offset
// for lock-free concurrent reads from the hot path.
type Probe struct {
	server   string
	interval time.Duration
	logger   *log.Logger

	offsetNanos atomic.Int64
}

// New creates a Probe against server, logging through logger. interval
// defaults to audera.SyncInterval when zero.
func New(logger *log.Logger, server string, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = audera.SyncInterval
	}
	return &Probe{
		server:   server,
		interval: interval,
		logger:   logger,
	}
}

// Offset returns the most recently measured offset as a time.Duration to
// add to the local wall clock to approximate the reference clock.
func (p *Probe) Offset() time.Duration {
	return time.Duration(p.offsetNanos.Load())
}

// NowSeconds returns the local wall clock as a float64 number of seconds
// since the Unix epoch, the representation every frame deadline is carried
// in. Callers that need the reference-clock-adjusted time add a Probe's
// Offset().Seconds() to this value themselves, re-reading it per frame.
func NowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Run queries the reference clock on p.interval until ctx is cancelled.
// Each failure is logged at Warn and retried on the next tick; the offset
// is left unchanged on failure so callers keep using the last known value.
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sync()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.sync()
		}
	}
}

func (p *Probe) sync() {
	resp, err := ntp.QueryWithOptions(p.server, ntp.QueryOptions{Timeout: 5 * time.Second})
	if err != nil {
		p.logger.Warn("reference clock unreachable, retaining last offset", "server", p.server, "err", err)
		return
	}
	if err := resp.Validate(); err != nil {
		p.logger.Warn("reference clock response invalid, retaining last offset", "server", p.server, "err", err)
		return
	}

	p.offsetNanos.Store(int64(resp.ClockOffset))
	p.logger.Info("reference clock offset updated", "server", p.server, "offset_sec", resp.ClockOffset.Seconds())
}
