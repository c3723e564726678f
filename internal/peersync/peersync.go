/*------------------------------------------------------------------
 *
 * Purpose:	Pairwise streamer<->player clock-offset and round-trip-time
 *		probe.
 *
 * Description:	One dedicated short-lived TCP connection per measurement on
 *		the sync port. Both payloads are 8-byte IEEE-754 doubles in
 *		little-endian byte order, pinned so the two peers agree
 *		regardless of host architecture:
 *
 *		  1. Streamer connects, sends T0 = local_now + clock_offset.
 *		  2. Player receives T0, computes
 *		     player_offset = T0 - local_now + player_clock_offset,
 *		     and sends player_offset back.
 *		  3. Streamer receives player_offset, records T1; rtt = T1-T0.
 *
 *		The streamer only needs the round-trip time; the player is
 *		the one that stores player_offset (as "streamer offset") to
 *		interpret later frame deadlines.
 *
 *---------------------------------------------------------------*/
package peersync

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/audera-project/audera/internal/clock"
)

// wireSize is the length of one probe payload: an 8-byte IEEE-754 double.
const wireSize = 8

// ErrDesync is returned when a peer's reply is NaN, infinite, or otherwise
// too implausible to be a real clock offset.
var ErrDesync = fmt.Errorf("peersync: protocol desync")

// maxPlausibleOffsetSeconds bounds a believable streamer<->player clock
// offset. Real offsets are bounded by the reference-clock probe's own
// accuracy plus whatever the local hardware clock has drifted; an offset
// measured in hours means the exchange was garbled, not that two nodes
// really disagree on the time of day.
const maxPlausibleOffsetSeconds = 3600.0

// readDouble reads one wire double, rejecting NaN and infinities. Range
// plausibility is checked by the caller: a T0 is a full wall-clock time
// while an offset is near zero, so no single bound fits both.
func readDouble(conn net.Conn, deadline time.Time) (float64, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	var buf [wireSize]byte
	if _, err := readFull(conn, buf[:]); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrDesync
	}
	return v, nil
}

func writeDouble(conn net.Conn, v float64, deadline time.Time) error {
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	var buf [wireSize]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	_, err := conn.Write(buf[:])
	return err
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Probe dials addr (host:syncPort), runs one streamer-side exchange, and
// returns the measured round-trip time. clockOffset is the streamer's
// current reference-clock offset, added to the local wall clock before it
// is sent as T0.
func Probe(ctx context.Context, addr string, timeout time.Duration, clockOffset time.Duration) (rtt time.Duration, playerOffset time.Duration, err error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, 0, fmt.Errorf("peersync: dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)

	t0 := clock.NowSeconds() + clockOffset.Seconds()
	if err := writeDouble(conn, t0, deadline); err != nil {
		return 0, 0, fmt.Errorf("peersync: write T0: %w", err)
	}

	offsetSec, err := readDouble(conn, deadline)
	if err != nil {
		return 0, 0, fmt.Errorf("peersync: read player offset: %w", err)
	}
	if math.Abs(offsetSec) > maxPlausibleOffsetSeconds {
		return 0, 0, ErrDesync
	}

	t1 := clock.NowSeconds() + clockOffset.Seconds()
	rtt = time.Duration((t1 - t0) * float64(time.Second))
	if rtt < 0 {
		rtt = 0
	}
	playerOffset = time.Duration(offsetSec * float64(time.Second))
	return rtt, playerOffset, nil
}

// Respond serves the player side of one probe exchange on an already
// accepted conn: it reads T0, computes player_offset relative to the
// player's own reference-clock offset, and replies with it. The caller is
// responsible for closing conn afterward; each measurement is one
// connection, not a persistent session.
func Respond(conn net.Conn, timeout time.Duration, playerClockOffset time.Duration) (playerOffset time.Duration, err error) {
	deadline := time.Now().Add(timeout)

	t0, err := readDouble(conn, deadline)
	if err != nil {
		return 0, fmt.Errorf("peersync: read T0: %w", err)
	}

	localNow := clock.NowSeconds()
	offsetSec := t0 - localNow + playerClockOffset.Seconds()
	if math.IsNaN(offsetSec) || math.IsInf(offsetSec, 0) || math.Abs(offsetSec) > maxPlausibleOffsetSeconds {
		return 0, ErrDesync
	}

	if err := writeDouble(conn, offsetSec, deadline); err != nil {
		return 0, fmt.Errorf("peersync: write player offset: %w", err)
	}

	return time.Duration(offsetSec * float64(time.Second)), nil
}
