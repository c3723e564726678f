/*------------------------------------------------------------------
 *
 * Purpose:	The streamer pipeline: capture, stamp with a deadline, and
 *		fan out PCM chunks to every attached player sink.
 *
 * Description:	State machine:
 *
 *		  Idle     - wait for the discovery browser to report a
 *		             player.
 *		  Syncing  - one pairwise peer-sync round against every
 *		             currently-seen player; failures detach.
 *		  Streaming - read one chunk, stamp a deadline, fan out to
 *		              every current sink concurrently; failed sinks
 *		              are detached but never stall their peers.
 *		  Drain    - after a new player attaches, or the input
 *		             parameters change, sleep one audera.TimeOut
 *		             before the next capture so every player's
 *		             buffer can drain and re-converge.
 *
 *---------------------------------------------------------------*/
package streamer

import (
	"context"
	"fmt"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/audera-project/audera/internal/audera"
	"github.com/audera-project/audera/internal/audioio"
	"github.com/audera-project/audera/internal/clock"
	"github.com/audera-project/audera/internal/configstore"
	"github.com/audera-project/audera/internal/discovery"
	"github.com/audera-project/audera/internal/frame"
	"github.com/audera-project/audera/internal/peersync"
	"github.com/audera-project/audera/internal/session"
)

// Options configures a Streamer. Zero values fall back to the audera
// package's documented defaults.
type Options struct {
	StreamPort int
	SyncPort   int

	PlaybackDelay time.Duration
	TimeOut       time.Duration

	// AdaptivePlaybackDelay shrinks or grows the playback delay from the
	// observed RTT mean and jitter. Off by default. When enabled,
	// PlaybackDelay is only the starting point.
	AdaptivePlaybackDelay bool
}

func (o *Options) setDefaults() {
	if o.StreamPort == 0 {
		o.StreamPort = audera.StreamPort
	}
	if o.SyncPort == 0 {
		o.SyncPort = audera.SyncPort
	}
	if o.PlaybackDelay == 0 {
		o.PlaybackDelay = audera.PlaybackDelay
	}
	if o.TimeOut == 0 {
		o.TimeOut = audera.TimeOut
	}
}

// peerState is the streamer-owned, per-player bookkeeping the sync loop
// maintains: a bounded RTT history of audera.RTTHistorySize measurements.
type peerState struct {
	rttHistory []time.Duration
}

func (p *peerState) record(rtt time.Duration) {
	p.rttHistory = append(p.rttHistory, rtt)
	if len(p.rttHistory) > audera.RTTHistorySize {
		p.rttHistory = p.rttHistory[len(p.rttHistory)-audera.RTTHistorySize:]
	}
}

// Streamer drives the capture-stamp-fan-out loop against a live session of
// attached players.
type Streamer struct {
	logger   *log.Logger
	store    configstore.Store
	identity audera.Identity
	sess     *session.Session
	clk      *clock.Probe
	opts     Options

	mu             sync.Mutex
	peers          map[string]*peerState
	newPlayerSince bool
	playbackDelay  time.Duration
	lastDeadline   float64
	input          *audioio.Input
}

// New creates a Streamer.
func New(logger *log.Logger, store configstore.Store, identity audera.Identity, clk *clock.Probe, opts Options) *Streamer {
	opts.setDefaults()
	return &Streamer{
		logger:        logger,
		store:         store,
		identity:      identity,
		sess:          session.New(),
		clk:           clk,
		opts:          opts,
		peers:         make(map[string]*peerState),
		playbackDelay: opts.PlaybackDelay,
	}
}

// Run browses for players and streams to every attached one until ctx is
// cancelled or an unrecoverable audio-device error occurs.
func (s *Streamer) Run(ctx context.Context) error {
	s.logger.Info("streamer started", "name", s.identity.Name, "uuid", s.identity.ShortUUID())

	defer s.closeSession()
	defer func() {
		if s.input != nil {
			_ = s.input.Close()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	browser := discovery.NewBrowser(s.logger)
	g.Go(func() error {
		return browser.Run(gctx, func(p audera.Player) {
			go s.syncAndAttach(gctx, p)
		}, func(p audera.Player) {
			s.detach(p.UUID)
		})
	})

	g.Go(func() error {
		return s.captureLoop(gctx)
	})

	return g.Wait()
}

// markNewPlayer records that a player attached since the last capture-loop
// iteration, triggering one Drain pause.
func (s *Streamer) markNewPlayer() {
	s.mu.Lock()
	s.newPlayerSince = true
	s.mu.Unlock()
}

// consumeNewPlayer reports and clears the new-player flag.
func (s *Streamer) consumeNewPlayer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.newPlayerSince
	s.newPlayerSince = false
	return v
}

// syncAndAttach performs one peer-sync round (Syncing) against p and, on
// success, opens the stream sink and attaches it to the session.
func (s *Streamer) syncAndAttach(ctx context.Context, p audera.Player) {
	syncAddr := net.JoinHostPort(p.Address, strconv.Itoa(s.opts.SyncPort))
	rtt, _, err := peersync.Probe(ctx, syncAddr, s.opts.TimeOut, s.clk.Offset())
	if err != nil {
		s.logger.Warn("peer sync failed", "name", p.Name, "uuid", p.ShortUUID(), "err", err)
		return
	}

	s.mu.Lock()
	ps, ok := s.peers[p.UUID]
	if !ok {
		ps = &peerState{}
		s.peers[p.UUID] = ps
	}
	ps.record(rtt)
	history := append([]time.Duration(nil), ps.rttHistory...)
	s.mu.Unlock()

	s.logger.Info("player synchronized", "name", p.Name, "uuid", p.ShortUUID(), "rtt_sec", rtt.Seconds())

	if s.opts.AdaptivePlaybackDelay {
		s.adaptPlaybackDelay(history)
	}

	streamAddr := net.JoinHostPort(p.Address, strconv.Itoa(s.opts.StreamPort))
	conn, err := net.DialTimeout("tcp", streamAddr, s.opts.TimeOut)
	if err != nil {
		s.logger.Warn("stream connection failed", "name", p.Name, "uuid", p.ShortUUID(), "err", err)
		return
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			s.logger.Warn("failed to set TCP_NODELAY on sink socket", "name", p.Name, "err", err)
		}
	}

	player, err := s.store.GetOrCreate(p.Identity)
	if err != nil {
		s.logger.Warn("player record lookup failed", "uuid", p.ShortUUID(), "err", err)
		_ = conn.Close()
		return
	}
	if player, err = s.store.Connect(player.UUID); err != nil {
		s.logger.Warn("player connect failed", "uuid", p.ShortUUID(), "err", err)
	}

	s.sess.Attach(player, conn)
	s.markNewPlayer()

	if _, err := s.store.Play(player.UUID); err != nil {
		s.logger.Warn("player play-state update failed", "uuid", p.ShortUUID(), "err", err)
	}
}

// closeSession closes every sink and marks every still-attached player
// disconnected (and therefore not playing) in the config collaborator, so
// a shutdown or supervised restart never leaves stale connected/playing
// flags behind.
func (s *Streamer) closeSession() {
	for _, sink := range s.sess.Snapshot() {
		if _, err := s.store.Disconnect(sink.Player.UUID); err != nil {
			s.logger.Warn("player disconnect state update failed", "uuid", sink.Player.UUID, "err", err)
		}
	}
	s.sess.Close()
}

// detach removes uuid from the session and marks it disconnected.
func (s *Streamer) detach(uuid string) {
	s.sess.Detach(uuid)
	if _, err := s.store.Disconnect(uuid); err != nil {
		s.logger.Warn("player disconnect state update failed", "uuid", uuid, "err", err)
	}
}

// adaptPlaybackDelay implements the disabled-by-default RTT/jitter rule,
// clamped to [MinPlaybackDelay, MaxPlaybackDelay]. A shrink can never make
// the next deadline earlier than the one it replaces: nextDeadline clamps
// every deadline strictly after the previous one.
func (s *Streamer) adaptPlaybackDelay(history []time.Duration) {
	if len(history) < audera.RTTHistorySize {
		return
	}

	var sum float64
	for _, d := range history {
		sum += d.Seconds()
	}
	mean := sum / float64(len(history))

	var variance float64
	for _, d := range history {
		diff := d.Seconds() - mean
		variance += diff * diff
	}
	jitter := math.Sqrt(variance / float64(len(history)))

	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.playbackDelay.Seconds()
	switch {
	case jitter <= audera.LowJitter && mean <= audera.LowRTT:
		delay -= audera.AdaptiveStep.Seconds()
	case jitter >= audera.HighJitter || mean >= audera.HighRTT:
		delay += audera.AdaptiveStep.Seconds()
	}
	if delay < audera.MinPlaybackDelay.Seconds() {
		delay = audera.MinPlaybackDelay.Seconds()
	}
	if delay > audera.MaxPlaybackDelay.Seconds() {
		delay = audera.MaxPlaybackDelay.Seconds()
	}
	s.playbackDelay = time.Duration(delay * float64(time.Second))
}

// captureLoop implements the Streaming/Drain phases: open the input if
// needed, read one chunk, stamp a deadline, and fan out concurrently.
func (s *Streamer) captureLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Idle: nothing to stream to until the browser attaches a
		// player, so don't hold the capture device open either.
		if s.sess.Len() == 0 {
			if err := s.sleepOrDone(ctx, time.Second); err != nil {
				return err
			}
			continue
		}

		iface, err := s.store.GetInterface()
		if err != nil {
			return fmt.Errorf("streamer: get interface: %w", err)
		}
		dev, err := s.store.GetDevice(audera.DeviceRoleInput)
		if err != nil {
			return fmt.Errorf("streamer: get device: %w", err)
		}

		changed, err := s.ensureInput(iface, dev)
		if err != nil {
			s.logger.Error("audio input device failure", "err", err)
			return err
		}
		if changed {
			s.logger.Info("Restarting the audio stream")
			if err := s.sleepOrDone(ctx, s.opts.TimeOut); err != nil {
				return err
			}
		}

		if s.consumeNewPlayer() {
			if err := s.sleepOrDone(ctx, s.opts.TimeOut); err != nil {
				return err
			}
		}

		chunk, err := s.input.ReadChunk(ctx)
		if err != nil {
			s.logger.Error("audio input read failure", "err", err)
			return err
		}

		deadline := s.nextDeadline()
		wire := frame.Encode(frame.Frame{Deadline: deadline, Payload: chunk}, audera.PacketDelimiter)
		s.fanOut(ctx, wire)
	}
}

// nextDeadline computes now + clock_offset + playback_delay, clamped to be
// strictly after the previous frame's deadline: deadlines are strictly
// monotonic per stream.
func (s *Streamer) nextDeadline() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := clock.NowSeconds() + s.clk.Offset().Seconds() + s.playbackDelay.Seconds()
	if d <= s.lastDeadline {
		d = math.Nextafter(s.lastDeadline, math.Inf(1))
	}
	s.lastDeadline = d
	return d
}

// ensureInput opens the streamer's input endpoint on first use and reopens
// it when iface/dev change; the capture loop polls the config collaborator
// for the current values on every iteration.
func (s *Streamer) ensureInput(iface audera.AudioInterface, dev audera.AudioDevice) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.input == nil {
		in, err := audioio.OpenInput(iface, dev)
		if err != nil {
			return false, err
		}
		s.input = in
		return false, nil
	}

	return s.input.Update(iface, dev)
}

// fanOut writes wire to every currently-attached sink concurrently,
// detaching only the sinks that fail. A sequential loop would couple the
// slowest player to all others and violate the deadline. Each goroutine
// records its own sink's result directly rather than funnelling through a
// single combined error, so one failure never masks which peer actually
// failed.
func (s *Streamer) fanOut(_ context.Context, wire []byte) {
	sinks := s.sess.Snapshot()
	if len(sinks) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(sinks))
	for _, sink := range sinks {
		sink := sink
		go func() {
			defer wg.Done()
			if err := sink.Conn.SetWriteDeadline(time.Now().Add(s.opts.TimeOut)); err != nil {
				s.detachSink(sink)
				return
			}
			if _, err := sink.Conn.Write(wire); err != nil {
				s.detachSink(sink)
			}
		}()
	}
	wg.Wait()
}

func (s *Streamer) detachSink(sink session.Sink) {
	s.sess.Detach(sink.Player.UUID)
	if _, err := s.store.Disconnect(sink.Player.UUID); err != nil {
		s.logger.Warn("player disconnect state update failed", "uuid", sink.Player.UUID, "err", err)
	}
	s.logger.Info("player detached", "name", sink.Player.Name, "uuid", sink.Player.ShortUUID())
}

func (s *Streamer) sleepOrDone(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
