/*------------------------------------------------------------------
 *
 * Purpose:	The playback pipeline: accept peer-sync probes, receive the
 *		framed audio stream, and feed the render-callback-driven
 *		output queue.
 *
 * Description:	Three cooperating activities:
 *
 *		  (a) sync acceptor   - serves one streamer at a time on the
 *		                        sync port; a new streamer address
 *		                        atomically closes the prior playback
 *		                        session and sets sync_ready.
 *		  (b) stream acceptor - gated on sync_ready; reads delimited
 *		                        frames and enqueues them on the
 *		                        output's bounded FIFO, setting
 *		                        buffer_ready after the first.
 *		  (c) render callback - lives in internal/audioio (the
 *		                        portaudio real-time thread); this
 *		                        package only supplies it the latest
 *		                        streamer offset.
 *
 *---------------------------------------------------------------*/
package player

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/audera-project/audera/internal/audera"
	"github.com/audera-project/audera/internal/audioio"
	"github.com/audera-project/audera/internal/clock"
	"github.com/audera-project/audera/internal/configstore"
	"github.com/audera-project/audera/internal/event"
	"github.com/audera-project/audera/internal/frame"
	"github.com/audera-project/audera/internal/peersync"
)

// Options configures a Player service.
type Options struct {
	SyncPort   int
	StreamPort int
	TimeOut    time.Duration
	QueueSize  int
}

func (o *Options) setDefaults() {
	if o.SyncPort == 0 {
		o.SyncPort = audera.SyncPort
	}
	if o.StreamPort == 0 {
		o.StreamPort = audera.StreamPort
	}
	if o.TimeOut == 0 {
		o.TimeOut = audera.TimeOut
	}
	if o.QueueSize == 0 {
		o.QueueSize = audera.BufferSize
	}
}

// Service is the player-side playback pipeline.
type Service struct {
	logger   *log.Logger
	store    configstore.Store
	identity audera.Identity
	clk      *clock.Probe
	opts     Options

	syncReady   *event.Event
	bufferReady *event.Event

	mu                 sync.Mutex
	currentStreamer    string
	streamerOffsetNano atomic.Int64

	output *audioio.Output
}

// New creates a Service.
func New(logger *log.Logger, store configstore.Store, identity audera.Identity, clk *clock.Probe, opts Options) *Service {
	opts.setDefaults()
	return &Service{
		logger:      logger,
		store:       store,
		identity:    identity,
		clk:         clk,
		opts:        opts,
		syncReady:   event.New(),
		bufferReady: event.New(),
	}
}

// streamerOffset reads the most recently measured streamer offset, the
// duration subtracted from a frame's deadline to get a local-time deadline.
func (s *Service) streamerOffset() time.Duration {
	return time.Duration(s.streamerOffsetNano.Load())
}

// Run starts the sync acceptor and stream acceptor, and the output render
// stream, until ctx is cancelled or an unrecoverable audio-device error
// occurs.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("player started", "name", s.identity.Name, "uuid", s.identity.ShortUUID())

	iface, err := s.store.GetInterface()
	if err != nil {
		return fmt.Errorf("player: get interface: %w", err)
	}
	dev, err := s.store.GetDevice(audera.DeviceRoleOutput)
	if err != nil {
		return fmt.Errorf("player: get device: %w", err)
	}

	output, err := audioio.OpenOutput(s.logger, iface, dev, s.opts.QueueSize, s.streamerOffset)
	if err != nil {
		s.logger.Error("audio output device failure", "err", err)
		return err
	}
	s.output = output
	defer func() { _ = s.output.Close() }()

	errCh := make(chan error, 2)
	go func() { errCh <- s.syncAcceptor(ctx) }()
	go func() { errCh <- s.streamAcceptor(ctx) }()

	select {
	case <-ctx.Done():
		s.syncReady.Clear()
		s.bufferReady.Clear()
		return ctx.Err()
	case err := <-errCh:
		s.syncReady.Clear()
		s.bufferReady.Clear()
		return err
	}
}

// syncAcceptor serves the player side of the clock-offset probe on the
// sync port, one exchange per connection.
func (s *Service) syncAcceptor(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.opts.SyncPort))
	if err != nil {
		return fmt.Errorf("player: listen sync port: %w", err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("sync accept failed", "err", err)
			continue
		}
		go s.handleSyncConn(conn)
	}
}

func (s *Service) handleSyncConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()

	// Compare hosts, not host:port — every probe arrives from a fresh
	// ephemeral source port on the same streamer.
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}

	s.mu.Lock()
	streamerChanged := s.currentStreamer != "" && s.currentStreamer != host
	s.currentStreamer = host
	s.mu.Unlock()

	if streamerChanged {
		// A new streamer address closes the prior playback session:
		// drop whatever was queued so stale audio from the old
		// streamer never plays against the new one's clock.
		s.bufferReady.Clear()
		if s.output != nil {
			s.output.Clear()
		}
	}

	offset, err := peersync.Respond(conn, s.opts.TimeOut, s.clk.Offset())
	if err != nil {
		s.logger.Warn("peer sync exchange failed", "remote", remote, "err", err)
		return
	}

	s.streamerOffsetNano.Store(int64(offset))
	s.syncReady.Set()
	s.logger.Info("synchronized with streamer", "remote", remote, "offset_sec", offset.Seconds())
}

// streamAcceptor serves the player side of the audio stream on the stream
// port, gated on sync_ready.
func (s *Service) streamAcceptor(ctx context.Context) error {
	if err := s.syncReady.Wait(ctx); err != nil {
		return err
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.opts.StreamPort))
	if err != nil {
		return fmt.Errorf("player: listen stream port: %w", err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("stream accept failed", "err", err)
			continue
		}
		if err := s.receiveStream(ctx, conn); err != nil && ctx.Err() == nil {
			s.logger.Info("audio streamer disconnected", "remote", conn.RemoteAddr(), "err", err)
		}
	}
}

// receiveStream reads delimited frames from conn until it closes or ctx is
// cancelled, enqueuing each parsed frame onto the output's FIFO.
func (s *Service) receiveStream(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	// Closing the listener does not unblock an accepted conn; close it
	// directly so a blocked ReadFrame observes cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	reader := bufio.NewReader(conn)
	first := true

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := frame.ReadFrame(reader, audera.PacketDelimiter)
		if err != nil {
			return err
		}

		f, err := frame.Decode(raw)
		if err != nil {
			// Hard drop on a length mismatch; keep reading rather than
			// aborting the connection, so one bad frame never costs
			// every frame behind it.
			s.logger.Warn("Incomplete packet")
			continue
		}

		s.output.Enqueue(f)
		if first {
			s.bufferReady.Set()
			first = false

			iface, _ := s.store.GetInterface()
			dev, _ := s.store.GetDevice(audera.DeviceRoleOutput)
			s.logger.Info("playing audio",
				"bits", iface.Format, "rate", iface.Rate, "channels", iface.Channels,
				"device", dev.Name)
		}

		// Pick up an interface/device change the config collaborator
		// reports mid-stream, mirroring the streamer's own
		// per-iteration poll.
		iface, err := s.store.GetInterface()
		if err == nil {
			dev, derr := s.store.GetDevice(audera.DeviceRoleOutput)
			if derr == nil {
				if changed, uerr := s.output.Update(iface, dev); uerr == nil && changed {
					s.logger.Info("Restarting the audio stream")
				}
			}
		}
	}
}
