/*------------------------------------------------------------------
 *
 * Purpose:	Command-line entrypoint for the audera streamer and player.
 *
 * Description:	Parses flags with github.com/spf13/pflag, then dispatches
 *		to internal/streamer or internal/player under a
 *		internal/supervisor restart loop. Exits 0 on clean shutdown,
 *		22 (EINVAL) on an unknown role, 5 (EIO) on unrecoverable
 *		audio-device failure.
 *
 *---------------------------------------------------------------*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/audera-project/audera/internal/audera"
	"github.com/audera-project/audera/internal/audioio"
	"github.com/audera-project/audera/internal/clock"
	"github.com/audera-project/audera/internal/configstore"
	"github.com/audera-project/audera/internal/control"
	"github.com/audera-project/audera/internal/discovery"
	"github.com/audera-project/audera/internal/logging"
	"github.com/audera-project/audera/internal/player"
	"github.com/audera-project/audera/internal/streamer"
	"github.com/audera-project/audera/internal/supervisor"
)

const (
	exitOK            = 0
	exitInvalidRole   = 22 // EINVAL
	exitDeviceFailure = 5  // EIO
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("audera", pflag.ContinueOnError)

	role := fs.StringP("role", "r", "", "Node role: \"streamer\" or \"player\".")
	name := fs.StringP("name", "n", "", "Human name for this node's identity. Ignored once an identity is on file.")
	ntpServer := fs.String("ntp-server", "pool.ntp.org", "Reference time source for the clock probe.")
	syncInterval := fs.Duration("sync-interval", audera.SyncInterval, "Interval between reference-clock probes.")
	streamPort := fs.Int("stream-port", audera.StreamPort, "TCP port the audio stream is broadcast/received on.")
	syncPort := fs.Int("sync-port", audera.SyncPort, "TCP port the peer-sync probe uses.")
	playbackDelay := fs.Duration("playback-delay", audera.PlaybackDelay, "Fixed headroom added to every frame's deadline.")
	adaptiveDelay := fs.Bool("adaptive-playback-delay", false, "Adapt the playback delay to observed RTT/jitter. Disabled by default.")
	seedFile := fs.StringP("seed-file", "s", "", "YAML file to seed the in-memory config collaborator from.")
	jsonLogs := fs.Bool("json", false, "Force JSON-formatted logs regardless of TTY detection.")
	gpioChip := fs.String("gpio-chip", "", "Optional gpiod chardev (e.g. \"gpiochip0\") driving a player's mute button + status LED. Ignored on the streamer and on any role when unset.")
	gpioMuteLine := fs.Int("gpio-mute-line", 23, "GPIO line offset for the mute button input.")
	gpioStatusLine := fs.Int("gpio-status-line", 24, "GPIO line offset for the playing-status LED output.")
	help := fs.BoolP("help", "h", false, "Display help text.")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - multi-room synchronized audio streaming.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: audera --role={streamer|player} [options]\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitInvalidRole
	}
	if *help {
		fs.Usage()
		return exitOK
	}

	logger := logging.New(logging.Options{Role: *role, JSON: *jsonLogs})

	store := configstore.NewMemoryStore()
	if *seedFile != "" {
		if err := store.LoadFile(*seedFile); err != nil {
			logger.Error("failed to load seed file", "path", *seedFile, "err", err)
		}
	}

	identity, err := resolveIdentity(store, *name)
	if err != nil {
		logger.Error("failed to resolve node identity", "err", err)
		return exitDeviceFailure
	}
	logger = logger.With("uuid", identity.ShortUUID())

	clk := clock.New(logger, *ntpServer, *syncInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	// A hot-plug watcher failure must never take down streaming or
	// playback, so it runs in its own best-effort loop outside the
	// supervisor rather than as a restartable Task.
	go watchDeviceTopology(ctx, logger)

	switch *role {
	case "streamer":
		return runStreamer(ctx, logger, store, identity, clk, streamerFlags{
			streamPort:    *streamPort,
			syncPort:      *syncPort,
			playbackDelay: *playbackDelay,
			adaptiveDelay: *adaptiveDelay,
		})
	case "player":
		return runPlayer(ctx, logger, store, identity, clk, *streamPort, *syncPort, gpioFlags{
			chip:       *gpioChip,
			muteLine:   *gpioMuteLine,
			statusLine: *gpioStatusLine,
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q: expected \"streamer\" or \"player\"\n", *role)
		return exitInvalidRole
	}
}

func resolveIdentity(store configstore.Store, name string) (audera.Identity, error) {
	mac, err := audera.LocalMAC()
	if err != nil {
		return audera.Identity{}, err
	}
	ip, err := audera.LocalIP()
	if err != nil {
		return audera.Identity{}, err
	}
	if name == "" {
		name = audera.DefaultIdentityName
	}

	return store.GetOrCreateIdentity(audera.Identity{
		Name:    name,
		UUID:    audera.GenerateUUIDFromMAC(mac),
		MAC:     mac,
		Address: ip,
	})
}

// watchDeviceTopology retries audioio's udev-backed device watcher (a
// no-op on non-Linux builds) until ctx is cancelled, logging each ALSA
// hot-plug event. It never propagates a failure to the supervisor. The
// event callback only logs; devices are picked up on the next
// config-collaborator poll whether or not the watcher is running.
func watchDeviceTopology(ctx context.Context, logger *log.Logger) {
	watcher := audioio.NewDeviceWatcher(logger)
	for {
		if ctx.Err() != nil {
			return
		}
		err := watcher.Run(ctx, func() {
			logger.Info("audio device topology changed, will be picked up on next config poll")
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Debug("device topology watch unavailable, retrying", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(audera.TimeOut):
		}
	}
}

type gpioFlags struct {
	chip       string
	muteLine   int
	statusLine int
}

// runControlSurface opens the optional GPIO mute button + status LED and
// mirrors the player's Playing state onto the status LED until ctx is
// cancelled. A
// missing or inaccessible chip is expected on most deployments, so it only
// logs at Debug and returns rather than failing the player.
func runControlSurface(ctx context.Context, logger *log.Logger, store configstore.Store, flags gpioFlags, playerUUID string) {
	if flags.chip == "" {
		return
	}

	ctrl, err := control.NewController(logger, store, playerUUID, flags.chip, flags.muteLine, flags.statusLine)
	if err != nil {
		logger.Debug("GPIO control surface unavailable", "chip", flags.chip, "err", err)
		return
	}
	defer ctrl.Close()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p, err := store.Get(playerUUID)
			if err == nil {
				ctrl.SetPlaying(p.Playing)
			}
		}
	}
}

type streamerFlags struct {
	streamPort    int
	syncPort      int
	playbackDelay time.Duration
	adaptiveDelay bool
}

func runStreamer(ctx context.Context, logger *log.Logger, store configstore.Store, identity audera.Identity, clk *clock.Probe, flags streamerFlags) int {
	s := streamer.New(logger, store, identity, clk, streamer.Options{
		StreamPort:            flags.streamPort,
		SyncPort:              flags.syncPort,
		PlaybackDelay:         flags.playbackDelay,
		AdaptivePlaybackDelay: flags.adaptiveDelay,
	})

	tasks := []supervisor.Task{
		clk.Run,
		s.Run,
	}

	if err := supervisor.Run(ctx, logger, audera.TimeOut, tasks...); err != nil && ctx.Err() == nil {
		logger.Error("streamer exited", "err", err)
		return exitDeviceFailure
	}
	return exitOK
}

func runPlayer(ctx context.Context, logger *log.Logger, store configstore.Store, identity audera.Identity, clk *clock.Probe, streamPort, syncPort int, gpio gpioFlags) int {
	p := player.New(logger, store, identity, clk, player.Options{
		StreamPort: streamPort,
		SyncPort:   syncPort,
	})

	playerRecord, err := store.GetOrCreate(identity)
	if err != nil {
		logger.Error("failed to register local player record", "err", err)
		return exitDeviceFailure
	}
	if _, err := store.Connect(playerRecord.UUID); err != nil {
		logger.Warn("failed to mark player connected", "err", err)
	}

	broadcaster, err := discovery.NewBroadcaster(logger, streamPort)
	if err != nil {
		logger.Error("failed to start mDNS broadcaster", "err", err)
		return exitDeviceFailure
	}

	// Optional GPIO mute button + status LED: its own best-effort loop,
	// outside the supervisor, so a missing chip never affects playback.
	go runControlSurface(ctx, logger, store, gpio, playerRecord.UUID)

	tasks := []supervisor.Task{
		clk.Run,
		p.Run,
		func(ctx context.Context) error {
			current, err := store.Get(playerRecord.UUID)
			if err != nil {
				current = playerRecord
			}
			go republishOnChange(ctx, logger, store, broadcaster, playerRecord.UUID, current)
			return broadcaster.Register(ctx, current)
		},
	}

	if err := supervisor.Run(ctx, logger, audera.TimeOut, tasks...); err != nil && ctx.Err() == nil {
		logger.Error("player exited", "err", err)
		return exitDeviceFailure
	}
	return exitOK
}

// republishOnChange polls the config collaborator and republishes the mDNS
// TXT record whenever any Player field drifts from the last broadcast
// snapshot — connect/disconnect from the streamer, playing-state changes,
// the GPIO mute button. Runs until ctx is cancelled; it restarts with the
// broadcaster task that spawned it.
func republishOnChange(ctx context.Context, logger *log.Logger, store configstore.Store, b *discovery.Broadcaster, uuid string, last audera.Player) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, err := store.Get(uuid)
			if err != nil {
				continue
			}
			if current != last {
				b.Update(current)
				logger.Debug("republished mDNS record", "uuid", current.ShortUUID(), "connected", current.Connected, "playing", current.Playing)
				last = current
			}
		}
	}
}
