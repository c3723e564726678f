// Package audera holds the domain types and wire constants shared by every
// audera component: identities, audio interfaces/devices, players, groups,
// sessions and the frame delimiter. It has no dependencies on the rest of
// the module so every package can import it without a cycle.
package audera

import "time"

const (
	// Name is the product name used in mDNS instance names and the
	// literal six-byte tag embedded in every frame delimiter.
	Name = "audera"

	// MDNSServiceType is the multicast service type audera players
	// register and audera streamers browse for.
	MDNSServiceType = "_audera._tcp"

	// StreamPort is the default TCP port the streamer dials to deliver
	// framed PCM audio.
	StreamPort = 5000

	// SyncPort is the default TCP port used for the pairwise clock-offset
	// and round-trip-time probe.
	SyncPort = 5001

	// SyncInterval is the default interval between reference-clock probes.
	SyncInterval = 600 * time.Second

	// TimeOut bounds every outbound connect, every in-task sleep, and the
	// drain pause after a topology or parameter change.
	TimeOut = 5 * time.Second

	// PlaybackDelay is the fixed headroom the streamer adds on top of the
	// wall-clock deadline to absorb network and buffer latency.
	PlaybackDelay = 2 * time.Second

	// MinPlaybackDelay and MaxPlaybackDelay clamp the optional
	// RTT-adaptive playback delay; unused unless
	// Streamer.Options.AdaptivePlaybackDelay is set.
	MinPlaybackDelay = 1 * time.Second
	MaxPlaybackDelay = 5 * time.Second

	// LowJitter, HighJitter, LowRTT, HighRTT and AdaptiveStep tune the
	// optional adaptive playback delay. Jitter and RTT are in seconds.
	LowJitter    = 0.01
	HighJitter   = 0.05
	LowRTT       = 0.1
	HighRTT      = 0.5
	AdaptiveStep = 50 * time.Millisecond

	// RTTHistorySize bounds the per-peer round-trip-time history.
	RTTHistorySize = 10

	// BufferSize is the default output-queue capacity requested on a
	// player. ringbuffer.New rounds it up to the next power of two, so the
	// queue actually holds 16 frames.
	BufferSize = 10
)

// PacketDelimiter is the fixed sequence every frame writer appends verbatim
// and every frame reader frames on: 0xFF 0xFE 0xFD 0xFC, the product name,
// and two trailing NUL bytes.
var PacketDelimiter = append(
	[]byte{0xFF, 0xFE, 0xFD, 0xFC},
	append([]byte(Name), 0x00, 0x00)...,
)
