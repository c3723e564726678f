/*------------------------------------------------------------------
 *
 * Purpose:	Open, update and tear down the local PCM input and output
 *		devices through github.com/gordonklaus/portaudio.
 *
 * Description:	Input is read with a blocking Read() call from the
 *		streamer's cooperative capture loop. Output registers a
 *		native portaudio callback stream: the render callback is
 *		called from portaudio's own real-time thread and must never
 *		block or allocate, so it only ever touches the lock-free
 *		ring buffer in internal/ringbuffer and the caller-owned
 *		output slice.
 *
 *		Wire PCM bytes (signed 8/16/24/32-bit little-endian) are
 *		decoupled from the device's native sample representation:
 *		every declared format is widened to/narrowed from int32
 *		samples at the device boundary, so Update can reopen the
 *		stream with a different bit width without the ring buffer or
 *		the frame codec ever needing to know about it.
 *
 *---------------------------------------------------------------*/
package audioio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"

	"github.com/audera-project/audera/internal/audera"
	"github.com/audera-project/audera/internal/clock"
	"github.com/audera-project/audera/internal/frame"
	"github.com/audera-project/audera/internal/ringbuffer"
)

var (
	initOnce sync.Once
	initErr  error
)

// ensureInitialized calls portaudio.Initialize exactly once per process.
func ensureInitialized() error {
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	return initErr
}

// resolveDevice maps an audera.AudioDevice onto a portaudio device,
// falling back to the backend's reported default for the role when the
// device names "default" or is unnamed.
func resolveDevice(dev audera.AudioDevice) (*portaudio.DeviceInfo, error) {
	if dev.Name == "" || dev.Name == "default" {
		if dev.Role == audera.DeviceRoleInput {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audioio: list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == dev.Name || d.Index == dev.Index {
			return d, nil
		}
	}
	return nil, fmt.Errorf("audioio: device %q not found", dev.Name)
}

// Input is the streamer's capture endpoint: opened with an AudioInterface
// and AudioDevice, read one chunk at a time from the cooperative capture
// loop.
type Input struct {
	mu    sync.Mutex
	iface audera.AudioInterface
	dev   audera.AudioDevice

	stream *portaudio.Stream
	buf    []int32
}

// OpenInput opens the input device for iface/dev.
func OpenInput(iface audera.AudioInterface, dev audera.AudioDevice) (*Input, error) {
	if err := ensureInitialized(); err != nil {
		return nil, fmt.Errorf("audioio: initialize: %w", err)
	}
	if err := iface.Validate(); err != nil {
		return nil, err
	}

	devInfo, err := resolveDevice(dev)
	if err != nil {
		return nil, err
	}

	in := &Input{iface: iface, dev: dev, buf: make([]int32, iface.Channels*iface.Chunk)}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   devInfo,
			Channels: iface.Channels,
			Latency:  devInfo.DefaultLowInputLatency,
		},
		SampleRate:      float64(iface.Rate),
		FramesPerBuffer: iface.Chunk,
	}

	stream, err := portaudio.OpenStream(params, in.buf)
	if err != nil {
		return nil, fmt.Errorf("audioio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("audioio: start input stream: %w", err)
	}
	in.stream = stream
	return in, nil
}

// Interface returns the endpoint's current AudioInterface.
func (in *Input) Interface() audera.AudioInterface {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.iface
}

// Device returns the endpoint's current AudioDevice.
func (in *Input) Device() audera.AudioDevice {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dev
}

// ReadChunk blocks until one chunk's worth of PCM bytes has been captured,
// encoded in the endpoint's declared sample format. ctx is observed between
// reads only — portaudio's blocking Read has no cancellation of its own, so
// a cancelled ctx is surfaced on the next call, not pre-emptively.
func (in *Input) ReadChunk(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in.mu.Lock()
	stream, buf, format := in.stream, in.buf, in.iface.Format
	in.mu.Unlock()

	if err := stream.Read(); err != nil {
		return nil, fmt.Errorf("audioio: read input: %w", err)
	}
	return encodeFromInt32(buf, format), nil
}

// Update reopens the input with new parameters if they differ from the
// current ones, stopping and closing the old stream before opening the new
// one so the device is never left partially configured.
func (in *Input) Update(iface audera.AudioInterface, dev audera.AudioDevice) (bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.iface.Equal(iface) && in.dev.Equal(dev) {
		return false, nil
	}
	if err := iface.Validate(); err != nil {
		return false, err
	}

	if err := in.stream.Stop(); err != nil {
		return false, fmt.Errorf("audioio: stop input stream: %w", err)
	}
	if err := in.stream.Close(); err != nil {
		return false, fmt.Errorf("audioio: close input stream: %w", err)
	}

	devInfo, err := resolveDevice(dev)
	if err != nil {
		return false, err
	}
	buf := make([]int32, iface.Channels*iface.Chunk)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   devInfo,
			Channels: iface.Channels,
			Latency:  devInfo.DefaultLowInputLatency,
		},
		SampleRate:      float64(iface.Rate),
		FramesPerBuffer: iface.Chunk,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return false, fmt.Errorf("audioio: reopen input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		return false, fmt.Errorf("audioio: start input stream: %w", err)
	}

	in.stream, in.buf, in.iface, in.dev = stream, buf, iface, dev
	return true, nil
}

// Close stops and closes the input stream.
func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stream == nil {
		return nil
	}
	_ = in.stream.Stop()
	return in.stream.Close()
}

// Output is the player's render endpoint: a bounded FIFO of decoded frames
// drained by a portaudio render callback running on the backend's real-time
// thread.
type Output struct {
	mu    sync.Mutex
	iface audera.AudioInterface
	dev   audera.AudioDevice

	stream *portaudio.Stream
	queue  *ringbuffer.Ring[frame.Frame]
	logger *log.Logger

	// renderCfg carries the interface parameters the render callback
	// needs. An atomic pointer, not o.mu: the callback may never take a
	// lock the cooperative loop could be holding.
	renderCfg atomic.Pointer[renderConfig]

	// streamerOffset returns the latest peer-sync offset: the duration
	// subtracted from a frame's deadline to get a local-time deadline. It
	// is read fresh on every callback invocation.
	streamerOffset func() time.Duration
}

type renderConfig struct {
	expectedLen int
	format      audera.SampleFormat
}

// OpenOutput opens the output device for iface/dev and starts the render
// callback. queueCapacity is the requested bounded FIFO depth (default
// audera.BufferSize), rounded up to a power of two by ringbuffer.New.
// streamerOffset is consulted by the render callback on
// every invocation; the caller (internal/player) updates it as sync rounds
// complete.
func OpenOutput(
	logger *log.Logger,
	iface audera.AudioInterface,
	dev audera.AudioDevice,
	queueCapacity int,
	streamerOffset func() time.Duration,
) (*Output, error) {
	if err := ensureInitialized(); err != nil {
		return nil, fmt.Errorf("audioio: initialize: %w", err)
	}
	if err := iface.Validate(); err != nil {
		return nil, err
	}
	if queueCapacity <= 0 {
		queueCapacity = audera.BufferSize
	}

	lockRealtimeMemory(logger)

	o := &Output{
		iface:          iface,
		dev:            dev,
		queue:          ringbuffer.New[frame.Frame](queueCapacity),
		logger:         logger,
		streamerOffset: streamerOffset,
	}
	o.renderCfg.Store(&renderConfig{expectedLen: iface.ChunkBytes(), format: iface.Format})

	stream, err := o.openStream(iface, dev)
	if err != nil {
		return nil, err
	}
	o.stream = stream
	return o, nil
}

func (o *Output) openStream(iface audera.AudioInterface, dev audera.AudioDevice) (*portaudio.Stream, error) {
	devInfo, err := resolveDevice(dev)
	if err != nil {
		return nil, err
	}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   devInfo,
			Channels: iface.Channels,
			Latency:  devInfo.DefaultLowOutputLatency,
		},
		SampleRate:      float64(iface.Rate),
		FramesPerBuffer: iface.Chunk,
	}
	stream, err := portaudio.OpenStream(params, o.render)
	if err != nil {
		return nil, fmt.Errorf("audioio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("audioio: start output stream: %w", err)
	}
	return stream, nil
}

// render is the real-time callback. It must not block or allocate on the
// steady-state path: ring buffer operations are lock-free, the interface
// parameters arrive through an atomic pointer, and the silence fill touches
// only the caller-owned out slice.
func (o *Output) render(out []int32, timeInfo portaudio.StreamCallbackTimeInfo) {
	// The portaudio binding exposes the stream clock as time.Duration;
	// everything below is in float64 seconds like the frame deadlines.
	localNow := clock.NowSeconds()
	dacOffset := localNow - timeInfo.CurrentTime.Seconds()
	dacPlaybackTime := timeInfo.OutputBufferDacTime.Seconds() + dacOffset

	cfg := o.renderCfg.Load()
	expectedLen, format := cfg.expectedLen, cfg.format

	streamerOffset := o.streamerOffset().Seconds()

	for {
		f, ok := o.queue.Peek()
		if !ok {
			break
		}
		if len(f.Payload) != expectedLen {
			o.logger.Warn("Incomplete packet", "deadline", f.Deadline, "expected_len", expectedLen, "actual_len", len(f.Payload))
			o.queue.Drop()
			continue
		}
		target := f.Deadline - streamerOffset
		if target < dacPlaybackTime {
			o.logger.Warn("Late packet", "deadline", f.Deadline, "target_playback_time", target, "dac_playback_time", dacPlaybackTime)
			o.queue.Drop()
			continue
		}
		break
	}

	f, ok := o.queue.TryPop()
	if !ok {
		for i := range out {
			out[i] = 0
		}
		return
	}
	decodeToInt32(out, f.Payload, format)
}

// Enqueue pushes a decoded frame onto the output's bounded FIFO, evicting
// the oldest queued frame if it is full.
func (o *Output) Enqueue(f frame.Frame) {
	o.queue.PushEvicting(f)
}

// QueueLen reports the current depth of the output's FIFO.
func (o *Output) QueueLen() int {
	return o.queue.Len()
}

// Clear discards every currently-queued frame. Used when a new streamer
// attaches so stale audio from the previous one is never rendered against
// the new streamer's clock.
func (o *Output) Clear() {
	o.queue.Clear()
}

// Interface returns the endpoint's current AudioInterface.
func (o *Output) Interface() audera.AudioInterface {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.iface
}

// Device returns the endpoint's current AudioDevice.
func (o *Output) Device() audera.AudioDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dev
}

// Update reopens the output with new parameters if they differ from the
// current ones: stop, close, reopen, never torn partway.
func (o *Output) Update(iface audera.AudioInterface, dev audera.AudioDevice) (bool, error) {
	o.mu.Lock()
	if o.iface.Equal(iface) && o.dev.Equal(dev) {
		o.mu.Unlock()
		return false, nil
	}
	o.mu.Unlock()

	if err := iface.Validate(); err != nil {
		return false, err
	}

	if err := o.stream.Stop(); err != nil {
		return false, fmt.Errorf("audioio: stop output stream: %w", err)
	}
	if err := o.stream.Close(); err != nil {
		return false, fmt.Errorf("audioio: close output stream: %w", err)
	}

	// The old stream is stopped, so no callback is in flight to observe
	// a half-applied config.
	o.renderCfg.Store(&renderConfig{expectedLen: iface.ChunkBytes(), format: iface.Format})

	stream, err := o.openStream(iface, dev)
	if err != nil {
		return false, err
	}

	o.mu.Lock()
	o.stream, o.iface, o.dev = stream, iface, dev
	o.mu.Unlock()
	return true, nil
}

// Close stops and closes the output stream.
func (o *Output) Close() error {
	if o.stream == nil {
		return nil
	}
	_ = o.stream.Stop()
	return o.stream.Close()
}

// decodeToInt32 widens raw, little-endian signed PCM bytes of the given
// format into out, one sample per channel-frame element. Bit depths
// narrower than 32 are sign-extended; audera never declares a format wider
// than 32, so no truncation path exists.
func decodeToInt32(out []int32, raw []byte, format audera.SampleFormat) {
	width := format.BytesPerSample()
	n := len(raw) / width
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		b := raw[i*width : i*width+width]
		out[i] = signExtend(b)
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

// encodeFromInt32 narrows captured int32 samples back into raw PCM bytes of
// the given format, little-endian.
func encodeFromInt32(in []int32, format audera.SampleFormat) []byte {
	width := format.BytesPerSample()
	out := make([]byte, len(in)*width)
	for i, sample := range in {
		putLittleEndian(out[i*width:i*width+width], sample)
	}
	return out
}

func signExtend(b []byte) int32 {
	var v int32
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | int32(b[i])
	}
	shift := uint(32 - 8*len(b))
	return v << shift >> shift
}

func putLittleEndian(dst []byte, v int32) {
	for i := range dst {
		dst[i] = byte(v >> (8 * i))
	}
}
