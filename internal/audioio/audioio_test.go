package audioio

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audera-project/audera/internal/audera"
	"github.com/audera-project/audera/internal/clock"
	"github.com/audera-project/audera/internal/frame"
	"github.com/audera-project/audera/internal/ringbuffer"
)

// testIface keeps the render tests small: mono int16, four frames per
// chunk, so one chunk is 8 payload bytes and 4 output samples.
var testIface = audera.AudioInterface{
	Format:   audera.SampleFormatInt16,
	Rate:     audera.SampleRate44100,
	Channels: 1,
	Chunk:    4,
}

// newTestOutput builds an Output around a plain ring buffer with no
// portaudio stream behind it; render never touches o.stream, so the
// callback is exercisable without audio hardware.
func newTestOutput(t *testing.T, logBuf *bytes.Buffer, streamerOffset time.Duration) *Output {
	t.Helper()
	o := &Output{
		iface:          testIface,
		queue:          ringbuffer.New[frame.Frame](audera.BufferSize),
		logger:         log.NewWithOptions(logBuf, log.Options{Level: log.DebugLevel}),
		streamerOffset: func() time.Duration { return streamerOffset },
	}
	o.renderCfg.Store(&renderConfig{expectedLen: testIface.ChunkBytes(), format: testIface.Format})
	return o
}

// testTimeInfo builds a callback time snapshot whose DAC playback moment is
// `lead` ahead of the local wall clock: CurrentTime is an arbitrary stream
// clock value, and render converts OutputBufferDacTime into wall-clock
// terms through their difference.
func testTimeInfo(lead time.Duration) portaudio.StreamCallbackTimeInfo {
	current := 90 * time.Second
	return portaudio.StreamCallbackTimeInfo{
		CurrentTime:         current,
		OutputBufferDacTime: current + lead,
	}
}

func chunkPayload(fill byte) []byte {
	payload := make([]byte, testIface.ChunkBytes())
	for i := range payload {
		payload[i] = fill
	}
	return payload
}

func Test_render_emitsSilenceOnEmptyQueue(t *testing.T) {
	var logBuf bytes.Buffer
	o := newTestOutput(t, &logBuf, 0)

	out := make([]int32, testIface.Channels*testIface.Chunk)
	for i := range out {
		out[i] = 123 // sentinel
	}

	o.render(out, testTimeInfo(10*time.Millisecond))

	for i, v := range out {
		assert.Equal(t, int32(0), v, "sample %d must be silence", i)
	}
}

func Test_render_playsAFrameDeadlineInTheFuture(t *testing.T) {
	var logBuf bytes.Buffer
	o := newTestOutput(t, &logBuf, 0)

	o.Enqueue(frame.Frame{
		Deadline: clock.NowSeconds() + 1.0,
		Payload:  chunkPayload(0x01),
	})

	out := make([]int32, testIface.Channels*testIface.Chunk)
	o.render(out, testTimeInfo(10*time.Millisecond))

	want := make([]int32, len(out))
	decodeToInt32(want, chunkPayload(0x01), testIface.Format)
	assert.Equal(t, want, out)
	assert.Equal(t, 0, o.QueueLen())
	assert.Empty(t, logBuf.String())
}

func Test_render_dropsLatePacketAndPlaysTheNextValidOne(t *testing.T) {
	var logBuf bytes.Buffer
	o := newTestOutput(t, &logBuf, 0)

	o.Enqueue(frame.Frame{
		Deadline: clock.NowSeconds() - 0.010, // already past
		Payload:  chunkPayload(0x01),
	})
	o.Enqueue(frame.Frame{
		Deadline: clock.NowSeconds() + 1.0,
		Payload:  chunkPayload(0x02),
	})

	out := make([]int32, testIface.Channels*testIface.Chunk)
	o.render(out, testTimeInfo(10*time.Millisecond))

	assert.Contains(t, logBuf.String(), "Late packet")

	want := make([]int32, len(out))
	decodeToInt32(want, chunkPayload(0x02), testIface.Format)
	assert.Equal(t, want, out, "the next valid frame must be rendered, not the late one")
	assert.Equal(t, 0, o.QueueLen())
}

func Test_render_dropsIncompletePacket(t *testing.T) {
	var logBuf bytes.Buffer
	o := newTestOutput(t, &logBuf, 0)

	o.Enqueue(frame.Frame{
		Deadline: clock.NowSeconds() + 1.0,
		Payload:  chunkPayload(0x01)[:3], // shorter than one chunk
	})

	out := make([]int32, testIface.Channels*testIface.Chunk)
	o.render(out, testTimeInfo(10*time.Millisecond))

	assert.Contains(t, logBuf.String(), "Incomplete packet")
	assert.Equal(t, 0, o.QueueLen(), "the malformed frame must be dropped, not left queued")
	for i, v := range out {
		assert.Equal(t, int32(0), v, "sample %d must be silence after the drop", i)
	}
}

func Test_render_appliesStreamerOffsetToDeadlines(t *testing.T) {
	var logBuf bytes.Buffer
	// A large positive streamer offset means the streamer's clock runs
	// ahead of ours; a deadline stamped "now" on the streamer is already
	// past once converted to local time.
	o := newTestOutput(t, &logBuf, 2*time.Second)

	o.Enqueue(frame.Frame{
		Deadline: clock.NowSeconds() + 1.0,
		Payload:  chunkPayload(0x01),
	})

	out := make([]int32, testIface.Channels*testIface.Chunk)
	o.render(out, testTimeInfo(10*time.Millisecond))

	assert.Contains(t, logBuf.String(), "Late packet")
	for i, v := range out {
		assert.Equal(t, int32(0), v, "sample %d must be silence", i)
	}
}

// Test_encodeFromInt32_decodeToInt32_roundTrip exercises the int32<->wire
// sample conversion at the device boundary for every enumerated sample
// format: encode then decode must
// reproduce the original magnitude, modulo the precision the format's bit
// width actually carries.
func Test_encodeFromInt32_decodeToInt32_roundTrip(t *testing.T) {
	formats := []audera.SampleFormat{
		audera.SampleFormatInt8,
		audera.SampleFormatInt16,
		audera.SampleFormatInt24,
		audera.SampleFormatInt32,
	}

	for _, format := range formats {
		format := format
		t.Run(fmt.Sprintf("width_%d", format), func(t *testing.T) {
			width := format.BytesPerSample()
			shift := uint(32 - 8*width)
			// A value representable exactly at this bit width: the
			// narrowing in encodeFromInt32 keeps only the low bytes and
			// drops the high ones, so seed samples that already fit.
			in := []int32{
				(42 << shift) >> shift,
				(-17 << shift) >> shift,
				0,
			}

			raw := encodeFromInt32(in, format)
			require.Len(t, raw, len(in)*width)

			out := make([]int32, len(in))
			decodeToInt32(out, raw, format)

			assert.Equal(t, in, out)
		})
	}
}

func Test_decodeToInt32_signExtendsNegativeSamples(t *testing.T) {
	// -1 as a single byte is 0xFF; sign-extended to int32 it must stay -1.
	out := make([]int32, 1)
	decodeToInt32(out, []byte{0xFF}, audera.SampleFormatInt8)
	assert.Equal(t, int32(-1), out[0])
}

func Test_decodeToInt32_zerosOutShortPayload(t *testing.T) {
	out := make([]int32, 4)
	for i := range out {
		out[i] = 123 // sentinel, must be overwritten with zero
	}
	decodeToInt32(out, []byte{1, 0}, audera.SampleFormatInt16)

	assert.Equal(t, int32(1), out[0])
	assert.Equal(t, int32(0), out[1])
	assert.Equal(t, int32(0), out[2])
	assert.Equal(t, int32(0), out[3])
}
