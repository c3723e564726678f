package audera

import "fmt"

// SampleFormat is the signed integer sample width carried on the wire.
type SampleFormat int

const (
	SampleFormatInt8  SampleFormat = 8
	SampleFormatInt16 SampleFormat = 16
	SampleFormatInt24 SampleFormat = 24
	SampleFormatInt32 SampleFormat = 32
)

// BytesPerSample returns the number of bytes one sample occupies on the
// wire, implied by the sample format's bit width.
func (f SampleFormat) BytesPerSample() int {
	return int(f) / 8
}

// Valid reports whether f is one of the enumerated signed integer widths.
func (f SampleFormat) Valid() bool {
	switch f {
	case SampleFormatInt8, SampleFormatInt16, SampleFormatInt24, SampleFormatInt32:
		return true
	default:
		return false
	}
}

// SampleRate is one of the enumerated sampling frequencies an AudioInterface
// may declare.
type SampleRate int

const (
	SampleRate5000  SampleRate = 5000
	SampleRate8000  SampleRate = 8000
	SampleRate11025 SampleRate = 11025
	SampleRate22050 SampleRate = 22050
	SampleRate44100 SampleRate = 44100
	SampleRate48000 SampleRate = 48000
	SampleRate92000 SampleRate = 92000
)

// Valid reports whether r is one of the enumerated rates.
func (r SampleRate) Valid() bool {
	switch r {
	case SampleRate5000, SampleRate8000, SampleRate11025, SampleRate22050,
		SampleRate44100, SampleRate48000, SampleRate92000:
		return true
	default:
		return false
	}
}

// AudioInterface describes the parameters of the digital audio stream:
// sample format, sample rate, channel count and the number of frames per
// broadcast chunk. Equality is structural.
type AudioInterface struct {
	Format   SampleFormat
	Rate     SampleRate
	Channels int
	Chunk    int
}

// DefaultInterface is the interface a fresh config collaborator resolves to
// when no interface has been persisted: 16-bit, 44.1kHz, stereo, 1024
// frames per chunk.
var DefaultInterface = AudioInterface{
	Format:   SampleFormatInt16,
	Rate:     SampleRate44100,
	Channels: 2,
	Chunk:    1024,
}

// Validate reports whether the interface's fields are all within their
// enumerated ranges.
func (a AudioInterface) Validate() error {
	if !a.Format.Valid() {
		return fmt.Errorf("audera: invalid sample format %d", a.Format)
	}
	if !a.Rate.Valid() {
		return fmt.Errorf("audera: invalid sample rate %d", a.Rate)
	}
	if a.Channels != 1 && a.Channels != 2 {
		return fmt.Errorf("audera: invalid channel count %d", a.Channels)
	}
	if a.Chunk <= 0 {
		return fmt.Errorf("audera: invalid chunk size %d", a.Chunk)
	}
	return nil
}

// ChunkBytes returns the byte length of one chunk's worth of PCM audio:
// channels * chunk frames * bytes per sample.
func (a AudioInterface) ChunkBytes() int {
	return a.Channels * a.Chunk * a.Format.BytesPerSample()
}

// Equal reports structural equality between two interfaces.
func (a AudioInterface) Equal(other AudioInterface) bool {
	return a == other
}

// DeviceRole distinguishes an input (capture) device from an output
// (playback) device.
type DeviceRole string

const (
	DeviceRoleInput  DeviceRole = "input"
	DeviceRoleOutput DeviceRole = "output"
)

// AudioDevice identifies a hardware sound device: its backend-reported
// name, its backend index, and the role it is opened for.
type AudioDevice struct {
	Name  string
	Index int
	Role  DeviceRole
}

// Equal reports structural equality between two devices.
func (d AudioDevice) Equal(other AudioDevice) bool {
	return d == other
}
