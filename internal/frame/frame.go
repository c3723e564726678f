// Package frame implements the audera wire frame: a length-prefixed,
// deadline-stamped PCM chunk terminated by a fixed delimiter.
//
/*------------------------------------------------------------------
 *
 * Purpose:	Build and parse the deadline-stamped audio frame that the
 *		streamer fans out to every attached player.
 *
 * Description:	Wire layout:
 *
 *		  len (4 bytes, big-endian uint32)
 *		  deadline (8 bytes, IEEE-754 double, little-endian)
 *		  payload (len bytes)
 *		  delimiter (fixed sequence, see audera.PacketDelimiter)
 *
 *		Readers frame on the delimiter; writers always append it
 *		verbatim. A length mismatch between the header and the
 *		payload actually observed is a hard drop, never an error
 *		that aborts the connection — one bad frame must not cost
 *		the player every frame behind it.
 *
 *---------------------------------------------------------------*/
package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"math"
)

// HeaderSize is the length of the len+deadline header preceding the
// payload.
const HeaderSize = 4 + 8

// ErrLengthMismatch is returned by Decode when the header's declared
// length does not match the payload actually read.
var ErrLengthMismatch = errors.New("frame: declared length does not match payload")

// Frame is one decoded, in-memory audio packet.
type Frame struct {
	// Deadline is the absolute wall-clock time, in seconds since the Unix
	// epoch, at which Payload must reach the DAC.
	Deadline float64
	Payload  []byte
}

// Encode renders f as wire bytes: header, payload, delimiter. The caller
// supplies delimiter (normally audera.PacketDelimiter) so this package has
// no dependency on the domain package.
func Encode(f Frame, delimiter []byte) []byte {
	out := make([]byte, 0, HeaderSize+len(f.Payload)+len(delimiter))

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.Payload))) //nolint:gosec // payload sizes are bounded by one audio chunk
	out = append(out, lenBuf[:]...)

	var deadlineBuf [8]byte
	binary.LittleEndian.PutUint64(deadlineBuf[:], math.Float64bits(f.Deadline))
	out = append(out, deadlineBuf[:]...)

	out = append(out, f.Payload...)
	out = append(out, delimiter...)

	return out
}

// Decode parses a complete wire frame (header + payload, delimiter already
// stripped by the caller's delimited read) into a Frame. It returns
// ErrLengthMismatch, never a generic parse error, when the declared
// length does not match the payload, so callers can apply the
// drop-and-keep-reading policy uniformly.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < HeaderSize {
		return Frame{}, ErrLengthMismatch
	}

	declaredLen := binary.BigEndian.Uint32(raw[0:4])
	deadline := math.Float64frombits(binary.LittleEndian.Uint64(raw[4:12]))
	payload := raw[HeaderSize:]

	if int(declaredLen) != len(payload) {
		return Frame{}, ErrLengthMismatch
	}

	return Frame{Deadline: deadline, Payload: payload}, nil
}

// ReadFrame reads one delimited frame from r, returning io.EOF when the
// stream is exhausted before a delimiter is found. The delimiter bytes
// themselves are consumed but not included in the returned raw slice.
func ReadFrame(r *bufio.Reader, delimiter []byte) ([]byte, error) {
	return readUntil(r, delimiter)
}

// readUntil reads from r until the full delimiter sequence has been
// observed, returning everything read before it (not including the
// delimiter). It supports a multi-byte delimiter that a single
// bufio.Reader.ReadBytes call (which only matches a single terminating
// byte) cannot express directly.
func readUntil(r *bufio.Reader, delimiter []byte) ([]byte, error) {
	if len(delimiter) == 0 {
		return nil, errors.New("frame: empty delimiter")
	}

	var buf []byte
	last := delimiter[len(delimiter)-1]

	for {
		chunk, err := r.ReadBytes(last)
		if len(chunk) > 0 {
			buf = append(buf, chunk...)
		}
		if err != nil {
			return buf, err
		}

		if len(buf) >= len(delimiter) && bytesEqual(buf[len(buf)-len(delimiter):], delimiter) {
			return buf[:len(buf)-len(delimiter)], nil
		}
		// The trailing byte matched but the full delimiter did not
		// (it can recur inside PCM payload bytes); keep reading.
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
