package frame

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testDelimiter = []byte{0xff, 0xfe, 0xfd, 0xfc, 'a', 'u', 'd', 'e', 'r', 'a', 0x00, 0x00}

func Test_EncodeDecode_roundTrip(t *testing.T) {
	f := Frame{Deadline: 12345.6789, Payload: []byte{1, 2, 3, 4, 5}}

	wire := Encode(f, testDelimiter)

	require.True(t, bytes.HasSuffix(wire, testDelimiter))

	raw := wire[:len(wire)-len(testDelimiter)]
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, f.Deadline, got.Deadline)
	assert.Equal(t, f.Payload, got.Payload)
}

func Test_Decode_lengthMismatch(t *testing.T) {
	f := Frame{Deadline: 1.0, Payload: []byte{1, 2, 3}}
	wire := Encode(f, testDelimiter)
	raw := wire[:len(wire)-len(testDelimiter)]

	// Truncate the payload without fixing the declared length.
	corrupt := raw[:len(raw)-1]
	_, err := Decode(corrupt)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func Test_ReadFrame_roundTrip(t *testing.T) {
	f1 := Frame{Deadline: 1.5, Payload: []byte("hello")}
	f2 := Frame{Deadline: 2.5, Payload: []byte("world")}

	var buf bytes.Buffer
	buf.Write(Encode(f1, testDelimiter))
	buf.Write(Encode(f2, testDelimiter))

	r := bufio.NewReader(&buf)

	raw1, err := ReadFrame(r, testDelimiter)
	require.NoError(t, err)
	got1, err := Decode(raw1)
	require.NoError(t, err)
	assert.Equal(t, f1, got1)

	raw2, err := ReadFrame(r, testDelimiter)
	require.NoError(t, err)
	got2, err := Decode(raw2)
	require.NoError(t, err)
	assert.Equal(t, f2, got2)
}

func Test_ReadFrame_delimiterLikeBytesInPayload(t *testing.T) {
	// A payload that contains the delimiter's trailing byte, but not the
	// full sequence, must not be mistaken for the real delimiter.
	payload := []byte{0x00, 0x00, 0x01, 0x00, 0x00}
	f := Frame{Deadline: 3.0, Payload: payload}

	var buf bytes.Buffer
	buf.Write(Encode(f, testDelimiter))

	raw, err := ReadFrame(bufio.NewReader(&buf), testDelimiter)
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Payload)
}

func Test_EncodeDecode_rapidRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		deadline := rapid.Float64Range(-1e9, 1e9).Draw(t, "deadline")
		payload := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "payload")

		f := Frame{Deadline: deadline, Payload: payload}
		wire := Encode(f, testDelimiter)
		raw := wire[:len(wire)-len(testDelimiter)]

		got, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, deadline, got.Deadline)
		assert.Equal(t, payload, got.Payload)
	})
}
