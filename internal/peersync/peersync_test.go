package peersync

import (
	"context"
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Probe_Respond_roundTrip(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	serverDone := make(chan time.Duration, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		offset, err := Respond(conn, time.Second, 250*time.Millisecond)
		require.NoError(t, err)
		serverDone <- offset
	}()

	rtt, playerOffset, err := Probe(context.Background(), listener.Addr().String(), time.Second, 100*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rtt, time.Duration(0))

	serverOffset := <-serverDone
	assert.Equal(t, serverOffset, playerOffset)
}

func Test_Respond_rejectsNaN(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(math.NaN()))
		_ = a.SetWriteDeadline(time.Now().Add(time.Second))
		_, _ = a.Write(buf[:])
	}()

	_, err := Respond(b, time.Second, 0)
	assert.ErrorIs(t, err, ErrDesync)
}

func Test_Respond_rejectsImplausibleOffset(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		var buf [8]byte
		// 10 years of seconds: implausible as a clock offset.
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(3600.0*24*365*10))
		_ = a.SetWriteDeadline(time.Now().Add(time.Second))
		_, _ = a.Write(buf[:])
	}()

	_, err := Respond(b, time.Second, 0)
	assert.ErrorIs(t, err, ErrDesync)
}
