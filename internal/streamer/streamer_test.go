package streamer

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audera-project/audera/internal/audera"
	"github.com/audera-project/audera/internal/clock"
	"github.com/audera-project/audera/internal/configstore"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func newTestStreamer(t *testing.T) *Streamer {
	t.Helper()
	store := configstore.NewMemoryStore()
	clk := clock.New(testLogger(), "", 0)
	return New(testLogger(), store, audera.Identity{UUID: "streamer-1"}, clk, Options{})
}

func Test_nextDeadline_isStrictlyMonotonic(t *testing.T) {
	s := newTestStreamer(t)

	prev := s.nextDeadline()
	for i := 0; i < 100; i++ {
		d := s.nextDeadline()
		assert.Greater(t, d, prev, "deadlines must be strictly monotonic")
		prev = d
	}
}

func Test_peerState_record_boundsHistory(t *testing.T) {
	ps := &peerState{}
	for i := 0; i < audera.RTTHistorySize+5; i++ {
		ps.record(time.Duration(i) * time.Millisecond)
	}
	assert.Len(t, ps.rttHistory, audera.RTTHistorySize)
	// The oldest entries must have been evicted, not the newest.
	assert.Equal(t, 5*time.Millisecond, ps.rttHistory[0])
}

func Test_adaptPlaybackDelay_shrinksOnLowJitterAndRTT(t *testing.T) {
	s := newTestStreamer(t)
	s.playbackDelay = 2 * time.Second

	history := make([]time.Duration, audera.RTTHistorySize)
	for i := range history {
		history[i] = 5 * time.Millisecond // well under LowRTT, zero jitter
	}
	s.adaptPlaybackDelay(history)

	assert.Less(t, s.playbackDelay, 2*time.Second)
	assert.GreaterOrEqual(t, s.playbackDelay, audera.MinPlaybackDelay)
}

func Test_adaptPlaybackDelay_growsOnHighRTT(t *testing.T) {
	s := newTestStreamer(t)
	s.playbackDelay = 2 * time.Second

	history := make([]time.Duration, audera.RTTHistorySize)
	for i := range history {
		history[i] = 600 * time.Millisecond // above HighRTT
	}
	s.adaptPlaybackDelay(history)

	assert.Greater(t, s.playbackDelay, 2*time.Second)
	assert.LessOrEqual(t, s.playbackDelay, audera.MaxPlaybackDelay)
}

func Test_adaptPlaybackDelay_clampsToBounds(t *testing.T) {
	s := newTestStreamer(t)
	s.playbackDelay = audera.MinPlaybackDelay

	history := make([]time.Duration, audera.RTTHistorySize)
	for i := range history {
		history[i] = 1 * time.Millisecond
	}
	s.adaptPlaybackDelay(history)

	assert.Equal(t, audera.MinPlaybackDelay, s.playbackDelay, "must never shrink below MinPlaybackDelay")
}

func Test_adaptPlaybackDelay_ignoresShortHistory(t *testing.T) {
	s := newTestStreamer(t)
	s.playbackDelay = 2 * time.Second

	s.adaptPlaybackDelay([]time.Duration{1 * time.Millisecond})
	assert.Equal(t, 2*time.Second, s.playbackDelay, "an incomplete history must not move the delay")
}

func Test_fanOut_detachesOnlyTheFailingSink(t *testing.T) {
	s := newTestStreamer(t)

	good, goodPeer := net.Pipe()
	defer good.Close()
	defer goodPeer.Close()

	bad, badPeer := net.Pipe()
	badPeer.Close() // force writes on `bad` to fail immediately
	defer bad.Close()

	goodPlayer := audera.Player{Identity: audera.Identity{UUID: "good"}}
	badPlayer := audera.Player{Identity: audera.Identity{UUID: "bad"}}

	s.sess.Attach(goodPlayer, good)
	s.sess.Attach(badPlayer, bad)

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := goodPeer.Read(buf)
		readDone <- buf[:n]
	}()

	s.fanOut(context.Background(), []byte("hello"))

	select {
	case got := <-readDone:
		assert.Equal(t, "hello", string(got))
	case <-time.After(time.Second):
		t.Fatal("good sink never received the fanned-out frame")
	}

	assert.True(t, s.sess.Has("good"))
	assert.False(t, s.sess.Has("bad"), "a failing sink must be detached without affecting its peers")
}

func Test_closeSession_clearsCollaboratorFlags(t *testing.T) {
	s := newTestStreamer(t)

	p, err := s.store.GetOrCreate(audera.Identity{UUID: "u1", MAC: "m1"})
	require.NoError(t, err)
	_, err = s.store.Connect(p.UUID)
	require.NoError(t, err)
	_, err = s.store.Play(p.UUID)
	require.NoError(t, err)

	conn, peer := net.Pipe()
	defer peer.Close()
	s.sess.Attach(audera.Player{Identity: p.Identity}, conn)

	s.closeSession()

	assert.Equal(t, 0, s.sess.Len())
	got, err := s.store.Get(p.UUID)
	require.NoError(t, err)
	assert.False(t, got.Connected, "shutdown must mark attached players disconnected")
	assert.False(t, got.Playing, "shutdown must clear the playing flag")
}

func Test_New_appliesDefaults(t *testing.T) {
	store := configstore.NewMemoryStore()
	clk := clock.New(testLogger(), "", 0)
	s := New(testLogger(), store, audera.Identity{}, clk, Options{})

	require.Equal(t, audera.StreamPort, s.opts.StreamPort)
	require.Equal(t, audera.SyncPort, s.opts.SyncPort)
	require.Equal(t, audera.PlaybackDelay, s.opts.PlaybackDelay)
	require.Equal(t, audera.TimeOut, s.opts.TimeOut)
}
