/*------------------------------------------------------------------
 *
 * Purpose:	Track the set of players currently attached to the
 *		streamer's live broadcast and the open sink each one owns.
 *
 * Description:	The session is the streamer-side routing map: player UUID
 *		to an open TCP write-half plus the cached player record.
 *		The streamer exclusively owns each sink; the session is the
 *		sole mutator of the map. At most one sink exists per player
 *		UUID at any time; a write failure on any one sink detaches
 *		only that player, never stalling or affecting its peers.
 *
 *---------------------------------------------------------------*/
package session

import (
	"net"
	"sync"

	"github.com/audera-project/audera/internal/audera"
)

// Sink pairs a player record with the open connection the streamer writes
// frames to.
type Sink struct {
	Player audera.Player
	Conn   net.Conn
}

// Session is the thread-safe streamer-side routing map.
type Session struct {
	mu     sync.RWMutex
	sinks  map[string]Sink
	closed bool
}

// New returns an empty session.
func New() *Session {
	return &Session{sinks: make(map[string]Sink)}
}

// Attach registers conn as the sink for player, replacing (and closing)
// any previous sink for the same UUID so at most one sink per player
// exists. Attaching to a closed session closes conn immediately and
// returns false.
func (s *Session) Attach(player audera.Player, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		_ = conn.Close()
		return false
	}

	if prev, ok := s.sinks[player.UUID]; ok {
		_ = prev.Conn.Close()
	}
	s.sinks[player.UUID] = Sink{Player: player, Conn: conn}
	return true
}

// Detach removes and closes the sink for the given player UUID. It is
// idempotent: detaching an already-absent player is a no-op.
func (s *Session) Detach(uuid string) {
	s.mu.Lock()
	sink, ok := s.sinks[uuid]
	if ok {
		delete(s.sinks, uuid)
	}
	s.mu.Unlock()

	if ok {
		_ = sink.Conn.Close()
	}
}

// Snapshot returns a point-in-time copy of the current (player, sink)
// pairs for the streamer's fan-out loop to iterate over without holding
// the session lock during network I/O.
func (s *Session) Snapshot() []Sink {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Sink, 0, len(s.sinks))
	for _, sink := range s.sinks {
		out = append(out, sink)
	}
	return out
}

// Len reports the current number of attached players.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sinks)
}

// Has reports whether uuid currently has an attached sink.
func (s *Session) Has(uuid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sinks[uuid]
	return ok
}

// Close closes every sink and marks the session closed; subsequent Attach
// calls are rejected. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sinks := s.sinks
	s.sinks = make(map[string]Sink)
	s.mu.Unlock()

	for _, sink := range sinks {
		_ = sink.Conn.Close()
	}
}
