package audera

import "fmt"

// Session is a single live routing decision: either an attached group or an
// ad-hoc ordered set of players, never both at once.
type Session struct {
	Name     string
	UUID     string
	Provider string
	Volume   int

	// GroupUUID is non-empty when the session is group-bound, and Players
	// then holds the group's membership snapshot. When GroupUUID is empty,
	// Players is the loose, ad-hoc player list. AttachGroup / AttachPlayers
	// below each switch between the two modes in a single call.
	GroupUUID string
	Players   []string
}

// AttachGroup binds the session to a group, detaching any prior group and
// replacing the player set with the group's current membership snapshot.
// It clears any loose player list: group-bound and ad-hoc are mutually
// exclusive.
func (s *Session) AttachGroup(group Group) {
	s.GroupUUID = group.UUID
	s.Players = append([]string(nil), group.Players...)
	s.Name = group.Name
}

// AttachPlayers binds the session to an ad-hoc ordered set of players,
// clearing any attached group. The session name is derived from the
// players unless names is empty, in which case the session keeps its
// current name.
func (s *Session) AttachPlayers(playerUUIDs []string, names []string) {
	s.GroupUUID = ""
	s.Players = append([]string(nil), playerUUIDs...)
	if len(names) > 0 {
		s.Name = DeriveSessionName(names)
	}
}

// DeriveSessionName implements the session-name-from-players rule: the
// first player's name, suffixed by "+ N" (N = len(names)-1) when more than
// one player is attached.
func DeriveSessionName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	if len(names) == 1 {
		return names[0]
	}
	return fmt.Sprintf("%s + %d", names[0], len(names)-1)
}

// IsGroupBound reports whether the session currently routes through a
// group rather than a loose player list.
func (s Session) IsGroupBound() bool {
	return s.GroupUUID != ""
}
