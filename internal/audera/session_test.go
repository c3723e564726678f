package audera

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_DeriveSessionName(t *testing.T) {
	assert.Equal(t, "", DeriveSessionName(nil))
	assert.Equal(t, "kitchen", DeriveSessionName([]string{"kitchen"}))
	assert.Equal(t, "kitchen + 2", DeriveSessionName([]string{"kitchen", "living room", "bedroom"}))
}

func Test_AttachGroup_clearsPriorPlayersAndSetsGroupUUID(t *testing.T) {
	s := Session{}
	s.AttachPlayers([]string{"p1", "p2"}, []string{"kitchen", "living room"})
	assert.False(t, s.IsGroupBound())

	s.AttachGroup(Group{UUID: "g1", Name: "downstairs", Players: []string{"p3", "p4"}})
	assert.True(t, s.IsGroupBound())
	assert.Equal(t, "g1", s.GroupUUID)
	assert.Equal(t, []string{"p3", "p4"}, s.Players)
	assert.Equal(t, "downstairs", s.Name)
}

func Test_AttachPlayers_clearsPriorGroup(t *testing.T) {
	s := Session{}
	s.AttachGroup(Group{UUID: "g1", Name: "downstairs", Players: []string{"p1"}})
	assert.True(t, s.IsGroupBound())

	s.AttachPlayers([]string{"p2", "p3"}, []string{"kitchen", "bedroom"})
	assert.False(t, s.IsGroupBound())
	assert.Equal(t, "", s.GroupUUID)
	assert.Equal(t, "kitchen + 1", s.Name)
}
