// Package configstore defines the narrow, consumed-only contracts the
// audera core uses to reach the durable configuration collaborator, and
// ships a default in-memory adapter that satisfies them. The real,
// persistent, queryable-by-UUID store a deployment plugs in here is an
// external collaborator; MemoryStore exists only so the core is runnable
// and testable without one.
package configstore

import (
	"errors"

	"github.com/audera-project/audera/internal/audera"
)

// ErrNotFound is returned by a read when the record it names is not on
// file. The mutators that name a player or session by UUID return it too
// when that record does not exist.
var ErrNotFound = errors.New("configstore: record not found")

// Interfaces is the narrow contract over the current AudioInterface.
type Interfaces interface {
	GetInterface() (audera.AudioInterface, error)
	UpdateInterface(audera.AudioInterface) (audera.AudioInterface, error)
}

// Devices is the narrow contract over the current AudioDevice per role.
type Devices interface {
	GetDevice(role audera.DeviceRole) (audera.AudioDevice, error)
}

// Identities is the narrow contract over the node's own Identity.
type Identities interface {
	GetOrCreateIdentity(initial audera.Identity) (audera.Identity, error)
}

// Players is the narrow contract over persisted Player records.
type Players interface {
	GetOrCreate(id audera.Identity) (audera.Player, error)
	Get(uuid string) (audera.Player, error)
	Play(uuid string) (audera.Player, error)
	Stop(uuid string) (audera.Player, error)
	Connect(uuid string) (audera.Player, error)
	Disconnect(uuid string) (audera.Player, error)
	SetVolume(uuid string, volume int) (audera.Player, error)
	GetAllAvailable() ([]audera.Player, error)
}

// Sessions is the narrow contract over the single live Session.
type Sessions interface {
	Update(audera.Session) (audera.Session, error)
	AttachGroup(sessionUUID, groupUUID string) (audera.Session, error)
	AttachPlayers(sessionUUID string, playerUUIDs []string) (audera.Session, error)
	Detach(sessionUUID string) (audera.Session, error)
	Delete(sessionUUID string) error
}

// Groups is the narrow contract over persisted Group records, needed by
// Sessions.AttachGroup to resolve the group's current membership.
type Groups interface {
	GetGroup(uuid string) (audera.Group, error)
}

// Store is the full consumed-only collaborator contract: every interface
// the core calls, composed into one handle so components only need a
// single constructor argument.
type Store interface {
	Interfaces
	Devices
	Identities
	Players
	Sessions
	Groups
}
