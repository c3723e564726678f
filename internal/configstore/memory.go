package configstore

import (
	"fmt"
	"os"
	"sync"

	"github.com/audera-project/audera/internal/audera"
	"gopkg.in/yaml.v3"
)

// MemoryStore is the default, in-memory Store adapter. It is safe for
// concurrent use from every component that holds it.
type MemoryStore struct {
	mu sync.Mutex

	iface    audera.AudioInterface
	devices  map[audera.DeviceRole]audera.AudioDevice
	identity *audera.Identity
	players  map[string]audera.Player
	groups   map[string]audera.Group
	sessions map[string]audera.Session
}

// NewMemoryStore returns a MemoryStore seeded with the default audio
// interface and OS-reported default devices for both roles.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		iface: audera.DefaultInterface,
		devices: map[audera.DeviceRole]audera.AudioDevice{
			audera.DeviceRoleInput:  {Name: "default", Index: 0, Role: audera.DeviceRoleInput},
			audera.DeviceRoleOutput: {Name: "default", Index: 0, Role: audera.DeviceRoleOutput},
		},
		players:  make(map[string]audera.Player),
		groups:   make(map[string]audera.Group),
		sessions: make(map[string]audera.Session),
	}
}

// GetInterface returns the current audio interface.
func (m *MemoryStore) GetInterface() (audera.AudioInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.iface, nil
}

// UpdateInterface replaces the current audio interface idempotently.
func (m *MemoryStore) UpdateInterface(iface audera.AudioInterface) (audera.AudioInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iface = iface
	return m.iface, nil
}

// GetDevice returns the current device for role, or the resolved OS
// default if one was never set.
func (m *MemoryStore) GetDevice(role audera.DeviceRole) (audera.AudioDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[role]
	if !ok {
		return audera.AudioDevice{}, ErrNotFound
	}
	return dev, nil
}

// SetDevice overrides the current device for its role. Not part of the
// consumed-only Store contract but useful for tests and the CLI's
// device-override flags.
func (m *MemoryStore) SetDevice(dev audera.AudioDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[dev.Role] = dev
}

// GetOrCreateIdentity returns the node's existing identity, or persists
// initial as the new identity on first run. A later call with the same
// (UUID, MAC) never overwrites the stored name: only the address may
// change. A call with a different (UUID, MAC) replaces the stored identity.
func (m *MemoryStore) GetOrCreateIdentity(initial audera.Identity) (audera.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identity == nil {
		id := initial
		m.identity = &id
		return *m.identity, nil
	}

	if m.identity.Equal(initial) {
		m.identity.Address = initial.Address
		return *m.identity, nil
	}

	id := initial
	m.identity = &id
	return *m.identity, nil
}

// GetOrCreate returns the existing player matching id's (UUID, MAC), or
// creates a new disconnected Player from it. An identity already on file
// is returned unchanged apart from its address.
func (m *MemoryStore) GetOrCreate(id audera.Identity) (audera.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.players[id.UUID]; ok && existing.MAC == id.MAC {
		existing.Address = id.Address
		m.players[id.UUID] = existing
		return existing, nil
	}

	p := audera.Player{
		Identity: id,
		Provider: audera.Name,
		Volume:   100,
		Channels: 2,
		Enabled:  true,
	}
	m.players[id.UUID] = p
	return p, nil
}

// Get returns the player with the given UUID.
func (m *MemoryStore) Get(uuid string) (audera.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[uuid]
	if !ok {
		return audera.Player{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) mutatePlayer(uuid string, mutate func(*audera.Player)) (audera.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[uuid]
	if !ok {
		return audera.Player{}, ErrNotFound
	}
	mutate(&p)
	p.Normalize()
	m.players[uuid] = p
	return p, nil
}

// Play marks the player as playing; a no-op unless the player is already
// enabled and connected.
func (m *MemoryStore) Play(uuid string) (audera.Player, error) {
	return m.mutatePlayer(uuid, func(p *audera.Player) { p.Playing = true })
}

// Stop marks the player as not playing.
func (m *MemoryStore) Stop(uuid string) (audera.Player, error) {
	return m.mutatePlayer(uuid, func(p *audera.Player) { p.Playing = false })
}

// Connect marks the player as connected to the local network.
func (m *MemoryStore) Connect(uuid string) (audera.Player, error) {
	return m.mutatePlayer(uuid, func(p *audera.Player) { p.Connected = true })
}

// Disconnect marks the player as disconnected, forcing Playing false.
func (m *MemoryStore) Disconnect(uuid string) (audera.Player, error) {
	return m.mutatePlayer(uuid, func(p *audera.Player) { p.Connected = false })
}

// SetVolume updates the player's volume, clamped to [0, 100] by Normalize.
func (m *MemoryStore) SetVolume(uuid string, volume int) (audera.Player, error) {
	return m.mutatePlayer(uuid, func(p *audera.Player) { p.Volume = volume })
}

// GetAllAvailable returns every player with Enabled && Connected.
func (m *MemoryStore) GetAllAvailable() ([]audera.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]audera.Player, 0, len(m.players))
	for _, p := range m.players {
		if p.Available() {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetGroup returns the group with the given UUID.
func (m *MemoryStore) GetGroup(uuid string) (audera.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[uuid]
	if !ok {
		return audera.Group{}, ErrNotFound
	}
	return g, nil
}

// PutGroup upserts a group. Not part of the consumed-only Store contract;
// exposed for tests and seeding.
func (m *MemoryStore) PutGroup(g audera.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.UUID] = g
}

// Update upserts a session record verbatim.
func (m *MemoryStore) Update(s audera.Session) (audera.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UUID] = s
	return s, nil
}

// AttachGroup binds sessionUUID to groupUUID, replacing its player set with
// the group's current membership and deriving its name from the group.
func (m *MemoryStore) AttachGroup(sessionUUID, groupUUID string) (audera.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionUUID]
	if !ok {
		return audera.Session{}, ErrNotFound
	}
	g, ok := m.groups[groupUUID]
	if !ok {
		return audera.Session{}, fmt.Errorf("configstore: group %s: %w", groupUUID, ErrNotFound)
	}

	s.AttachGroup(g)
	m.sessions[sessionUUID] = s
	return s, nil
}

// AttachPlayers binds sessionUUID to an ad-hoc, ordered player list,
// deriving the session name from the players' current names.
func (m *MemoryStore) AttachPlayers(sessionUUID string, playerUUIDs []string) (audera.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionUUID]
	if !ok {
		return audera.Session{}, ErrNotFound
	}

	names := make([]string, 0, len(playerUUIDs))
	for _, uuid := range playerUUIDs {
		if p, ok := m.players[uuid]; ok {
			names = append(names, p.Name)
		}
	}

	s.AttachPlayers(playerUUIDs, names)
	m.sessions[sessionUUID] = s
	return s, nil
}

// Detach clears both the group and the player list from sessionUUID.
func (m *MemoryStore) Detach(sessionUUID string) (audera.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionUUID]
	if !ok {
		return audera.Session{}, ErrNotFound
	}
	s.GroupUUID = ""
	s.Players = nil
	m.sessions[sessionUUID] = s
	return s, nil
}

// Delete removes a session entirely.
func (m *MemoryStore) Delete(sessionUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionUUID]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, sessionUUID)
	return nil
}

// snapshot is the YAML shape used by SaveFile/LoadFile.
type snapshot struct {
	Interface audera.AudioInterface     `yaml:"interface"`
	Identity  *audera.Identity          `yaml:"identity,omitempty"`
	Players   map[string]audera.Player  `yaml:"players"`
	Groups    map[string]audera.Group   `yaml:"groups"`
	Sessions  map[string]audera.Session `yaml:"sessions"`
}

// LoadFile replaces the store's contents with the YAML snapshot at path,
// for the CLI's --seed-file flag. It is the default adapter's only
// concession to persistence and is not required for the core to function.
func (m *MemoryStore) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("configstore: read seed file: %w", err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("configstore: parse seed file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Interface.Channels != 0 {
		m.iface = snap.Interface
	}
	if snap.Identity != nil {
		m.identity = snap.Identity
	}
	if snap.Players != nil {
		m.players = snap.Players
	}
	if snap.Groups != nil {
		m.groups = snap.Groups
	}
	if snap.Sessions != nil {
		m.sessions = snap.Sessions
	}
	return nil
}

// SaveFile writes the store's current contents as a YAML snapshot to path.
func (m *MemoryStore) SaveFile(path string) error {
	m.mu.Lock()
	snap := snapshot{
		Interface: m.iface,
		Identity:  m.identity,
		Players:   m.players,
		Groups:    m.groups,
		Sessions:  m.sessions,
	}
	m.mu.Unlock()

	raw, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("configstore: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("configstore: write seed file: %w", err)
	}
	return nil
}
