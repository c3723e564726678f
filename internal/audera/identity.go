package audera

import (
	"strings"

	"github.com/google/uuid"
)

// namespaceMAC is a fixed namespace used to derive a stable identity UUID
// from a node's MAC address. UUIDv5 over the DNS namespace: any two nodes
// hashing the same MAC always agree on the UUID.
var namespaceMAC = uuid.NameSpaceDNS

// Identity is the stable, per-node identity: a human name, a UUID derived
// deterministically from the node's MAC address, the MAC itself, and the
// current IP. Equality depends only on (UUID, MAC) — name and IP may change
// across boots without creating a new identity.
type Identity struct {
	Name    string
	UUID    string
	MAC     string
	Address string
}

// GenerateUUIDFromMAC derives a stable UUID from a MAC address. The colon
// separators are stripped before hashing so "aa:bb:cc:dd:ee:ff" and
// "aabbccddeeff" always collide on the same UUID.
func GenerateUUIDFromMAC(mac string) string {
	cleaned := strings.ReplaceAll(mac, ":", "")
	return uuid.NewSHA1(namespaceMAC, []byte(cleaned)).String()
}

// ShortUUID returns the first dash-delimited segment of the identity's
// UUID, the form every log line names a node by.
func (id Identity) ShortUUID() string {
	short, _, _ := strings.Cut(id.UUID, "-")
	return short
}

// Equal compares two identities by (UUID, MAC) only: name and address are
// allowed to drift across re-registrations without affecting equality.
func (id Identity) Equal(other Identity) bool {
	return id.UUID == other.UUID && id.MAC == other.MAC
}
