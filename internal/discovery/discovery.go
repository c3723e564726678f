/*------------------------------------------------------------------
 *
 * Purpose:	Announce (player) or browse (streamer) the `_audera._tcp`
 *		multicast DNS-SD service.
 *
 * Description:	Uses github.com/brutella/dnssd's pure-Go responder, so no
 *		system mDNS daemon or cgo dependency is needed. The browser
 *		is the only source of truth for "who exists"; persisted
 *		Player records are a cache of what the browser has most
 *		recently seen.
 *
 *		The announced record carries the full Player as string
 *		properties (TXT record); updates are republished whenever any
 *		field changes.
 *
 *---------------------------------------------------------------*/
package discovery

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"

	"github.com/audera-project/audera/internal/audera"
)

// instanceName returns the DNS-SD instance name for a player: "raop@<mac>",
// with colons stripped since they are not legal in a service instance
// label.
func instanceName(mac string) string {
	clean := make([]byte, 0, len(mac))
	for i := 0; i < len(mac); i++ {
		if mac[i] != ':' {
			clean = append(clean, mac[i])
		}
	}
	return "raop@" + string(clean)
}

// PlayerToText renders a Player as the string/string TXT map the mDNS
// service carries.
func PlayerToText(p audera.Player) map[string]string {
	return map[string]string{
		"name":      p.Name,
		"uuid":      p.UUID,
		"mac":       p.MAC,
		"address":   p.Address,
		"provider":  p.Provider,
		"volume":    strconv.Itoa(p.Volume),
		"channels":  strconv.Itoa(p.Channels),
		"enabled":   strconv.FormatBool(p.Enabled),
		"connected": strconv.FormatBool(p.Connected),
		"playing":   strconv.FormatBool(p.Playing),
	}
}

// TextToPlayer parses a TXT map back into a Player. Malformed numeric or
// boolean fields default to their zero value rather than failing the
// whole parse — a single broken field should not make an otherwise-valid
// peer invisible to the browser.
func TextToPlayer(text map[string]string) audera.Player {
	volume, _ := strconv.Atoi(text["volume"])
	channels, _ := strconv.Atoi(text["channels"])
	enabled, _ := strconv.ParseBool(text["enabled"])
	connected, _ := strconv.ParseBool(text["connected"])
	playing, _ := strconv.ParseBool(text["playing"])

	return audera.Player{
		Identity: audera.Identity{
			Name:    text["name"],
			UUID:    text["uuid"],
			MAC:     text["mac"],
			Address: text["address"],
		},
		Provider:  text["provider"],
		Volume:    volume,
		Channels:  channels,
		Enabled:   enabled,
		Connected: connected,
		Playing:   playing,
	}
}

// Broadcaster is the player-side mDNS announcer.
type Broadcaster struct {
	logger *log.Logger
	port   int

	responder dnssd.Responder

	mu     sync.Mutex // guards handle: Register writes it, Update reads it
	handle dnssd.ServiceHandle
}

// NewBroadcaster creates a Broadcaster that will announce on port.
func NewBroadcaster(logger *log.Logger, port int) (*Broadcaster, error) {
	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("discovery: new responder: %w", err)
	}
	return &Broadcaster{logger: logger, port: port, responder: responder}, nil
}

// Register publishes p's service record and blocks responding to mDNS
// queries until ctx is cancelled. Call it from its own goroutine; use
// Update to republish changed fields while it runs.
func (b *Broadcaster) Register(ctx context.Context, p audera.Player) error {
	cfg := dnssd.Config{
		Name: instanceName(p.MAC),
		Type: audera.MDNSServiceType,
		Port: b.port,
		Text: PlayerToText(p),
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("discovery: new service: %w", err)
	}

	handle, err := b.responder.Add(service)
	if err != nil {
		return fmt.Errorf("discovery: add service: %w", err)
	}
	b.mu.Lock()
	b.handle = handle
	b.mu.Unlock()

	b.logger.Info("mDNS service registered", "name", cfg.Name, "port", b.port)

	return b.responder.Respond(ctx)
}

// Update republishes p's current fields. Called whenever any Player field
// changes; a no-op stand-in for deployments that restart
// Register entirely is also acceptable, but updating in place avoids the
// query hiccup a full re-register would cause.
func (b *Broadcaster) Update(p audera.Player) {
	b.mu.Lock()
	handle := b.handle
	b.mu.Unlock()

	if handle == nil {
		return
	}
	handle.UpdateText(PlayerToText(p), b.responder)
}

// Browser is the streamer-side mDNS browser and the only source of truth
// for "who exists". It keeps no membership map of its own: each appearance
// and disappearance is handed straight to the caller's add/remove
// callbacks, which drive session attach/detach.
type Browser struct {
	logger *log.Logger
}

// NewBrowser creates a Browser.
func NewBrowser(logger *log.Logger) *Browser {
	return &Browser{logger: logger}
}

// Run browses for `_audera._tcp` services until ctx is cancelled, invoking
// onAdd/onRemove as players appear and disappear. LookupType wants the
// fully-qualified form including the domain, unlike registration.
func (b *Browser) Run(ctx context.Context, onAdd, onRemove func(audera.Player)) error {
	addFn := func(e dnssd.BrowseEntry) {
		p := TextToPlayer(e.Text)
		if len(e.IPs) > 0 && p.Address == "" {
			p.Address = e.IPs[0].String()
		}
		b.logger.Info("player discovered", "name", p.Name, "uuid", p.ShortUUID())
		onAdd(p)
	}
	rmvFn := func(e dnssd.BrowseEntry) {
		p := TextToPlayer(e.Text)
		b.logger.Info("player disappeared", "name", p.Name, "uuid", p.ShortUUID())
		onRemove(p)
	}

	return dnssd.LookupType(ctx, audera.MDNSServiceType+".local.", addFn, rmvFn)
}
