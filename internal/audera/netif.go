package audera

import (
	"fmt"
	"net"
)

// LocalMAC returns the hardware address of the first network interface that
// reports one, formatted as colon-separated hex ("aa:bb:cc:dd:ee:ff") — the
// identity UUID's seed.
func LocalMAC() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("audera: list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		return iface.HardwareAddr.String(), nil
	}
	return "", fmt.Errorf("audera: no network interface with a hardware address found")
}

// LocalIP returns the first non-loopback IPv4 address bound to any local
// interface, the address an Identity is re-emitted with on every start.
func LocalIP() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("audera: list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			return ip4.String(), nil
		}
	}
	return "", fmt.Errorf("audera: no non-loopback IPv4 address found")
}

// DefaultIdentityName is the fallback name for a fresh identity when the
// caller (the CLI's --name flag) does not supply one.
const DefaultIdentityName = "audera-node"
