package httputil

import (
	"fmt"
	"net"
)

var blockedRanges = []struct {
	kind  string
	match func(net.IP) bool
}{
	{"private", net.IP.IsPrivate},
	{"loopback", net.IP.IsLoopback},
	{"link-local", net.IP.IsLinkLocalUnicast},
	{"link-local multicast", net.IP.IsLinkLocalMulticast},
	{"multicast", net.IP.IsMulticast},
	{"unspecified", net.IP.IsUnspecified},
}

// ValidateIP rejects redirect targets in private, loopback, link-local,
// multicast and unspecified ranges. Link-local covers cloud metadata
// endpoints.
func ValidateIP(ip net.IP, host string) error {
	for _, r := range blockedRanges {
		if r.match(ip) {
			return fmt.Errorf("refusing redirect to %s IP: %s (%s)", r.kind, host, ip)
		}
	}
	return nil
}
