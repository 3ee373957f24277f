// Package safenet guards outbound connections made on behalf of
// user-supplied targets: probe checks and webhook deliveries. The guard
// runs as a dialer Control hook after DNS resolution, so a hostname
// cannot smuggle a private address past an earlier string check.
package safenet

import (
	"fmt"
	"net/netip"
	"syscall"
)

// blockedPrefixes covers loopback, RFC 1918, link-local, CGNAT,
// documentation, multicast and otherwise reserved space in both families.
var blockedPrefixes = mustPrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.88.99.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"255.255.255.255/32",
	"::/128",
	"::1/128",
	"2001:db8::/32",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, len(cidrs))
	for i, c := range cidrs {
		out[i] = netip.MustParsePrefix(c)
	}
	return out
}

// Blocked reports whether addr falls in private or reserved address
// space. IPv4-mapped IPv6 addresses are checked as their IPv4 form.
func Blocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// DialControl is a net.Dialer Control function that refuses connections
// to private or reserved addresses. It is invoked with the resolved
// ip:port, before the socket connects.
func DialControl(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("refusing dial to unparseable address %q", address)
	}
	if Blocked(ap.Addr()) {
		return fmt.Errorf("refusing dial to private address %s", ap.Addr())
	}
	return nil
}

// MaybeDialControl returns DialControl, or nil when private targets are
// allowed. Self-hosted deployments monitoring their own LAN set
// allowPrivate.
func MaybeDialControl(allowPrivate bool) func(string, string, syscall.RawConn) error {
	if allowPrivate {
		return nil
	}
	return DialControl
}
