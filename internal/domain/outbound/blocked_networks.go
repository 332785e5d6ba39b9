package outbound

import (
	"fmt"
	"net"
	"strings"
)

// BlockedNetworks is the runtime-configured IP block-list. It is checked in
// addition to the allow-list; both must pass for a connection to proceed.
// Immutable after construction and safe for concurrent use.
type BlockedNetworks struct {
	networks     []*net.IPNet
	blockPrivate bool
}

// NewBlockedNetworks parses CIDR strings. Plain addresses are accepted as
// single-host networks.
func NewBlockedNetworks(cidrs []string, blockPrivate bool) (BlockedNetworks, error) {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		network, err := parseNetwork(cidr)
		if err != nil {
			return BlockedNetworks{}, err
		}
		networks = append(networks, network)
	}
	return BlockedNetworks{networks: networks, blockPrivate: blockPrivate}, nil
}

func parseNetwork(s string) (*net.IPNet, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, network, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked network %q: %w", s, err)
		}
		return network, nil
	}

	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid blocked network %q: not an IP address or CIDR", s)
	}
	if v4 := ip.To4(); v4 != nil {
		return &net.IPNet{IP: v4, Mask: net.CIDRMask(32, 32)}, nil
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, nil
}

// IsBlocked reports whether ip falls inside an explicit network or, when
// private blocking is on, inside a loopback, private, link-local or
// unspecified range.
func (b BlockedNetworks) IsBlocked(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	for _, network := range b.networks {
		if network.Contains(ip) {
			return true
		}
	}

	return b.blockPrivate && IsPrivateOrReservedIP(ip)
}

// BlocksPrivate reports whether private ranges are blocked.
func (b BlockedNetworks) BlocksPrivate() bool {
	return b.blockPrivate
}

// Networks returns the explicit networks in CIDR notation.
func (b BlockedNetworks) Networks() []string {
	out := make([]string, 0, len(b.networks))
	for _, n := range b.networks {
		out = append(out, n.String())
	}
	return out
}

// IsPrivateOrReservedIP checks the ranges covered by block_private_networks:
//   - Loopback (127.0.0.0/8, ::1)
//   - Private (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16, fc00::/7)
//   - Link-local (169.254.0.0/16, fe80::/10, and link-local multicast)
//   - Unspecified (0.0.0.0, ::)
func IsPrivateOrReservedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
