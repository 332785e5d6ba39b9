package outbound

import (
	"fmt"
	"net"
	"strings"

	"github.com/gobwas/glob"
)

type hostKind int

const (
	hostAny hostKind = iota
	hostExact
	hostWildcard
	hostIP
	hostCIDR
)

// HostPattern matches destination hosts. It is one of: any host, an exact
// domain, a domain with a single leading wildcard segment, an IP literal,
// or a CIDR range.
type HostPattern struct {
	raw     string
	kind    hostKind
	domain  string
	ip      net.IP
	network *net.IPNet
	glob    glob.Glob
}

// AnyHost matches every destination.
var AnyHost = HostPattern{raw: "*", kind: hostAny}

// parseHostPattern parses the host part of an allow-list entry. Brackets
// around IPv6 literals must already be stripped.
func parseHostPattern(s string) (HostPattern, error) {
	host := strings.TrimSuffix(strings.ToLower(s), ".")
	if host == "" {
		return HostPattern{}, fmt.Errorf("host cannot be empty")
	}
	if host == "*" {
		return AnyHost, nil
	}

	if strings.Contains(host, "/") {
		_, network, err := net.ParseCIDR(host)
		if err != nil {
			return HostPattern{}, fmt.Errorf("host %q is not a valid CIDR range (paths are not allowed)", s)
		}
		return HostPattern{raw: network.String(), kind: hostCIDR, network: network}, nil
	}

	if ip := net.ParseIP(host); ip != nil {
		return HostPattern{raw: ip.String(), kind: hostIP, ip: ip}, nil
	}

	if suffix, ok := strings.CutPrefix(host, "*."); ok {
		if strings.Contains(suffix, "*") {
			return HostPattern{}, fmt.Errorf("host %q: only a single leading wildcard segment is allowed", s)
		}
		if err := validateDomain(suffix); err != nil {
			return HostPattern{}, fmt.Errorf("host %q: %w", s, err)
		}
		// No separators: '*' spans dots so any depth of subdomain matches,
		// while the literal ".suffix" keeps the apex itself out.
		g, err := glob.Compile(host)
		if err != nil {
			return HostPattern{}, fmt.Errorf("host %q: %w", s, err)
		}
		return HostPattern{raw: host, kind: hostWildcard, domain: suffix, glob: g}, nil
	}

	if strings.Contains(host, "*") {
		return HostPattern{}, fmt.Errorf("host %q: wildcard is only allowed as the leading segment", s)
	}
	if err := validateDomain(host); err != nil {
		return HostPattern{}, fmt.Errorf("host %q: %w", s, err)
	}
	return HostPattern{raw: host, kind: hostExact, domain: host}, nil
}

// validateDomain checks a dot-separated host name.
func validateDomain(domain string) error {
	if len(domain) > 253 {
		return fmt.Errorf("host name too long")
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" {
			return fmt.Errorf("host name contains an empty label")
		}
		if len(label) > 63 {
			return fmt.Errorf("host label %q too long", label)
		}
		for _, ch := range label {
			if !((ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '-' || ch == '_') {
				return fmt.Errorf("host name contains invalid character %q", ch)
			}
		}
	}
	return nil
}

// Matches reports whether host (a domain or IP literal, optionally in
// brackets) is covered by the pattern. Comparison is case-insensitive.
func (p HostPattern) Matches(host string) bool {
	host = normalizeHost(host)
	if host == "" {
		return false
	}

	ip := net.ParseIP(host)
	switch p.kind {
	case hostAny:
		return true
	case hostIP:
		return ip != nil && p.ip.Equal(ip)
	case hostCIDR:
		return ip != nil && p.network.Contains(ip)
	case hostExact:
		return ip == nil && host == p.domain
	case hostWildcard:
		return ip == nil && p.glob.Match(host)
	default:
		return false
	}
}

// String returns the normalized pattern text.
func (p HostPattern) String() string {
	if p.kind == hostIP && p.ip.To4() == nil {
		return "[" + p.raw + "]"
	}
	return p.raw
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	return strings.TrimSuffix(host, ".")
}
