package outbound

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// OutboundURL is a destination being checked against the allow-list.
type OutboundURL struct {
	Scheme string
	Host   string
	Port   int
}

// ParseOutboundURL parses a destination. Addresses without a scheme
// ("10.0.0.1:5432", "[::1]:80", "example.com") are interpreted with
// defaultScheme. A missing port falls back to the scheme's well-known port.
func ParseOutboundURL(address, defaultScheme string) (OutboundURL, error) {
	raw := strings.TrimSpace(address)
	if raw == "" {
		return OutboundURL{}, fmt.Errorf("destination cannot be empty")
	}
	if !strings.Contains(raw, "://") {
		if defaultScheme == "" {
			return OutboundURL{}, fmt.Errorf("destination %q has no scheme", address)
		}
		raw = defaultScheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return OutboundURL{}, fmt.Errorf("invalid destination %q: %w", address, err)
	}

	scheme := strings.ToLower(u.Scheme)
	host := u.Hostname()
	if host == "" {
		return OutboundURL{}, fmt.Errorf("destination %q has no host", address)
	}

	var port int
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return OutboundURL{}, fmt.Errorf("destination %q has invalid port %q", address, p)
		}
	} else {
		var ok bool
		port, ok = DefaultPort(scheme)
		if !ok {
			return OutboundURL{}, fmt.Errorf("destination %q has no port and scheme %q has no default", address, scheme)
		}
	}

	return OutboundURL{Scheme: scheme, Host: strings.ToLower(host), Port: port}, nil
}

// Authority renders host:port.
func (u OutboundURL) Authority() string {
	if strings.Contains(u.Host, ":") {
		return "[" + u.Host + "]:" + strconv.Itoa(u.Port)
	}
	return u.Host + ":" + strconv.Itoa(u.Port)
}

// String renders scheme://host:port.
func (u OutboundURL) String() string {
	return u.Scheme + "://" + u.Authority()
}

// IsAllowedBy evaluates the destination against config.
func (u OutboundURL) IsAllowedBy(config *AllowedHostsConfig) bool {
	return config.IsAllowed(u.Host, u.Port, u.Scheme)
}
