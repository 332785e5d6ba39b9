package outbound

import (
	"fmt"
	"strings"
)

// SocketAddrUse describes what a guest is about to do with a socket address.
type SocketAddrUse int

const (
	TCPBind SocketAddrUse = iota
	TCPConnect
	UDPBind
	UDPConnect
	UDPOutgoingDatagram
)

// String returns the kebab-case name of the use.
func (u SocketAddrUse) String() string {
	switch u {
	case TCPBind:
		return "tcp-bind"
	case TCPConnect:
		return "tcp-connect"
	case UDPBind:
		return "udp-bind"
	case UDPConnect:
		return "udp-connect"
	case UDPOutgoingDatagram:
		return "udp-outgoing-datagram"
	default:
		return "unknown"
	}
}

// ParseSocketAddrUse parses the kebab-case name produced by String.
func ParseSocketAddrUse(s string) (SocketAddrUse, error) {
	for u := TCPBind; u <= UDPOutgoingDatagram; u++ {
		if u.String() == strings.ToLower(strings.TrimSpace(s)) {
			return u, nil
		}
	}
	return 0, fmt.Errorf("unknown socket address use %q", s)
}

// IsBind reports whether the use binds a local address. Binds are never
// authorized by the outbound policy.
func (u SocketAddrUse) IsBind() bool {
	return u == TCPBind || u == UDPBind
}

// Scheme returns the allow-list scheme used to check the address.
func (u SocketAddrUse) Scheme() string {
	switch u {
	case TCPBind, TCPConnect:
		return "tcp"
	default:
		return "udp"
	}
}
