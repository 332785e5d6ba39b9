package outbound

import (
	"fmt"
	"strconv"
	"strings"
)

// PortRange is an inclusive range of ports. The zero value matches nothing;
// use AnyPort for a wildcard.
type PortRange struct {
	Low  int
	High int
}

// AnyPort matches every port.
var AnyPort = PortRange{Low: 1, High: 65535}

// SinglePort returns a range containing exactly port.
func SinglePort(port int) PortRange {
	return PortRange{Low: port, High: port}
}

// Contains reports whether port is inside the range.
func (r PortRange) Contains(port int) bool {
	return port >= r.Low && port <= r.High
}

// String renders the range the way it is written in an allow-list entry.
func (r PortRange) String() string {
	switch {
	case r == AnyPort:
		return "*"
	case r.Low == r.High:
		return strconv.Itoa(r.Low)
	default:
		return fmt.Sprintf("%d-%d", r.Low, r.High)
	}
}

// parsePortPattern parses "*", "443" or "8000-8999".
func parsePortPattern(s string) (PortRange, error) {
	if s == "*" {
		return AnyPort, nil
	}

	if lo, hi, ok := strings.Cut(s, "-"); ok {
		low, err := parsePort(lo)
		if err != nil {
			return PortRange{}, err
		}
		high, err := parsePort(hi)
		if err != nil {
			return PortRange{}, err
		}
		if low > high {
			return PortRange{}, fmt.Errorf("port range %q is inverted", s)
		}
		return PortRange{Low: low, High: high}, nil
	}

	port, err := parsePort(s)
	if err != nil {
		return PortRange{}, err
	}
	return SinglePort(port), nil
}

func parsePort(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("port cannot be empty")
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("port %q is not a number", s)
		}
	}
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %q out of range (1-65535)", s)
	}
	return port, nil
}
