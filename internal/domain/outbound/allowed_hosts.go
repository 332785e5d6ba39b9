package outbound

import (
	"fmt"
	"strings"
)

// AllowAllEntry grants access to every destination.
const AllowAllEntry = "insecure:allow-all"

// TemplateResolver substitutes variable placeholders in an allow-list entry.
type TemplateResolver interface {
	ResolveTemplate(text string) (string, error)
}

// ParseError reports a malformed allow-list entry.
type ParseError struct {
	Cause  error
	Entry  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid allowed host %q: %s", e.Entry, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new allow-list parse error.
func NewParseError(entry, reason string, cause error) *ParseError {
	return &ParseError{Entry: entry, Reason: reason, Cause: cause}
}

// AllowedHostRule is one parsed allow-list entry.
type AllowedHostRule struct {
	Host   HostPattern
	Scheme string
	Port   PortRange
	// SchemeDefaultPort is set when neither scheme nor port was written. The
	// port is then the default port of the scheme being checked, and schemes
	// without one never match.
	SchemeDefaultPort bool
}

// Matches reports whether the destination satisfies all three fields.
func (r AllowedHostRule) Matches(host string, port int, scheme string) bool {
	scheme = strings.ToLower(scheme)
	if r.Scheme != AnyScheme && r.Scheme != scheme {
		return false
	}
	ports := r.Port
	if r.SchemeDefaultPort {
		p, ok := DefaultPort(scheme)
		if !ok {
			return false
		}
		ports = SinglePort(p)
	}
	return ports.Contains(port) && r.Host.Matches(host)
}

// String renders the rule in allow-list syntax.
func (r AllowedHostRule) String() string {
	if r.SchemeDefaultPort {
		return fmt.Sprintf("%s://%s", r.Scheme, r.Host.String())
	}
	return fmt.Sprintf("%s://%s:%s", r.Scheme, r.Host.String(), r.Port.String())
}

// AllowedHostsConfig is the immutable set of rules a component may connect to.
// A config with no rules denies everything.
type AllowedHostsConfig struct {
	rules    []AllowedHostRule
	allowAll bool
}

// AllowAll returns a config that permits every destination.
func AllowAll() *AllowedHostsConfig {
	return &AllowedHostsConfig{allowAll: true}
}

// NewAllowedHostsConfig builds a config from already parsed rules.
func NewAllowedHostsConfig(rules []AllowedHostRule) *AllowedHostsConfig {
	cp := make([]AllowedHostRule, len(rules))
	copy(cp, rules)
	return &AllowedHostsConfig{rules: cp}
}

// ParseAllowedHosts resolves each entry through resolver, then parses it.
// Any failing entry fails the whole parse; there are no partial allow-lists.
func ParseAllowedHosts(entries []string, resolver TemplateResolver) (*AllowedHostsConfig, error) {
	rules := make([]AllowedHostRule, 0, len(entries))
	for _, entry := range entries {
		resolved := entry
		if resolver != nil {
			var err error
			resolved, err = resolver.ResolveTemplate(entry)
			if err != nil {
				return nil, NewParseError(entry, "variable resolution failed", err)
			}
		}

		resolved = strings.TrimSpace(resolved)
		if resolved == AllowAllEntry {
			return AllowAll(), nil
		}

		rule, err := ParseAllowedHostRule(resolved)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return &AllowedHostsConfig{rules: rules}, nil
}

// ParseAllowedHostRule parses a single resolved entry of the form
// [scheme "://"] host [":" port].
func ParseAllowedHostRule(entry string) (AllowedHostRule, error) {
	fail := func(err error) (AllowedHostRule, error) {
		return AllowedHostRule{}, NewParseError(entry, err.Error(), err)
	}

	text := strings.TrimSpace(entry)
	if text == "" {
		return fail(fmt.Errorf("entry cannot be empty"))
	}

	scheme := AnyScheme
	if s, rest, ok := strings.Cut(text, "://"); ok {
		scheme = strings.ToLower(s)
		text = rest
	}
	if err := validateScheme(scheme); err != nil {
		return fail(err)
	}

	if strings.ContainsAny(text, "?#@") {
		return fail(fmt.Errorf("queries, fragments and credentials are not allowed"))
	}

	hostText, portText, err := splitHostPort(text)
	if err != nil {
		return fail(err)
	}

	host, err := parseHostPattern(hostText)
	if err != nil {
		return fail(err)
	}

	rule := AllowedHostRule{Scheme: scheme, Host: host}
	switch {
	case portText != "":
		rule.Port, err = parsePortPattern(portText)
		if err != nil {
			return fail(err)
		}
	case scheme == AnyScheme:
		rule.SchemeDefaultPort = true
	default:
		p, ok := DefaultPort(scheme)
		if !ok {
			return fail(fmt.Errorf("port must be specified for scheme %q", scheme))
		}
		rule.Port = SinglePort(p)
	}

	return rule, nil
}

// splitHostPort separates host and optional port. It understands bracketed
// IPv6 literals, bare IPv6 literals without a port, and CIDR suffixes.
func splitHostPort(s string) (host, port string, err error) {
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return "", "", fmt.Errorf("missing ']' in host")
		}
		host = s[1:end]
		rest := s[end+1:]
		if strings.HasPrefix(rest, "/") {
			prefix, after, _ := strings.Cut(rest, ":")
			host += prefix
			if strings.Contains(rest, ":") {
				p, err := requirePort(after)
				return host, p, err
			}
			return host, "", nil
		}
		if rest == "" {
			return host, "", nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", "", fmt.Errorf("unexpected %q after host", rest)
		}
		p, err := requirePort(rest[1:])
		return host, p, err
	}

	switch strings.Count(s, ":") {
	case 0:
		return s, "", nil
	case 1:
		h, p, _ := strings.Cut(s, ":")
		p, err := requirePort(p)
		return h, p, err
	default:
		// Bare IPv6 literal or range; a port needs brackets.
		return s, "", nil
	}
}

func requirePort(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("port cannot be empty after ':'")
	}
	if strings.Contains(p, "/") {
		return "", fmt.Errorf("paths are not allowed")
	}
	return p, nil
}

// IsAllowed reports whether any rule matches the destination.
func (c *AllowedHostsConfig) IsAllowed(host string, port int, scheme string) bool {
	if c == nil {
		return false
	}
	if c.allowAll {
		return true
	}
	for _, rule := range c.rules {
		if rule.Matches(host, port, scheme) {
			return true
		}
	}
	return false
}

// AllowsAll reports whether the config came from the allow-all entry.
func (c *AllowedHostsConfig) AllowsAll() bool {
	return c != nil && c.allowAll
}

// Rules returns a copy of the parsed rules.
func (c *AllowedHostsConfig) Rules() []AllowedHostRule {
	if c == nil {
		return nil
	}
	rules := make([]AllowedHostRule, len(c.rules))
	copy(rules, c.rules)
	return rules
}
