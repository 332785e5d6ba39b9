package variables

import (
	"fmt"
	"strings"

	"github.com/reglet-dev/egress/internal/domain/values"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Part is one piece of a parsed template: either literal text or a
// variable reference.
type Part struct {
	Literal string
	Key     values.VariableKey
}

// IsVariable reports whether the part is a placeholder.
func (p Part) IsVariable() bool {
	return !p.Key.IsEmpty()
}

// Template is a string containing zero or more {{ key }} placeholders.
type Template struct {
	raw   string
	parts []Part
}

// ParseTemplate splits text into literal and placeholder parts.
// Whitespace around the key inside the braces is ignored.
func ParseTemplate(text string) (Template, error) {
	var parts []Part
	rest := text

	for rest != "" {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			if strings.Contains(rest, closeDelim) {
				return Template{}, fmt.Errorf("template %q: unmatched %q", text, closeDelim)
			}
			parts = append(parts, Part{Literal: rest})
			break
		}

		if start > 0 {
			literal := rest[:start]
			if strings.Contains(literal, closeDelim) {
				return Template{}, fmt.Errorf("template %q: unmatched %q", text, closeDelim)
			}
			parts = append(parts, Part{Literal: literal})
		}

		rest = rest[start+len(openDelim):]
		end := strings.Index(rest, closeDelim)
		if end < 0 {
			return Template{}, fmt.Errorf("template %q: unterminated %q", text, openDelim)
		}

		name := rest[:end]
		if strings.Contains(name, openDelim) {
			return Template{}, fmt.Errorf("template %q: nested %q", text, openDelim)
		}
		key, err := values.NewVariableKey(name)
		if err != nil {
			return Template{}, fmt.Errorf("template %q: %w", text, err)
		}
		parts = append(parts, Part{Key: key})

		rest = rest[end+len(closeDelim):]
	}

	return Template{raw: text, parts: parts}, nil
}

// MustParseTemplate parses a template or panics
func MustParseTemplate(text string) Template {
	t, err := ParseTemplate(text)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the original template text.
func (t Template) String() string {
	return t.raw
}

// Parts returns the parsed parts in order.
func (t Template) Parts() []Part {
	return t.parts
}

// IsLiteral reports whether the template has no placeholders.
func (t Template) IsLiteral() bool {
	for _, p := range t.parts {
		if p.IsVariable() {
			return false
		}
	}
	return true
}

// Keys returns the distinct keys referenced, in order of first appearance.
func (t Template) Keys() []values.VariableKey {
	seen := make(map[values.VariableKey]struct{})
	var keys []values.VariableKey
	for _, p := range t.parts {
		if !p.IsVariable() {
			continue
		}
		if _, ok := seen[p.Key]; ok {
			continue
		}
		seen[p.Key] = struct{}{}
		keys = append(keys, p.Key)
	}
	return keys
}

// Render substitutes every placeholder using lookup, left to right.
// The first lookup error aborts rendering.
func (t Template) Render(lookup func(values.VariableKey) (string, error)) (string, error) {
	var b strings.Builder
	b.Grow(len(t.raw))
	for _, p := range t.parts {
		if !p.IsVariable() {
			b.WriteString(p.Literal)
			continue
		}
		value, err := lookup(p.Key)
		if err != nil {
			return "", err
		}
		b.WriteString(value)
	}
	return b.String(), nil
}
