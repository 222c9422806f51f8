package metadata

import (
	"strconv"
	"strings"
	"unicode"
)

// SanitizeName maps an arbitrary form node name onto an OData simple identifier:
// letters, digits and underscores, never starting with a digit.
func SanitizeName(name string) string {
	if name == "" {
		return "_"
	}

	var b strings.Builder
	b.Grow(len(name) + 1)
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Namer assigns sanitized names within a single sibling scope.
// The same original name always receives the same sanitized name, and two
// distinct originals never share one.
type Namer struct {
	assigned map[string]string
	taken    map[string]struct{}
}

// NewNamer creates a scope in which the reserved names are already taken.
func NewNamer(reserved ...string) *Namer {
	n := &Namer{
		assigned: make(map[string]string),
		taken:    make(map[string]struct{}, len(reserved)),
	}
	for _, name := range reserved {
		n.taken[name] = struct{}{}
	}
	return n
}

// Name returns the sanitized identifier for original, suffixing _2, _3, ...
// when the plain sanitized form is already used in this scope.
func (n *Namer) Name(original string) string {
	if name, ok := n.assigned[original]; ok {
		return name
	}

	base := SanitizeName(original)
	name := base
	for i := 2; ; i++ {
		if _, exists := n.taken[name]; !exists {
			break
		}
		name = base + "_" + strconv.Itoa(i)
	}

	n.assigned[original] = name
	n.taken[name] = struct{}{}
	return name
}
