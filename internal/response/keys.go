package response

import (
	"net/url"
	"strings"
)

var componentUnescapes = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent percent-encodes s like a URI component: everything except
// letters, digits and -_.!~*'() is escaped.
func EncodeComponent(s string) string {
	return componentUnescapes.Replace(url.QueryEscape(s))
}

// KeySegment renders an entity key predicate such as ('uuid%3Aabc').
// Quotes inside the key are doubled.
func KeySegment(key string) string {
	return "('" + EncodeComponent(strings.ReplaceAll(key, "'", "''")) + "')"
}

// EntityPath joins key-qualified segments into a relative resource path:
// Submissions('k')/children/child('id').
func EntityPath(segments ...PathSegment) string {
	var b strings.Builder
	for i, segment := range segments {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(segment.Name)
		if segment.Key != "" {
			b.WriteString(KeySegment(segment.Key))
		}
	}
	return b.String()
}

// PathSegment is one navigation step of a resource path. Name may itself
// contain slashes for groups leading to a repeat.
type PathSegment struct {
	Name string
	Key  string
}

// EscapeQuotes percent-encodes single quotes, as required inside absolute
// URLs such as nextLink.
func EscapeQuotes(path string) string {
	return strings.ReplaceAll(path, "'", "%27")
}
