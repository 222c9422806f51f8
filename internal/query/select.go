package query

import (
	"fmt"
	"strings"

	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/problem"
)

// Selection is a validated $select list. Each path is a list of sanitized
// segments; a path naming a group or __system selects all of it.
type Selection struct {
	paths [][]string
}

// ParseSelect parses a comma-separated $select value. Paths may separate
// segments with "/" or ".". "*" selects everything and yields a nil Selection.
func ParseSelect(raw string, entity *metadata.EntityMetadata) (*Selection, error) {
	selection := &Selection{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "*" {
			return nil, nil
		}
		if item == "" {
			return nil, problem.UnsupportedQuery(optionSelect, "empty property path in '%s'", raw)
		}
		segments := strings.FieldsFunc(item, func(r rune) bool { return r == '/' || r == '.' })
		if len(segments) == 0 {
			return nil, problem.UnsupportedQuery(optionSelect, "empty property path in '%s'", raw)
		}
		if err := validateSelectPath(segments, entity); err != nil {
			return nil, problem.UnsupportedQuery(optionSelect, "%s", err.Error())
		}
		selection.paths = append(selection.paths, segments)
	}
	return selection, nil
}

func validateSelectPath(segments []string, entity *metadata.EntityMetadata) error {
	joined := strings.Join(segments, "/")
	switch first := segments[0]; {
	case first == metadata.IDPropertyName:
		if len(segments) == 1 {
			return nil
		}
	case first == metadata.SystemPropertyName:
		if !entity.IsRoot() {
			break
		}
		if len(segments) == 1 || (len(segments) == 2 && metadata.IsSystemProperty(segments[1])) {
			return nil
		}
	case !entity.IsRoot() && first == entity.ParentKeyName:
		if len(segments) == 1 {
			return nil
		}
	default:
		if _, err := entity.ResolvePropertyPath(segments); err == nil {
			return nil
		}
	}
	return fmt.Errorf("could not find a property named '%s'", joined)
}

// Includes reports whether the property at path is selected in full, either
// directly or through a selected ancestor group.
func (s *Selection) Includes(path ...string) bool {
	if s == nil {
		return true
	}
	for _, selected := range s.paths {
		if hasPrefix(path, selected) {
			return true
		}
	}
	return false
}

// IncludesWithin reports whether some selected path lies strictly inside the
// group at path, so the group must be emitted with a subset of its members.
func (s *Selection) IncludesWithin(path ...string) bool {
	if s == nil {
		return true
	}
	for _, selected := range s.paths {
		if len(selected) > len(path) && hasPrefix(selected, path) {
			return true
		}
	}
	return false
}

func hasPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}
