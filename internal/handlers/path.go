package handlers

import (
	"net/url"
	"strings"

	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/problem"
	"github.com/nlstn/go-odata-forms/internal/response"
)

// pathStep is one entity set along a resource path.
type pathStep struct {
	Entity *metadata.EntityMetadata
	Name   string // set name for the first step, navigation path afterwards
	Key    string // row key, empty when the step is not keyed
}

// resourcePath is a resolved request path such as
// Submissions('k')/children/child('id')/toys/toy.
type resourcePath struct {
	steps []pathStep
}

// Target returns the entity set the path addresses.
func (p *resourcePath) Target() *metadata.EntityMetadata {
	return p.steps[len(p.steps)-1].Entity
}

// RootKey returns the submission instance id named by the path, if any.
func (p *resourcePath) RootKey() string {
	if first := p.steps[0]; first.Entity.IsRoot() {
		return first.Key
	}
	return ""
}

// Segments renders the path for links.
func (p *resourcePath) Segments() []response.PathSegment {
	segments := make([]response.PathSegment, len(p.steps))
	for i, step := range p.steps {
		segments[i] = response.PathSegment{Name: step.Name, Key: step.Key}
	}
	return segments
}

// keyedSteps returns the keyed steps after the root.
func (p *resourcePath) keyedSteps() []pathStep {
	var out []pathStep
	for i, step := range p.steps {
		if i > 0 && step.Key != "" {
			out = append(out, step)
		}
	}
	return out
}

// parseResourcePath resolves rel (escaped, no leading slash) against schema.
func parseResourcePath(schema *metadata.Schema, rel string) (*resourcePath, error) {
	notFound := problem.UnknownEntityPath(rel)

	rawSegments := strings.Split(strings.TrimSuffix(rel, "/"), "/")
	segments := make([]string, len(rawSegments))
	for i, raw := range rawSegments {
		segment, err := url.PathUnescape(raw)
		if err != nil {
			return nil, notFound
		}
		segments[i] = segment
	}

	name, key, ok := splitKey(segments[0])
	if !ok {
		return nil, notFound
	}
	entity, exists := schema.EntitySet(name)
	if !exists || (key != "" && !entity.IsRoot()) {
		return nil, notFound
	}

	path := &resourcePath{steps: []pathStep{{Entity: entity, Name: name, Key: key}}}
	current := entity
	var pending []string
	for _, segment := range segments[1:] {
		name, key, ok := splitKey(segment)
		if !ok || name == "" {
			return nil, notFound
		}
		if len(pending) == 0 && path.steps[len(path.steps)-1].Key == "" {
			return nil, notFound
		}
		pending = append(pending, name)
		child := current.FindChildByNavigationPath(pending)
		if child == nil {
			if key != "" {
				return nil, notFound
			}
			continue
		}
		path.steps = append(path.steps, pathStep{Entity: child, Name: strings.Join(pending, "/"), Key: key})
		current = child
		pending = nil
	}
	if len(pending) > 0 {
		return nil, notFound
	}
	return path, nil
}

// splitKey splits "name('key')" into its parts. Doubled quotes inside the
// key are unescaped. Segments without a key predicate return an empty key.
func splitKey(segment string) (name, key string, ok bool) {
	open := strings.IndexByte(segment, '(')
	if open < 0 {
		return segment, "", segment != ""
	}
	if !strings.HasSuffix(segment, ")") {
		return "", "", false
	}
	inner := segment[open+1 : len(segment)-1]
	if len(inner) < 3 || inner[0] != '\'' || inner[len(inner)-1] != '\'' {
		return "", "", false
	}
	return segment[:open], strings.ReplaceAll(inner[1:len(inner)-1], "''", "'"), open > 0
}
