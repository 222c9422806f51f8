package metadata

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// DefaultNamespacePrefix prefixes the sanitized form id to build the user schema namespace.
const DefaultNamespacePrefix = "org.opendatakit.user"

// Schema is the compiled, immutable entity model of one form version.
type Schema struct {
	Form        *Form
	Namespace   string
	Entities    []*EntityMetadata
	Fingerprint uint64

	byName map[string]*EntityMetadata
}

// NewSchema analyzes form and indexes its entity sets. An empty namespacePrefix
// selects DefaultNamespacePrefix.
func NewSchema(form *Form, namespacePrefix string) (*Schema, error) {
	entities, err := AnalyzeForm(form)
	if err != nil {
		return nil, err
	}
	fingerprint, err := Fingerprint(form)
	if err != nil {
		return nil, err
	}
	if namespacePrefix == "" {
		namespacePrefix = DefaultNamespacePrefix
	}

	byName := make(map[string]*EntityMetadata, len(entities))
	for _, entity := range entities {
		byName[entity.EntitySetName] = entity
	}
	return &Schema{
		Form:        form,
		Namespace:   namespacePrefix + "." + SanitizeName(form.ID),
		Entities:    entities,
		Fingerprint: fingerprint,
		byName:      byName,
	}, nil
}

// Root returns the Submissions entity set.
func (s *Schema) Root() *EntityMetadata {
	return s.Entities[0]
}

// EntitySet looks up an entity set by its full name.
func (s *Schema) EntitySet(name string) (*EntityMetadata, bool) {
	entity, ok := s.byName[name]
	return entity, ok
}

// QualifiedName returns the namespace-qualified name of a type declared in this schema.
func (s *Schema) QualifiedName(local string) string {
	return s.Namespace + "." + local
}

// ETag returns a strong entity tag for documents derived from this schema.
func (s *Schema) ETag() string {
	return `"` + strconv.FormatUint(s.Fingerprint, 16) + `"`
}

// Fingerprint hashes the canonical JSON encoding of a form. Equal forms yield
// equal fingerprints, so it serves as a content address for compiled schemas.
func Fingerprint(form *Form) (uint64, error) {
	canonical, err := json.Marshal(form)
	if err != nil {
		return 0, fmt.Errorf("failed to encode form %q: %w", form.ID, err)
	}
	return xxhash.Sum64(canonical), nil
}
