package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldKind distinguishes scalar leaves from the two structural node kinds.
type FieldKind int

const (
	FieldLeaf FieldKind = iota
	FieldGroup
	FieldRepeat
)

func (k FieldKind) String() string {
	switch k {
	case FieldGroup:
		return "group"
	case FieldRepeat:
		return "repeat"
	default:
		return "leaf"
	}
}

// Field is one node of a form's field tree. Path holds the original segment
// names from the form root down to the node itself.
type Field struct {
	Path []string
	Kind FieldKind
	Type string // declared scalar type for leaves (string, int, decimal, date, geopoint, ...)
}

// Name returns the last path segment.
func (f Field) Name() string {
	if len(f.Path) == 0 {
		return ""
	}
	return f.Path[len(f.Path)-1]
}

// fieldJSON is the serialized field shape: a slash-separated path and a type,
// where "structure" marks a group and "repeat" a repeat.
type fieldJSON struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// MarshalJSON implements json.Marshaler.
func (f Field) MarshalJSON() ([]byte, error) {
	typ := f.Type
	switch f.Kind {
	case FieldGroup:
		typ = "structure"
	case FieldRepeat:
		typ = "repeat"
	}
	return json.Marshal(fieldJSON{Path: "/" + strings.Join(f.Path, "/"), Type: typ})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	trimmed := strings.Trim(raw.Path, "/")
	if trimmed == "" {
		return fmt.Errorf("field path %q is empty", raw.Path)
	}
	f.Path = strings.Split(trimmed, "/")
	f.Type = ""
	switch raw.Type {
	case "structure", "group":
		f.Kind = FieldGroup
	case "repeat":
		f.Kind = FieldRepeat
	default:
		f.Kind = FieldLeaf
		f.Type = raw.Type
	}
	return nil
}

// Form is a single form version's field schema, fields in document order.
type Form struct {
	ID      string  `json:"xmlFormId"`
	Version string  `json:"version"`
	Fields  []Field `json:"fields"`
}
