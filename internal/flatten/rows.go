// Package flatten turns submission value trees into the flat rows of an
// entity set and projects rows into JSON objects.
package flatten

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"

	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/submission"
)

// Row is one row of an entity set.
type Row struct {
	ID         string
	ParentID   string   // id of the nearest enclosing repeat-or-root row, empty for root rows
	Keys       []string // row ids from the root row down to this row
	Entity     *metadata.EntityMetadata
	Submission *submission.Submission
	Data       map[string]any // values of this row's repeat instance, or of the whole submission for root rows
}

// Flatten returns every row of entity contributed by sub, in document order.
// The root set always yields exactly one row. Repeat sets yield no rows when
// the submission's repeats are unavailable.
func Flatten(sub *submission.Submission, entity *metadata.EntityMetadata) []Row {
	if entity.IsRoot() {
		return []Row{{
			ID:         sub.InstanceID,
			Keys:       []string{sub.InstanceID},
			Entity:     entity,
			Submission: sub,
			Data:       sub.Data,
		}}
	}
	if !sub.Content.HasRepeats() {
		return nil
	}

	var rows []Row
	for _, parent := range Flatten(sub, entity.Parent) {
		for i, instance := range Instances(parent.Data, entity.SourcePath) {
			id := RowID(sub.InstanceID, entity.EntitySetName, parent.ID, i)
			keys := make([]string, len(parent.Keys), len(parent.Keys)+1)
			copy(keys, parent.Keys)
			rows = append(rows, Row{
				ID:         id,
				ParentID:   parent.ID,
				Keys:       append(keys, id),
				Entity:     entity,
				Submission: sub,
				Data:       instance,
			})
		}
	}
	return rows
}

// FlattenAll flattens every submission in order.
func FlattenAll(subs []*submission.Submission, entity *metadata.EntityMetadata) []Row {
	var rows []Row
	for _, sub := range subs {
		rows = append(rows, Flatten(sub, entity)...)
	}
	return rows
}

// HasChildRows reports whether row has at least one instance of child.
func HasChildRows(row Row, child *metadata.EntityMetadata) bool {
	if !row.Submission.Content.HasRepeats() {
		return false
	}
	return len(Instances(row.Data, child.SourcePath)) > 0
}

// Instances locates the repeat instances at path (original segment names)
// inside data. A repeat that occurred once may be stored as a single map.
func Instances(data map[string]any, path []string) []map[string]any {
	if len(path) == 0 {
		return nil
	}
	current := data
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}

	switch v := current[path[len(path)-1]].(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if instance, ok := asInstance(item); ok {
				out = append(out, instance)
			}
		}
		return out
	case []map[string]any:
		return v
	default:
		if instance, ok := asInstance(v); ok {
			return []map[string]any{instance}
		}
		return nil
	}
}

// asInstance accepts a map, or an empty element serialized as a string.
func asInstance(v any) (map[string]any, bool) {
	switch value := v.(type) {
	case map[string]any:
		return value, true
	case string:
		return map[string]any{}, true
	}
	return nil, false
}

// RowID derives the stable id of a repeat row as the hex SHA-1 of its
// submission, entity set, parent row and position under that parent.
func RowID(instanceID, entitySet, parentID string, index int) string {
	h := sha1.New()
	for _, part := range []string{instanceID, entitySet, parentID, strconv.Itoa(index)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
