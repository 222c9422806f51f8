package metadata

import (
	"fmt"
	"strings"
)

const (
	// RootEntitySetName is the entity set holding one row per submission.
	RootEntitySetName = "Submissions"
	// IDPropertyName is the key property present on every entity type.
	IDPropertyName = "__id"
	// SystemPropertyName holds submission system metadata on root rows.
	SystemPropertyName = "__system"
	// SystemNamespace is the schema namespace of the system metadata complex type.
	SystemNamespace = "org.opendatakit.submission"
	// SystemTypeName is the local name of the system metadata complex type.
	SystemTypeName = "metadata"
)

// SystemProperty describes one member of the __system complex type.
type SystemProperty struct {
	Name    string
	EdmType string
}

// SystemProperties lists the __system members in output order.
var SystemProperties = []SystemProperty{
	{Name: "submissionDate", EdmType: "Edm.DateTimeOffset"},
	{Name: "updatedAt", EdmType: "Edm.DateTimeOffset"},
	{Name: "submitterId", EdmType: "Edm.String"},
	{Name: "submitterName", EdmType: "Edm.String"},
	{Name: "attachmentsPresent", EdmType: "Edm.Int64"},
	{Name: "attachmentsExpected", EdmType: "Edm.Int64"},
	{Name: "status", EdmType: "Edm.String"},
	{Name: "reviewState", EdmType: "Edm.String"},
	{Name: "deviceId", EdmType: "Edm.String"},
	{Name: "edits", EdmType: "Edm.Int64"},
	{Name: "formVersion", EdmType: "Edm.String"},
}

// IsSystemProperty reports whether name is a member of __system.
func IsSystemProperty(name string) bool {
	for _, p := range SystemProperties {
		if p.Name == name {
			return true
		}
	}
	return false
}

// EntityMetadata describes one flattened table: the root Submissions set or
// the set produced by a single repeat node.
type EntityMetadata struct {
	EntitySetName  string          // "Submissions" or "Submissions.<sanitized path>"
	Parent         *EntityMetadata // nil for the root set
	ParentKeyName  string          // "__<parent set with - for .>-id", empty for the root set
	NavigationPath []string        // sanitized segments from the parent entity to the repeat
	SourcePath     []string        // original segments from the parent entity to the repeat
	Properties     []*PropertyMetadata
	Columns        []*ColumnMetadata // leaf properties in document order
	Children       []*EntityMetadata // direct child sets in document order
}

// PropertyMetadata is one structural or navigation property of an entity type
// or of a group complex type.
type PropertyMetadata struct {
	Name              string // sanitized
	OriginalName      string
	FormType          string // declared form type for leaves
	EdmType           string
	IsComplexType     bool
	ComplexTypeName   string // "<set>.<group path>" for groups
	ComplexTypeFields []*PropertyMetadata
	IsNavigationProp  bool
	NavigationTarget  *EntityMetadata
}

// ColumnMetadata is a leaf property together with the group path that
// re-nests it inside the row object.
type ColumnMetadata struct {
	Name         string
	OriginalName string
	GroupPath    []string // sanitized group segments inside the entity
	SourcePath   []string // original segments inside the entity, including the leaf
	FormType     string
	EdmType      string
}

// IsRoot reports whether metadata describes the root Submissions set.
func (metadata *EntityMetadata) IsRoot() bool {
	return metadata.Parent == nil
}

// FindProperty returns the top-level property with the given sanitized name.
func (metadata *EntityMetadata) FindProperty(name string) *PropertyMetadata {
	if metadata == nil {
		return nil
	}
	return findProperty(metadata.Properties, name)
}

// ResolvePropertyPath walks group complex types along path and returns the
// addressed property. Navigation properties terminate the walk.
func (metadata *EntityMetadata) ResolvePropertyPath(path []string) (*PropertyMetadata, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty property path")
	}
	props := metadata.Properties
	var prop *PropertyMetadata
	for i, segment := range path {
		prop = findProperty(props, segment)
		if prop == nil {
			return nil, fmt.Errorf("property '%s' does not exist", strings.Join(path[:i+1], "/"))
		}
		if i < len(path)-1 && !prop.IsComplexType {
			return nil, fmt.Errorf("property '%s' has no nested properties", strings.Join(path[:i+1], "/"))
		}
		props = prop.ComplexTypeFields
	}
	return prop, nil
}

// FindChildByNavigationPath returns the direct child set reached through the
// given sanitized segments (groups followed by the repeat name).
func (metadata *EntityMetadata) FindChildByNavigationPath(segments []string) *EntityMetadata {
	for _, child := range metadata.Children {
		if equalSegments(child.NavigationPath, segments) {
			return child
		}
	}
	return nil
}

// Ancestors returns the chain of sets from the root down to metadata itself.
func (metadata *EntityMetadata) Ancestors() []*EntityMetadata {
	var chain []*EntityMetadata
	for m := metadata; m != nil; m = m.Parent {
		chain = append([]*EntityMetadata{m}, chain...)
	}
	return chain
}

func findProperty(props []*PropertyMetadata, name string) *PropertyMetadata {
	for _, prop := range props {
		if prop.Name == name {
			return prop
		}
	}
	return nil
}

func equalSegments(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// schemaNode is the tree form of a field list.
type schemaNode struct {
	field    Field
	children []*schemaNode
}

// AnalyzeForm maps a form's field tree onto its entity sets. Sets are returned
// in document order: the root first, every parent before its children and
// siblings in schema order.
func AnalyzeForm(form *Form) ([]*EntityMetadata, error) {
	if form == nil {
		return nil, fmt.Errorf("form is nil")
	}
	root, err := buildTree(form.Fields)
	if err != nil {
		return nil, fmt.Errorf("form %q: %w", form.ID, err)
	}

	rootEntity := &EntityMetadata{EntitySetName: RootEntitySetName}
	entities := []*EntityMetadata{rootEntity}
	namer := NewNamer(IDPropertyName, SystemPropertyName)
	rootEntity.Properties = analyzeChildren(root.children, rootEntity, namer, nil, nil, &entities)
	return entities, nil
}

func buildTree(fields []Field) (*schemaNode, error) {
	root := &schemaNode{field: Field{Kind: FieldGroup}}
	index := map[string]*schemaNode{"": root}

	for _, field := range fields {
		if len(field.Path) == 0 {
			return nil, fmt.Errorf("field with empty path")
		}
		for _, segment := range field.Path {
			if segment == "" {
				return nil, fmt.Errorf("field /%s has an empty path segment", strings.Join(field.Path, "/"))
			}
		}

		key := pathKey(field.Path)
		if _, exists := index[key]; exists {
			return nil, fmt.Errorf("field /%s is declared twice", strings.Join(field.Path, "/"))
		}
		parent, ok := index[pathKey(field.Path[:len(field.Path)-1])]
		if !ok {
			return nil, fmt.Errorf("field /%s is declared before its parent", strings.Join(field.Path, "/"))
		}
		if parent.field.Kind == FieldLeaf {
			return nil, fmt.Errorf("field /%s is nested under a scalar field", strings.Join(field.Path, "/"))
		}

		node := &schemaNode{field: field}
		parent.children = append(parent.children, node)
		index[key] = node
	}
	return root, nil
}

func pathKey(path []string) string {
	return strings.Join(path, "\x00")
}

// analyzeChildren emits the properties of one scope. groupPath and sourcePath
// are relative to entity.
func analyzeChildren(nodes []*schemaNode, entity *EntityMetadata, namer *Namer, groupPath, sourcePath []string, entities *[]*EntityMetadata) []*PropertyMetadata {
	props := make([]*PropertyMetadata, 0, len(nodes))
	for _, node := range nodes {
		original := node.field.Name()
		name := namer.Name(original)
		nodeGroupPath := appendPath(groupPath, name)
		nodeSourcePath := appendPath(sourcePath, original)

		switch node.field.Kind {
		case FieldGroup:
			prop := &PropertyMetadata{
				Name:            name,
				OriginalName:    original,
				IsComplexType:   true,
				ComplexTypeName: entity.EntitySetName + "." + strings.Join(nodeGroupPath, "."),
			}
			prop.ComplexTypeFields = analyzeChildren(node.children, entity, NewNamer(), nodeGroupPath, nodeSourcePath, entities)
			props = append(props, prop)

		case FieldRepeat:
			child := &EntityMetadata{
				EntitySetName:  entity.EntitySetName + "." + strings.Join(nodeGroupPath, "."),
				Parent:         entity,
				ParentKeyName:  "__" + strings.ReplaceAll(entity.EntitySetName, ".", "-") + "-id",
				NavigationPath: nodeGroupPath,
				SourcePath:     nodeSourcePath,
			}
			entity.Children = append(entity.Children, child)
			*entities = append(*entities, child)
			childNamer := NewNamer(IDPropertyName, child.ParentKeyName)
			child.Properties = analyzeChildren(node.children, child, childNamer, nil, nil, entities)
			props = append(props, &PropertyMetadata{
				Name:             name,
				OriginalName:     original,
				IsNavigationProp: true,
				NavigationTarget: child,
			})

		default:
			edmType := EdmType(node.field.Type)
			props = append(props, &PropertyMetadata{
				Name:         name,
				OriginalName: original,
				FormType:     node.field.Type,
				EdmType:      edmType,
			})
			entity.Columns = append(entity.Columns, &ColumnMetadata{
				Name:         name,
				OriginalName: original,
				GroupPath:    append([]string(nil), groupPath...),
				SourcePath:   nodeSourcePath,
				FormType:     node.field.Type,
				EdmType:      edmType,
			})
		}
	}
	return props
}

func appendPath(path []string, segment string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, segment)
}

// EdmType maps a declared form type onto its EDM primitive type.
func EdmType(formType string) string {
	switch formType {
	case "int":
		return "Edm.Int64"
	case "decimal":
		return "Edm.Decimal"
	case "boolean":
		return "Edm.Boolean"
	case "date":
		return "Edm.Date"
	case "dateTime":
		return "Edm.DateTimeOffset"
	case "geopoint":
		return "Edm.GeographyPoint"
	case "geotrace":
		return "Edm.GeographyLineString"
	case "geoshape":
		return "Edm.GeographyPolygon"
	default:
		return "Edm.String"
	}
}
