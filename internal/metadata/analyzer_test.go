package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeForm_DoubleRepeat(t *testing.T) {
	entities, err := AnalyzeForm(doubleRepeatForm())
	require.NoError(t, err)
	require.Len(t, entities, 3)

	root, child, toy := entities[0], entities[1], entities[2]

	assert.Equal(t, "Submissions", root.EntitySetName)
	assert.True(t, root.IsRoot())
	assert.Empty(t, root.ParentKeyName)

	assert.Equal(t, "Submissions.children.child", child.EntitySetName)
	assert.Same(t, root, child.Parent)
	assert.Equal(t, "__Submissions-id", child.ParentKeyName)
	assert.Equal(t, []string{"children", "child"}, child.NavigationPath)

	assert.Equal(t, "Submissions.children.child.toys.toy", toy.EntitySetName)
	assert.Same(t, child, toy.Parent)
	assert.Equal(t, "__Submissions-children-child-id", toy.ParentKeyName)
	assert.Equal(t, []string{"toys", "toy"}, toy.NavigationPath)

	require.Len(t, root.Columns, 2)
	assert.Equal(t, "instanceID", root.Columns[0].Name)
	assert.Equal(t, []string{"meta"}, root.Columns[0].GroupPath)
	assert.Equal(t, "name", root.Columns[1].Name)
	assert.Empty(t, root.Columns[1].GroupPath)

	children := root.FindProperty("children")
	require.NotNil(t, children)
	assert.True(t, children.IsComplexType)
	assert.Equal(t, "Submissions.children", children.ComplexTypeName)
	require.Len(t, children.ComplexTypeFields, 1)
	assert.True(t, children.ComplexTypeFields[0].IsNavigationProp)
	assert.Same(t, child, children.ComplexTypeFields[0].NavigationTarget)

	assert.Same(t, child, root.FindChildByNavigationPath([]string{"children", "child"}))
	assert.Nil(t, root.FindChildByNavigationPath([]string{"child"}))
	assert.Equal(t, []*EntityMetadata{root, child, toy}, toy.Ancestors())
}

func TestAnalyzeForm_EmptyRepeat(t *testing.T) {
	form := &Form{ID: "empty", Fields: []Field{leaf("string", "name"), repeat("things")}}

	entities, err := AnalyzeForm(form)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "Submissions.things", entities[1].EntitySetName)
	assert.Empty(t, entities[1].Columns)
	assert.Equal(t, "__Submissions-id", entities[1].ParentKeyName)
}

func TestAnalyzeForm_SanitizedRepeat(t *testing.T) {
	form := &Form{ID: "sanitize", Fields: []Field{
		repeat("q1.8-test"),
		leaf("int", "q1.8-test", "q2.1"),
	}}

	entities, err := AnalyzeForm(form)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "Submissions.q1_8_test", entities[1].EntitySetName)
	assert.Equal(t, []string{"q1_8_test"}, entities[1].NavigationPath)
	assert.Equal(t, []string{"q1.8-test"}, entities[1].SourcePath)
	require.Len(t, entities[1].Columns, 1)
	assert.Equal(t, "q2_1", entities[1].Columns[0].Name)
	assert.Equal(t, "q2.1", entities[1].Columns[0].OriginalName)
	assert.Equal(t, "Edm.Int64", entities[1].Columns[0].EdmType)
}

func TestAnalyzeForm_SiblingRepeatsInDocumentOrder(t *testing.T) {
	form := &Form{ID: "siblings", Fields: []Field{
		repeat("b"),
		repeat("a"),
		repeat("b", "inner"),
	}}

	entities, err := AnalyzeForm(form)
	require.NoError(t, err)

	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.EntitySetName)
	}
	assert.Equal(t, []string{"Submissions", "Submissions.b", "Submissions.b.inner", "Submissions.a"}, names)
}

func TestAnalyzeForm_Errors(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{name: "undeclared parent", fields: []Field{leaf("string", "group", "name")}},
		{name: "duplicate path", fields: []Field{leaf("string", "name"), leaf("int", "name")}},
		{name: "child of leaf", fields: []Field{leaf("string", "name"), leaf("string", "name", "inner")}},
		{name: "empty path", fields: []Field{{Kind: FieldLeaf}}},
		{name: "empty segment", fields: []Field{group("a"), leaf("string", "a", "")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AnalyzeForm(&Form{ID: "broken", Fields: tt.fields})
			assert.Error(t, err)
		})
	}
}

func TestResolvePropertyPath(t *testing.T) {
	entities, err := AnalyzeForm(doubleRepeatForm())
	require.NoError(t, err)
	root := entities[0]

	prop, err := root.ResolvePropertyPath([]string{"meta", "instanceID"})
	require.NoError(t, err)
	assert.Equal(t, "instanceID", prop.Name)

	prop, err = root.ResolvePropertyPath([]string{"children", "child"})
	require.NoError(t, err)
	assert.True(t, prop.IsNavigationProp)

	_, err = root.ResolvePropertyPath([]string{"name", "x"})
	assert.Error(t, err)
	_, err = root.ResolvePropertyPath([]string{"missing"})
	assert.Error(t, err)
}

func TestEdmType(t *testing.T) {
	assert.Equal(t, "Edm.Int64", EdmType("int"))
	assert.Equal(t, "Edm.Decimal", EdmType("decimal"))
	assert.Equal(t, "Edm.GeographyPoint", EdmType("geopoint"))
	assert.Equal(t, "Edm.String", EdmType("select1"))
}
