package metadata

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCSDL(t *testing.T) {
	schema, err := NewSchema(doubleRepeatForm(), "")
	require.NoError(t, err)

	doc, err := BuildCSDL(schema)
	require.NoError(t, err)
	text := string(doc)

	assert.True(t, strings.HasPrefix(text, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<edmx:Edmx"))
	assert.Contains(t, text, `xmlns:edmx="http://docs.oasis-open.org/odata/ns/edmx"`)
	assert.Contains(t, text, `<Schema xmlns="http://docs.oasis-open.org/odata/ns/edm" Namespace="org.opendatakit.user.doubleRepeat">`)
	assert.Contains(t, text, `<EntityType Name="Submissions">`)
	assert.Contains(t, text, `<EntityType Name="Submissions.children.child">`)
	assert.Contains(t, text, `<EntityType Name="Submissions.children.child.toys.toy">`)
	assert.Contains(t, text, `<ComplexType Name="Submissions.children">`)
	assert.Contains(t, text, `<ComplexType Name="Submissions.children.child.toys">`)
	assert.Contains(t, text, `<Property Name="__system" Type="org.opendatakit.submission.metadata">`)
	assert.Contains(t, text, `<Property Name="__Submissions-children-child-id" Type="Edm.String">`)
	assert.Contains(t, text, `<NavigationProperty Name="child" Type="Collection(org.opendatakit.user.doubleRepeat.Submissions.children.child)">`)
	assert.Contains(t, text, `<NavigationPropertyBinding Path="children/child" Target="Submissions.children.child">`)
	assert.Contains(t, text, `<EntityContainer Name="doubleRepeat">`)

	var parsed struct {
		XMLName xml.Name
	}
	require.NoError(t, xml.Unmarshal(doc, &parsed))
	assert.Equal(t, "Edmx", parsed.XMLName.Local)
}

func TestBuildCSDL_Stable(t *testing.T) {
	first, err := NewSchema(doubleRepeatForm(), "")
	require.NoError(t, err)
	second, err := NewSchema(doubleRepeatForm(), "")
	require.NoError(t, err)

	a, err := BuildCSDL(first)
	require.NoError(t, err)
	b, err := BuildCSDL(second)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
	assert.Equal(t, first.ETag(), second.ETag())
}

func TestBuildCSDL_DescribesSanitizedNames(t *testing.T) {
	schema, err := NewSchema(&Form{ID: "q.form", Fields: []Field{
		leaf("string", "first name"),
		repeat("q1.8-test"),
	}}, "")
	require.NoError(t, err)

	doc, err := BuildCSDL(schema)
	require.NoError(t, err)
	text := string(doc)

	assert.Contains(t, text, `Namespace="org.opendatakit.user.q_form"`)
	assert.Contains(t, text, `<Annotation Term="Org.OData.Core.V1.Description" String="first name">`)
	assert.Contains(t, text, `<NavigationProperty Name="q1_8_test" Type="Collection(org.opendatakit.user.q_form.Submissions.q1_8_test)">`)
	assert.Contains(t, text, `<EntitySet Name="Submissions.q1_8_test" EntityType="org.opendatakit.user.q_form.Submissions.q1_8_test">`)
}

func TestBuildServiceDocument(t *testing.T) {
	schema, err := NewSchema(doubleRepeatForm(), "")
	require.NoError(t, err)

	doc := BuildServiceDocument(schema, "http://localhost/v1/projects/1/forms/doubleRepeat.svc")
	body, err := json.Marshal(doc)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"@odata.context": "http://localhost/v1/projects/1/forms/doubleRepeat.svc/$metadata",
		"value": [
			{"name": "Submissions", "kind": "EntitySet", "url": "Submissions"},
			{"name": "Submissions.children.child", "kind": "EntitySet", "url": "Submissions.children.child"},
			{"name": "Submissions.children.child.toys.toy", "kind": "EntitySet", "url": "Submissions.children.child.toys.toy"}
		]
	}`, string(body))
}

func TestFingerprint_ChangesWithSchema(t *testing.T) {
	form := doubleRepeatForm()
	a, err := Fingerprint(form)
	require.NoError(t, err)

	form.Fields = append(form.Fields, leaf("int", "age"))
	b, err := Fingerprint(form)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
