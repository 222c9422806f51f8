package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nlstn/go-odata-forms/internal/flatten"
	"github.com/nlstn/go-odata-forms/internal/response"
	"github.com/nlstn/go-odata-forms/internal/source"
	"github.com/nlstn/go-odata-forms/internal/submission"
)

func doubleRepeatHandler() *FormHandler {
	at := time.Date(2018, 4, 18, 23, 19, 14, 802_000_000, time.UTC)
	return NewFormHandler(&source.Memory{
		Schema:  doubleRepeatForm(),
		Entries: []*submission.Submission{doubleSubmission("double", at)},
	}, nil)
}

func TestServiceDocument(t *testing.T) {
	rec := serve(t, doubleRepeatHandler(), "doubleRepeat", http.MethodGet, "")
	expectStatus(t, rec, http.StatusOK)

	if got := rec.Header().Get(response.HeaderODataVersion); got != "4.0" {
		t.Errorf("OData-Version = %q, want 4.0", got)
	}
	if got := rec.Header().Get(response.HeaderContentType); got != response.ContentTypeJSON {
		t.Errorf("Content-Type = %q, want %q", got, response.ContentTypeJSON)
	}

	want := `{"@odata.context":"http://example.com/v1/projects/1/forms/doubleRepeat.svc/$metadata","value":[` +
		`{"name":"Submissions","kind":"EntitySet","url":"Submissions"},` +
		`{"name":"Submissions.children.child","kind":"EntitySet","url":"Submissions.children.child"},` +
		`{"name":"Submissions.children.child.toys.toy","kind":"EntitySet","url":"Submissions.children.child.toys.toy"}]}`
	if rec.Body.String() != want {
		t.Errorf("body = %s\nwant %s", rec.Body.String(), want)
	}
}

func TestMetadataDocument(t *testing.T) {
	h := doubleRepeatHandler()

	rec := serve(t, h, "doubleRepeat", http.MethodGet, "/$metadata")
	expectStatus(t, rec, http.StatusOK)
	if got := rec.Header().Get(response.HeaderContentType); got != "text/xml; charset=utf-8" {
		t.Errorf("Content-Type = %q, want %q", got, "text/xml; charset=utf-8")
	}
	if !strings.HasPrefix(rec.Body.String(), "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<edmx:Edmx") {
		t.Errorf("metadata body starts with %q", rec.Body.String()[:60])
	}
	etag := rec.Header().Get(response.HeaderETag)
	if etag == "" {
		t.Fatal("ETag header missing")
	}

	rec = serve(t, h, "doubleRepeat", http.MethodGet, "/$metadata", response.HeaderIfNoneMatch, etag)
	expectStatus(t, rec, http.StatusNotModified)
	if rec.Body.Len() != 0 {
		t.Errorf("304 body = %q, want empty", rec.Body.String())
	}
}

func TestMetadataWithoutSchema(t *testing.T) {
	rec := serve(t, NewFormHandler(&source.Memory{}, nil), "nonexistent", http.MethodGet, "/$metadata")
	expectStatus(t, rec, http.StatusNotFound)

	if got := rec.Header().Get(response.HeaderContentType); got != "text/xml; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/xml; charset=utf-8", got)
	}
	want := `<?xml version="1.0" encoding="UTF-8"?>
<error code="404.1">
  <message>Could not find the resource you were looking for.</message>
  <details></details>
</error>`
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}

func TestMethods(t *testing.T) {
	h := doubleRepeatHandler()

	rec := serve(t, h, "doubleRepeat", http.MethodPost, "/Submissions")
	expectStatus(t, rec, http.StatusMethodNotAllowed)
	if got := rec.Header().Get(response.HeaderAllow); got != "GET, HEAD, OPTIONS" {
		t.Errorf("Allow = %q, want GET, HEAD, OPTIONS", got)
	}

	rec = serve(t, h, "doubleRepeat", http.MethodOptions, "/Submissions")
	expectStatus(t, rec, http.StatusOK)

	rec = serve(t, h, "doubleRepeat", http.MethodHead, "/Submissions")
	expectStatus(t, rec, http.StatusOK)
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD body = %q, want empty", rec.Body.String())
	}
}

func TestSubtablePaging(t *testing.T) {
	bob := flatten.RowID("double", "Submissions.children.child", "double", 1)

	rec := serve(t, doubleRepeatHandler(), "doubleRepeat", http.MethodGet, "/Submissions('double')/children/child?$top=1&$skip=1")
	expectStatus(t, rec, http.StatusOK)

	want := `{"@odata.context":"http://example.com/v1/projects/1/forms/doubleRepeat.svc/$metadata#Submissions.children.child",` +
		`"@odata.nextLink":"http://example.com/v1/projects/1/forms/doubleRepeat.svc/Submissions(%27double%27)/children/child?%24skip=2",` +
		`"value":[{"__id":"` + bob + `","__Submissions-id":"double","name":"Bob",` +
		`"toys":{"toy@odata.navigationLink":"Submissions('double')/children/child('` + bob + `')/toys/toy"}}]}`
	if rec.Body.String() != want {
		t.Errorf("body = %s\nwant %s", rec.Body.String(), want)
	}
}

func TestSubtableCountOnly(t *testing.T) {
	rec := serve(t, doubleRepeatHandler(), "doubleRepeat", http.MethodGet, "/Submissions('double')/children/child?$top=0&$count=true")
	expectStatus(t, rec, http.StatusOK)

	want := `{"@odata.context":"http://example.com/v1/projects/1/forms/doubleRepeat.svc/$metadata#Submissions.children.child",` +
		`"@odata.nextLink":"http://example.com/v1/projects/1/forms/doubleRepeat.svc/Submissions(%27double%27)/children/child?%24count=true&%24skip=0",` +
		`"@odata.count":3,"value":[]}`
	if rec.Body.String() != want {
		t.Errorf("body = %s\nwant %s", rec.Body.String(), want)
	}
}

func TestNestedSubtable(t *testing.T) {
	h := doubleRepeatHandler()
	bob := flatten.RowID("double", "Submissions.children.child", "double", 1)

	rec := serve(t, h, "doubleRepeat", http.MethodGet, "/Submissions('double')/children/child('"+bob+"')/toys/toy")
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	value := body["value"].([]any)
	if len(value) != 2 {
		t.Fatalf("len(value) = %d, want 2", len(value))
	}
	first := value[0].(map[string]any)
	if first["name"] != "Twilight Sparkle" || first["__Submissions-children-child-id"] != bob {
		t.Errorf("first toy = %v", first)
	}

	rec = serve(t, h, "doubleRepeat", http.MethodGet, "/Submissions.children.child.toys.toy?$count=true")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody(t, rec)["@odata.count"]; got != float64(3) {
		t.Errorf("@odata.count = %v, want 3", got)
	}
}

func TestUnknownPaths(t *testing.T) {
	h := doubleRepeatHandler()
	for _, target := range []string{
		"/Submissions('missing')",
		"/Submissions('missing')/children/child",
		"/Submissions('double')/children/child('nope')/toys/toy",
		"/Submissions('double')/children/kid",
		"/Submissions/children/child",
		"/Elsewhere",
		"/Submissions.children.child('x')",
	} {
		rec := serve(t, h, "doubleRepeat", http.MethodGet, target)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", target, rec.Code)
		}
	}
}

func TestUnsupportedQueryOption(t *testing.T) {
	rec := serve(t, doubleRepeatHandler(), "doubleRepeat", http.MethodGet, "/Submissions?$orderby=name")
	expectStatus(t, rec, http.StatusBadRequest)

	errBody := decodeBody(t, rec)["error"].(map[string]any)
	if errBody["code"] != "400.18" {
		t.Errorf("code = %v, want 400.18", errBody["code"])
	}
	if !strings.Contains(errBody["message"].(string), "$orderby") {
		t.Errorf("message = %v, want it to name $orderby", errBody["message"])
	}
}

func TestRootCollectionFilterAndOrder(t *testing.T) {
	h := NewFormHandler(simpleSource(), nil)

	rec := serve(t, h, "simple", http.MethodGet, "/Submissions?$filter=__system/submitterId%20eq%205&$count=true")
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)

	if body["@odata.count"] != float64(2) {
		t.Errorf("@odata.count = %v, want 2", body["@odata.count"])
	}
	value := body["value"].([]any)
	var ids []string
	for _, v := range value {
		ids = append(ids, v.(map[string]any)["__id"].(string))
	}
	if strings.Join(ids, ",") != "three,one" {
		t.Errorf("ids = %v, want [three one]", ids)
	}
	if age := value[0].(map[string]any)["age"]; age != float64(38) {
		t.Errorf("age = %v, want 38", age)
	}
}

func TestRootCollectionPaging(t *testing.T) {
	h := NewFormHandler(simpleSource(), nil)

	rec := serve(t, h, "simple", http.MethodGet, "/Submissions?$top=1&$count=true")
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	if got, want := body["@odata.nextLink"], "http://example.com/v1/projects/1/forms/simple.svc/Submissions?%24count=true&%24skip=1"; got != want {
		t.Errorf("@odata.nextLink = %v, want %s", got, want)
	}

	rec = serve(t, h, "simple", http.MethodGet, "/Submissions?$skip=2")
	body = decodeBody(t, rec)
	if _, ok := body["@odata.nextLink"]; ok {
		t.Error("unexpected @odata.nextLink on the last page")
	}
	if value := body["value"].([]any); len(value) != 1 || value[0].(map[string]any)["__id"] != "one" {
		t.Errorf("value = %v, want [one]", value)
	}
}

func TestMaxPageSizePreference(t *testing.T) {
	h := NewFormHandler(simpleSource(), nil)

	rec := serve(t, h, "simple", http.MethodGet, "/Submissions", "Prefer", "odata.maxpagesize=2")
	expectStatus(t, rec, http.StatusOK)
	if got := rec.Header().Get("Preference-Applied"); got != "odata.maxpagesize=2" {
		t.Errorf("Preference-Applied = %q, want odata.maxpagesize=2", got)
	}
	body := decodeBody(t, rec)
	if len(body["value"].([]any)) != 2 {
		t.Errorf("len(value) = %d, want 2", len(body["value"].([]any)))
	}
	if body["@odata.nextLink"] != "http://example.com/v1/projects/1/forms/simple.svc/Submissions?%24skip=2" {
		t.Errorf("@odata.nextLink = %v", body["@odata.nextLink"])
	}
}

func TestMaxPageSizeKeepsRequestedTop(t *testing.T) {
	h := NewFormHandler(simpleSource(), nil)

	rec := serve(t, h, "simple", http.MethodGet, "/Submissions?$top=2", "Prefer", "odata.maxpagesize=1")
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	if len(body["value"].([]any)) != 1 {
		t.Errorf("len(value) = %d, want 1", len(body["value"].([]any)))
	}
	want := "http://example.com/v1/projects/1/forms/simple.svc/Submissions?%24skip=1&%24top=1"
	if body["@odata.nextLink"] != want {
		t.Errorf("@odata.nextLink = %v, want %s", body["@odata.nextLink"], want)
	}
}

func TestPreferenceAppliedOnlyOnSuccess(t *testing.T) {
	h := NewFormHandler(simpleSource(), nil)

	rec := serve(t, h, "simple", http.MethodGet, "/Submissions('missing')", "Prefer", "odata.maxpagesize=2")
	expectStatus(t, rec, http.StatusNotFound)
	if got := rec.Header().Get("Preference-Applied"); got != "" {
		t.Errorf("Preference-Applied = %q on an error response, want none", got)
	}
}

func TestHugeTop(t *testing.T) {
	h := NewFormHandler(simpleSource(), nil)

	for _, target := range []string{
		"/Submissions?$top=9223372036854775807&$skip=1",
		"/Submissions?$top=9223372036854775807&$skip=9223372036854775807",
	} {
		rec := serve(t, h, "simple", http.MethodGet, target, "Prefer", "odata.maxpagesize=9223372036854775807")
		expectStatus(t, rec, http.StatusOK)
		body := decodeBody(t, rec)
		if _, ok := body["@odata.nextLink"]; ok {
			t.Errorf("GET %s @odata.nextLink = %v, want none", target, body["@odata.nextLink"])
		}
	}

	rec := serve(t, h, "simple", http.MethodGet, "/Submissions?$top=9223372036854775807&$skip=1")
	if got := len(decodeBody(t, rec)["value"].([]any)); got != 2 {
		t.Errorf("len(value) = %d, want 2", got)
	}
}

func TestDefaultMaxTop(t *testing.T) {
	h := NewFormHandler(simpleSource(), nil)
	top := 1
	h.SetDefaultMaxTop(&top)

	body := decodeBody(t, serve(t, h, "simple", http.MethodGet, "/Submissions"))
	if len(body["value"].([]any)) != 1 {
		t.Errorf("len(value) = %d, want 1", len(body["value"].([]any)))
	}
}

func TestSelect(t *testing.T) {
	h := NewFormHandler(simpleSource(), nil)

	rec := serve(t, h, "simple", http.MethodGet, "/Submissions?$select=__id,name&$top=1")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"value":[{"__id":"three","name":"Chelsea"}]`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestEncodedKeysInLinks(t *testing.T) {
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewFormHandler(&source.Memory{
		Schema:  doubleRepeatForm(),
		Entries: []*submission.Submission{doubleSubmission("uuid:17b09e96", at)},
	}, nil)

	rec := serve(t, h, "doubleRepeat", http.MethodGet, "/Submissions('uuid%3A17b09e96')?$select=children")
	expectStatus(t, rec, http.StatusOK)
	want := `"value":[{"children":{"child@odata.navigationLink":"Submissions('uuid%3A17b09e96')/children/child"}}]`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("body = %s, want it to contain %s", rec.Body.String(), want)
	}

	rec = serve(t, h, "doubleRepeat", http.MethodGet, "/Submissions('uuid%3A17b09e96')/children/child?$top=1")
	expectStatus(t, rec, http.StatusOK)
	next := decodeBody(t, rec)["@odata.nextLink"]
	if next != "http://example.com/v1/projects/1/forms/doubleRepeat.svc/Submissions(%27uuid%3A17b09e96%27)/children/child?%24skip=1" {
		t.Errorf("@odata.nextLink = %v", next)
	}
}

func TestDegradedSubmission(t *testing.T) {
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := doubleSubmission("locked", at)
	sub.Content = submission.ContentDegraded
	h := NewFormHandler(&source.Memory{Schema: doubleRepeatForm(), Entries: []*submission.Submission{sub}}, nil)

	rec := serve(t, h, "doubleRepeat", http.MethodGet, "/Submissions('locked')/children/child")
	expectStatus(t, rec, http.StatusOK)
	if len(decodeBody(t, rec)["value"].([]any)) != 0 {
		t.Errorf("degraded subtable body = %s, want empty value", rec.Body.String())
	}

	rec = serve(t, h, "doubleRepeat", http.MethodGet, "/Submissions")
	row := decodeBody(t, rec)["value"].([]any)[0].(map[string]any)
	if _, ok := row["children"]; ok {
		t.Errorf("degraded row = %v, want no children", row)
	}
}

func TestServiceRootFromRequest(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com/Submissions", nil)
	req.Host = "example.com"
	root, rel := splitServiceRoot(req)
	if root != "http://example.com" || rel != "Submissions" {
		t.Errorf("splitServiceRoot() = %q, %q", root, rel)
	}

	req = req.WithContext(WithServiceRoot(req.Context(), "http://example.com/forms/a%20b.svc/"))
	req.URL.Path = "/forms/a b.svc/Submissions"
	root, rel = splitServiceRoot(req)
	if root != "http://example.com/forms/a%20b.svc" || rel != "Submissions" {
		t.Errorf("splitServiceRoot() = %q, %q", root, rel)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/v1/projects/1/forms/a%20b.svc/Submissions%28%27x%27%29", nil)
	root, rel = splitServiceRoot(req)
	if root != "http://example.com/v1/projects/1/forms/a%20b.svc" || rel != "Submissions%28%27x%27%29" {
		t.Errorf("splitServiceRoot() = %q, %q", root, rel)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/forms/a.svcx.svc/Submissions", nil)
	root, rel = splitServiceRoot(req)
	if root != "http://example.com/forms/a.svcx.svc" || rel != "Submissions" {
		t.Errorf("splitServiceRoot() = %q, %q", root, rel)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/forms/a.svc", nil)
	root, rel = splitServiceRoot(req)
	if root != "http://example.com/forms/a.svc" || rel != "" {
		t.Errorf("splitServiceRoot() = %q, %q", root, rel)
	}
}
