package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/source"
	"github.com/nlstn/go-odata-forms/internal/submission"
)

const testOrigin = "http://example.com"

func field(kind metadata.FieldKind, typ string, path ...string) metadata.Field {
	return metadata.Field{Path: path, Kind: kind, Type: typ}
}

func doubleRepeatForm() *metadata.Form {
	return &metadata.Form{
		ID:      "doubleRepeat",
		Version: "1.0",
		Fields: []metadata.Field{
			field(metadata.FieldGroup, "", "meta"),
			field(metadata.FieldLeaf, "string", "meta", "instanceID"),
			field(metadata.FieldLeaf, "string", "name"),
			field(metadata.FieldGroup, "", "children"),
			field(metadata.FieldRepeat, "", "children", "child"),
			field(metadata.FieldLeaf, "string", "children", "child", "name"),
			field(metadata.FieldGroup, "", "children", "child", "toys"),
			field(metadata.FieldRepeat, "", "children", "child", "toys", "toy"),
			field(metadata.FieldLeaf, "string", "children", "child", "toys", "toy", "name"),
		},
	}
}

func doubleSubmission(instanceID string, at time.Time) *submission.Submission {
	return &submission.Submission{
		InstanceID: instanceID,
		System: submission.System{
			SubmitterID:    5,
			SubmitterName:  "Alice",
			SubmissionDate: at,
			FormVersion:    "1.0",
		},
		Data: map[string]any{
			"meta": map[string]any{"instanceID": instanceID},
			"name": "Vick",
			"children": map[string]any{
				"child": []any{
					map[string]any{"name": "Alice"},
					map[string]any{"name": "Bob", "toys": map[string]any{"toy": []any{
						map[string]any{"name": "Twilight Sparkle"},
						map[string]any{"name": "Pinkie Pie"},
					}}},
					map[string]any{"name": "Chelsea", "toys": map[string]any{"toy": map[string]any{"name": "Rainbow Dash"}}},
				},
			},
		},
	}
}

func simpleForm() *metadata.Form {
	return &metadata.Form{
		ID:      "simple",
		Version: "1.0",
		Fields: []metadata.Field{
			field(metadata.FieldGroup, "", "meta"),
			field(metadata.FieldLeaf, "string", "meta", "instanceID"),
			field(metadata.FieldLeaf, "string", "name"),
			field(metadata.FieldLeaf, "int", "age"),
		},
	}
}

func simpleSubmission(instanceID string, submitter int64, at time.Time, name, age string) *submission.Submission {
	return &submission.Submission{
		InstanceID: instanceID,
		System:     submission.System{SubmitterID: submitter, SubmissionDate: at, FormVersion: "1.0"},
		Data: map[string]any{
			"meta": map[string]any{"instanceID": instanceID},
			"name": name,
			"age":  age,
		},
	}
}

func simpleSource() *source.Memory {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &source.Memory{
		Schema: simpleForm(),
		Entries: []*submission.Submission{
			simpleSubmission("one", 5, base, "Alice", "30"),
			simpleSubmission("two", 6, base.Add(time.Hour), "Bob", "34"),
			simpleSubmission("three", 5, base.Add(2*time.Hour), "Chelsea", "38"),
		},
	}
}

// serve runs one request against a handler mounted at the form's service root.
func serve(t *testing.T, h *FormHandler, formID, method, target string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	root := testOrigin + "/v1/projects/1/forms/" + formID + ".svc"
	req := httptest.NewRequest(method, root+target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	req = req.WithContext(WithServiceRoot(context.Background(), root))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

var _ http.Handler = (*FormHandler)(nil)
