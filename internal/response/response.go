// Package response writes OData JSON envelopes, error documents and the
// URLs embedded in them.
package response

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	HeaderContentType  = "Content-Type"
	HeaderODataVersion = "OData-Version"
	HeaderETag         = "ETag"
	HeaderIfNoneMatch  = "If-None-Match"
	HeaderAllow        = "Allow"

	ODataVersion        = "4.0"
	ContentTypeJSON     = "application/json; charset=utf-8; odata.metadata=minimal"
	ContentTypeMetadata = "text/xml; charset=utf-8"
	ContentTypeXMLError = "text/xml; charset=utf-8"

	MetadataSegment = "$metadata"
)

// Collection is the JSON envelope of an entity set response.
type Collection struct {
	Context  string  `json:"@odata.context"`
	NextLink *string `json:"@odata.nextLink,omitempty"`
	Count    *int64  `json:"@odata.count,omitempty"`
	Value    []any   `json:"value"`
}

// SetODataHeaders sets the headers shared by every JSON response.
func SetODataHeaders(w http.ResponseWriter) {
	w.Header().Set(HeaderODataVersion, ODataVersion)
	w.Header().Set(HeaderContentType, ContentTypeJSON)
}

// WriteJSON writes body with the OData JSON headers. HEAD requests get the
// headers only.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, body any) error {
	data, err := marshal(body)
	if err != nil {
		return err
	}
	SetODataHeaders(w)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(status)
	if r != nil && r.Method == http.MethodHead {
		return nil
	}
	_, err = w.Write(data)
	return err
}

// WriteCollection writes a collection envelope with status 200.
func WriteCollection(w http.ResponseWriter, r *http.Request, c *Collection) error {
	if c.Value == nil {
		c.Value = []any{}
	}
	return WriteJSON(w, r, http.StatusOK, c)
}

// ContextURL returns the @odata.context of an entity set.
func ContextURL(serviceRoot, entitySet string) string {
	return MetadataURL(serviceRoot) + "#" + entitySet
}

// MetadataURL returns the URL of the metadata document.
func MetadataURL(serviceRoot string) string {
	return strings.TrimSuffix(serviceRoot, "/") + "/" + MetadataSegment
}

// BuildNextLink returns resourceURL with the request's query options, except
// $top and $skip, plus $skip=nextSkip and, when nextTop is set, $top=nextTop.
// Parameters are sorted by name.
func BuildNextLink(resourceURL string, params url.Values, nextSkip int, nextTop *int) string {
	next := url.Values{}
	for name, values := range params {
		if name == "$top" || name == "$skip" {
			continue
		}
		next[name] = append([]string(nil), values...)
	}
	next.Set("$skip", strconv.Itoa(nextSkip))
	if nextTop != nil {
		next.Set("$top", strconv.Itoa(*nextTop))
	}
	return resourceURL + "?" + next.Encode()
}

// marshal encodes v without HTML escaping so links keep their literal '&'.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
