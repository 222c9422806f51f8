package response

import (
	"bytes"
	"encoding/xml"
	"errors"
	"net/http"
	"strconv"

	"github.com/nlstn/go-odata-forms/internal/problem"
)

// ErrorBody is the JSON error document.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the problem code and messages.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a JSON error document.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) error {
	return WriteJSON(w, r, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// WriteProblem writes err as a JSON error document. Errors that are not
// problems become 500 responses that do not leak the underlying message.
func WriteProblem(w http.ResponseWriter, r *http.Request, err error) error {
	status, detail := problemDetail(err)
	return WriteJSON(w, r, status, ErrorBody{Error: detail})
}

// WriteXMLProblem writes err as the XML error document used by $metadata.
func WriteXMLProblem(w http.ResponseWriter, r *http.Request, err error) error {
	status, detail := problemDetail(err)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<error code=\"")
	if err := xml.EscapeText(&buf, []byte(detail.Code)); err != nil {
		return err
	}
	buf.WriteString("\">\n  <message>")
	if err := xml.EscapeText(&buf, []byte(detail.Message)); err != nil {
		return err
	}
	buf.WriteString("</message>\n  <details>")
	if err := xml.EscapeText(&buf, []byte(detail.Details)); err != nil {
		return err
	}
	buf.WriteString("</details>\n</error>")

	w.Header().Set(HeaderContentType, ContentTypeXMLError)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if r != nil && r.Method == http.MethodHead {
		return nil
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func problemDetail(err error) (int, ErrorDetail) {
	var p *problem.Error
	if errors.As(err, &p) {
		return p.StatusCode(), ErrorDetail{Code: p.Code(), Message: p.Message}
	}
	return http.StatusInternalServerError, ErrorDetail{
		Code:    "500.1",
		Message: "An internal error occurred.",
	}
}
