package handlers

import (
	"net/http"
	"strings"

	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/problem"
	"github.com/nlstn/go-odata-forms/internal/response"
)

func (h *FormHandler) handleServiceDocument(w http.ResponseWriter, r *http.Request, root string) {
	schema, err := h.loadSchema(r.Context())
	if err != nil {
		h.writeProblem(w, r, err)
		return
	}
	if err := response.WriteJSON(w, r, http.StatusOK, metadata.BuildServiceDocument(schema, root)); err != nil {
		h.logger.Error("Error writing service document", "error", err)
	}
}

func (h *FormHandler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	schema, err := h.loadSchema(r.Context())
	if err != nil {
		if _, ok := problem.As(err); !ok {
			h.logger.Error("Error loading schema", "error", err)
		}
		if writeErr := response.WriteXMLProblem(w, r, err); writeErr != nil {
			h.logger.Error("Error writing error response", "error", writeErr)
		}
		return
	}

	etag := schema.ETag()
	w.Header().Set(response.HeaderETag, etag)
	w.Header().Set(response.HeaderODataVersion, response.ODataVersion)
	if etagMatches(r.Header.Get(response.HeaderIfNoneMatch), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	document, err := metadata.BuildCSDL(schema)
	if err != nil {
		h.logger.Error("Error building metadata document", "error", err)
		if writeErr := response.WriteXMLProblem(w, r, err); writeErr != nil {
			h.logger.Error("Error writing error response", "error", writeErr)
		}
		return
	}

	w.Header().Set(response.HeaderContentType, response.ContentTypeMetadata)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(document); err != nil {
		h.logger.Error("Error writing metadata document", "error", err)
	}
}

// etagMatches evaluates an If-None-Match header against etag.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// writeProblem writes err as a JSON error, logging errors that are not
// client-facing problems.
func (h *FormHandler) writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := problem.As(err); !ok {
		h.logger.Error("Error serving request", "path", r.URL.Path, "error", err)
	}
	if writeErr := response.WriteProblem(w, r, err); writeErr != nil {
		h.logger.Error("Error writing error response", "error", writeErr)
	}
}
