// Package handlers serves the OData feed of one form: the service document,
// the metadata document and the entity set collections.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"

	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/observability"
	"github.com/nlstn/go-odata-forms/internal/response"
	"github.com/nlstn/go-odata-forms/internal/source"
)

// SchemaCompiler turns a form into its compiled schema. Implementations may
// cache results by form fingerprint.
type SchemaCompiler func(ctx context.Context, form *metadata.Form) (*metadata.Schema, error)

// CompileSchema compiles form without caching, using the default namespace.
func CompileSchema(_ context.Context, form *metadata.Form) (*metadata.Schema, error) {
	return metadata.NewSchema(form, metadata.DefaultNamespacePrefix)
}

// FormHandler serves the feed of a single form source.
type FormHandler struct {
	source        source.Source
	compile       SchemaCompiler
	logger        *slog.Logger
	observability *observability.Config
	defaultMaxTop *int
	wkt           bool
}

// NewFormHandler creates a handler for src. A nil compile uses CompileSchema.
func NewFormHandler(src source.Source, compile SchemaCompiler) *FormHandler {
	if compile == nil {
		compile = CompileSchema
	}
	return &FormHandler{
		source:  src,
		compile: compile,
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the handler. A nil logger restores slog.Default().
func (h *FormHandler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	h.logger = logger
}

// SetObservability configures tracing and metrics for the handler.
func (h *FormHandler) SetObservability(cfg *observability.Config) {
	h.observability = cfg
}

// SetDefaultMaxTop sets the page size applied when a request has no $top.
// A nil value leaves collections unpaged.
func (h *FormHandler) SetDefaultMaxTop(top *int) {
	h.defaultMaxTop = top
}

// SetDefaultWKT makes WKT the geo rendering for requests without $wkt.
func (h *FormHandler) SetDefaultWKT(enabled bool) {
	h.wkt = enabled
}

// ServeHTTP implements http.Handler.
func (h *FormHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	root, rel := splitServiceRoot(r)
	operation := operationFor(rel)

	ctx, span := h.observability.Tracer().StartRequest(r.Context(), operation, root)
	defer span.End()
	r = r.WithContext(ctx)

	m := httpsnoop.CaptureMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, root, rel)
	}), w, r)
	h.observability.Metrics().RecordRequest(ctx, operation, m.Code, m.Duration)
	if m.Code >= http.StatusInternalServerError {
		observability.RecordError(span, fmt.Errorf("%s %s: status %d", r.Method, r.URL.Path, m.Code))
	}
}

func (h *FormHandler) serve(w http.ResponseWriter, r *http.Request, root, rel string) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		w.Header().Set(response.HeaderAllow, "GET, HEAD, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	default:
		w.Header().Set(response.HeaderAllow, "GET, HEAD, OPTIONS")
		if err := response.WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported by this read-only feed", r.Method)); err != nil {
			h.logger.Error("Error writing error response", "error", err)
		}
		return
	}

	switch rel {
	case "":
		h.handleServiceDocument(w, r, root)
	case response.MetadataSegment:
		h.handleMetadata(w, r)
	default:
		h.handleCollection(w, r, root, rel)
	}
}

// loadSchema fetches and compiles the source's form.
func (h *FormHandler) loadSchema(ctx context.Context) (*metadata.Schema, error) {
	form, err := h.source.Form(ctx)
	if err != nil {
		return nil, err
	}
	schema, err := h.compile(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("failed to compile form %q: %w", form.ID, err)
	}
	return schema, nil
}

func operationFor(rel string) string {
	switch rel {
	case "":
		return "service_document"
	case response.MetadataSegment:
		return "metadata"
	default:
		return "collection"
	}
}
