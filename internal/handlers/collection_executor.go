package handlers

import (
	"net/http"

	"github.com/nlstn/go-odata-forms/internal/flatten"
	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/problem"
	"github.com/nlstn/go-odata-forms/internal/query"
	"github.com/nlstn/go-odata-forms/internal/response"
)

// Error codes for failures that are not feed problems.
const (
	ErrCodeInternal         = "500.1"
	ErrCodeMethodNotAllowed = "405.1"
)

// collectionExecutionContext provides the phases of a collection read: parsing
// query options, loading the matching rows, counting them, cutting the page
// with its next link and writing the envelope.
type collectionExecutionContext struct {
	Metadata *metadata.EntityMetadata

	ParseQueryOptions func() (*query.QueryOptions, error)
	FetchFunc         func(*query.QueryOptions) ([]flatten.Row, error)
	CountFunc         func(*query.QueryOptions, []flatten.Row) (*int64, error)
	NextLinkFunc      func(*query.QueryOptions, []flatten.Row) (*string, []flatten.Row, error)
	WriteResponse     func(*query.QueryOptions, []flatten.Row, *int64, *string) error
}

func (h *FormHandler) executeCollectionQuery(w http.ResponseWriter, r *http.Request, ctx *collectionExecutionContext) {
	if ctx == nil || ctx.ParseQueryOptions == nil || ctx.FetchFunc == nil || ctx.WriteResponse == nil {
		h.logger.Error("executeCollectionQuery: missing required callbacks - this is a programming error")
		if err := response.WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "An internal error occurred."); err != nil {
			h.logger.Error("Error writing error response", "error", err)
		}
		return
	}

	queryOptions, err := ctx.ParseQueryOptions()
	if !h.handleCollectionError(w, r, err) {
		return
	}

	rows, err := ctx.FetchFunc(queryOptions)
	if !h.handleCollectionError(w, r, err) {
		return
	}

	var totalCount *int64
	if ctx.CountFunc != nil {
		totalCount, err = ctx.CountFunc(queryOptions, rows)
		if !h.handleCollectionError(w, r, err) {
			return
		}
	}

	var nextLink *string
	if ctx.NextLinkFunc != nil {
		nextLink, rows, err = ctx.NextLinkFunc(queryOptions, rows)
		if !h.handleCollectionError(w, r, err) {
			return
		}
	}

	h.handleCollectionError(w, r, ctx.WriteResponse(queryOptions, rows, totalCount, nextLink))
}

// handleCollectionError writes err to the client and reports whether the
// pipeline may continue.
func (h *FormHandler) handleCollectionError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return true
	}

	if _, ok := problem.As(err); !ok {
		h.logger.Error("Error serving collection", "path", r.URL.Path, "error", err)
	}
	if writeErr := response.WriteProblem(w, r, err); writeErr != nil {
		h.logger.Error("Error writing error response", "error", writeErr)
	}
	return false
}
