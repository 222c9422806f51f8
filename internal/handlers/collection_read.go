package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/nlstn/go-odata-forms/internal/flatten"
	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/observability"
	"github.com/nlstn/go-odata-forms/internal/preference"
	"github.com/nlstn/go-odata-forms/internal/problem"
	"github.com/nlstn/go-odata-forms/internal/query"
	"github.com/nlstn/go-odata-forms/internal/response"
	"github.com/nlstn/go-odata-forms/internal/source"
	"github.com/nlstn/go-odata-forms/internal/submission"
)

func (h *FormHandler) handleCollection(w http.ResponseWriter, r *http.Request, root, rel string) {
	schema, err := h.loadSchema(r.Context())
	if err != nil {
		h.writeProblem(w, r, err)
		return
	}
	path, err := parseResourcePath(schema, rel)
	if err != nil {
		h.writeProblem(w, r, err)
		return
	}

	pref := preference.ParsePrefer(r)
	var params url.Values

	h.executeCollectionQuery(w, r, &collectionExecutionContext{
		Metadata: path.Target(),
		ParseQueryOptions: func() (*query.QueryOptions, error) {
			var err error
			params, err = query.ParseRawQuery(r.URL.RawQuery)
			if err != nil {
				return nil, err
			}
			return h.parseCollectionQueryOptions(params, path.Target(), pref)
		},
		FetchFunc:     h.fetchRows(r.Context(), path),
		CountFunc:     collectionCount,
		NextLinkFunc:  h.collectionNextLinkFunc(root, path, &params),
		WriteResponse: h.collectionResponseWriter(w, r, root, path.Target(), pref),
	})
}

func (h *FormHandler) parseCollectionQueryOptions(params url.Values, entity *metadata.EntityMetadata, pref *preference.Preference) (*query.QueryOptions, error) {
	queryOptions, err := query.ParseQueryOptions(params, entity)
	if err != nil {
		return nil, err
	}
	if _, explicit := params["$wkt"]; !explicit {
		queryOptions.WKT = h.wkt
	}

	if pref.MaxPageSize != nil {
		queryOptions = h.applyMaxPageSize(queryOptions, *pref.MaxPageSize)
	}

	// Apply default max top if no explicit $top is set
	return h.applyDefaultMaxTop(queryOptions), nil
}

// applyMaxPageSize caps the page at maxPageSize. A larger client $top is kept
// in RequestedTop so next links carry the rest of it.
func (h *FormHandler) applyMaxPageSize(queryOptions *query.QueryOptions, maxPageSize int) *query.QueryOptions {
	if queryOptions.Top != nil && *queryOptions.Top > maxPageSize {
		queryOptions.RequestedTop = queryOptions.Top
	}
	if queryOptions.Top == nil || *queryOptions.Top > maxPageSize {
		queryOptions.Top = &maxPageSize
	}
	return queryOptions
}

// applyDefaultMaxTop applies the default max top limit if no explicit $top is set
func (h *FormHandler) applyDefaultMaxTop(queryOptions *query.QueryOptions) *query.QueryOptions {
	if queryOptions.Top == nil && h.defaultMaxTop != nil {
		top := *h.defaultMaxTop
		queryOptions.Top = &top
	}
	return queryOptions
}

// fetchRows loads the submissions the path can reach and flattens them into
// the rows of its target set, newest submission first. Keys along the path
// must exist; $filter then narrows the submissions.
func (h *FormHandler) fetchRows(ctx context.Context, path *resourcePath) func(*query.QueryOptions) ([]flatten.Row, error) {
	return func(queryOptions *query.QueryOptions) ([]flatten.Row, error) {
		target := path.Target()
		ctx, span := h.observability.Tracer().StartFetch(ctx, target.EntitySetName, queryOptions.Filter.String())
		defer span.End()
		timing := observability.StartServerTimingWithDesc(ctx, "fetch", "Load submissions")
		defer timing.Stop()

		req := source.Request{Filter: queryOptions.Filter}
		rootKey := path.RootKey()
		if rootKey != "" {
			req = source.Request{InstanceID: rootKey}
		}
		subs, err := h.source.Submissions(ctx, req)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}

		if rootKey != "" {
			subs = withInstanceID(subs, rootKey)
			if len(subs) == 0 {
				return nil, problem.UnknownEntityPath(path.steps[0].Name + response.KeySegment(rootKey))
			}
			for _, step := range path.keyedSteps() {
				if !rowExists(subs, step) {
					return nil, problem.UnknownEntityPath(step.Name + response.KeySegment(step.Key))
				}
			}
		}

		source.SortNewestFirst(subs)
		matched := subs[:0:0]
		for _, sub := range subs {
			if queryOptions.Filter.Match(&sub.System) {
				matched = append(matched, sub)
			}
		}

		rows := flatten.FlattenAll(matched, target)
		for _, step := range path.keyedSteps() {
			rows = withKey(rows, step)
		}
		span.SetAttributes(observability.AttrRowCount.Int(len(rows)))
		h.logger.Debug("Fetched rows", "entity_set", target.EntitySetName, "submissions", len(matched), "rows", len(rows))
		return rows, nil
	}
}

func withInstanceID(subs []*submission.Submission, instanceID string) []*submission.Submission {
	out := subs[:0:0]
	for _, sub := range subs {
		if sub.InstanceID == instanceID {
			out = append(out, sub)
		}
	}
	return out
}

func depth(entity *metadata.EntityMetadata) int {
	return len(entity.Ancestors()) - 1
}

func withKey(rows []flatten.Row, step pathStep) []flatten.Row {
	d := depth(step.Entity)
	out := rows[:0:0]
	for _, row := range rows {
		if len(row.Keys) > d && row.Keys[d] == step.Key {
			out = append(out, row)
		}
	}
	return out
}

func rowExists(subs []*submission.Submission, step pathStep) bool {
	return len(withKey(flatten.FlattenAll(subs, step.Entity), step)) > 0
}

func collectionCount(queryOptions *query.QueryOptions, rows []flatten.Row) (*int64, error) {
	if !queryOptions.Count {
		return nil, nil
	}
	count := int64(len(rows))
	return &count, nil
}

func (h *FormHandler) collectionNextLinkFunc(root string, path *resourcePath, params *url.Values) func(*query.QueryOptions, []flatten.Row) (*string, []flatten.Row, error) {
	return func(queryOptions *query.QueryOptions, rows []flatten.Row) (*string, []flatten.Row, error) {
		start, end, more := query.Window(len(rows), queryOptions.Skip, queryOptions.Top)
		page := rows[start:end]
		var nextTop *int
		if queryOptions.RequestedTop != nil {
			remaining := *queryOptions.RequestedTop - len(page)
			if remaining <= 0 {
				return nil, page, nil
			}
			nextTop = &remaining
		}
		if !more {
			return nil, page, nil
		}
		resourceURL := root + "/" + response.EscapeQuotes(response.EntityPath(path.Segments()...))
		next := response.BuildNextLink(resourceURL, *params, end, nextTop)
		return &next, page, nil
	}
}

func (h *FormHandler) collectionResponseWriter(w http.ResponseWriter, r *http.Request, root string, entity *metadata.EntityMetadata, pref *preference.Preference) func(*query.QueryOptions, []flatten.Row, *int64, *string) error {
	return func(queryOptions *query.QueryOptions, rows []flatten.Row, count *int64, nextLink *string) error {
		if applied := pref.Applied(); applied != "" {
			w.Header().Set(preference.HeaderPreferenceApplied, applied)
		}
		timing := observability.StartServerTiming(r.Context(), "shape")
		shapeOptions := flatten.ShapeOptions{
			Select: queryOptions.Select,
			WKT:    queryOptions.WKT,
			Link:   navigationLink,
		}
		value := make([]any, len(rows))
		for i, row := range rows {
			value[i] = flatten.Shape(row, shapeOptions)
		}
		timing.Stop()

		h.observability.Metrics().RecordRows(r.Context(), entity.EntitySetName, len(rows))
		trace.SpanFromContext(r.Context()).SetAttributes(observability.AttrEntitySet.String(entity.EntitySetName))

		return response.WriteCollection(w, r, &response.Collection{
			Context:  response.ContextURL(root, entity.EntitySetName),
			NextLink: nextLink,
			Count:    count,
			Value:    value,
		})
	}
}

// navigationLink returns the relative URL of the child rows of row, such as
// Submissions('k')/children/child('id')/toys/toy.
func navigationLink(row flatten.Row, child *metadata.EntityMetadata) string {
	chain := row.Entity.Ancestors()
	segments := make([]response.PathSegment, 0, len(chain)+1)
	for i, entity := range chain {
		name := entity.EntitySetName
		if i > 0 {
			name = strings.Join(entity.NavigationPath, "/")
		}
		segments = append(segments, response.PathSegment{Name: name, Key: row.Keys[i]})
	}
	segments = append(segments, response.PathSegment{Name: strings.Join(child.NavigationPath, "/")})
	return response.EntityPath(segments...)
}
