// Package query parses the OData system query options a form feed accepts.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/nlstn/go-odata-forms/internal/filter"
	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/problem"
)

// QueryOptions is the validated plan for one collection request.
type QueryOptions struct {
	Select *Selection     // nil selects every property
	Filter *filter.Filter // nil matches every submission
	Top    *int
	Skip   int
	Count  bool
	WKT    bool // render geo values as WKT strings instead of GeoJSON

	// RequestedTop is the client's $top when server-driven paging lowered Top.
	RequestedTop *int
}

const (
	optionSelect = "$select"
	optionFilter = "$filter"
	optionTop    = "$top"
	optionSkip   = "$skip"
	optionCount  = "$count"
	optionWKT    = "$wkt"
	optionFormat = "$format"
)

var supportedOptions = map[string]bool{
	optionSelect: true,
	optionFilter: true,
	optionTop:    true,
	optionSkip:   true,
	optionCount:  true,
	optionWKT:    true,
	optionFormat: true,
}

// ParseRawQuery decodes a raw query string.
func ParseRawQuery(raw string) (url.Values, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, problem.UnsupportedQuery("query string", "%v", err)
	}
	return values, nil
}

// ParseQueryOptions validates params against entity and returns the plan.
// Any invalid option fails the whole parse.
func ParseQueryOptions(params url.Values, entity *metadata.EntityMetadata) (*QueryOptions, error) {
	for key, values := range params {
		if !strings.HasPrefix(key, "$") {
			continue
		}
		if !supportedOptions[key] {
			return nil, problem.UnsupportedQuery(key, "the query option is not supported")
		}
		if len(values) > 1 {
			return nil, problem.UnsupportedQuery(key, "the query option may only be given once")
		}
	}

	options := &QueryOptions{}

	if raw, ok := single(params, optionSelect); ok {
		selection, err := ParseSelect(raw, entity)
		if err != nil {
			return nil, err
		}
		options.Select = selection
	}

	if raw, ok := single(params, optionFilter); ok {
		f, err := filter.Parse(raw)
		if err != nil {
			return nil, problem.UnsupportedQuery(optionFilter, "%v", err)
		}
		options.Filter = f
	}

	if raw, ok := single(params, optionTop); ok {
		top, err := parseNonNegative(optionTop, raw)
		if err != nil {
			return nil, err
		}
		options.Top = &top
	}

	if raw, ok := single(params, optionSkip); ok {
		skip, err := parseNonNegative(optionSkip, raw)
		if err != nil {
			return nil, err
		}
		options.Skip = skip
	}

	if raw, ok := single(params, optionCount); ok {
		count, err := parseBool(optionCount, raw)
		if err != nil {
			return nil, err
		}
		options.Count = count
	}

	if raw, ok := single(params, optionWKT); ok {
		wkt, err := parseBool(optionWKT, raw)
		if err != nil {
			return nil, err
		}
		options.WKT = wkt
	}

	if raw, ok := single(params, optionFormat); ok {
		format := strings.ToLower(strings.TrimSpace(raw))
		if format != "json" && !strings.HasPrefix(format, "application/json") {
			return nil, problem.UnsupportedQuery(optionFormat, "only json is supported")
		}
	}

	return options, nil
}

func single(params url.Values, key string) (string, bool) {
	values, ok := params[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func parseNonNegative(option, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, problem.UnsupportedQuery(option, "expected a non-negative integer, got '%s'", raw)
	}
	return n, nil
}

func parseBool(option, raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, problem.UnsupportedQuery(option, "expected true or false, got '%s'", raw)
}
