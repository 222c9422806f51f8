// Package problem holds the error kinds the feed reports to clients.
package problem

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a feed error.
type Kind int

const (
	// KindSchemaUnavailable means no schema exists for the requested form or draft.
	KindSchemaUnavailable Kind = iota + 1
	// KindUnsupportedQuery means a query option could not be parsed or is not allowed.
	KindUnsupportedQuery
	// KindUnknownEntityPath means the resource path names a set or key that does not exist.
	KindUnknownEntityPath
)

// Error is a client-facing feed error.
type Error struct {
	Kind     Kind
	Fragment string // offending query fragment, for KindUnsupportedQuery
	Message  string
}

func (e *Error) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status code for the error kind.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindUnsupportedQuery:
		return http.StatusBadRequest
	default:
		return http.StatusNotFound
	}
}

// Code returns the detailed error code reported in error bodies.
func (e *Error) Code() string {
	switch e.Kind {
	case KindUnsupportedQuery:
		return "400.18"
	default:
		return "404.1"
	}
}

// ErrSchemaUnavailable is returned by form sources that have no schema to offer.
var ErrSchemaUnavailable = &Error{
	Kind:    KindSchemaUnavailable,
	Message: "Could not find the resource you were looking for.",
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrSchemaUnavailable)
// holds for every schema-unavailable error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Fragment == "" || t.Fragment == e.Fragment)
}

// UnsupportedQuery reports a query fragment that cannot be served.
func UnsupportedQuery(fragment string, format string, args ...any) *Error {
	return &Error{
		Kind:     KindUnsupportedQuery,
		Fragment: fragment,
		Message:  fmt.Sprintf("The given query option %s could not be processed: %s", fragment, fmt.Sprintf(format, args...)),
	}
}

// UnknownEntityPath reports a resource path that resolves to nothing.
func UnknownEntityPath(path string) *Error {
	return &Error{
		Kind:     KindUnknownEntityPath,
		Fragment: path,
		Message:  "Could not find the resource you were looking for.",
	}
}

// As extracts a *Error from err.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
