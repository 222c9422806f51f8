package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Context keys for request-scoped values
type contextKey string

const (
	serviceRootKey contextKey = "odata_service_root"
)

// WithServiceRoot records the absolute URL the feed is mounted at, such as
// http://host/v1/projects/1/forms/simple.svc. Links in responses are built
// from it and the request path is resolved relative to it.
func WithServiceRoot(ctx context.Context, root string) context.Context {
	return context.WithValue(ctx, serviceRootKey, strings.TrimSuffix(root, "/"))
}

// ServiceRootFromContext returns the service root stored by WithServiceRoot.
func ServiceRootFromContext(ctx context.Context) (string, bool) {
	root, ok := ctx.Value(serviceRootKey).(string)
	return root, ok && root != ""
}

// splitServiceRoot returns the service root URL and the escaped request path
// relative to it, without a leading slash. Without a configured root the
// path up to the first segment ending in ".svc" is the root, or the request
// origin when there is none.
func splitServiceRoot(r *http.Request) (string, string) {
	escaped := r.URL.EscapedPath()
	root, ok := ServiceRootFromContext(r.Context())
	if !ok {
		origin := RequestOrigin(r)
		if end := serviceSegmentEnd(escaped); end >= 0 {
			return origin + escaped[:end], strings.TrimPrefix(escaped[end:], "/")
		}
		return origin, strings.TrimPrefix(escaped, "/")
	}
	if u, err := url.Parse(root); err == nil {
		rootPath := strings.TrimSuffix(u.EscapedPath(), "/")
		if rel, found := strings.CutPrefix(escaped, rootPath); found {
			return root, strings.TrimPrefix(rel, "/")
		}
	}
	return root, strings.TrimPrefix(escaped, "/")
}

// serviceSegmentEnd returns the end offset of the first path segment ending
// in ".svc", or -1.
func serviceSegmentEnd(path string) int {
	offset := 0
	for _, segment := range strings.SplitAfter(path, "/") {
		offset += len(segment)
		name := strings.TrimSuffix(segment, "/")
		if strings.HasSuffix(name, ".svc") {
			return offset - len(segment) + len(name)
		}
	}
	return -1
}

// RequestOrigin returns scheme://host of r, honoring X-Forwarded-Proto.
func RequestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
