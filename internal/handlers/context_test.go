package handlers

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithServiceRoot(t *testing.T) {
	ctx := WithServiceRoot(context.Background(), "http://example.com/forms/a.svc/")

	root, ok := ServiceRootFromContext(ctx)
	if !ok {
		t.Fatal("ServiceRootFromContext() ok = false, want true")
	}
	if root != "http://example.com/forms/a.svc" {
		t.Errorf("ServiceRootFromContext() = %q, want %q", root, "http://example.com/forms/a.svc")
	}
}

func TestServiceRootFromContext_EmptyContext(t *testing.T) {
	if root, ok := ServiceRootFromContext(context.Background()); ok {
		t.Errorf("ServiceRootFromContext() = %q, true, want false", root)
	}
	if _, ok := ServiceRootFromContext(WithServiceRoot(context.Background(), "")); ok {
		t.Error("ServiceRootFromContext() ok = true for an empty root, want false")
	}
}

func TestRequestOrigin(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{name: "plain", want: "http://example.com"},
		{name: "tls", setup: func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, want: "https://example.com"},
		{name: "forwarded", setup: func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") }, want: "https://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example.com/forms/a.svc", nil)
			r.TLS = nil
			if tt.setup != nil {
				tt.setup(r)
			}
			if got := RequestOrigin(r); got != tt.want {
				t.Errorf("RequestOrigin() = %q, want %q", got, tt.want)
			}
		})
	}
}
