package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veridion/orgagent/reqctx"
	"go.uber.org/zap"
)

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var trace []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				trace = append(trace, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace = append(trace, "handler")
	}), tag("outer"), tag("inner"))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"outer", "inner", "handler"}
	if len(trace) != len(want) {
		t.Fatalf("got %v", trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("got %v, want %v", trace, want)
		}
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestRequestID_Generates(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = reqctx.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatalf("request ID not propagated to context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Fatalf("header %q does not match context %q", got, seen)
	}
}

func TestRequestID_PreservesClientID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = reqctx.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "client-supplied" {
		t.Fatalf("got %q", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Fatalf("got header %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	handler := SecurityHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("got %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("got %q", got)
	}
	if rec.Header().Get("Referrer-Policy") == "" {
		t.Fatalf("missing referrer policy")
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"/chat", "/chat"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/api/server/v1/applications", "/api/server/v1/applications"},
		{"/api/server/v1/applications/3fa85f64-5717-4562-b3fc-2c963f66afa6", "/api/server/v1/applications/:id"},
		{"/api/server/v1/applications/12345", "/api/server/v1/applications/:id"},
		{"/scim2/Users/deadbeef01", "/scim2/Users/:id"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 1, 1, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.RemoteAddr = "10.0.0.1:12345"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d", second.Code)
	}
	if !strings.Contains(second.Body.String(), "RATE_LIMITED") {
		t.Fatalf("got body %q", second.Body.String())
	}

	// a different client gets its own bucket
	other := httptest.NewRequest(http.MethodGet, "/chat", nil)
	other.RemoteAddr = "10.0.0.2:12345"
	third := httptest.NewRecorder()
	handler.ServeHTTP(third, other)
	if third.Code != http.StatusOK {
		t.Fatalf("got %d", third.Code)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 0, 0, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d limited with rps 0", i)
		}
	}
}
