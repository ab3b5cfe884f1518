package openapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

const yamlSpec = `
openapi: 3.0.1
info:
  title: Application Management API
servers:
  - url: https://api.example.io/t/{tenant}/api/server/v1
paths:
  /applications:
    get:
      summary: List applications
  /applications/{applicationId}:
    delete:
      summary: Delete an application
`

func TestParse_YAML(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(yamlSpec))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	paths := doc.Paths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if _, ok := paths["/applications"]; !ok {
		t.Fatalf("missing /applications path")
	}
}

func TestParse_JSON(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(`{"openapi":"3.0.1","paths":{"/Users":{"get":{}}}}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, ok := doc.Paths()["/Users"]; !ok {
		t.Fatalf("missing /Users path")
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("\t{ not valid")); err == nil {
		t.Fatalf("expected error for malformed document")
	}
}

func TestRewrite(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(yamlSpec))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	doc = Rewrite(doc, "/api/server/v1")

	if _, ok := doc["servers"]; ok {
		t.Fatalf("servers block should be dropped")
	}
	paths := doc.Paths()
	if _, ok := paths["/api/server/v1/applications"]; !ok {
		t.Fatalf("path was not prefixed: %v", paths)
	}
	if _, ok := paths["/api/server/v1/applications/{applicationId}"]; !ok {
		t.Fatalf("parameterized path was not prefixed: %v", paths)
	}
	if _, ok := paths["/applications"]; ok {
		t.Fatalf("original path key should be gone")
	}
}

func TestRewrite_EmptyPrefix(t *testing.T) {
	t.Parallel()

	doc, _ := Parse([]byte(yamlSpec))
	doc = Rewrite(doc, "")
	if _, ok := doc.Paths()["/applications"]; !ok {
		t.Fatalf("paths should be untouched with an empty prefix")
	}
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(yamlSpec))
	}))
	defer srv.Close()

	loader := NewLoader(0, zap.NewNop())
	doc, err := loader.Load(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(doc.Paths()) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(doc.Paths()))
	}
}

func TestLoader_Load_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	loader := NewLoader(0, zap.NewNop())
	if _, err := loader.Load(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 404 response")
	}
}
