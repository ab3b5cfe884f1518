// Package openapi fetches and reshapes OpenAPI documents for planning. The
// documents are kept as generic mappings; the planner consumes them whole, so
// no schema model is needed.
package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Document is a parsed OpenAPI document.
type Document map[string]any

// Loader fetches OpenAPI documents over HTTP.
type Loader struct {
	client *http.Client
	logger *zap.Logger
}

// NewLoader creates a document loader with a bounded fetch timeout.
func NewLoader(timeout time.Duration, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Loader{
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "openapi_loader")),
	}
}

// Load fetches the document at url and decodes it, trying YAML first and
// falling back to JSON. The result must be a mapping.
func (l *Loader) Load(ctx context.Context, url string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build spec request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch spec from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch spec from %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read spec body: %w", err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse spec from %s: %w", url, err)
	}

	l.logger.Info("loaded API document",
		zap.String("url", url),
		zap.Int("paths", len(doc.Paths())),
	)
	return doc, nil
}

// Parse decodes raw bytes as YAML, then as JSON.
func Parse(data []byte) (Document, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err == nil && doc != nil {
		return normalize(doc), nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document is neither valid YAML nor JSON: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document did not decode to a mapping")
	}
	return Document(doc), nil
}

// Paths returns the paths mapping, or nil if absent.
func (d Document) Paths() map[string]any {
	if p, ok := d["paths"].(map[string]any); ok {
		return p
	}
	return nil
}

// Rewrite prepares a document for planning against a gateway-style API:
// the servers block is dropped (the caller supplies the base URL) and every
// path key gains the given prefix, e.g. /applications -> /api/server/v1/applications.
func Rewrite(doc Document, prefix string) Document {
	delete(doc, "servers")

	paths := doc.Paths()
	if paths == nil || prefix == "" {
		return doc
	}

	rewritten := make(map[string]any, len(paths))
	for path, item := range paths {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		rewritten[prefix+path] = item
	}
	doc["paths"] = rewritten
	return doc
}

// normalize converts yaml.v3's map[string]any trees so that nested maps keyed
// by interface{} (produced for non-string YAML keys) become string-keyed and
// JSON-marshalable.
func normalize(v map[string]any) Document {
	out := make(Document, len(v))
	for k, val := range v {
		out[k] = normalizeValue(val)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalizeValue(val)
		}
		return m
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = normalizeValue(val)
		}
		return s
	default:
		return v
	}
}
