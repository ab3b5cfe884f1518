package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/veridion/orgagent/auth"
	"github.com/veridion/orgagent/reqctx"
	"go.uber.org/zap"
)

// newExecutorFixture wires an APIExecutor against one httptest server that
// serves both the token endpoint and the API itself.
func newExecutorFixture(t *testing.T, api http.HandlerFunc) (*APIExecutor, context.Context) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
			w.Write([]byte(`{"access_token":"tok"}`))
			return
		}
		api(w, r)
	}))
	t.Cleanup(srv.Close)

	tokens := auth.NewTokenClient(auth.TokenClientConfig{BaseURL: srv.URL}, zap.NewNop())
	exec := NewAPIExecutor(APIExecutorConfig{BaseURL: srv.URL}, tokens, zap.NewNop())
	ctx := reqctx.With(context.Background(), reqctx.Scope{CredentialBlob: "blob", Tenant: "acme"})
	return exec, ctx
}

func TestAPIExecutor_Execute_GET(t *testing.T) {
	t.Parallel()

	exec, ctx := newExecutorFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme/api/server/v1/applications" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("expected limit=5, got %q", got)
		}
		w.Write([]byte(`{"totalResults":0,"applications":[]}`))
	})

	obs := exec.Execute(ctx, `{"method":"GET","path":"/api/server/v1/applications","query_params":{"limit":5}}`)
	if !strings.Contains(obs, `"totalResults": 0`) {
		t.Fatalf("expected pretty-printed JSON, got %q", obs)
	}
}

func TestAPIExecutor_Execute_PathParams(t *testing.T) {
	t.Parallel()

	exec, ctx := newExecutorFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme/scim2/Users/u-42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"u-42"}`))
	})

	obs := exec.Execute(ctx, `{"method":"GET","path":"/scim2/Users/{userId}","path_params":{"userId":"u-42"}}`)
	if !strings.Contains(obs, `"u-42"`) {
		t.Fatalf("got %q", obs)
	}
}

func TestAPIExecutor_Execute_NoContent(t *testing.T) {
	t.Parallel()

	exec, ctx := newExecutorFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	obs := exec.Execute(ctx, `{"method":"DELETE","path":"/api/server/v1/applications/a1"}`)
	want := "Success: DELETE on '/api/server/v1/applications/a1' completed with HTTP 204 No Content."
	if obs != want {
		t.Fatalf("got %q, want %q", obs, want)
	}
}

func TestAPIExecutor_Execute_HTTPFailure(t *testing.T) {
	t.Parallel()

	exec, ctx := newExecutorFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"description":"forbidden"}`))
	})

	obs := exec.Execute(ctx, `{"method":"GET","path":"/api/server/v1/applications"}`)
	if !strings.HasPrefix(obs, "API Request Failed: HTTP 403") {
		t.Fatalf("got %q", obs)
	}
	if !strings.Contains(obs, "--- Response Body ---") || !strings.Contains(obs, "forbidden") {
		t.Fatalf("failure observation missing body: %q", obs)
	}
}

func TestAPIExecutor_Execute_ConnectionError(t *testing.T) {
	t.Parallel()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok"}`))
	}))
	t.Cleanup(tokenSrv.Close)

	// A closed server guarantees a connection error on the API call itself,
	// after the token exchange succeeded.
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	apiSrv.Close()

	tokens := auth.NewTokenClient(auth.TokenClientConfig{BaseURL: tokenSrv.URL}, zap.NewNop())
	exec := NewAPIExecutor(APIExecutorConfig{BaseURL: apiSrv.URL}, tokens, zap.NewNop())
	ctx := reqctx.With(context.Background(), reqctx.Scope{CredentialBlob: "blob", Tenant: "acme"})

	obs := exec.Execute(ctx, `{"method":"GET","path":"/api/server/v1/applications"}`)
	if !strings.HasPrefix(obs, "API Request Failed: Connection or request error -") {
		t.Fatalf("got %q", obs)
	}
}

func TestAPIExecutor_Execute_BadInput(t *testing.T) {
	t.Parallel()

	exec, ctx := newExecutorFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	obs := exec.Execute(ctx, `not json at all`)
	if !strings.HasPrefix(obs, "Error: Input was not a valid JSON string:") {
		t.Fatalf("got %q", obs)
	}

	obs = exec.Execute(ctx, `{"path":"/x"}`)
	if !strings.HasPrefix(obs, "Error: Invalid content in JSON details: missing 'method' or 'path'.") {
		t.Fatalf("got %q", obs)
	}
}

func TestAPIExecutor_Execute_NoScope(t *testing.T) {
	t.Parallel()

	exec, _ := newExecutorFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	obs := exec.Execute(context.Background(), `{"method":"GET","path":"/x"}`)
	if obs != "Error: no request scope available." {
		t.Fatalf("got %q", obs)
	}
}

func TestAPIExecutor_Execute_TokenFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	tokens := auth.NewTokenClient(auth.TokenClientConfig{BaseURL: srv.URL}, zap.NewNop())
	exec := NewAPIExecutor(APIExecutorConfig{BaseURL: srv.URL}, tokens, zap.NewNop())
	ctx := reqctx.With(context.Background(), reqctx.Scope{CredentialBlob: "bad", Tenant: "acme"})

	obs := exec.Execute(ctx, `{"method":"GET","path":"/x"}`)
	if !strings.HasPrefix(obs, "Error: could not obtain API token -") {
		t.Fatalf("got %q", obs)
	}
}

func TestAPIExecutor_Tool(t *testing.T) {
	t.Parallel()

	exec, ctx := newExecutorFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	fn, meta := exec.Tool()
	if meta.Schema.Name != ExecutorToolName {
		t.Fatalf("got schema name %q", meta.Schema.Name)
	}

	args, _ := json.Marshal(map[string]string{
		"api_call_details_json": `{"method":"DELETE","path":"/api/server/v1/applications/a1"}`,
	})
	out, err := fn(ctx, args)
	if err != nil {
		t.Fatalf("tool failed: %v", err)
	}
	var obs string
	if err := json.Unmarshal(out, &obs); err != nil {
		t.Fatalf("observation must be a JSON string: %v", err)
	}
	if !strings.HasPrefix(obs, "Success: DELETE") {
		t.Fatalf("got %q", obs)
	}
}

// Every supplied path parameter with a matching placeholder is substituted;
// placeholders without values survive untouched.
func TestSubstitutePathParams_Properties(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	keyGen := gen.RegexMatch(`[a-zA-Z][a-zA-Z0-9]{0,10}`)
	valGen := gen.RegexMatch(`[a-zA-Z0-9-]{1,12}`)

	properties.Property("substitutes matching placeholders", prop.ForAll(
		func(key, value string) bool {
			path := fmt.Sprintf("/api/server/v1/things/{%s}", key)
			got := substitutePathParams(path, map[string]any{key: value}, zap.NewNop())
			return got == "/api/server/v1/things/"+value
		},
		keyGen, valGen,
	))

	properties.Property("ignores keys without placeholders", prop.ForAll(
		func(key, value string) bool {
			path := "/api/server/v1/things"
			got := substitutePathParams(path, map[string]any{key: value}, zap.NewNop())
			return got == path
		},
		keyGen, valGen,
	))

	properties.TestingRun(t)
}
