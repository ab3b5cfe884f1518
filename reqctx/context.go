// Package reqctx carries per-request credential and tenant state on the
// request's context.Context. Each inbound request derives its own scope, so
// isolation between concurrent requests and cleanup at request end are both
// structural rather than managed.
package reqctx

import (
	"context"

	"github.com/veridion/orgagent/types"
)

// Scope is the per-request state every downstream tool call needs.
type Scope struct {
	// CredentialBlob is the base64 "clientId:clientSecret" string from the
	// inbound api-key header, kept opaque for Basic-auth pass-through.
	CredentialBlob string
	// Tenant is the organization the request operates on.
	Tenant string
}

type scopeKey struct{}

// With returns a context carrying the given scope.
func With(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext extracts the request scope. Reading outside a request scope is
// a programmer error and returns SCOPE_NOT_SET.
func FromContext(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok {
		return Scope{}, types.NewError(types.ErrScopeNotSet, "no request scope on context")
	}
	return s, nil
}

type requestIDKey struct{}

// WithRequestID attaches the inbound request's correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation ID, or "" when none was attached.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
