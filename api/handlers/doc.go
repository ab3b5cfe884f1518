// Package handlers implements the HTTP handlers: the chat endpoint,
// health and readiness probes, and the shared response envelope with
// its error-code to status mapping.
package handlers
