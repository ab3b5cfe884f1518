package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return status
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	handler := NewHealthHandler(zap.NewNop())
	rec := httptest.NewRecorder()
	handler.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if status := decodeHealth(t, rec); status.Status != "healthy" {
		t.Fatalf("got %+v", status)
	}
}

func TestHandleReady_NoProbes(t *testing.T) {
	t.Parallel()

	handler := NewHealthHandler(zap.NewNop())
	rec := httptest.NewRecorder()
	handler.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestHandleReady_AllProbesPass(t *testing.T) {
	t.Parallel()

	handler := NewHealthHandler(zap.NewNop())
	handler.RegisterCheck(NewProbeFunc("identity_server", func(ctx context.Context) error { return nil }))
	handler.RegisterCheck(NewProbeFunc("audit_store", func(ctx context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	handler.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	status := decodeHealth(t, rec)
	if status.Status != "healthy" || len(status.Checks) != 2 {
		t.Fatalf("got %+v", status)
	}
	if status.Checks["identity_server"].Status != "pass" {
		t.Fatalf("got %+v", status.Checks)
	}
}

func TestHandleReady_FailingProbe(t *testing.T) {
	t.Parallel()

	handler := NewHealthHandler(zap.NewNop())
	handler.RegisterCheck(NewProbeFunc("identity_server", func(ctx context.Context) error { return nil }))
	handler.RegisterCheck(NewProbeFunc("audit_store", func(ctx context.Context) error {
		return errors.New("database is locked")
	}))

	rec := httptest.NewRecorder()
	handler.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d", rec.Code)
	}
	status := decodeHealth(t, rec)
	if status.Status != "unhealthy" {
		t.Fatalf("got %+v", status)
	}
	failed := status.Checks["audit_store"]
	if failed.Status != "fail" || failed.Message != "database is locked" {
		t.Fatalf("got %+v", failed)
	}
	// the healthy probe still reports
	if status.Checks["identity_server"].Status != "pass" {
		t.Fatalf("got %+v", status.Checks)
	}
}

func TestHandleReady_ProbeSeesDeadline(t *testing.T) {
	t.Parallel()

	handler := NewHealthHandler(zap.NewNop())
	handler.RegisterCheck(NewProbeFunc("deadline", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline set")
		}
		return nil
	}))

	rec := httptest.NewRecorder()
	handler.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("probes must run under a deadline: %s", rec.Body.String())
	}
}

func TestHandleVersion(t *testing.T) {
	t.Parallel()

	handler := NewHealthHandler(zap.NewNop())
	rec := httptest.NewRecorder()
	handler.HandleVersion("1.2.3", "2026-08-01", "abc123")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	data, _ := json.Marshal(resp.Data)
	var info map[string]string
	json.Unmarshal(data, &info)
	if info["version"] != "1.2.3" || info["git_commit"] != "abc123" {
		t.Fatalf("got %v", info)
	}
}
