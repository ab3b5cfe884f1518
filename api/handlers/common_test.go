package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veridion/orgagent/types"
	"go.uber.org/zap"
)

func TestWriteSuccess(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"hello": "world"})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("got content type %q", ct)
	}
	resp := decodeEnvelope(t, rec)
	if !resp.Success || resp.Error != nil {
		t.Fatalf("got %+v", resp)
	}
	if resp.Timestamp.IsZero() {
		t.Fatalf("timestamp not set")
	}
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	err := types.NewError(types.ErrRateLimited, "slow down")
	err.Retryable = true
	WriteError(rec, err, zap.NewNop())

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Success {
		t.Fatalf("error responses must not be success")
	}
	if resp.Error.Code != "RATE_LIMITED" || resp.Error.Message != "slow down" || !resp.Error.Retryable {
		t.Fatalf("got %+v", resp.Error)
	}
}

func TestWriteError_ExplicitStatusWins(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	err := types.NewError(types.ErrInvalidRequest, "nope").WithHTTPStatus(http.StatusTeapot)
	WriteError(rec, err, zap.NewNop())

	if rec.Code != http.StatusTeapot {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrToolValidation, http.StatusBadRequest},
		{types.ErrBadPlan, http.StatusBadRequest},
		{types.ErrBadEncoding, http.StatusUnauthorized},
		{types.ErrBadFormat, http.StatusUnauthorized},
		{types.ErrAuthentication, http.StatusUnauthorized},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrTokenHTTPStatus, http.StatusBadGateway},
		{types.ErrTokenMissing, http.StatusBadGateway},
		{types.ErrTokenNetwork, http.StatusBadGateway},
		{types.ErrTokenBadResponse, http.StatusBadGateway},
		{types.ErrUpstreamError, http.StatusBadGateway},
		{types.ErrScopeNotSet, http.StatusInternalServerError},
		{types.ErrPlanParseFailure, http.StatusInternalServerError},
		{types.ErrPlanNoMatch, http.StatusInternalServerError},
		{types.ErrInternalError, http.StatusInternalServerError},
		{types.ErrorCode("SOMETHING_NEW"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapErrorCodeToHTTPStatus(tt.code); got != tt.want {
			t.Errorf("mapErrorCodeToHTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestDecodeJSONBody(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
		rec := httptest.NewRecorder()
		var p payload
		if err := DecodeJSONBody(rec, req, &p, zap.NewNop()); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if p.Name != "x" {
			t.Fatalf("got %+v", p)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","bogus":1}`))
		rec := httptest.NewRecorder()
		var p payload
		if err := DecodeJSONBody(rec, req, &p, zap.NewNop()); err == nil {
			t.Fatalf("expected error")
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("got status %d", rec.Code)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{{{`))
		rec := httptest.NewRecorder()
		var p payload
		if err := DecodeJSONBody(rec, req, &p, zap.NewNop()); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestValidateContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		ok          bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"text/plain", false},
		{"", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		rec := httptest.NewRecorder()
		if got := ValidateContentType(rec, req, zap.NewNop()); got != tt.ok {
			t.Errorf("ValidateContentType(%q) = %v, want %v", tt.contentType, got, tt.ok)
		}
	}
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError) // second call ignored
	rw.Write([]byte("ok"))

	if rw.StatusCode != http.StatusAccepted {
		t.Fatalf("got %d", rw.StatusCode)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestResponseWriter_DefaultsToOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	rw.Write([]byte("ok"))

	if rw.StatusCode != http.StatusOK || !rw.Written {
		t.Fatalf("got %+v", rw)
	}
}

func TestResponseEnvelope_OmitsEmptyFields(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"k": "v"})

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["error"]; ok {
		t.Fatalf("success envelope must omit the error field")
	}
}
