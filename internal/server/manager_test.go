package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = ":0" // pick a free port
	cfg.ShutdownTimeout = 2 * time.Second

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	return NewManager(handler, cfg, zap.NewNop())
}

func TestManager_StartAndServe(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.Shutdown(context.Background())

	if !m.IsRunning() {
		t.Fatalf("expected running")
	}

	url := "http://" + m.listener.Addr().String() + "/"
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("got %d %q", resp.StatusCode, body)
	}
}

func TestManager_DoubleStart(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.Shutdown(context.Background())

	if err := m.Start(); err == nil {
		t.Fatalf("second start must fail")
	}
}

func TestManager_Shutdown(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	addr := m.listener.Addr().String()

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if m.IsRunning() {
		t.Fatalf("expected stopped")
	}

	// the listener is released
	if _, err := http.Get("http://" + addr + "/"); err == nil {
		t.Fatalf("expected connection failure after shutdown")
	}

	// idempotent
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown failed: %v", err)
	}

	// closed servers do not restart
	if err := m.Start(); err == nil {
		t.Fatalf("start after shutdown must fail")
	}
}

func TestManager_ListenFailure(t *testing.T) {
	t.Parallel()

	first := newTestManager(t)
	if err := first.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer first.Shutdown(context.Background())

	cfg := DefaultConfig()
	cfg.Addr = first.listener.Addr().String() // already taken
	second := NewManager(http.NewServeMux(), cfg, zap.NewNop())
	if err := second.Start(); err == nil {
		second.Shutdown(context.Background())
		t.Fatalf("expected listen failure on an occupied port")
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Addr != ":8080" {
		t.Fatalf("got addr %q", cfg.Addr)
	}
	if cfg.MaxHeaderBytes != 1<<20 {
		t.Fatalf("got max header bytes %d", cfg.MaxHeaderBytes)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Fatalf("got shutdown timeout %v", cfg.ShutdownTimeout)
	}
}
