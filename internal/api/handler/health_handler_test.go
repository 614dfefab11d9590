package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gt06gateway/internal/registry"
)

func TestHealthHandler_Get_NoServerWired(t *testing.T) {
	reg := registry.New(registry.Config{}, nil, nil, nil)
	if _, err := reg.CreateOrRebind("351011123456789", "10.0.0.1:1", 1); err != nil {
		t.Fatalf("CreateOrRebind: %v", err)
	}
	if _, err := reg.CreateOrRebind("222222222222222", "10.0.0.2:1", 2); err != nil {
		t.Fatalf("CreateOrRebind: %v", err)
	}

	h := NewHealthHandler(reg, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/health", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("got status %q, want ok", resp.Status)
	}
	if resp.AuthenticatedSessions != 2 {
		t.Fatalf("got authenticated_sessions %d, want 2", resp.AuthenticatedSessions)
	}
	if resp.TotalConnections != 0 || resp.ShardConnections != nil {
		t.Fatalf("expected no server-sourced diagnostics without a wired server, got %+v", resp)
	}
}

func TestHealthHandler_Get_RejectsNonGet(t *testing.T) {
	reg := registry.New(registry.Config{}, nil, nil, nil)
	h := NewHealthHandler(reg, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/health", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("got status %d, want 405", rec.Code)
	}
}
