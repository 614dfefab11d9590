package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gt06gateway/internal/registry"
)

type fakeCloser struct {
	closedHandle uint64
	calls        int
}

func (f *fakeCloser) CloseConnection(handle uint64) {
	f.closedHandle = handle
	f.calls++
}

func TestSessionsHandler_List(t *testing.T) {
	reg := registry.New(registry.Config{}, nil, nil, nil)
	if _, err := reg.CreateOrRebind("351011123456789", "10.0.0.1:1", 1); err != nil {
		t.Fatalf("CreateOrRebind: %v", err)
	}
	h := NewSessionsHandler(reg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/sessions", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var out []sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].IMEI != "351011123456789" {
		t.Fatalf("unexpected sessions list: %+v", out)
	}
}

func TestSessionsHandler_GetUnknownIMEI(t *testing.T) {
	reg := registry.New(registry.Config{}, nil, nil, nil)
	h := NewSessionsHandler(reg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/000000000000000/session", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req, "000000000000000")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}

func TestSessionsHandler_Disconnect_ClosesConnection(t *testing.T) {
	reg := registry.New(registry.Config{}, nil, nil, nil)
	if _, err := reg.CreateOrRebind("351011123456789", "10.0.0.1:1", 42); err != nil {
		t.Fatalf("CreateOrRebind: %v", err)
	}
	closer := &fakeCloser{}
	h := NewSessionsHandler(reg, closer)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/devices/351011123456789/session", nil)
	rec := httptest.NewRecorder()
	h.Disconnect(rec, req, "351011123456789")

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if closer.calls != 1 || closer.closedHandle != 42 {
		t.Fatalf("expected closer invoked with handle 42, got calls=%d handle=%d", closer.calls, closer.closedHandle)
	}
	if _, ok := reg.ByIMEI("351011123456789"); ok {
		t.Fatal("expected session removed from registry")
	}
}

func TestSessionsHandler_Disconnect_UnknownIMEI(t *testing.T) {
	reg := registry.New(registry.Config{}, nil, nil, nil)
	closer := &fakeCloser{}
	h := NewSessionsHandler(reg, closer)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/devices/000000000000000/session", nil)
	rec := httptest.NewRecorder()
	h.Disconnect(rec, req, "000000000000000")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
	if closer.calls != 0 {
		t.Fatal("expected closer not invoked for unknown imei")
	}
}
