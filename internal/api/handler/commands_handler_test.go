package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gt06gateway/internal/command"
	"gt06gateway/internal/registry"
)

type fakeWriter struct {
	lastHandle uint64
	lastData   []byte
	err        error
}

func (f *fakeWriter) Write(handle uint64, data []byte) error {
	f.lastHandle = handle
	f.lastData = data
	return f.err
}

func newTestCommandsHandler(t *testing.T) (*CommandsHandler, *registry.Registry, *fakeWriter) {
	t.Helper()
	reg := registry.New(registry.Config{}, nil, nil, nil)
	writer := &fakeWriter{}
	dispatcher := command.New(reg, writer, nil)
	return NewCommandsHandler(dispatcher), reg, writer
}

func TestCommandsHandler_EngineCutOff_DeviceNotConnected(t *testing.T) {
	h, _, _ := newTestCommandsHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands/engine/cut-off?deviceId=351011123456789", nil)
	rec := httptest.NewRecorder()
	h.EngineCutOff(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200 (envelope-only failure contract)", rec.Code)
	}
	var resp commandIssueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success {
		t.Fatal("expected success=false for a device with no active session")
	}
}

func TestCommandsHandler_EngineCutOff_MissingDeviceID(t *testing.T) {
	h, _, _ := newTestCommandsHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands/engine/cut-off", nil)
	rec := httptest.NewRecorder()
	h.EngineCutOff(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var resp commandIssueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success {
		t.Fatal("expected success=false when deviceId is missing")
	}
}

func TestCommandsHandler_EngineCutOff_Success(t *testing.T) {
	h, reg, writer := newTestCommandsHandler(t)
	if _, err := reg.CreateOrRebind("351011123456789", "10.0.0.1:1", 7); err != nil {
		t.Fatalf("CreateOrRebind: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands/engine/cut-off?deviceId=351011123456789", nil)
	rec := httptest.NewRecorder()
	h.EngineCutOff(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var resp commandIssueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.CommandID == "" {
		t.Fatalf("expected successful issue with a command id, got %+v", resp)
	}
	if writer.lastHandle != 7 {
		t.Fatalf("expected frame written to handle 7, got %d", writer.lastHandle)
	}
}

func TestCommandsHandler_Status_UnknownCommandID(t *testing.T) {
	h, _, _ := newTestCommandsHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/commands/does-not-exist/status", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req, "does-not-exist")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}

func TestCommandsHandler_CancelThenStatus(t *testing.T) {
	h, reg, _ := newTestCommandsHandler(t)
	if _, err := reg.CreateOrRebind("351011123456789", "10.0.0.1:1", 7); err != nil {
		t.Fatalf("CreateOrRebind: %v", err)
	}

	issueReq := httptest.NewRequest(http.MethodPost, "/api/v1/commands/engine/cut-off?deviceId=351011123456789", nil)
	issueRec := httptest.NewRecorder()
	h.EngineCutOff(issueRec, issueReq)
	var issued commandIssueResponse
	if err := json.Unmarshal(issueRec.Body.Bytes(), &issued); err != nil {
		t.Fatalf("decode issue response: %v", err)
	}

	cancelReq := httptest.NewRequest(http.MethodDelete, "/api/v1/commands/"+issued.CommandID, nil)
	cancelRec := httptest.NewRecorder()
	h.Cancel(cancelRec, cancelReq, issued.CommandID)

	// The command was already SENT (the fake writer accepts every write),
	// so cancellation of a non-pending command fails with an envelope error.
	var cancelled commandIssueResponse
	if err := json.Unmarshal(cancelRec.Body.Bytes(), &cancelled); err != nil {
		t.Fatalf("decode cancel response: %v", err)
	}
	if cancelled.Success {
		t.Fatal("expected cancel of an already-SENT command to fail")
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/api/v1/commands/"+issued.CommandID+"/status", nil)
	statusRec := httptest.NewRecorder()
	h.Status(statusRec, statusReq, issued.CommandID)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", statusRec.Code)
	}
}
