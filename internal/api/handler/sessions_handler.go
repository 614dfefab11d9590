package handler

import (
	"net/http"
	"time"

	"gt06gateway/internal/model"
	"gt06gateway/internal/registry"
)

// ConnectionCloser lets the handler force-disconnect a device's socket
// after its session record is removed from the registry.
type ConnectionCloser interface {
	CloseConnection(handle uint64)
}

// SessionsHandler serves the device session inventory: list, single
// lookup, and forced disconnect.
type SessionsHandler struct {
	registry *registry.Registry
	closer   ConnectionCloser
}

func NewSessionsHandler(reg *registry.Registry, closer ConnectionCloser) *SessionsHandler {
	return &SessionsHandler{registry: reg, closer: closer}
}

type sessionView struct {
	IMEI           string     `json:"imei"`
	SessionID      string     `json:"session_id"`
	Authenticated  bool       `json:"authenticated"`
	RemoteAddress  string     `json:"remote_address"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	LastLatitude   *float64   `json:"last_latitude,omitempty"`
	LastLongitude  *float64   `json:"last_longitude,omitempty"`
}

// List handles GET /api/v1/devices/sessions.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessions := h.registry.All()
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionView(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/devices/{imei}/session.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request, imei string) {
	if imei == "" {
		writeError(w, http.StatusBadRequest, "imei required")
		return
	}
	s, ok := h.registry.ByIMEI(imei)
	if !ok {
		writeError(w, http.StatusNotFound, "no session for imei")
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(s))
}

// Disconnect handles DELETE /api/v1/devices/{imei}/session.
func (h *SessionsHandler) Disconnect(w http.ResponseWriter, r *http.Request, imei string) {
	if imei == "" {
		writeError(w, http.StatusBadRequest, "imei required")
		return
	}
	s, ok := h.registry.RemoveByIMEI(imei)
	if !ok {
		writeError(w, http.StatusNotFound, "no session for imei")
		return
	}
	if h.closer != nil {
		h.closer.CloseConnection(s.ConnectionHandle)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"imei":      imei,
		"timestamp": time.Now(),
	})
}

func toSessionView(s *model.DeviceSession) sessionView {
	return sessionView{
		IMEI:           s.IMEI,
		SessionID:      s.SessionID,
		Authenticated:  s.Authenticated,
		RemoteAddress:  s.RemoteAddress,
		LastActivityAt: s.LastActivityAt,
		LastLatitude:   s.LastLatitude,
		LastLongitude:  s.LastLongitude,
	}
}
