package handler

import (
	"net/http"
	"time"

	"github.com/montanaflynn/stats"

	"gt06gateway/internal/registry"
	"gt06gateway/internal/tcpserver"
)

// HealthHandler serves the aggregate device-population health snapshot.
type HealthHandler struct {
	registry *registry.Registry
	server   *tcpserver.Server
}

func NewHealthHandler(reg *registry.Registry, srv *tcpserver.Server) *HealthHandler {
	return &HealthHandler{registry: reg, server: srv}
}

type healthResponse struct {
	Status               string  `json:"status"`
	ActiveSessions       int     `json:"active_sessions"`
	AuthenticatedSessions int    `json:"authenticated_sessions"`
	Timestamp            time.Time `json:"timestamp"`

	TotalConnections int     `json:"total_connections,omitempty"`
	IdleP50Seconds   float64 `json:"idle_p50_seconds,omitempty"`
	IdleP95Seconds   float64 `json:"idle_p95_seconds,omitempty"`
	ShardConnections []int64 `json:"shard_connections,omitempty"`
}

// Get handles GET /api/v1/devices/health.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := h.registry.StatsSnapshot()
	now := time.Now()

	resp := healthResponse{
		Status:                "ok",
		ActiveSessions:        snap.Active,
		AuthenticatedSessions: snap.Authenticated,
		Timestamp:             now,
	}

	idleSeconds := make([]float64, 0, len(h.registry.All()))
	for _, s := range h.registry.All() {
		idleSeconds = append(idleSeconds, now.Sub(s.LastActivityAt).Seconds())
	}
	if p50, err := stats.Percentile(idleSeconds, 50); err == nil {
		resp.IdleP50Seconds = p50
	}
	if p95, err := stats.Percentile(idleSeconds, 95); err == nil {
		resp.IdleP95Seconds = p95
	}

	if h.server != nil {
		resp.TotalConnections = h.server.ConnectionCount()
		resp.ShardConnections = h.server.ShardSnapshot()
	}

	writeJSON(w, http.StatusOK, resp)
}
