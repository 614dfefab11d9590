// Package router assembles the admin HTTP surface: device session
// inventory, command issue/status/cancel, and the health snapshot.
package router

import (
	"net/http"
	"strings"

	"gt06gateway/internal/api/handler"
	"gt06gateway/internal/api/middleware"
	"gt06gateway/internal/command"
	"gt06gateway/internal/registry"
	"gt06gateway/internal/tcpserver"
)

// New builds the admin HTTP handler. jwtSecret may be empty only in
// test builds; an empty secret in production rejects every request
// since no caller can mint a signature the server also doesn't know.
func New(reg *registry.Registry, dispatcher *command.Dispatcher, srv *tcpserver.Server, jwtSecret string) http.Handler {
	sessions := handler.NewSessionsHandler(reg, srv)
	commands := handler.NewCommandsHandler(dispatcher)
	health := handler.NewHealthHandler(reg, srv)
	auth := middleware.NewAuthMiddleware(jwtSecret)

	mux := http.NewServeMux()

	withAuth := func(h http.HandlerFunc) http.Handler {
		return middleware.CORSMiddleware(
			middleware.LoggingMiddleware(
				auth.Authenticate(h),
			),
		)
	}

	mux.Handle("/health", middleware.CORSMiddleware(
		middleware.LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			health.Get(w, r)
		})),
	))

	mux.Handle("/api/v1/devices/health", withAuth(health.Get))

	mux.Handle("/api/v1/devices/sessions", withAuth(sessions.List))

	// /api/v1/devices/{imei}/session
	mux.Handle("/api/v1/devices/", withAuth(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
		segments := strings.Split(strings.Trim(rest, "/"), "/")
		if len(segments) != 2 || segments[1] != "session" || segments[0] == "" {
			http.NotFound(w, r)
			return
		}
		imei := segments[0]
		switch r.Method {
		case http.MethodGet:
			sessions.Get(w, r, imei)
		case http.MethodDelete:
			sessions.Disconnect(w, r, imei)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/api/v1/commands/engine/cut-off", withAuth(commands.EngineCutOff))
	mux.Handle("/api/v1/commands/engine/restore", withAuth(commands.EngineRestore))
	mux.Handle("/api/v1/commands/location/request", withAuth(commands.LocationRequest))
	mux.Handle("/api/v1/commands/reset", withAuth(commands.Reset))
	mux.Handle("/api/v1/commands/status/query", withAuth(commands.StatusQuery))
	mux.Handle("/api/v1/commands/timer/config", withAuth(commands.TimerConfig))
	mux.Handle("/api/v1/commands/server/config", withAuth(commands.ServerConfig))

	// /api/v1/commands/{command_id}/status and /api/v1/commands/{command_id}
	mux.Handle("/api/v1/commands/", withAuth(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/commands/"), "/")
		segments := strings.Split(rest, "/")
		switch len(segments) {
		case 1:
			if segments[0] == "" {
				http.NotFound(w, r)
				return
			}
			commands.Cancel(w, r, segments[0])
		case 2:
			if segments[1] != "status" {
				http.NotFound(w, r)
				return
			}
			commands.Status(w, r, segments[0])
		default:
			http.NotFound(w, r)
		}
	}))

	return mux
}
