package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/metrics"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	admin := s.api.RequireAdmin

	mux.HandleFunc("GET /api/v1/health", s.api.Health)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /agents.txt", s.api.AgentsText)

	mux.HandleFunc("POST /api/v1/monitors", s.api.CreateMonitor)
	mux.HandleFunc("POST /api/v1/monitors/bulk", s.api.BulkCreateMonitors)
	mux.HandleFunc("GET /api/v1/monitors", s.api.ListMonitors)
	mux.HandleFunc("GET /api/v1/monitors/{id}", s.api.GetMonitor)
	mux.HandleFunc("PATCH /api/v1/monitors/{id}", s.api.UpdateMonitor)
	mux.HandleFunc("DELETE /api/v1/monitors/{id}", s.api.DeleteMonitor)
	mux.HandleFunc("POST /api/v1/monitors/{id}/pause", s.api.PauseMonitor)
	mux.HandleFunc("POST /api/v1/monitors/{id}/resume", s.api.ResumeMonitor)
	mux.HandleFunc("GET /api/v1/monitors/{id}/heartbeats", s.api.ListHeartbeats)
	mux.HandleFunc("GET /api/v1/monitors/{id}/incidents", s.api.ListMonitorIncidents)
	mux.HandleFunc("GET /api/v1/monitors/{id}/stats", s.api.MonitorStats)
	mux.HandleFunc("GET /api/v1/monitors/{id}/deliveries", s.api.ListDeliveries)

	mux.HandleFunc("POST /api/v1/incidents/{id}/acknowledge", s.api.AcknowledgeIncident)

	mux.HandleFunc("POST /api/v1/monitors/{id}/notifications", s.api.CreateNotificationChannel)
	mux.HandleFunc("GET /api/v1/monitors/{id}/notifications", s.api.ListNotificationChannels)
	mux.HandleFunc("PATCH /api/v1/notifications/{id}", s.api.UpdateNotificationChannel)
	mux.HandleFunc("DELETE /api/v1/notifications/{id}", s.api.DeleteNotificationChannel)
	mux.HandleFunc("POST /api/v1/notifications/{id}/test", s.api.TestNotificationChannel)

	mux.HandleFunc("PUT /api/v1/monitors/{id}/alert-rules", s.api.PutAlertRule)
	mux.HandleFunc("GET /api/v1/monitors/{id}/alert-rules", s.api.GetAlertRule)
	mux.HandleFunc("DELETE /api/v1/monitors/{id}/alert-rules", s.api.DeleteAlertRule)

	mux.HandleFunc("POST /api/v1/monitors/{id}/maintenance", s.api.CreateMaintenanceWindow)
	mux.HandleFunc("GET /api/v1/monitors/{id}/maintenance", s.api.ListMaintenanceWindows)
	mux.HandleFunc("DELETE /api/v1/maintenance/{id}", s.api.DeleteMaintenanceWindow)

	mux.HandleFunc("POST /api/v1/monitors/{id}/dependencies", s.api.AddDependency)
	mux.HandleFunc("GET /api/v1/monitors/{id}/dependencies", s.api.ListDependencies)
	mux.HandleFunc("DELETE /api/v1/monitors/{id}/dependencies/{depID}", s.api.RemoveDependency)
	mux.HandleFunc("GET /api/v1/monitors/{id}/dependents", s.api.ListDependents)

	mux.HandleFunc("POST /api/v1/locations", admin(s.api.CreateLocation))
	mux.HandleFunc("GET /api/v1/locations", admin(s.api.ListLocations))
	mux.HandleFunc("DELETE /api/v1/locations/{id}", admin(s.api.DeleteLocation))

	mux.HandleFunc("POST /api/v1/probe", s.api.SubmitProbeResults)

	mux.HandleFunc("GET /api/v1/events", s.api.StreamEvents)
	mux.HandleFunc("GET /api/v1/monitors/{id}/events", s.api.StreamMonitorEvents)
	mux.HandleFunc("GET /api/v1/ws", s.api.StreamWS)

	mux.HandleFunc("POST /api/v1/status-pages", s.api.CreateStatusPage)
	mux.HandleFunc("GET /api/v1/status-pages/{slug}", s.api.GetStatusPage)
	mux.HandleFunc("PATCH /api/v1/status-pages/{slug}", s.api.UpdateStatusPage)
	mux.HandleFunc("DELETE /api/v1/status-pages/{slug}", s.api.DeleteStatusPage)

	mux.HandleFunc("GET /api/v1/badge/{id}/status", s.api.StatusBadge)
	mux.HandleFunc("GET /api/v1/badge/{id}/uptime", s.api.UptimeBadge)

	if s.cfg.Server.StaticDir != "" {
		mux.Handle("GET /", spaHandler(s.cfg.Server.StaticDir))
	}
}

// spaHandler serves the built frontend: real files as-is, anything else
// falls back to index.html so client-side routes resolve after a reload.
func spaHandler(dir string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "not found")
			return
		}
		name := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
		if name != "" {
			if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	})
}
