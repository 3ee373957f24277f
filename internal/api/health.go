package api

import (
	"fmt"
	"net/http"
	"time"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// AgentsText is the discovery primer: enough of the API in plain text for
// an agent to start monitoring without reading anything else.
func (h *Handler) AgentsText(w http.ResponseWriter, r *http.Request) {
	base := h.baseURL()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, `Watchpost — uptime monitoring with an API-first workflow. No signup.

Create a monitor:

  curl -X POST %s/api/v1/monitors \
    -H 'Content-Type: application/json' \
    -d '{"name":"my api","monitor_type":"http","url":"https://example.com/health","interval_seconds":600}'

The response includes a manage_key, shown exactly once. Send it on writes
as 'Authorization: Bearer <key>' (also accepted: X-API-Key header, ?key=).

Monitor types: http, tcp (host:port), dns (hostname). Minimum interval 600s.

Core endpoints:
  POST   /api/v1/monitors                       create, returns manage_key
  POST   /api/v1/monitors/bulk                  create up to 50 at once
  GET    /api/v1/monitors                       list public monitors
  GET    /api/v1/monitors/{id}                  read one
  PATCH  /api/v1/monitors/{id}                  update           (manage key)
  DELETE /api/v1/monitors/{id}                  delete           (manage key)
  POST   /api/v1/monitors/{id}/pause|resume     pause control    (manage key)
  GET    /api/v1/monitors/{id}/heartbeats       check history, ?limit=&after=
  GET    /api/v1/monitors/{id}/incidents        outage history, ?limit=&after=
  GET    /api/v1/monitors/{id}/stats            uptime, ?period=24h|7d|30d
  POST   /api/v1/monitors/{id}/notifications    add webhook/email alerts (manage key)
  PUT    /api/v1/monitors/{id}/alert-rules      reminders and escalation (manage key)
  POST   /api/v1/monitors/{id}/maintenance      planned downtime (manage key)
  POST   /api/v1/incidents/{id}/acknowledge     take an incident (manage key)
  POST   /api/v1/status-pages                   public status page, returns manage_key
  GET    /api/v1/events                         live event stream (SSE)
  GET    /api/v1/ws                             live event stream (WebSocket)
  GET    /api/v1/badge/{id}/status              SVG badge for public monitors

Errors use {"error": "...", "code": "SCREAMING_SNAKE"}. Timestamps are UTC
ISO-8601. Creates are rate limited per IP.
`, base)
}
