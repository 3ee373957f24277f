package api

import (
	"net/http"
	"time"

	"github.com/watchpost/watchpost/internal/analytics"
	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/storage"
)

// ListHeartbeats pages a monitor's heartbeat history by seq cursor.
func (h *Handler) ListHeartbeats(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}

	hbs, err := h.store.ListHeartbeats(r.Context(), m.ID, httputil.ParseCursor(r))
	if err != nil {
		h.logger.Error("list heartbeats", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to list heartbeats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"heartbeats": hbs})
}

// ListMonitorIncidents pages a monitor's incident history by seq cursor.
func (h *Handler) ListMonitorIncidents(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}

	incidents, err := h.store.ListIncidents(r.Context(), m.ID, httputil.ParseCursor(r))
	if err != nil {
		h.logger.Error("list incidents", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to list incidents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

// ListDeliveries exposes the webhook delivery audit to the monitor owner.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	deliveries, err := h.store.ListWebhookDeliveries(r.Context(), m.ID, httputil.ParseCursor(r))
	if err != nil {
		h.logger.Error("list deliveries", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to list deliveries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": deliveries})
}

type slaStatus struct {
	Target     float64 `json:"target"`
	PeriodDays int     `json:"period_days"`
	UptimePct  float64 `json:"uptime_pct"`
	Met        bool    `json:"met"`
}

type statsResponse struct {
	MonitorID string                    `json:"monitor_id"`
	Period    string                    `json:"period"`
	From      time.Time                 `json:"from"`
	To        time.Time                 `json:"to"`
	Stats     *analytics.MonitorMetrics `json:"stats"`
	Daily     []*storage.DailyUptime    `json:"daily"`
	SLA       slaStatus                 `json:"sla"`
}

// MonitorStats aggregates uptime over ?period=24h|7d|30d and reports the
// SLA verdict over the monitor's configured SLA window.
func (h *Handler) MonitorStats(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "24h"
	}
	var window time.Duration
	switch period {
	case "24h":
		window = 24 * time.Hour
	case "7d":
		window = 7 * 24 * time.Hour
	case "30d":
		window = 30 * 24 * time.Hour
	default:
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, "period must be one of: 24h, 7d, 30d")
		return
	}

	now := time.Now().UTC()
	from := now.Add(-window)

	stats, err := analytics.ComputeMetrics(r.Context(), h.store, m.ID, from, now)
	if err != nil {
		h.logger.Error("uptime stats", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to compute stats")
		return
	}
	daily, err := h.store.GetDailyUptime(r.Context(), m.ID, from, now)
	if err != nil {
		h.logger.Error("daily uptime", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to compute stats")
		return
	}

	slaFrom := now.Add(-time.Duration(m.SLAPeriodDays) * 24 * time.Hour)
	slaStats, err := h.store.GetUptimeStats(r.Context(), m.ID, slaFrom, now)
	if err != nil {
		h.logger.Error("sla stats", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		MonitorID: m.ID,
		Period:    period,
		From:      from,
		To:        now,
		Stats:     stats,
		Daily:     daily,
		SLA: slaStatus{
			Target:     m.SLATarget,
			PeriodDays: m.SLAPeriodDays,
			UptimePct:  slaStats.UptimePct,
			Met:        slaStats.UptimePct >= m.SLATarget,
		},
	})
}
