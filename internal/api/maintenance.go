package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/storage"
	"github.com/watchpost/watchpost/internal/validate"
)

// CreateMaintenanceWindow schedules a window during which the monitor's
// failures are masked as maintenance instead of opening incidents.
func (h *Handler) CreateMaintenanceWindow(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	var win storage.MaintenanceWindow
	if !h.decode(w, r, &win) {
		return
	}
	win.MonitorID = m.ID

	if err := validate.ValidateMaintenanceWindow(&win); err != nil {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}

	if err := h.store.CreateMaintenanceWindow(r.Context(), &win); err != nil {
		h.logger.Error("create maintenance window", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to create maintenance window")
		return
	}

	h.logger.Info("maintenance window created", "window_id", win.ID, "monitor_id", m.ID,
		"starts_at", win.StartsAt, "ends_at", win.EndsAt)
	writeJSON(w, http.StatusCreated, &win)
}

func (h *Handler) ListMaintenanceWindows(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	windows, err := h.store.ListMaintenanceWindows(r.Context(), m.ID)
	if err != nil {
		h.logger.Error("list maintenance windows", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to list maintenance windows")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"maintenance_windows": windows})
}

func (h *Handler) DeleteMaintenanceWindow(w http.ResponseWriter, r *http.Request) {
	win, err := h.store.GetMaintenanceWindow(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, httputil.CodeNotFound, "maintenance window not found")
			return
		}
		h.logger.Error("get maintenance window", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to get maintenance window")
		return
	}

	m, err := h.store.GetMonitor(r.Context(), win.MonitorID)
	if err != nil {
		h.logger.Error("get window monitor", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to get maintenance window")
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	if err := h.store.DeleteMaintenanceWindow(r.Context(), win.ID); err != nil {
		h.logger.Error("delete maintenance window", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to delete maintenance window")
		return
	}

	h.logger.Info("maintenance window deleted", "window_id", win.ID, "monitor_id", m.ID)
	w.WriteHeader(http.StatusNoContent)
}
