package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/storage"
	"github.com/watchpost/watchpost/internal/validate"
)

// PutAlertRule sets the monitor's reminder and escalation cadence. The
// rule is a singleton per monitor; PUT replaces it wholesale.
func (h *Handler) PutAlertRule(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	var rule storage.AlertRule
	if !h.decode(w, r, &rule) {
		return
	}
	rule.MonitorID = m.ID

	if err := validate.ValidateAlertRule(&rule); err != nil {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}

	if err := h.store.PutAlertRule(r.Context(), &rule); err != nil {
		h.logger.Error("put alert rule", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to save alert rule")
		return
	}

	h.logger.Info("alert rule saved", "monitor_id", m.ID,
		"repeat_minutes", rule.RepeatIntervalMinutes, "escalation_minutes", rule.EscalationAfterMinutes)
	writeJSON(w, http.StatusOK, &rule)
}

func (h *Handler) GetAlertRule(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	rule, err := h.store.GetAlertRule(r.Context(), m.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, httputil.CodeNotFound, "no alert rule configured")
			return
		}
		h.logger.Error("get alert rule", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to get alert rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) DeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	if err := h.store.DeleteAlertRule(r.Context(), m.ID); err != nil {
		h.logger.Error("delete alert rule", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to delete alert rule")
		return
	}

	h.logger.Info("alert rule deleted", "monitor_id", m.ID)
	w.WriteHeader(http.StatusNoContent)
}
