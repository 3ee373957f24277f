package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/watchpost/watchpost/internal/httputil"
)

type acknowledgeRequest struct {
	Acknowledgement string `json:"acknowledgement"`
	AcknowledgedBy  string `json:"acknowledged_by"`
}

// AcknowledgeIncident records who is on the incident. Repeating the call
// overwrites the previous acknowledgement.
func (h *Handler) AcknowledgeIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.store.GetIncident(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, httputil.CodeNotFound, "incident not found")
			return
		}
		h.logger.Error("get incident", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to get incident")
		return
	}

	mon, err := h.store.GetMonitor(r.Context(), inc.MonitorID)
	if err != nil {
		h.logger.Error("get incident monitor", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to get incident")
		return
	}
	if !h.requireManage(w, r, mon) {
		return
	}
	if inc.ResolvedAt != nil {
		writeError(w, http.StatusConflict, httputil.CodeConflict, "incident is already resolved")
		return
	}

	var req acknowledgeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Acknowledgement == "" {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, "acknowledgement is required")
		return
	}

	if err := h.store.AcknowledgeIncident(r.Context(), inc.ID, req.Acknowledgement, req.AcknowledgedBy); err != nil {
		h.logger.Error("acknowledge incident", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to acknowledge incident")
		return
	}

	updated, err := h.store.GetIncident(r.Context(), inc.ID)
	if err != nil {
		h.logger.Error("reload incident", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to acknowledge incident")
		return
	}

	h.logger.Info("incident acknowledged", "incident_id", inc.ID, "monitor_id", mon.ID, "by", req.AcknowledgedBy)
	writeJSON(w, http.StatusOK, updated)
}
