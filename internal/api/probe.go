package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/storage"
	"github.com/watchpost/watchpost/internal/validate"
)

type probeResult struct {
	MonitorID      string     `json:"monitor_id"`
	Status         string     `json:"status"`
	ResponseTimeMs int64      `json:"response_time_ms"`
	StatusCode     *int       `json:"status_code,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CheckedAt      *time.Time `json:"checked_at,omitempty"`
}

type probeRequest struct {
	Results []probeResult `json:"results"`
}

type probeError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type probeResponse struct {
	Accepted int          `json:"accepted"`
	Rejected int          `json:"rejected"`
	Errors   []probeError `json:"errors"`
}

// SubmitProbeResults ingests a batch of remote check outcomes. Each result
// runs through the same status engine as a local check, tagged with the
// submitting location. Submitted timestamps are recorded verbatim.
func (h *Handler) SubmitProbeResults(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.locationFromKey(w, r)
	if !ok {
		return
	}

	var req probeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Results) == 0 {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, "results must not be empty")
		return
	}
	if len(req.Results) > validate.MaxProbeResults {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation,
			fmt.Sprintf("a probe submission is capped at %d results", validate.MaxProbeResults))
		return
	}

	resp := probeResponse{Errors: []probeError{}}
	for i, res := range req.Results {
		if err := h.applyProbeResult(r, loc, res); err != nil {
			resp.Errors = append(resp.Errors, probeError{Index: i, Error: err.Error()})
			continue
		}
		resp.Accepted++
	}
	resp.Rejected = len(resp.Errors)

	if err := h.store.TouchLocation(r.Context(), loc.ID, time.Now().UTC()); err != nil {
		h.logger.Error("touch location", "location_id", loc.ID, "error", err)
	}

	h.logger.Info("probe results applied", "location_id", loc.ID, "location", loc.Name,
		"accepted", resp.Accepted, "rejected", resp.Rejected)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) applyProbeResult(r *http.Request, loc *storage.CheckLocation, res probeResult) error {
	if res.MonitorID == "" {
		return errors.New("monitor_id is required")
	}
	if !validate.ValidHeartbeatStatus(res.Status) {
		return fmt.Errorf("status must be up, down or degraded, got %q", res.Status)
	}
	if res.ResponseTimeMs < 0 {
		return errors.New("response_time_ms must not be negative")
	}

	checkedAt := time.Now().UTC()
	if res.CheckedAt != nil {
		checkedAt = res.CheckedAt.UTC()
	}

	hb := &storage.Heartbeat{
		MonitorID:      res.MonitorID,
		LocationID:     &loc.ID,
		Status:         res.Status,
		ResponseTimeMs: res.ResponseTimeMs,
		StatusCode:     res.StatusCode,
		ErrorMessage:   res.ErrorMessage,
		CheckedAt:      checkedAt,
	}
	if _, err := h.pipeline.Apply(r.Context(), hb); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.New("monitor not found")
		}
		h.logger.Error("apply probe heartbeat", "monitor_id", res.MonitorID, "error", err)
		return errors.New("failed to record heartbeat")
	}
	return nil
}
