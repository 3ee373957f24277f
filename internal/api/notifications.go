package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/storage"
	"github.com/watchpost/watchpost/internal/validate"
)

// CreateNotificationChannel attaches a webhook or email channel to a
// monitor. Channels default to enabled.
func (h *Handler) CreateNotificationChannel(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	ch := storage.NotificationChannel{IsEnabled: true}
	if !h.decode(w, r, &ch) {
		return
	}
	ch.MonitorID = m.ID

	if err := validate.ValidateNotificationChannel(&ch); err != nil {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}

	if err := h.store.CreateNotificationChannel(r.Context(), &ch); err != nil {
		h.logger.Error("create notification channel", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to create channel")
		return
	}

	h.logger.Info("notification channel created", "channel_id", ch.ID, "monitor_id", m.ID, "type", ch.Type)
	writeJSON(w, http.StatusCreated, &ch)
}

func (h *Handler) ListNotificationChannels(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	channels, err := h.store.ListMonitorChannels(r.Context(), m.ID)
	if err != nil {
		h.logger.Error("list notification channels", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to list channels")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

// channelFromPath loads the channel addressed by {id} together with its
// monitor, which the caller needs for the manage check.
func (h *Handler) channelFromPath(w http.ResponseWriter, r *http.Request) (*storage.NotificationChannel, *storage.Monitor, bool) {
	ch, err := h.store.GetNotificationChannel(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, httputil.CodeNotFound, "notification channel not found")
			return nil, nil, false
		}
		h.logger.Error("get notification channel", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to get channel")
		return nil, nil, false
	}
	m, err := h.store.GetMonitor(r.Context(), ch.MonitorID)
	if err != nil {
		h.logger.Error("get channel monitor", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to get channel")
		return nil, nil, false
	}
	return ch, m, true
}

// UpdateNotificationChannel patches a channel. Omitted fields keep their
// stored values; config sub-fields merge the same way.
func (h *Handler) UpdateNotificationChannel(w http.ResponseWriter, r *http.Request) {
	existing, m, ok := h.channelFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	patch := *existing
	if !h.decode(w, r, &patch) {
		return
	}
	patch.ID = existing.ID
	patch.MonitorID = existing.MonitorID
	patch.CreatedAt = existing.CreatedAt

	if err := validate.ValidateNotificationChannel(&patch); err != nil {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}

	if err := h.store.UpdateNotificationChannel(r.Context(), &patch); err != nil {
		h.logger.Error("update notification channel", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to update channel")
		return
	}

	h.logger.Info("notification channel updated", "channel_id", patch.ID, "monitor_id", m.ID)
	writeJSON(w, http.StatusOK, &patch)
}

func (h *Handler) DeleteNotificationChannel(w http.ResponseWriter, r *http.Request) {
	ch, m, ok := h.channelFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	if err := h.store.DeleteNotificationChannel(r.Context(), ch.ID); err != nil {
		h.logger.Error("delete notification channel", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to delete channel")
		return
	}

	h.logger.Info("notification channel deleted", "channel_id", ch.ID, "monitor_id", m.ID)
	w.WriteHeader(http.StatusNoContent)
}

// TestNotificationChannel fires a synthetic notice at one channel so its
// wiring can be verified without waiting for an incident.
func (h *Handler) TestNotificationChannel(w http.ResponseWriter, r *http.Request) {
	ch, m, ok := h.channelFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	h.notifier.Test(ch, m)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "test dispatched"})
}
