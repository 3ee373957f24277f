package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/storage"
	"github.com/watchpost/watchpost/internal/token"
	"github.com/watchpost/watchpost/internal/validate"
)

// Conflict codes layered over the shared envelope.
const (
	codeDuplicateName       = "DUPLICATE_NAME"
	codeSlugConflict        = "SLUG_CONFLICT"
	codeSelfDependency      = "SELF_DEPENDENCY"
	codeCircularDependency  = "CIRCULAR_DEPENDENCY"
	codeDuplicateDependency = "DUPLICATE_DEPENDENCY"
)

// createdMonitor is the create response. The manage key appears here and
// nowhere else; only its hash is stored.
type createdMonitor struct {
	Monitor   *storage.Monitor `json:"monitor"`
	ManageKey string           `json:"manage_key"`
	ManageURL string           `json:"manage_url"`
	ViewURL   string           `json:"view_url"`
	APIBase   string           `json:"api_base"`
}

func (h *Handler) createOne(r *http.Request, m *storage.Monitor) (*createdMonitor, int, string, error) {
	if err := validate.ValidateMonitor(m); err != nil {
		return nil, http.StatusBadRequest, httputil.CodeValidation, err
	}

	_, err := h.store.GetMonitorByName(r.Context(), m.Name)
	if err == nil {
		return nil, http.StatusBadRequest, codeDuplicateName,
			fmt.Errorf("a monitor named %q already exists", m.Name)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		h.logger.Error("check monitor name", "error", err)
		return nil, http.StatusInternalServerError, httputil.CodeInternal,
			errors.New("failed to create monitor")
	}

	key, err := token.Generate()
	if err != nil {
		h.logger.Error("generate manage key", "error", err)
		return nil, http.StatusInternalServerError, httputil.CodeInternal,
			errors.New("failed to create monitor")
	}
	m.ManageKeyHash = token.Hash(key)

	if err := h.store.CreateMonitor(r.Context(), m); err != nil {
		h.logger.Error("create monitor", "error", err)
		return nil, http.StatusInternalServerError, httputil.CodeInternal,
			errors.New("failed to create monitor")
	}

	base := h.baseURL()
	return &createdMonitor{
		Monitor:   m,
		ManageKey: key,
		ManageURL: fmt.Sprintf("%s/monitors/%s?key=%s", base, m.ID, key),
		ViewURL:   fmt.Sprintf("%s/monitors/%s", base, m.ID),
		APIBase:   base + "/api/v1",
	}, 0, "", nil
}

func (h *Handler) CreateMonitor(w http.ResponseWriter, r *http.Request) {
	if !h.allowCreate(w, r) {
		return
	}
	var m storage.Monitor
	if !h.decode(w, r, &m) {
		return
	}

	created, status, code, err := h.createOne(r, &m)
	if err != nil {
		writeError(w, status, code, err.Error())
		return
	}

	h.logger.Info("monitor created", "monitor_id", m.ID, "name", m.Name, "type", m.Type)
	writeJSON(w, http.StatusCreated, created)
}

type bulkCreateRequest struct {
	Monitors []storage.Monitor `json:"monitors"`
}

type bulkCreateError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type bulkCreateResponse struct {
	Created   []*createdMonitor `json:"created"`
	Errors    []bulkCreateError `json:"errors"`
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// BulkCreateMonitors creates up to MaxBulkMonitors in one request.
// Failures are reported per index and do not roll back earlier creates.
func (h *Handler) BulkCreateMonitors(w http.ResponseWriter, r *http.Request) {
	if !h.allowCreate(w, r) {
		return
	}
	var req bulkCreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Monitors) == 0 {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, "monitors must not be empty")
		return
	}
	if len(req.Monitors) > validate.MaxBulkMonitors {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation,
			fmt.Sprintf("bulk create is capped at %d monitors", validate.MaxBulkMonitors))
		return
	}

	resp := bulkCreateResponse{
		Created: []*createdMonitor{},
		Errors:  []bulkCreateError{},
		Total:   len(req.Monitors),
	}
	for i := range req.Monitors {
		created, _, _, err := h.createOne(r, &req.Monitors[i])
		if err != nil {
			resp.Errors = append(resp.Errors, bulkCreateError{Index: i, Error: err.Error()})
			continue
		}
		resp.Created = append(resp.Created, created)
	}
	resp.Succeeded = len(resp.Created)
	resp.Failed = len(resp.Errors)

	h.logger.Info("bulk create", "total", resp.Total, "succeeded", resp.Succeeded, "failed", resp.Failed)
	writeJSON(w, http.StatusCreated, resp)
}

// ListMonitors returns public monitors only. Private monitors are reachable
// solely by ID.
func (h *Handler) ListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := h.store.ListPublicMonitors(r.Context())
	if err != nil {
		h.logger.Error("list monitors", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to list monitors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"monitors": monitors})
}

func (h *Handler) GetMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpdateMonitor patches a monitor: fields absent from the body keep their
// stored values, fields present replace them wholesale.
func (h *Handler) UpdateMonitor(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, existing) {
		return
	}

	patch := *existing
	// nil sentinel: decode only allocates the map when the body carries
	// a headers key, so an omitted key keeps the stored headers.
	patch.Headers = nil
	if !h.decode(w, r, &patch) {
		return
	}
	if patch.Headers == nil {
		patch.Headers = existing.Headers
	}
	patch.ID = existing.ID
	patch.ManageKeyHash = existing.ManageKeyHash
	patch.CurrentStatus = existing.CurrentStatus
	patch.ConsecutiveFailures = existing.ConsecutiveFailures
	patch.IsPaused = existing.IsPaused
	patch.LastCheckedAt = existing.LastCheckedAt
	patch.CreatedAt = existing.CreatedAt

	if err := validate.ValidateMonitor(&patch); err != nil {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}

	if patch.Name != existing.Name {
		_, err := h.store.GetMonitorByName(r.Context(), patch.Name)
		if err == nil {
			writeError(w, http.StatusBadRequest, codeDuplicateName,
				fmt.Sprintf("a monitor named %q already exists", patch.Name))
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			h.logger.Error("check monitor name", "error", err)
			writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to update monitor")
			return
		}
	}

	if err := h.store.UpdateMonitor(r.Context(), &patch); err != nil {
		h.logger.Error("update monitor", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to update monitor")
		return
	}

	h.logger.Info("monitor updated", "monitor_id", patch.ID, "name", patch.Name)
	writeJSON(w, http.StatusOK, &patch)
}

func (h *Handler) DeleteMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	if err := h.store.DeleteMonitor(r.Context(), m.ID); err != nil {
		h.logger.Error("delete monitor", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to delete monitor")
		return
	}

	h.logger.Info("monitor deleted", "monitor_id", m.ID, "name", m.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PauseMonitor(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

func (h *Handler) ResumeMonitor(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	if err := h.store.SetMonitorPaused(r.Context(), m.ID, paused); err != nil {
		h.logger.Error("set monitor paused", "error", err, "paused", paused)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to update monitor")
		return
	}
	m.IsPaused = paused

	h.logger.Info("monitor pause state changed", "monitor_id", m.ID, "paused", paused)
	writeJSON(w, http.StatusOK, m)
}
