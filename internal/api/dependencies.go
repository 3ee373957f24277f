package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/storage"
)

// monitorSummary is the trimmed view used wherever monitors are listed
// through another resource, so private probe targets stay private.
type monitorSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"monitor_type"`
	CurrentStatus string `json:"current_status"`
	GroupName     string `json:"group_name,omitempty"`
}

func summarize(monitors []*storage.Monitor) []monitorSummary {
	out := make([]monitorSummary, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, monitorSummary{
			ID:            m.ID,
			Name:          m.Name,
			Type:          m.Type,
			CurrentStatus: m.CurrentStatus,
			GroupName:     m.GroupName,
		})
	}
	return out
}

type dependencyRequest struct {
	DependsOnID string `json:"depends_on_id"`
}

// AddDependency declares that the monitor depends on another. While the
// dependency is down, the dependent's incident notifications are
// suppressed. Self references, duplicates and cycles are rejected.
func (h *Handler) AddDependency(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	var req dependencyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.DependsOnID == "" {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, "depends_on_id is required")
		return
	}
	if req.DependsOnID == m.ID {
		writeError(w, http.StatusBadRequest, codeSelfDependency, "a monitor cannot depend on itself")
		return
	}

	if _, err := h.store.GetMonitor(r.Context(), req.DependsOnID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, httputil.CodeNotFound, "dependency target not found")
			return
		}
		h.logger.Error("get dependency target", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to add dependency")
		return
	}

	exists, err := h.store.HasDependency(r.Context(), m.ID, req.DependsOnID)
	if err != nil {
		h.logger.Error("check dependency", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to add dependency")
		return
	}
	if exists {
		writeError(w, http.StatusBadRequest, codeDuplicateDependency, "dependency already exists")
		return
	}

	// A cycle forms exactly when the target already reaches this monitor
	// through the dependency graph.
	cyclic, err := h.store.DependencyPathExists(r.Context(), req.DependsOnID, m.ID)
	if err != nil {
		h.logger.Error("check dependency path", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to add dependency")
		return
	}
	if cyclic {
		writeError(w, http.StatusBadRequest, codeCircularDependency, "dependency would create a cycle")
		return
	}

	if err := h.store.AddDependency(r.Context(), m.ID, req.DependsOnID); err != nil {
		h.logger.Error("add dependency", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to add dependency")
		return
	}

	h.logger.Info("dependency added", "monitor_id", m.ID, "depends_on", req.DependsOnID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"monitor_id":    m.ID,
		"depends_on_id": req.DependsOnID,
	})
}

func (h *Handler) ListDependencies(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}

	deps, err := h.store.ListDependencies(r.Context(), m.ID)
	if err != nil {
		h.logger.Error("list dependencies", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to list dependencies")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dependencies": summarize(deps)})
}

func (h *Handler) RemoveDependency(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	if !h.requireManage(w, r, m) {
		return
	}

	depID := r.PathValue("depID")
	exists, err := h.store.HasDependency(r.Context(), m.ID, depID)
	if err != nil {
		h.logger.Error("check dependency", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to remove dependency")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, httputil.CodeNotFound, "dependency not found")
		return
	}

	if err := h.store.RemoveDependency(r.Context(), m.ID, depID); err != nil {
		h.logger.Error("remove dependency", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to remove dependency")
		return
	}

	h.logger.Info("dependency removed", "monitor_id", m.ID, "depends_on", depID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListDependents(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}

	dependents, err := h.store.ListDependents(r.Context(), m.ID)
	if err != nil {
		h.logger.Error("list dependents", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to list dependents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dependents": summarize(dependents)})
}
