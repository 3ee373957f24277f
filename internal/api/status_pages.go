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

// CreateStatusPage creates a public page aggregating a set of monitors.
// Open endpoint under the create limiter; the page's manage key comes
// back once.
func (h *Handler) CreateStatusPage(w http.ResponseWriter, r *http.Request) {
	if !h.allowCreate(w, r) {
		return
	}
	var p storage.StatusPage
	if !h.decode(w, r, &p) {
		return
	}

	if err := validate.ValidateStatusPage(&p); err != nil {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}
	if !h.monitorsExist(w, r, p.MonitorIDs) {
		return
	}

	_, err := h.store.GetStatusPageBySlug(r.Context(), p.Slug)
	if err == nil {
		writeError(w, http.StatusBadRequest, codeSlugConflict,
			fmt.Sprintf("slug %q is already taken", p.Slug))
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		h.logger.Error("check status page slug", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to create status page")
		return
	}

	key, err := token.Generate()
	if err != nil {
		h.logger.Error("generate page key", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to create status page")
		return
	}
	p.ManageKeyHash = token.Hash(key)

	if err := h.store.CreateStatusPage(r.Context(), &p); err != nil {
		h.logger.Error("create status page", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to create status page")
		return
	}

	h.logger.Info("status page created", "page_id", p.ID, "slug", p.Slug)
	writeJSON(w, http.StatusCreated, map[string]any{
		"status_page": &p,
		"manage_key":  key,
		"url":         fmt.Sprintf("%s/status/%s", h.baseURL(), p.Slug),
	})
}

// monitorsExist rejects the request when any referenced monitor is
// missing; a page with dangling monitor IDs would render holes.
func (h *Handler) monitorsExist(w http.ResponseWriter, r *http.Request, ids []string) bool {
	for _, id := range ids {
		if _, err := h.store.GetMonitor(r.Context(), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusBadRequest, httputil.CodeValidation,
					fmt.Sprintf("monitor %q not found", id))
				return false
			}
			h.logger.Error("check page monitor", "error", err)
			writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to save status page")
			return false
		}
	}
	return true
}

func (h *Handler) pageFromSlug(w http.ResponseWriter, r *http.Request) (*storage.StatusPage, bool) {
	p, err := h.store.GetStatusPageBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, httputil.CodeNotFound, "status page not found")
			return nil, false
		}
		h.logger.Error("get status page", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to get status page")
		return nil, false
	}
	return p, true
}

// GetStatusPage is the public read: the page plus a status summary per
// monitor, in page order.
func (h *Handler) GetStatusPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pageFromSlug(w, r)
	if !ok {
		return
	}

	monitors, err := h.store.ListStatusPageMonitors(r.Context(), p.ID)
	if err != nil {
		h.logger.Error("list page monitors", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to get status page")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status_page": p,
		"monitors":    summarize(monitors),
	})
}

// UpdateStatusPage patches the page. A monitor_ids key replaces the whole
// list; an omitted key keeps it.
func (h *Handler) UpdateStatusPage(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.pageFromSlug(w, r)
	if !ok {
		return
	}
	if !h.requirePageKey(w, r, existing) {
		return
	}

	patch := *existing
	patch.MonitorIDs = nil
	if !h.decode(w, r, &patch) {
		return
	}
	replaceMonitors := patch.MonitorIDs != nil
	if !replaceMonitors {
		patch.MonitorIDs = existing.MonitorIDs
	}
	patch.ID = existing.ID
	patch.ManageKeyHash = existing.ManageKeyHash
	patch.CreatedAt = existing.CreatedAt

	if err := validate.ValidateStatusPage(&patch); err != nil {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}
	if !h.monitorsExist(w, r, patch.MonitorIDs) {
		return
	}

	if patch.Slug != existing.Slug {
		_, err := h.store.GetStatusPageBySlug(r.Context(), patch.Slug)
		if err == nil {
			writeError(w, http.StatusBadRequest, codeSlugConflict,
				fmt.Sprintf("slug %q is already taken", patch.Slug))
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			h.logger.Error("check status page slug", "error", err)
			writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to update status page")
			return
		}
	}

	if err := h.store.UpdateStatusPage(r.Context(), &patch); err != nil {
		h.logger.Error("update status page", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to update status page")
		return
	}
	if replaceMonitors {
		if err := h.store.SetStatusPageMonitors(r.Context(), patch.ID, patch.MonitorIDs); err != nil {
			h.logger.Error("set status page monitors", "error", err)
			writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to update status page")
			return
		}
	}

	h.logger.Info("status page updated", "page_id", patch.ID, "slug", patch.Slug)
	writeJSON(w, http.StatusOK, &patch)
}

func (h *Handler) DeleteStatusPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pageFromSlug(w, r)
	if !ok {
		return
	}
	if !h.requirePageKey(w, r, p) {
		return
	}

	if err := h.store.DeleteStatusPage(r.Context(), p.ID); err != nil {
		h.logger.Error("delete status page", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to delete status page")
		return
	}

	h.logger.Info("status page deleted", "page_id", p.ID, "slug", p.Slug)
	w.WriteHeader(http.StatusNoContent)
}
