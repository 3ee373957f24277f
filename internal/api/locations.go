package api

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/storage"
	"github.com/watchpost/watchpost/internal/token"
)

// CreateLocation registers a remote probe location. The probe key is
// returned once; only its hash is stored.
func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	loc := storage.CheckLocation{IsActive: true}
	if !h.decode(w, r, &loc) {
		return
	}
	if loc.Name == "" {
		writeError(w, http.StatusBadRequest, httputil.CodeValidation, "name is required")
		return
	}

	key, err := token.Generate()
	if err != nil {
		h.logger.Error("generate probe key", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to create location")
		return
	}
	loc.ProbeKeyHash = token.Hash(key)

	if err := h.store.CreateLocation(r.Context(), &loc); err != nil {
		h.logger.Error("create location", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to create location")
		return
	}

	h.logger.Info("location created", "location_id", loc.ID, "name", loc.Name, "region", loc.Region)
	writeJSON(w, http.StatusCreated, map[string]any{
		"location":  &loc,
		"probe_key": key,
	})
}

// ListLocations includes per-location staleness so operators can spot
// probes that stopped reporting.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.store.ListLocations(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("list locations", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to list locations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteLocation(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, httputil.CodeNotFound, "location not found")
			return
		}
		h.logger.Error("delete location", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to delete location")
		return
	}

	h.logger.Info("location deleted", "location_id", id)
	w.WriteHeader(http.StatusNoContent)
}
