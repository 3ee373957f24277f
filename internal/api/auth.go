package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/storage"
	"github.com/watchpost/watchpost/internal/token"
)

// Three key spaces guard the surface: the per-resource manage key minted
// at create time, the per-location probe key, and the process admin key.
// A missing key is always 401; a key that does not match is 403.

func (h *Handler) requireManage(w http.ResponseWriter, r *http.Request, m *storage.Monitor) bool {
	key := token.FromRequest(r)
	if key == "" {
		writeError(w, http.StatusUnauthorized, httputil.CodeUnauthorized, "manage key required")
		return false
	}
	if !token.Verify(key, m.ManageKeyHash) {
		writeError(w, http.StatusForbidden, httputil.CodeForbidden, "manage key does not match this monitor")
		return false
	}
	return true
}

func (h *Handler) requirePageKey(w http.ResponseWriter, r *http.Request, p *storage.StatusPage) bool {
	key := token.FromRequest(r)
	if key == "" {
		writeError(w, http.StatusUnauthorized, httputil.CodeUnauthorized, "manage key required")
		return false
	}
	if !token.Verify(key, p.ManageKeyHash) {
		writeError(w, http.StatusForbidden, httputil.CodeForbidden, "manage key does not match this status page")
		return false
	}
	return true
}

// RequireAdmin wraps handlers that need the process admin key. The key
// digest is seeded into settings at startup.
func (h *Handler) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := token.FromRequest(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, httputil.CodeUnauthorized, "admin key required")
			return
		}
		hash, err := h.store.GetSetting(r.Context(), storage.SettingAdminKeyHash)
		if err != nil {
			h.logger.Error("load admin key hash", "error", err)
			writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "admin key not configured")
			return
		}
		if !token.Verify(key, hash) {
			writeError(w, http.StatusForbidden, httputil.CodeForbidden, "invalid admin key")
			return
		}
		next(w, r)
	}
}

// locationFromKey authenticates a remote probe submission and resolves
// its registered location.
func (h *Handler) locationFromKey(w http.ResponseWriter, r *http.Request) (*storage.CheckLocation, bool) {
	key := token.FromRequest(r)
	if key == "" {
		writeError(w, http.StatusUnauthorized, httputil.CodeUnauthorized, "probe key required")
		return nil, false
	}
	loc, err := h.store.GetLocationByKeyHash(r.Context(), token.Hash(key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusForbidden, httputil.CodeForbidden, "invalid probe key")
			return nil, false
		}
		h.logger.Error("lookup probe key", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to authenticate probe")
		return nil, false
	}
	if !loc.IsActive {
		writeError(w, http.StatusForbidden, httputil.CodeForbidden, "location is deactivated")
		return nil, false
	}
	return loc, true
}
