// Package api implements the REST surface. Handlers are methods on
// Handler; routing and the middleware chain live in internal/server.
package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/watchpost/watchpost/internal/config"
	"github.com/watchpost/watchpost/internal/events"
	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/monitor"
	"github.com/watchpost/watchpost/internal/notifier"
	"github.com/watchpost/watchpost/internal/storage"
)

type Handler struct {
	cfg       *config.Config
	store     storage.Store
	pipeline  *monitor.Pipeline
	notifier  *notifier.Service
	bus       *events.Bus
	logger    *slog.Logger
	creates   *httputil.FixedWindowLimiter
	startTime time.Time
	version   string
}

func New(cfg *config.Config, store storage.Store, pipeline *monitor.Pipeline,
	svc *notifier.Service, bus *events.Bus, logger *slog.Logger, version string) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		pipeline:  pipeline,
		notifier:  svc,
		bus:       bus,
		logger:    logger,
		creates:   httputil.NewFixedWindowLimiter(cfg.Monitor.CreateLimit, time.Hour),
		startTime: time.Now(),
		version:   version,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	httputil.WriteError(w, status, code, msg)
}

// decode reads the JSON body into v. On failure it has already written
// the 422 envelope and the caller just returns.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httputil.ReadJSON(w, r, v, h.cfg.Server.MaxBodySize); err != nil {
		writeError(w, http.StatusUnprocessableEntity, httputil.CodeInvalidJSON, err.Error())
		return false
	}
	return true
}

// allowCreate applies the per-IP create limiter shared by the open
// create endpoints.
func (h *Handler) allowCreate(w http.ResponseWriter, r *http.Request) bool {
	ip := httputil.ExtractIP(r, h.cfg.TrustedNets())
	if !h.creates.Allow(ip) {
		writeError(w, http.StatusTooManyRequests, httputil.CodeRateLimited,
			"create limit reached, try again later")
		return false
	}
	return true
}

// monitorFromPath loads the monitor addressed by the {id} path segment.
func (h *Handler) monitorFromPath(w http.ResponseWriter, r *http.Request) (*storage.Monitor, bool) {
	m, err := h.store.GetMonitor(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, httputil.CodeNotFound, "monitor not found")
			return nil, false
		}
		h.logger.Error("get monitor", "error", err)
		writeError(w, http.StatusInternalServerError, httputil.CodeInternal, "failed to get monitor")
		return nil, false
	}
	return m, true
}

func (h *Handler) baseURL() string {
	return h.cfg.ResolvedExternalURL()
}
