// Package server assembles the HTTP surface: the route table over the API
// handlers and the middleware chain around them.
package server

import (
	"log/slog"
	"net/http"

	"github.com/watchpost/watchpost/internal/api"
	"github.com/watchpost/watchpost/internal/config"
	"github.com/watchpost/watchpost/internal/events"
	"github.com/watchpost/watchpost/internal/httputil"
	"github.com/watchpost/watchpost/internal/monitor"
	"github.com/watchpost/watchpost/internal/notifier"
	"github.com/watchpost/watchpost/internal/storage"
)

var _ http.Handler = (*Server)(nil)

type Server struct {
	cfg     *config.Config
	api     *api.Handler
	logger  *slog.Logger
	limiter *httputil.RateLimiter
	handler http.Handler
}

func NewServer(cfg *config.Config, store storage.Store, pipeline *monitor.Pipeline, svc *notifier.Service, bus *events.Bus, logger *slog.Logger, version string) *Server {
	s := &Server{
		cfg:     cfg,
		api:     api.New(cfg, store, pipeline, svc, bus, logger, version),
		logger:  logger,
		limiter: httputil.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	handler = bodyLimit(cfg.Server.MaxBodySize)(handler)
	handler = s.limiter.Middleware(cfg.TrustedNets())(handler)
	handler = cors(cfg.Server.CORSOrigins)(handler)
	handler = secureHeaders()(handler)
	handler = logging(logger)(handler)
	handler = requestID()(handler)
	handler = recovery(logger)(handler)

	s.handler = handler
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close releases background middleware state. The listener itself is owned
// by the caller.
func (s *Server) Close() {
	s.limiter.Stop()
}
