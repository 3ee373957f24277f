package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/watchpost/watchpost/internal/events"
	"github.com/watchpost/watchpost/internal/metrics"
)

const streamPingInterval = 30 * time.Second

// StreamEvents is the global SSE feed: every bus event, one frame each.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "")
}

// StreamMonitorEvents is the per-monitor SSE feed.
func (h *Handler) StreamMonitorEvents(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFromPath(w, r)
	if !ok {
		return
	}
	h.stream(w, r, m.ID)
}

// stream forwards bus events as SSE frames until the client disconnects
// or the bus closes. A subscriber that lags the bus is told how many
// events it lost via a lag frame before the next regular frame.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, monitorID string) {
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("sse stream unsupported", "error", err)
		return
	}

	sub := h.bus.Subscribe(0)
	defer h.bus.Unsubscribe(sub)
	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			if rc.Flush() != nil {
				return
			}
		case ev, open := <-sub.C:
			if !open {
				// Bus closed on shutdown; end of stream.
				return
			}
			if monitorID != "" && ev.MonitorID != monitorID {
				continue
			}
			if skipped := sub.TakeSkipped(); skipped > 0 {
				fmt.Fprintf(w, "event: lag\ndata: {\"skipped\":%d}\n\n", skipped)
			}
			writeSSEFrame(w, ev)
			if rc.Flush() != nil {
				return
			}
		}
	}
}

func writeSSEFrame(w io.Writer, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
