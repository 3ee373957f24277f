package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/watchpost/watchpost/internal/metrics"
)

type wsLagMessage struct {
	Type    string `json:"type"`
	Skipped int64  `json:"skipped"`
}

// StreamWS mirrors the SSE feed over a WebSocket for clients that prefer
// it. Messages are the same event JSON; lag is a {"type":"lag"} message.
// An optional ?monitor_id= filters the feed.
func (h *Handler) StreamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.wsAcceptOptions())
	if err != nil {
		// Accept has already written its error response.
		h.logger.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	monitorID := r.URL.Query().Get("monitor_id")

	sub := h.bus.Subscribe(0)
	defer h.bus.Unsubscribe(sub)
	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	// The socket is one-way; CloseRead discards client frames and ends
	// the context when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ping.C:
			if err := pingWS(ctx, conn); err != nil {
				return
			}
		case ev, open := <-sub.C:
			if !open {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if monitorID != "" && ev.MonitorID != monitorID {
				continue
			}
			if skipped := sub.TakeSkipped(); skipped > 0 {
				if err := writeWS(ctx, conn, wsLagMessage{Type: "lag", Skipped: skipped}); err != nil {
					return
				}
			}
			if err := writeWS(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func (h *Handler) wsAcceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, origin := range h.cfg.Server.CORSOrigins {
		if origin == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		}
	}
	return opts
}

func writeWS(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

func pingWS(ctx context.Context, conn *websocket.Conn) error {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Ping(pctx)
}
