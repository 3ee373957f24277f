package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watchpost/watchpost/internal/metrics"
	"github.com/watchpost/watchpost/internal/storage"
)

const (
	webhookAttempts = 3
	webhookTimeout  = 10 * time.Second
)

// webhookBackoffs are the sleeps between attempts; the first attempt
// fires immediately.
var webhookBackoffs = []time.Duration{2 * time.Second, 4 * time.Second}

// webhookPayload is the structured body sent for payload_format "json".
type webhookPayload struct {
	Event     string           `json:"event"`
	Monitor   payloadMonitor   `json:"monitor"`
	Incident  *payloadIncident `json:"incident,omitempty"`
	Timestamp string           `json:"timestamp"`
}

type payloadMonitor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	CurrentStatus string `json:"current_status"`
}

type payloadIncident struct {
	ID         string  `json:"id"`
	Cause      string  `json:"cause"`
	StartedAt  string  `json:"started_at"`
	ResolvedAt *string `json:"resolved_at,omitempty"`
}

// chatPayload is the body sent for payload_format "chat". The shape is
// what chat bridge endpoints (Discord-compatible and similar) ingest.
type chatPayload struct {
	Content string `json:"content"`
	Sender  string `json:"sender"`
}

func buildWebhookBody(format, event string, mon *storage.Monitor, inc *storage.Incident, at time.Time) []byte {
	if format == "chat" {
		b, _ := json.Marshal(chatPayload{Content: chatLine(event, mon, inc), Sender: "Watchpost"})
		return b
	}

	p := webhookPayload{
		Event: event,
		Monitor: payloadMonitor{
			ID:            mon.ID,
			Name:          mon.Name,
			URL:           mon.URL,
			CurrentStatus: mon.CurrentStatus,
		},
		Timestamp: at.UTC().Format(storage.TimeFormat),
	}
	if inc != nil {
		pi := &payloadIncident{
			ID:        inc.ID,
			Cause:     inc.Cause,
			StartedAt: inc.StartedAt.UTC().Format(storage.TimeFormat),
		}
		if inc.ResolvedAt != nil {
			ts := inc.ResolvedAt.UTC().Format(storage.TimeFormat)
			pi.ResolvedAt = &ts
		}
		p.Incident = pi
	}
	b, _ := json.Marshal(p)
	return b
}

// chatLine renders the single human-readable line for chat payloads.
func chatLine(event string, mon *storage.Monitor, inc *storage.Incident) string {
	meta := metaFor(event)
	var b strings.Builder
	fmt.Fprintf(&b, "%s **%s** — %s", meta.Emoji, mon.Name, meta.Label)
	if inc != nil {
		if inc.Cause != "" {
			fmt.Fprintf(&b, "\nCause: %s", inc.Cause)
		}
		if inc.ResolvedAt != nil {
			fmt.Fprintf(&b, "\nResolved: %s", inc.ResolvedAt.UTC().Format(storage.TimeFormat))
		}
	}
	return b.String()
}

// deliverWebhook posts the event to one webhook channel, retrying with
// backoff. Every attempt, successful or not, lands in the delivery audit
// under one shared delivery group.
func (s *Service) deliverWebhook(ctx context.Context, event string, mon *storage.Monitor, inc *storage.Incident, ch *storage.NotificationChannel) {
	url := ch.Config.URL
	if url == "" {
		s.logger.Warn("webhook channel without url", "channel_id", ch.ID)
		return
	}

	body := buildWebhookBody(ch.Config.PayloadFormat, event, mon, inc, time.Now())
	group := uuid.NewString()

	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		code, elapsed, err := s.post(url, ch.Config.Secret, body)

		d := &storage.WebhookDelivery{
			DeliveryGroup:  group,
			MonitorID:      mon.ID,
			Event:          event,
			URL:            url,
			Attempt:        attempt,
			Status:         storage.DeliverySuccess,
			ResponseTimeMs: elapsed,
		}
		if code != 0 {
			d.StatusCode = &code
		}
		if err != nil {
			d.Status = storage.DeliveryFailed
			d.ErrorMessage = err.Error()
		}
		if insErr := s.store.InsertWebhookDelivery(ctx, d); insErr != nil {
			s.logger.Error("record webhook delivery", "monitor_id", mon.ID, "error", insErr)
		}

		if err == nil {
			metrics.NotificationsTotal.WithLabelValues(storage.ChannelWebhook, "success").Inc()
			s.logger.Debug("webhook delivered",
				"monitor_id", mon.ID, "channel_id", ch.ID, "event", event, "attempt", attempt)
			return
		}
		if attempt < webhookAttempts {
			time.Sleep(s.backoffs[attempt-1])
		}
	}

	metrics.NotificationsTotal.WithLabelValues(storage.ChannelWebhook, "failed").Inc()
	s.logger.Warn("webhook delivery failed after retries",
		"monitor_id", mon.ID, "channel_id", ch.ID, "event", event, "url", url)
}

// post performs one webhook attempt. The returned status code is zero
// when no response arrived.
func (s *Service) post(url, secret string, body []byte) (int, int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Watchpost/1.0")
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-Watchpost-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return 0, elapsed, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, elapsed, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, elapsed, nil
}
