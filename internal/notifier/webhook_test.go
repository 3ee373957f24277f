package notifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/watchpost/watchpost/internal/config"
	"github.com/watchpost/watchpost/internal/events"
	"github.com/watchpost/watchpost/internal/storage"
)

func testStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "watchpost-notifier-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	store, err := storage.NewSQLiteStore(tmpFile.Name(), 2, 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testService(t *testing.T, store storage.Store) *Service {
	t.Helper()
	svc := NewService(store, config.SMTPConfig{}, true, discardLogger())
	svc.backoffs = []time.Duration{0, 0}
	return svc
}

func createTestMonitor(t *testing.T, store storage.Store) *storage.Monitor {
	t.Helper()
	m := &storage.Monitor{
		Name:                  "api",
		Type:                  storage.TypeHTTP,
		URL:                   "https://api.example.com/health",
		FollowRedirects:       true,
		IntervalSeconds:       600,
		TimeoutMs:             5000,
		ConfirmationThreshold: 1,
		ManageKeyHash:         "hash-api",
	}
	if err := store.CreateMonitor(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return m
}

func addWebhookChannel(t *testing.T, store storage.Store, monitorID string, cfg storage.ChannelConfig) *storage.NotificationChannel {
	t.Helper()
	ch := &storage.NotificationChannel{
		MonitorID: monitorID,
		Name:      "hook",
		Type:      storage.ChannelWebhook,
		Config:    cfg,
		IsEnabled: true,
	}
	if err := store.CreateNotificationChannel(context.Background(), ch); err != nil {
		t.Fatal(err)
	}
	return ch
}

// listDeliveries returns the audit rows for monitorID in insertion order.
func listDeliveries(t *testing.T, store storage.Store, monitorID string) []*storage.WebhookDelivery {
	t.Helper()
	after := int64(0)
	deliveries, err := store.ListWebhookDeliveries(context.Background(), monitorID, storage.Cursor{After: &after, Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	return deliveries
}

func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestWebhookDelivery(t *testing.T) {
	store := testStore(t)
	mon := createTestMonitor(t, store)
	mon.CurrentStatus = storage.StatusDown

	var receivedBody []byte
	var receivedUA, receivedCT, receivedSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		receivedUA = r.Header.Get("User-Agent")
		receivedCT = r.Header.Get("Content-Type")
		receivedSig = r.Header.Get("X-Watchpost-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	addWebhookChannel(t, store, mon.ID, storage.ChannelConfig{URL: server.URL})

	inc := &storage.Incident{
		ID:        "inc-1",
		MonitorID: mon.ID,
		Cause:     "Expected 200, got 503",
		StartedAt: time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
	}

	svc := testService(t, store)
	svc.Dispatch(events.IncidentCreated, mon, inc)
	svc.Drain(5 * time.Second)

	if len(receivedBody) == 0 {
		t.Fatal("no body received")
	}
	if receivedUA != "Watchpost/1.0" {
		t.Errorf("User-Agent = %q", receivedUA)
	}
	if receivedCT != "application/json" {
		t.Errorf("Content-Type = %q", receivedCT)
	}
	if receivedSig != "" {
		t.Errorf("unexpected signature header %q without a channel secret", receivedSig)
	}

	var p struct {
		Event   string `json:"event"`
		Monitor struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			URL           string `json:"url"`
			CurrentStatus string `json:"current_status"`
		} `json:"monitor"`
		Incident *struct {
			ID         string  `json:"id"`
			Cause      string  `json:"cause"`
			StartedAt  string  `json:"started_at"`
			ResolvedAt *string `json:"resolved_at"`
		} `json:"incident"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(receivedBody, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Event != events.IncidentCreated {
		t.Errorf("event = %q", p.Event)
	}
	if p.Monitor.ID != mon.ID || p.Monitor.Name != "api" || p.Monitor.CurrentStatus != storage.StatusDown {
		t.Errorf("monitor payload = %+v", p.Monitor)
	}
	if p.Incident == nil {
		t.Fatal("expected incident in payload")
	}
	if p.Incident.Cause != inc.Cause {
		t.Errorf("incident cause = %q", p.Incident.Cause)
	}
	if p.Incident.StartedAt != "2026-02-10T09:30:00Z" {
		t.Errorf("incident started_at = %q", p.Incident.StartedAt)
	}
	if p.Incident.ResolvedAt != nil {
		t.Error("resolved_at should be absent on an open incident")
	}
	if _, err := time.Parse(storage.TimeFormat, p.Timestamp); err != nil {
		t.Errorf("timestamp %q not in wire format: %v", p.Timestamp, err)
	}

	deliveries := listDeliveries(t, store, mon.ID)
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery record, got %d", len(deliveries))
	}
	d := deliveries[0]
	if d.Status != storage.DeliverySuccess || d.Attempt != 1 {
		t.Errorf("delivery = %s attempt %d", d.Status, d.Attempt)
	}
	if d.StatusCode == nil || *d.StatusCode != http.StatusOK {
		t.Errorf("delivery status code = %v", d.StatusCode)
	}
	if d.DeliveryGroup == "" {
		t.Error("delivery group not set")
	}
	if d.Event != events.IncidentCreated || d.URL != server.URL {
		t.Errorf("delivery event=%q url=%q", d.Event, d.URL)
	}
}

func TestWebhookRetriesUntilSuccess(t *testing.T) {
	store := testStore(t)
	mon := createTestMonitor(t, store)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	addWebhookChannel(t, store, mon.ID, storage.ChannelConfig{URL: server.URL})

	svc := testService(t, store)
	svc.Dispatch(events.IncidentCreated, mon, &storage.Incident{ID: "inc-1", MonitorID: mon.ID, Cause: "down", StartedAt: time.Now().UTC()})
	svc.Drain(5 * time.Second)

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}

	deliveries := listDeliveries(t, store, mon.ID)
	if len(deliveries) != 3 {
		t.Fatalf("expected 3 delivery records, got %d", len(deliveries))
	}
	wantStatus := []string{storage.DeliveryFailed, storage.DeliveryFailed, storage.DeliverySuccess}
	for i, d := range deliveries {
		if d.Attempt != i+1 {
			t.Errorf("delivery %d: attempt = %d", i, d.Attempt)
		}
		if d.Status != wantStatus[i] {
			t.Errorf("delivery %d: status = %s, want %s", i, d.Status, wantStatus[i])
		}
		if d.DeliveryGroup != deliveries[0].DeliveryGroup {
			t.Errorf("delivery %d: group %s differs from %s", i, d.DeliveryGroup, deliveries[0].DeliveryGroup)
		}
	}
	failed := deliveries[0]
	if failed.StatusCode == nil || *failed.StatusCode != http.StatusInternalServerError {
		t.Errorf("failed delivery status code = %v", failed.StatusCode)
	}
	if failed.ErrorMessage != "webhook returned status 500" {
		t.Errorf("failed delivery error = %q", failed.ErrorMessage)
	}
}

func TestWebhookGivesUpAfterRetries(t *testing.T) {
	store := testStore(t)
	mon := createTestMonitor(t, store)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	addWebhookChannel(t, store, mon.ID, storage.ChannelConfig{URL: server.URL})

	svc := testService(t, store)
	svc.Dispatch(events.IncidentCreated, mon, nil)
	svc.Drain(5 * time.Second)

	deliveries := listDeliveries(t, store, mon.ID)
	if len(deliveries) != 3 {
		t.Fatalf("expected 3 delivery records, got %d", len(deliveries))
	}
	for i, d := range deliveries {
		if d.Status != storage.DeliveryFailed {
			t.Errorf("delivery %d: status = %s", i, d.Status)
		}
		if d.StatusCode == nil || *d.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("delivery %d: status code = %v", i, d.StatusCode)
		}
	}
}

func TestWebhookConnectionErrorAudited(t *testing.T) {
	store := testStore(t)
	mon := createTestMonitor(t, store)
	addWebhookChannel(t, store, mon.ID, storage.ChannelConfig{URL: "http://" + closedPort(t)})

	svc := testService(t, store)
	svc.Dispatch(events.IncidentCreated, mon, nil)
	svc.Drain(5 * time.Second)

	deliveries := listDeliveries(t, store, mon.ID)
	if len(deliveries) != 3 {
		t.Fatalf("expected 3 delivery records, got %d", len(deliveries))
	}
	for i, d := range deliveries {
		if d.Status != storage.DeliveryFailed {
			t.Errorf("delivery %d: status = %s", i, d.Status)
		}
		if d.StatusCode != nil {
			t.Errorf("delivery %d: status code = %d, want none", i, *d.StatusCode)
		}
		if d.ErrorMessage == "" {
			t.Errorf("delivery %d: missing error message", i)
		}
	}
}

func TestWebhookSignature(t *testing.T) {
	store := testStore(t)
	mon := createTestMonitor(t, store)

	var receivedBody []byte
	var receivedSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		receivedSig = r.Header.Get("X-Watchpost-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	secret := "test-secret"
	addWebhookChannel(t, store, mon.ID, storage.ChannelConfig{URL: server.URL, Secret: secret})

	svc := testService(t, store)
	svc.Dispatch(events.IncidentCreated, mon, nil)
	svc.Drain(5 * time.Second)

	if !strings.HasPrefix(receivedSig, "sha256=") {
		t.Fatalf("signature = %q, want sha256= prefix", receivedSig)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(receivedBody)
	if want := "sha256=" + hex.EncodeToString(mac.Sum(nil)); receivedSig != want {
		t.Fatalf("signature mismatch: got %s, want %s", receivedSig, want)
	}
}

func TestWebhookChatPayload(t *testing.T) {
	store := testStore(t)
	mon := createTestMonitor(t, store)

	var receivedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	addWebhookChannel(t, store, mon.ID, storage.ChannelConfig{URL: server.URL, PayloadFormat: "chat"})

	svc := testService(t, store)
	svc.Dispatch(events.IncidentCreated, mon, &storage.Incident{
		ID:        "inc-1",
		MonitorID: mon.ID,
		Cause:     "Connection refused",
		StartedAt: time.Now().UTC(),
	})
	svc.Drain(5 * time.Second)

	var p struct {
		Content string `json:"content"`
		Sender  string `json:"sender"`
	}
	if err := json.Unmarshal(receivedBody, &p); err != nil {
		t.Fatalf("unmarshal chat payload: %v", err)
	}
	if p.Sender != "Watchpost" {
		t.Errorf("sender = %q", p.Sender)
	}
	if !strings.Contains(p.Content, "**api**") || !strings.Contains(p.Content, "DOWN") {
		t.Errorf("content = %q", p.Content)
	}
	if !strings.Contains(p.Content, "\nCause: Connection refused") {
		t.Errorf("content missing cause line: %q", p.Content)
	}
}

func TestChatLine(t *testing.T) {
	mon := &storage.Monitor{Name: "api"}
	resolvedAt := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		event string
		inc   *storage.Incident
		want  string
	}{
		{
			name:  "incident created",
			event: events.IncidentCreated,
			inc:   &storage.Incident{Cause: "Request timed out"},
			want:  "🔴 **api** — DOWN\nCause: Request timed out",
		},
		{
			name:  "incident resolved",
			event: events.IncidentResolved,
			inc:   &storage.Incident{Cause: "Request timed out", ResolvedAt: &resolvedAt},
			want:  "✅ **api** — RESOLVED\nCause: Request timed out\nResolved: 2026-02-10T10:00:00Z",
		},
		{
			name:  "degraded without incident",
			event: events.MonitorDegraded,
			inc:   nil,
			want:  "🟡 **api** — DEGRADED",
		},
		{
			name:  "unknown event falls back to notice",
			event: "monitor.poked",
			inc:   nil,
			want:  "🔔 **api** — NOTICE",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := chatLine(tc.event, mon, tc.inc); got != tc.want {
				t.Errorf("chatLine = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildWebhookBodyJSON(t *testing.T) {
	mon := &storage.Monitor{ID: "m-1", Name: "api", URL: "https://api.example.com", CurrentStatus: storage.StatusUp}
	at := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)

	t.Run("no incident omits the key", func(t *testing.T) {
		body := buildWebhookBody("json", events.MonitorRecovered, mon, nil, at)
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			t.Fatal(err)
		}
		if _, ok := raw["incident"]; ok {
			t.Error("incident key should be omitted without an incident")
		}
		if string(raw["timestamp"]) != `"2026-02-10T10:00:00Z"` {
			t.Errorf("timestamp = %s", raw["timestamp"])
		}
	})

	t.Run("resolved incident carries resolved_at", func(t *testing.T) {
		resolvedAt := at.Add(5 * time.Minute)
		inc := &storage.Incident{ID: "inc-1", Cause: "down", StartedAt: at, ResolvedAt: &resolvedAt}
		body := buildWebhookBody("json", events.IncidentResolved, mon, inc, at)
		if !strings.Contains(string(body), `"resolved_at":"2026-02-10T10:05:00Z"`) {
			t.Errorf("body = %s", body)
		}
	})
}
