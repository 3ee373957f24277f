package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/watchpost/watchpost/internal/storage"
)

func TestStatusBadge(t *testing.T) {
	h := testHandler(t)
	pub := httpMonitorBody("api")
	pub["is_public"] = true
	created := createTestMonitor(t, h, pub)

	req := newRequest("GET", "/api/v1/badge/"+created.Monitor.ID+"/status", nil)
	req.SetPathValue("id", created.Monitor.ID)
	w := httptest.NewRecorder()
	h.StatusBadge(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("expected svg content type, got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "api") || !strings.Contains(body, "unknown") {
		t.Errorf("badge should show name and status: %s", body)
	}
}

func TestStatusBadgePrivateMonitor(t *testing.T) {
	h := testHandler(t)
	created := createTestMonitor(t, h, httpMonitorBody("secret"))

	req := newRequest("GET", "/api/v1/badge/"+created.Monitor.ID+"/status", nil)
	req.SetPathValue("id", created.Monitor.ID)
	w := httptest.NewRecorder()
	h.StatusBadge(w, req)

	// Still an SVG so embedded images never break, but nothing leaks.
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "not found") {
		t.Errorf("private badge should read not found: %s", body)
	}
	if strings.Contains(body, "secret") {
		t.Error("private monitor name leaked into badge")
	}
}

func TestUptimeBadge(t *testing.T) {
	h := testHandler(t)
	pub := httpMonitorBody("api")
	pub["is_public"] = true
	created := createTestMonitor(t, h, pub)

	req := newRequest("GET", "/api/v1/badge/"+created.Monitor.ID+"/uptime", nil)
	req.SetPathValue("id", created.Monitor.ID)
	w := httptest.NewRecorder()
	h.UptimeBadge(w, req)

	if !strings.Contains(w.Body.String(), "no data") {
		t.Errorf("expected no data badge, got %s", w.Body.String())
	}

	for range 4 {
		hb := &storage.Heartbeat{
			MonitorID:      created.Monitor.ID,
			Status:         storage.StatusUp,
			ResponseTimeMs: 50,
			CheckedAt:      time.Now().UTC(),
		}
		if _, err := h.pipeline.Apply(t.Context(), hb); err != nil {
			t.Fatal(err)
		}
	}

	req = newRequest("GET", "/api/v1/badge/"+created.Monitor.ID+"/uptime", nil)
	req.SetPathValue("id", created.Monitor.ID)
	w = httptest.NewRecorder()
	h.UptimeBadge(w, req)

	if !strings.Contains(w.Body.String(), "100.00%") {
		t.Errorf("expected 100.00%% uptime badge, got %s", w.Body.String())
	}
}
