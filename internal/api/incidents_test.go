package api

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/watchpost/watchpost/internal/storage"
)

func openTestIncident(t *testing.T, h *Handler, monitorID string) *storage.Incident {
	t.Helper()
	hb := &storage.Heartbeat{
		MonitorID:    monitorID,
		Status:       storage.StatusDown,
		ErrorMessage: "connection refused",
		CheckedAt:    time.Now().UTC(),
	}
	if _, err := h.pipeline.Apply(t.Context(), hb); err != nil {
		t.Fatal(err)
	}
	incidents, err := h.store.ListIncidents(t.Context(), monitorID, storage.Cursor{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(incidents) != 1 {
		t.Fatalf("expected 1 open incident, got %d", len(incidents))
	}
	return incidents[0]
}

func TestListMonitorIncidents(t *testing.T) {
	h := testHandler(t)
	created := createTestMonitor(t, h, httpMonitorBody("api"))
	openTestIncident(t, h, created.Monitor.ID)

	req := newRequest("GET", "/api/v1/monitors/"+created.Monitor.ID+"/incidents", nil)
	req.SetPathValue("id", created.Monitor.ID)
	w := httptest.NewRecorder()
	h.ListMonitorIncidents(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Incidents []*storage.Incident `json:"incidents"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Incidents) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(resp.Incidents))
	}
	if resp.Incidents[0].Cause != "connection refused" {
		t.Errorf("expected cause to carry the probe error, got %q", resp.Incidents[0].Cause)
	}
	if resp.Incidents[0].ResolvedAt != nil {
		t.Error("expected an ongoing incident")
	}
}

func TestAcknowledgeIncident(t *testing.T) {
	h := testHandler(t)
	created := createTestMonitor(t, h, httpMonitorBody("api"))
	inc := openTestIncident(t, h, created.Monitor.ID)

	body := map[string]any{"acknowledgement": "rolling back the deploy", "acknowledged_by": "ops-bot"}

	// Acknowledging requires the monitor's manage key.
	req := newRequest("POST", "/api/v1/incidents/"+inc.ID+"/acknowledge", body)
	req.SetPathValue("id", inc.ID)
	w := httptest.NewRecorder()
	h.AcknowledgeIncident(w, req)
	wantEnvelope(t, w, http.StatusUnauthorized, "UNAUTHORIZED")

	req = newRequest("POST", "/api/v1/incidents/"+inc.ID+"/acknowledge", body)
	req.SetPathValue("id", inc.ID)
	req.Header.Set("Authorization", "Bearer wp_wrong")
	w = httptest.NewRecorder()
	h.AcknowledgeIncident(w, req)
	wantEnvelope(t, w, http.StatusForbidden, "FORBIDDEN")

	req = newRequest("POST", "/api/v1/incidents/"+inc.ID+"/acknowledge", body)
	req.SetPathValue("id", inc.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.AcknowledgeIncident(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var acked storage.Incident
	decodeBody(t, w, &acked)
	if acked.Acknowledgement != "rolling back the deploy" || acked.AcknowledgedBy != "ops-bot" {
		t.Errorf("unexpected acknowledgement %q by %q", acked.Acknowledgement, acked.AcknowledgedBy)
	}
	if acked.AcknowledgedAt == nil {
		t.Error("expected acknowledged_at to be set")
	}

	// A later acknowledgement overwrites the first.
	req = newRequest("POST", "/api/v1/incidents/"+inc.ID+"/acknowledge",
		map[string]any{"acknowledgement": "root cause: expired cert"})
	req.SetPathValue("id", inc.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.AcknowledgeIncident(w, req)

	decodeBody(t, w, &acked)
	if acked.Acknowledgement != "root cause: expired cert" {
		t.Errorf("expected overwrite, got %q", acked.Acknowledgement)
	}
}

func TestAcknowledgeIncidentValidation(t *testing.T) {
	h := testHandler(t)
	created := createTestMonitor(t, h, httpMonitorBody("api"))
	inc := openTestIncident(t, h, created.Monitor.ID)

	req := newRequest("POST", "/api/v1/incidents/"+inc.ID+"/acknowledge", map[string]any{"acknowledged_by": "x"})
	req.SetPathValue("id", inc.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w := httptest.NewRecorder()
	h.AcknowledgeIncident(w, req)
	wantEnvelope(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	req = newRequest("POST", "/api/v1/incidents/missing/acknowledge", map[string]any{"acknowledgement": "x"})
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	h.AcknowledgeIncident(w, req)
	wantEnvelope(t, w, http.StatusNotFound, "NOT_FOUND")
}

func TestAcknowledgeResolvedIncidentConflicts(t *testing.T) {
	h := testHandler(t)
	created := createTestMonitor(t, h, httpMonitorBody("api"))
	inc := openTestIncident(t, h, created.Monitor.ID)

	// Recovery closes the incident before anyone acknowledges it.
	up := &storage.Heartbeat{MonitorID: created.Monitor.ID, Status: storage.StatusUp, CheckedAt: time.Now().UTC()}
	if _, err := h.pipeline.Apply(t.Context(), up); err != nil {
		t.Fatal(err)
	}

	req := newRequest("POST", "/api/v1/incidents/"+inc.ID+"/acknowledge", map[string]any{"acknowledgement": "late"})
	req.SetPathValue("id", inc.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w := httptest.NewRecorder()
	h.AcknowledgeIncident(w, req)
	wantEnvelope(t, w, http.StatusConflict, "CONFLICT")
}

func TestAlertRuleLifecycle(t *testing.T) {
	h := testHandler(t)
	created := createTestMonitor(t, h, httpMonitorBody("api"))
	target := "/api/v1/monitors/" + created.Monitor.ID + "/alert-rules"

	// Reminder intervals under five minutes are rejected.
	req := newRequest("PUT", target, map[string]any{"repeat_interval_minutes": 3})
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w := httptest.NewRecorder()
	h.PutAlertRule(w, req)
	wantEnvelope(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	rule := map[string]any{"repeat_interval_minutes": 10, "max_repeats": 3, "escalation_after_minutes": 30}
	req = newRequest("PUT", target, rule)
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.PutAlertRule(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req = newRequest("GET", target, nil)
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.GetAlertRule(w, req)

	var got storage.AlertRule
	decodeBody(t, w, &got)
	if got.RepeatIntervalMinutes != 10 || got.MaxRepeats != 3 || got.EscalationAfterMinutes != 30 {
		t.Errorf("unexpected rule %+v", got)
	}

	req = newRequest("DELETE", target, nil)
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.DeleteAlertRule(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	req = newRequest("GET", target, nil)
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.GetAlertRule(w, req)
	wantEnvelope(t, w, http.StatusNotFound, "NOT_FOUND")
}

func TestMaintenanceWindows(t *testing.T) {
	h := testHandler(t)
	created := createTestMonitor(t, h, httpMonitorBody("api"))
	target := "/api/v1/monitors/" + created.Monitor.ID + "/maintenance"
	now := time.Now().UTC()

	// Inverted bounds are rejected.
	req := newRequest("POST", target, map[string]any{
		"title":     "backwards",
		"starts_at": now.Add(2 * time.Hour),
		"ends_at":   now.Add(time.Hour),
	})
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w := httptest.NewRecorder()
	h.CreateMaintenanceWindow(w, req)
	wantEnvelope(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	req = newRequest("POST", target, map[string]any{
		"title":     "db upgrade",
		"starts_at": now.Add(time.Hour),
		"ends_at":   now.Add(2 * time.Hour),
	})
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.CreateMaintenanceWindow(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var win storage.MaintenanceWindow
	decodeBody(t, w, &win)
	if win.ID == "" || win.MonitorID != created.Monitor.ID {
		t.Fatalf("unexpected window %+v", win)
	}

	req = newRequest("GET", target, nil)
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.ListMaintenanceWindows(w, req)

	var list struct {
		Windows []*storage.MaintenanceWindow `json:"maintenance_windows"`
	}
	decodeBody(t, w, &list)
	if len(list.Windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(list.Windows))
	}

	req = newRequest("DELETE", "/api/v1/maintenance/"+win.ID, nil)
	req.SetPathValue("id", win.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.DeleteMaintenanceWindow(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	req = newRequest("DELETE", "/api/v1/maintenance/"+win.ID, nil)
	req.SetPathValue("id", win.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.DeleteMaintenanceWindow(w, req)
	wantEnvelope(t, w, http.StatusNotFound, "NOT_FOUND")
}

func TestNotificationChannelLifecycle(t *testing.T) {
	h := testHandler(t)
	created := createTestMonitor(t, h, httpMonitorBody("api"))
	target := "/api/v1/monitors/" + created.Monitor.ID + "/notifications"

	req := newRequest("POST", target, map[string]any{
		"name":         "team hook",
		"channel_type": "webhook",
		"config":       map[string]any{"url": "https://hooks.example.com/x"},
	})
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w := httptest.NewRecorder()
	h.CreateNotificationChannel(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var ch storage.NotificationChannel
	decodeBody(t, w, &ch)
	if !ch.IsEnabled {
		t.Error("channels should default to enabled")
	}
	if ch.Config.PayloadFormat != "json" {
		t.Errorf("expected json payload format default, got %q", ch.Config.PayloadFormat)
	}

	// Explicit is_enabled false survives the default.
	req = newRequest("POST", target, map[string]any{
		"name":         "muted hook",
		"channel_type": "webhook",
		"config":       map[string]any{"url": "https://hooks.example.com/y"},
		"is_enabled":   false,
	})
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.CreateNotificationChannel(w, req)

	var muted storage.NotificationChannel
	decodeBody(t, w, &muted)
	if muted.IsEnabled {
		t.Error("explicit is_enabled false should be honored")
	}

	req = newRequest("GET", target, nil)
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.ListNotificationChannels(w, req)

	var list struct {
		Channels []*storage.NotificationChannel `json:"channels"`
	}
	decodeBody(t, w, &list)
	if len(list.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(list.Channels))
	}

	req = newRequest("PATCH", "/api/v1/notifications/"+ch.ID, map[string]any{"is_enabled": false})
	req.SetPathValue("id", ch.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.UpdateNotificationChannel(w, req)

	var patched storage.NotificationChannel
	decodeBody(t, w, &patched)
	if patched.IsEnabled {
		t.Error("expected channel disabled")
	}
	if patched.Name != "team hook" || patched.Config.URL != "https://hooks.example.com/x" {
		t.Errorf("omitted fields changed: %+v", patched)
	}

	req = newRequest("DELETE", "/api/v1/notifications/"+ch.ID, nil)
	req.SetPathValue("id", ch.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.DeleteNotificationChannel(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestNotificationChannelValidation(t *testing.T) {
	h := testHandler(t)
	created := createTestMonitor(t, h, httpMonitorBody("api"))
	target := "/api/v1/monitors/" + created.Monitor.ID + "/notifications"

	req := newRequest("POST", target, map[string]any{"name": "bad", "channel_type": "pager"})
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w := httptest.NewRecorder()
	h.CreateNotificationChannel(w, req)
	wantEnvelope(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestTestNotificationChannel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	h := testHandler(t)
	created := createTestMonitor(t, h, httpMonitorBody("api"))

	req := newRequest("POST", "/api/v1/monitors/"+created.Monitor.ID+"/notifications", map[string]any{
		"name":         "hook",
		"channel_type": "webhook",
		"config":       map[string]any{"url": srv.URL},
	})
	req.SetPathValue("id", created.Monitor.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w := httptest.NewRecorder()
	h.CreateNotificationChannel(w, req)
	var ch storage.NotificationChannel
	decodeBody(t, w, &ch)

	req = newRequest("POST", "/api/v1/notifications/"+ch.ID+"/test", nil)
	req.SetPathValue("id", ch.ID)
	req.Header.Set("Authorization", "Bearer "+created.ManageKey)
	w = httptest.NewRecorder()
	h.TestNotificationChannel(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	h.notifier.Drain(2 * time.Second)
	if hits.Load() != 1 {
		t.Fatalf("expected 1 webhook delivery, got %d", hits.Load())
	}
}
