package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/watchpost/watchpost/internal/events"
)

// streamRecorder is a ResponseWriter whose Write signals a channel, so
// tests can wait for a frame instead of sleeping.
type streamRecorder struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	code   int
	header http.Header
	wrote  chan struct{}
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: make(http.Header), wrote: make(chan struct{}, 16)}
}

func (r *streamRecorder) Header() http.Header { return r.header }

func (r *streamRecorder) WriteHeader(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = code
}

func (r *streamRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	n, err := r.buf.Write(p)
	r.mu.Unlock()
	select {
	case r.wrote <- struct{}{}:
	default:
	}
	return n, err
}

func (r *streamRecorder) Flush() {}

func (r *streamRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func (r *streamRecorder) waitWrite(t *testing.T) {
	t.Helper()
	select {
	case <-r.wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stream write")
	}
}

func waitForSubscriber(t *testing.T, h *Handler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamEventsDeliversFrames(t *testing.T) {
	h := testHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest("GET", "/api/v1/events", nil).WithContext(ctx)
	rec := newStreamRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.StreamEvents(rec, req)
	}()

	waitForSubscriber(t, h)
	h.bus.Publish(events.Event{
		Type:      events.IncidentCreated,
		MonitorID: "m1",
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"cause": "timeout"},
	})
	rec.waitWrite(t)
	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}
	body := rec.String()
	if !strings.Contains(body, "event: incident.created\n") {
		t.Errorf("missing event line in %q", body)
	}
	if !strings.Contains(body, `"monitor_id":"m1"`) || !strings.Contains(body, `"cause":"timeout"`) {
		t.Errorf("missing event payload in %q", body)
	}
}

func TestStreamMonitorEventsFilters(t *testing.T) {
	h := testHandler(t)
	created := createTestMonitor(t, h, httpMonitorBody("api"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest("GET", "/api/v1/monitors/"+created.Monitor.ID+"/events", nil).WithContext(ctx)
	req.SetPathValue("id", created.Monitor.ID)
	rec := newStreamRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.StreamMonitorEvents(rec, req)
	}()

	waitForSubscriber(t, h)
	// Published in order, so once the matching frame lands the foreign
	// event has already been dropped.
	h.bus.Publish(events.Event{Type: events.MonitorDegraded, MonitorID: "other", Timestamp: time.Now().UTC()})
	h.bus.Publish(events.Event{Type: events.MonitorRecovered, MonitorID: created.Monitor.ID, Timestamp: time.Now().UTC()})
	rec.waitWrite(t)
	cancel()
	<-done

	body := rec.String()
	if strings.Contains(body, "other") {
		t.Errorf("foreign monitor event leaked into %q", body)
	}
	if !strings.Contains(body, "event: monitor.recovered\n") {
		t.Errorf("missing filtered event in %q", body)
	}
}

func TestStreamEndsWhenBusCloses(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest("GET", "/api/v1/events", nil)
	rec := newStreamRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.StreamEvents(rec, req)
	}()

	waitForSubscriber(t, h)
	h.bus.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end on bus close")
	}
}
