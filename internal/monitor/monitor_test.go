package monitor

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/watchpost/watchpost/internal/checker"
	"github.com/watchpost/watchpost/internal/events"
	"github.com/watchpost/watchpost/internal/storage"
)

func testStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "watchpost-monitor-test-*.db")
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

func createHTTPMonitor(t *testing.T, store storage.Store, name, url string, threshold int) *storage.Monitor {
	t.Helper()
	m := &storage.Monitor{
		Name:                  name,
		Type:                  storage.TypeHTTP,
		URL:                   url,
		FollowRedirects:       true,
		IntervalSeconds:       600,
		TimeoutMs:             5000,
		ConfirmationThreshold: threshold,
		ManageKeyHash:         "hash-" + name,
	}
	if err := store.CreateMonitor(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return m
}

type captureDispatcher struct {
	mu   sync.Mutex
	sent []string
}

func (d *captureDispatcher) Dispatch(event string, mon *storage.Monitor, inc *storage.Incident) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, event)
}

func (d *captureDispatcher) events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

func TestPipelineRunCheck(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	var respond atomic.Int32
	respond.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(respond.Load()))
	}))
	defer srv.Close()

	mon := createHTTPMonitor(t, store, "api", srv.URL, 1)

	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe(16)
	defer bus.Unsubscribe(sub)

	disp := &captureDispatcher{}
	p := NewPipeline(store, checker.DefaultRegistry(true), bus, disp, discardLogger())

	out, err := p.RunCheck(ctx, mon)
	if err != nil {
		t.Fatal(err)
	}
	if out.Heartbeat.Status != storage.StatusUp {
		t.Fatalf("heartbeat status = %s (%s), want up", out.Heartbeat.Status, out.Heartbeat.ErrorMessage)
	}
	if out.Monitor.CurrentStatus != storage.StatusUp {
		t.Fatalf("monitor status = %s, want up", out.Monitor.CurrentStatus)
	}

	respond.Store(http.StatusServiceUnavailable)
	out, err = p.RunCheck(ctx, mon)
	if err != nil {
		t.Fatal(err)
	}
	if out.OpenedIncident == nil {
		t.Fatal("expected an incident")
	}
	if out.OpenedIncident.Cause != "Expected 200, got 503" {
		t.Fatalf("cause = %q", out.OpenedIncident.Cause)
	}

	select {
	case ev := <-sub.C:
		if ev.Type != events.IncidentCreated || ev.MonitorID != mon.ID {
			t.Fatalf("bus event = %+v", ev)
		}
		if ev.Data["incident_id"] != out.OpenedIncident.ID {
			t.Fatalf("event incident_id = %v", ev.Data["incident_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("no bus event for incident.created")
	}

	respond.Store(http.StatusOK)
	out, err = p.RunCheck(ctx, mon)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.ResolvedIncidents) != 1 {
		t.Fatalf("resolved %d incidents, want 1", len(out.ResolvedIncidents))
	}

	want := []string{events.IncidentCreated, events.IncidentResolved}
	got := disp.events()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("dispatched = %v, want %v", got, want)
	}
}

func TestPipelineApplySuppressesDependentNotifications(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	dep := createHTTPMonitor(t, store, "database", "http://db.internal/health", 1)
	app := createHTTPMonitor(t, store, "app", "http://app.internal/health", 1)
	if err := store.AddDependency(ctx, app.ID, dep.ID); err != nil {
		t.Fatal(err)
	}

	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe(16)
	defer bus.Unsubscribe(sub)

	disp := &captureDispatcher{}
	p := NewPipeline(store, checker.DefaultRegistry(true), bus, disp, discardLogger())

	downBeat := func(id string) *storage.Heartbeat {
		return &storage.Heartbeat{MonitorID: id, Status: storage.StatusDown, ErrorMessage: "Connection refused"}
	}

	// The dependency fails first; its own incident notifies normally.
	if _, err := p.Apply(ctx, downBeat(dep.ID)); err != nil {
		t.Fatal(err)
	}
	// The dependent fails next; its incident opens but stays quiet.
	out, err := p.Apply(ctx, downBeat(app.ID))
	if err != nil {
		t.Fatal(err)
	}
	if !out.NotifySuppressed {
		t.Fatal("expected suppression with the dependency down")
	}
	if out.OpenedIncident == nil {
		t.Fatal("suppression must not block the incident itself")
	}

	if got := disp.events(); len(got) != 1 || got[0] != events.IncidentCreated {
		t.Fatalf("dispatched = %v, want the dependency's incident only", got)
	}

	// The stream still carries both incidents.
	var seen int
	for seen < 2 {
		select {
		case <-sub.C:
			seen++
		case <-time.After(time.Second):
			t.Fatalf("saw %d bus events, want 2", seen)
		}
	}
}

func TestSchedulerChecksDueMonitor(t *testing.T) {
	store := testStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mon := createHTTPMonitor(t, store, "api", srv.URL, 1)

	bus := events.NewBus()
	defer bus.Close()
	p := NewPipeline(store, checker.DefaultRegistry(true), bus, &captureDispatcher{}, discardLogger())
	s := NewScheduler(store, p, 0, 20*time.Millisecond, time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		hbs, err := store.ListHeartbeats(context.Background(), mon.ID, storage.Cursor{Limit: 1})
		if err != nil {
			t.Fatal(err)
		}
		if len(hbs) > 0 {
			if hbs[0].Status != storage.StatusUp {
				t.Fatalf("heartbeat status = %s", hbs[0].Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduler never checked the due monitor")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}

	got, err := store.GetMonitor(context.Background(), mon.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastCheckedAt == nil {
		t.Fatal("last_checked_at not set")
	}
	if got.CurrentStatus != storage.StatusUp {
		t.Fatalf("monitor status = %s, want up", got.CurrentStatus)
	}
}

func TestSchedulerStopsDuringWarmup(t *testing.T) {
	store := testStore(t)
	bus := events.NewBus()
	defer bus.Close()
	p := NewPipeline(store, checker.DefaultRegistry(true), bus, &captureDispatcher{}, discardLogger())
	s := NewScheduler(store, p, time.Hour, time.Second, time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit during warmup")
	}
}
