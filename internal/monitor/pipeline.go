package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/watchpost/watchpost/internal/checker"
	"github.com/watchpost/watchpost/internal/events"
	"github.com/watchpost/watchpost/internal/metrics"
	"github.com/watchpost/watchpost/internal/storage"
)

// Dispatcher fans an event out to a monitor's notification channels.
// Implementations run their own goroutines; Dispatch must not block.
type Dispatcher interface {
	Dispatch(event string, mon *storage.Monitor, inc *storage.Incident)
}

// Pipeline runs one check end to end: probe, store write under the engine,
// event publication and notification dispatch. Remote probe results enter
// through Apply and share everything past the probe itself.
type Pipeline struct {
	store    storage.Store
	registry *checker.Registry
	bus      *events.Bus
	notifier Dispatcher
	logger   *slog.Logger
}

func NewPipeline(store storage.Store, registry *checker.Registry, bus *events.Bus, notifier Dispatcher, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		registry: registry,
		bus:      bus,
		notifier: notifier,
		logger:   logger,
	}
}

// RunCheck probes the monitor and applies the outcome as a heartbeat.
func (p *Pipeline) RunCheck(ctx context.Context, m *storage.Monitor) (*storage.ApplyResult, error) {
	chk, err := p.registry.Get(m.Type)
	if err != nil {
		return nil, err
	}

	res := chk.Check(ctx, m)
	if ctx.Err() != nil {
		// Shutdown mid-probe; a cancellation artifact must not be
		// recorded as an outage.
		return nil, ctx.Err()
	}
	metrics.ChecksTotal.WithLabelValues(m.Type, res.Status).Inc()
	metrics.CheckDuration.WithLabelValues(m.Type).Observe(float64(res.ResponseTimeMs) / 1000)

	hb := &storage.Heartbeat{
		MonitorID:      m.ID,
		Status:         res.Status,
		ResponseTimeMs: res.ResponseTimeMs,
		StatusCode:     res.StatusCode,
		ErrorMessage:   res.ErrorMessage,
		CheckedAt:      time.Now().UTC(),
	}
	return p.Apply(ctx, hb)
}

// Apply writes one heartbeat, runs the status engine under the store's
// write lock, then publishes events and dispatches notifications outside
// it.
func (p *Pipeline) Apply(ctx context.Context, hb *storage.Heartbeat) (*storage.ApplyResult, error) {
	out, err := p.store.ApplyHeartbeat(ctx, hb, Evaluate)
	if err != nil {
		return nil, err
	}

	source := "scheduler"
	if hb.LocationID != nil {
		source = "probe"
	}
	metrics.HeartbeatsTotal.WithLabelValues(source).Inc()

	for _, ev := range out.Events {
		switch ev {
		case events.IncidentCreated:
			metrics.IncidentsOpened.Inc()
		case events.IncidentResolved:
			metrics.IncidentsResolved.Inc()
		}
		p.bus.Publish(events.Event{
			Type:      ev,
			MonitorID: out.Monitor.ID,
			Data:      eventData(ev, out),
		})
		if out.NotifySuppressed && ev == events.IncidentCreated {
			p.logger.Info("notifications suppressed, dependency down",
				"monitor_id", out.Monitor.ID, "monitor", out.Monitor.Name)
			continue
		}
		if p.notifier != nil {
			p.notifier.Dispatch(ev, out.Monitor, eventIncident(ev, out))
		}
	}

	return out, nil
}

func eventData(event string, out *storage.ApplyResult) map[string]any {
	data := map[string]any{"status": out.Monitor.CurrentStatus}
	switch event {
	case events.IncidentCreated:
		if out.OpenedIncident != nil {
			data["incident_id"] = out.OpenedIncident.ID
			data["cause"] = out.OpenedIncident.Cause
		}
	case events.IncidentResolved:
		if len(out.ResolvedIncidents) > 0 {
			data["incident_id"] = out.ResolvedIncidents[0].ID
		}
	}
	return data
}

func eventIncident(event string, out *storage.ApplyResult) *storage.Incident {
	switch event {
	case events.IncidentCreated:
		return out.OpenedIncident
	case events.IncidentResolved:
		if len(out.ResolvedIncidents) > 0 {
			return out.ResolvedIncidents[0]
		}
	}
	return nil
}
