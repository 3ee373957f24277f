// Package incident drives alert follow-up for open incidents: repeated
// reminders at a configured cadence and a one-time escalation when nobody
// acknowledges in time. Opening and resolving incidents happens in the
// status engine; this worker only nags about what is already open.
package incident

import (
	"context"
	"log/slog"
	"time"

	"github.com/watchpost/watchpost/internal/events"
	"github.com/watchpost/watchpost/internal/storage"
)

// defaultMaxRepeats bounds reminders when a rule does not set its own cap.
const defaultMaxRepeats = 10

// Notifier fans an event out to a monitor's notification channels.
type Notifier interface {
	Dispatch(event string, mon *storage.Monitor, inc *storage.Incident)
}

// Worker periodically sweeps open incidents against their alert rules.
type Worker struct {
	store    storage.Store
	bus      *events.Bus
	notifier Notifier
	logger   *slog.Logger
	interval time.Duration
}

func NewWorker(store storage.Store, bus *events.Bus, notifier Notifier, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		store:    store,
		bus:      bus,
		notifier: notifier,
		logger:   logger,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			w.sweep(ctx, now.UTC())
		}
	}
}

// sweep fires due reminders and escalations. Incidents resolve and
// acknowledge concurrently with the sweep; both paths re-check state in
// the store before writing, so a stale row costs at most one extra event.
func (w *Worker) sweep(ctx context.Context, now time.Time) {
	alerts, err := w.store.ListOpenIncidentAlerts(ctx)
	if err != nil {
		w.logger.Error("incident sweep", "error", err)
		return
	}
	for _, a := range alerts {
		w.remind(ctx, now, a)
		w.escalate(ctx, now, a)
	}
}

func (w *Worker) remind(ctx context.Context, now time.Time, a *storage.OpenIncidentAlert) {
	rule, inc := a.Rule, a.Incident
	if rule.RepeatIntervalMinutes <= 0 || inc.Acknowledged() {
		return
	}
	max := rule.MaxRepeats
	if max <= 0 {
		max = defaultMaxRepeats
	}
	if inc.RemindersSent >= max {
		return
	}

	interval := time.Duration(rule.RepeatIntervalMinutes) * time.Minute
	due := inc.StartedAt.Add(time.Duration(inc.RemindersSent+1) * interval)
	if now.Before(due) {
		return
	}

	if err := w.store.BumpIncidentReminders(ctx, inc.ID); err != nil {
		w.logger.Error("bump incident reminders", "incident_id", inc.ID, "error", err)
		return
	}
	inc.RemindersSent++
	w.emit(events.IncidentReminder, a)
	w.logger.Info("incident reminder",
		"incident_id", inc.ID, "monitor_id", inc.MonitorID, "sent", inc.RemindersSent)
}

func (w *Worker) escalate(ctx context.Context, now time.Time, a *storage.OpenIncidentAlert) {
	rule, inc := a.Rule, a.Incident
	if rule.EscalationAfterMinutes <= 0 || inc.Escalated || inc.Acknowledged() {
		return
	}
	if now.Before(inc.StartedAt.Add(time.Duration(rule.EscalationAfterMinutes) * time.Minute)) {
		return
	}

	if err := w.store.MarkIncidentEscalated(ctx, inc.ID); err != nil {
		w.logger.Error("mark incident escalated", "incident_id", inc.ID, "error", err)
		return
	}
	inc.Escalated = true
	w.emit(events.IncidentEscalated, a)
	w.logger.Warn("incident escalated",
		"incident_id", inc.ID, "monitor_id", inc.MonitorID, "open_for", now.Sub(inc.StartedAt))
}

func (w *Worker) emit(event string, a *storage.OpenIncidentAlert) {
	w.bus.Publish(events.Event{
		Type:      event,
		MonitorID: a.Monitor.ID,
		Data: map[string]any{
			"incident_id": a.Incident.ID,
			"cause":       a.Incident.Cause,
			"status":      a.Monitor.CurrentStatus,
		},
	})
	if w.notifier != nil {
		w.notifier.Dispatch(event, a.Monitor, a.Incident)
	}
}
