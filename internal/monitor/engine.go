// Package monitor hosts the status engine, the check scheduler and the
// pipeline that ties probes, storage, events and notifications together.
package monitor

import (
	"fmt"

	"github.com/watchpost/watchpost/internal/events"
	"github.com/watchpost/watchpost/internal/storage"
)

// Evaluate decides the next status for a monitor given a fresh heartbeat.
// It is pure; the store runs it inside the heartbeat's write transaction
// so the transition from the previous status is atomic.
func Evaluate(in storage.EvalInput) storage.EvalDecision {
	m := in.Monitor
	hb := in.Heartbeat

	prev := m.CurrentStatus
	fails := m.ConsecutiveFailures

	// A monitor leaving its maintenance window starts from a clean slate
	// and re-earns a status from fresh heartbeats.
	if prev == storage.StatusMaintenance && !in.InMaintenance {
		prev = storage.StatusUnknown
		fails = 0
	}

	if hb.Status == storage.StatusDown {
		fails++
	} else {
		fails = 0
	}

	// Inside a maintenance window heartbeats are recorded as usual but the
	// presented status is pinned and no incident may open.
	if in.InMaintenance {
		return storage.EvalDecision{
			EffectiveStatus:     storage.StatusMaintenance,
			ConsecutiveFailures: fails,
		}
	}

	var effective, cause string
	switch {
	case m.ConsensusThreshold > 0 && in.Counts != nil:
		effective = consensusStatus(in.Counts, m.ConsensusThreshold)
		if effective == storage.StatusDown {
			cause = fmt.Sprintf("Consensus: %d/%d locations report down (threshold: %d)",
				in.Counts.Down, in.Counts.Total, m.ConsensusThreshold)
		}
	case hb.Status == storage.StatusDown:
		// A down heartbeat only flips the monitor once enough failures
		// confirm it; until then the previous status stands.
		if fails >= m.ConfirmationThreshold {
			effective = storage.StatusDown
		} else {
			effective = prev
		}
	default:
		effective = hb.Status
	}

	dec := storage.EvalDecision{
		EffectiveStatus:     effective,
		ConsecutiveFailures: fails,
		IncidentCause:       cause,
	}

	switch {
	case prev != storage.StatusDown && prev != storage.StatusMaintenance && effective == storage.StatusDown:
		dec.OpenIncident = true
		dec.Events = append(dec.Events, events.IncidentCreated)
	case prev == storage.StatusDown && effective != storage.StatusDown && effective != storage.StatusMaintenance:
		dec.ResolveIncidents = true
		dec.Events = append(dec.Events, events.IncidentResolved)
	}
	if prev != storage.StatusDegraded && effective == storage.StatusDegraded {
		dec.Events = append(dec.Events, events.MonitorDegraded)
	}
	if prev == storage.StatusDegraded && effective == storage.StatusUp {
		dec.Events = append(dec.Events, events.MonitorRecovered)
	}

	return dec
}

// consensusStatus folds the latest-per-location counts into one status.
// Down wins at k reports; degraded joins down in reaching k when at least
// one location saw degradation; any healthy location otherwise reports up.
func consensusStatus(c *storage.StatusCounts, k int) string {
	switch {
	case c.Down >= k:
		return storage.StatusDown
	case c.Degraded > 0 && c.Down+c.Degraded >= k:
		return storage.StatusDegraded
	case c.Up > 0:
		return storage.StatusUp
	case c.Degraded > 0:
		return storage.StatusDegraded
	default:
		return storage.StatusUnknown
	}
}
