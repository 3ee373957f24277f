package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApplyHeartbeat records a heartbeat and runs the status engine against the
// state it observes, all inside one write transaction. eval must be a pure
// function: it receives the monitor row, the inserted heartbeat and, for
// consensus monitors, the latest-per-location counts, and returns what to
// persist. Incident opening and resolution happen in the same transaction so
// the at-most-one-open-incident invariant cannot be violated by interleaved
// writers.
func (s *SQLiteStore) ApplyHeartbeat(ctx context.Context, hb *Heartbeat, eval func(EvalInput) EvalDecision) (*ApplyResult, error) {
	if hb.ID == "" {
		hb.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if hb.CheckedAt.IsZero() {
		hb.CheckedAt = now
	}

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("apply heartbeat begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, hb.MonitorID)
	m, err := scanMonitor(row)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO heartbeats (id, monitor_id, location_id, status, response_time_ms, status_code, error_message, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		hb.ID, hb.MonitorID, nullStrPtr(hb.LocationID), hb.Status, hb.ResponseTimeMs,
		nullIntPtr(hb.StatusCode), hb.ErrorMessage, formatTime(hb.CheckedAt))
	if err != nil {
		return nil, fmt.Errorf("insert heartbeat: %w", err)
	}
	hb.Seq, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}

	inMaint, err := inMaintenanceTx(ctx, tx, hb.MonitorID, now)
	if err != nil {
		return nil, err
	}

	in := EvalInput{Monitor: m, Heartbeat: hb, InMaintenance: inMaint}
	if m.ConsensusThreshold > 0 {
		counts, err := s.latestStatusCounts(ctx, tx, hb.MonitorID, now)
		if err != nil {
			return nil, err
		}
		in.Counts = counts
	}

	dec := eval(in)

	if _, err := tx.ExecContext(ctx,
		`UPDATE monitors SET current_status=?, consecutive_failures=?, last_checked_at=? WHERE id=?`,
		dec.EffectiveStatus, dec.ConsecutiveFailures, formatTime(now), m.ID); err != nil {
		return nil, fmt.Errorf("update monitor state: %w", err)
	}

	out := &ApplyResult{Heartbeat: hb, Events: dec.Events, InMaintenance: inMaint}

	if dec.ResolveIncidents {
		resolved, err := resolveOpenIncidentsTx(ctx, tx, m.ID, now)
		if err != nil {
			return nil, err
		}
		out.ResolvedIncidents = resolved
	}

	if dec.OpenIncident {
		open, err := getOpenIncidentTx(ctx, tx, m.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if open == nil {
			cause := dec.IncidentCause
			if cause == "" {
				cause, err = lastNonEmptyErrorTx(ctx, tx, m.ID)
				if err != nil {
					return nil, err
				}
			}
			inc := &Incident{ID: uuid.NewString(), MonitorID: m.ID, StartedAt: now, Cause: cause}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO incidents (id, monitor_id, started_at, cause) VALUES (?, ?, ?, ?)`,
				inc.ID, inc.MonitorID, formatTime(now), inc.Cause)
			if err != nil {
				return nil, fmt.Errorf("open incident: %w", err)
			}
			inc.Seq, err = res.LastInsertId()
			if err != nil {
				return nil, err
			}
			out.OpenedIncident = inc
		} else {
			// An open incident already covers this outage; the transition
			// event would duplicate it.
			out.Events = dropEvent(out.Events, "incident.created")
		}
	}

	if len(out.Events) > 0 || out.OpenedIncident != nil {
		down, err := anyDependencyDownTx(ctx, tx, m.ID)
		if err != nil {
			return nil, err
		}
		out.NotifySuppressed = down
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("apply heartbeat commit: %w", err)
	}

	m.CurrentStatus = dec.EffectiveStatus
	m.ConsecutiveFailures = dec.ConsecutiveFailures
	checked := now
	m.LastCheckedAt = &checked
	out.Monitor = m
	return out, nil
}

// lastNonEmptyErrorTx finds the most recent heartbeat error for an incident
// cause. The heartbeat that triggered the incident is already inserted, so
// its message is the usual result.
func lastNonEmptyErrorTx(ctx context.Context, tx *sql.Tx, monitorID string) (string, error) {
	var msg string
	err := tx.QueryRowContext(ctx,
		`SELECT error_message FROM heartbeats
		 WHERE monitor_id=? AND status='down' AND error_message != ''
		 ORDER BY seq DESC LIMIT 1`, monitorID).Scan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return "Monitor is down", nil
	}
	if err != nil {
		return "", err
	}
	return msg, nil
}

func dropEvent(events []string, name string) []string {
	out := events[:0]
	for _, e := range events {
		if e != name {
			out = append(out, e)
		}
	}
	return out
}
