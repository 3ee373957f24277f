package storage

import (
	"context"
	"database/sql"
	"time"
)

const incidentColumns = `seq, id, monitor_id, started_at, resolved_at, cause,
	acknowledgement, acknowledged_by, acknowledged_at, reminders_sent, escalated`

func (s *SQLiteStore) GetIncident(ctx context.Context, id string) (*Incident, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id=?`, id)
	return scanIncident(row)
}

func (s *SQLiteStore) GetOpenIncident(ctx context.Context, monitorID string) (*Incident, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		 WHERE monitor_id=? AND resolved_at IS NULL
		 ORDER BY seq DESC LIMIT 1`, monitorID)
	return scanIncident(row)
}

func getOpenIncidentTx(ctx context.Context, tx *sql.Tx, monitorID string) (*Incident, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		 WHERE monitor_id=? AND resolved_at IS NULL
		 ORDER BY seq DESC LIMIT 1`, monitorID)
	return scanIncident(row)
}

// resolveOpenIncidentsTx closes every unresolved incident for the monitor
// and returns the rows as they stand after the update.
func resolveOpenIncidentsTx(ctx context.Context, tx *sql.Tx, monitorID string, now time.Time) ([]*Incident, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		 WHERE monitor_id=? AND resolved_at IS NULL ORDER BY seq ASC`, monitorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var open []*Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		open = append(open, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(open) == 0 {
		return nil, nil
	}

	resolvedAt := formatTime(now)
	if _, err := tx.ExecContext(ctx,
		`UPDATE incidents SET resolved_at=? WHERE monitor_id=? AND resolved_at IS NULL`,
		resolvedAt, monitorID); err != nil {
		return nil, err
	}

	t := parseTime(resolvedAt)
	for _, inc := range open {
		inc.ResolvedAt = &t
	}
	return open, nil
}

func (s *SQLiteStore) ListIncidents(ctx context.Context, monitorID string, c Cursor) ([]*Incident, error) {
	var rows *sql.Rows
	var err error
	if c.After != nil {
		rows, err = s.readDB.QueryContext(ctx,
			`SELECT `+incidentColumns+` FROM incidents
			 WHERE monitor_id=? AND seq > ? ORDER BY seq ASC LIMIT ?`,
			monitorID, *c.After, c.limit())
	} else {
		rows, err = s.readDB.QueryContext(ctx,
			`SELECT `+incidentColumns+` FROM incidents
			 WHERE monitor_id=? ORDER BY seq DESC LIMIT ?`,
			monitorID, c.limit())
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	incidents := []*Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// AcknowledgeIncident is idempotent: repeating overwrites the previous
// acknowledgement.
func (s *SQLiteStore) AcknowledgeIncident(ctx context.Context, id, note, by string) error {
	now := formatTime(time.Now())
	res, err := s.writeDB.ExecContext(ctx,
		`UPDATE incidents SET acknowledgement=?, acknowledged_by=?, acknowledged_at=? WHERE id=?`,
		note, by, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListOpenIncidentAlerts returns every open incident whose monitor has an
// alert rule, for the reminder worker.
func (s *SQLiteStore) ListOpenIncidentAlerts(ctx context.Context) ([]*OpenIncidentAlert, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT i.seq, i.id, i.monitor_id, i.started_at, i.resolved_at, i.cause,
		        i.acknowledgement, i.acknowledged_by, i.acknowledged_at, i.reminders_sent, i.escalated,
		        m.name, m.url, m.current_status,
		        r.repeat_interval_minutes, r.max_repeats, r.escalation_after_minutes
		 FROM incidents i
		 JOIN monitors m ON m.id = i.monitor_id
		 JOIN alert_rules r ON r.monitor_id = i.monitor_id
		 WHERE i.resolved_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*OpenIncidentAlert
	for rows.Next() {
		var inc Incident
		var m Monitor
		var rule AlertRule
		var startedAt string
		var resolvedAt, acknowledgedAt sql.NullString
		err := rows.Scan(&inc.Seq, &inc.ID, &inc.MonitorID, &startedAt, &resolvedAt, &inc.Cause,
			&inc.Acknowledgement, &inc.AcknowledgedBy, &acknowledgedAt, &inc.RemindersSent, &inc.Escalated,
			&m.Name, &m.URL, &m.CurrentStatus,
			&rule.RepeatIntervalMinutes, &rule.MaxRepeats, &rule.EscalationAfterMinutes)
		if err != nil {
			return nil, err
		}
		inc.StartedAt = parseTime(startedAt)
		inc.ResolvedAt = parseTimePtr(resolvedAt)
		inc.AcknowledgedAt = parseTimePtr(acknowledgedAt)
		m.ID = inc.MonitorID
		rule.MonitorID = m.ID
		alerts = append(alerts, &OpenIncidentAlert{Incident: &inc, Monitor: &m, Rule: &rule})
	}
	return alerts, rows.Err()
}

func (s *SQLiteStore) BumpIncidentReminders(ctx context.Context, id string) error {
	_, err := s.writeDB.ExecContext(ctx,
		`UPDATE incidents SET reminders_sent = reminders_sent + 1 WHERE id=?`, id)
	return err
}

func (s *SQLiteStore) MarkIncidentEscalated(ctx context.Context, id string) error {
	_, err := s.writeDB.ExecContext(ctx,
		`UPDATE incidents SET escalated = 1 WHERE id=?`, id)
	return err
}

func scanIncident(row scanner) (*Incident, error) {
	var inc Incident
	var startedAt string
	var resolvedAt, acknowledgedAt sql.NullString
	err := row.Scan(&inc.Seq, &inc.ID, &inc.MonitorID, &startedAt, &resolvedAt, &inc.Cause,
		&inc.Acknowledgement, &inc.AcknowledgedBy, &acknowledgedAt, &inc.RemindersSent, &inc.Escalated)
	if err != nil {
		return nil, err
	}
	inc.StartedAt = parseTime(startedAt)
	inc.ResolvedAt = parseTimePtr(resolvedAt)
	inc.AcknowledgedAt = parseTimePtr(acknowledgedAt)
	return &inc, nil
}
