package storage

import (
	"context"
	"database/sql"
)

func (s *SQLiteStore) PutAlertRule(ctx context.Context, r *AlertRule) error {
	_, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO alert_rules (monitor_id, repeat_interval_minutes, max_repeats, escalation_after_minutes)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(monitor_id) DO UPDATE SET
		   repeat_interval_minutes=excluded.repeat_interval_minutes,
		   max_repeats=excluded.max_repeats,
		   escalation_after_minutes=excluded.escalation_after_minutes`,
		r.MonitorID, r.RepeatIntervalMinutes, r.MaxRepeats, r.EscalationAfterMinutes)
	return err
}

func (s *SQLiteStore) GetAlertRule(ctx context.Context, monitorID string) (*AlertRule, error) {
	var r AlertRule
	err := s.readDB.QueryRowContext(ctx,
		`SELECT monitor_id, repeat_interval_minutes, max_repeats, escalation_after_minutes
		 FROM alert_rules WHERE monitor_id = ?`, monitorID).
		Scan(&r.MonitorID, &r.RepeatIntervalMinutes, &r.MaxRepeats, &r.EscalationAfterMinutes)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) DeleteAlertRule(ctx context.Context, monitorID string) error {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM alert_rules WHERE monitor_id = ?`, monitorID)
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
