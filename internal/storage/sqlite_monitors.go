package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func (s *SQLiteStore) CreateMonitor(ctx context.Context, m *Monitor) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	if m.CurrentStatus == "" {
		m.CurrentStatus = StatusUnknown
	}
	headers, _ := json.Marshal(m.Headers)
	now := formatTime(time.Now())

	_, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO monitors (id, name, type, url, method, headers, expected_status, body_contains,
		 follow_redirects, dns_record_type, dns_expected, interval_seconds, timeout_ms,
		 confirmation_threshold, response_time_threshold_ms, consensus_threshold,
		 is_public, is_paused, tags, group_name, sla_target, sla_period_days,
		 manage_key_hash, current_status, consecutive_failures, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		m.ID, m.Name, m.Type, m.URL, m.Method, string(headers), m.ExpectedStatus, m.BodyContains,
		boolToInt(m.FollowRedirects), m.DNSRecordType, m.DNSExpected, m.IntervalSeconds, m.TimeoutMs,
		m.ConfirmationThreshold, m.ResponseTimeThresholdMs, m.ConsensusThreshold,
		boolToInt(m.IsPublic), boolToInt(m.IsPaused), joinTags(m.Tags), m.GroupName, m.SLATarget, m.SLAPeriodDays,
		m.ManageKeyHash, m.CurrentStatus, now, now,
	)
	if err != nil {
		return err
	}

	m.CreatedAt = parseTime(now)
	m.UpdatedAt = parseTime(now)
	return nil
}

func (s *SQLiteStore) GetMonitor(ctx context.Context, id string) (*Monitor, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, id)
	return scanMonitor(row)
}

func (s *SQLiteStore) GetMonitorByName(ctx context.Context, name string) (*Monitor, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE name = ?`, name)
	return scanMonitor(row)
}

func (s *SQLiteStore) ListPublicMonitors(ctx context.Context) ([]*Monitor, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE is_public = 1 ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	monitors := []*Monitor{}
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

func (s *SQLiteStore) UpdateMonitor(ctx context.Context, m *Monitor) error {
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	headers, _ := json.Marshal(m.Headers)
	now := formatTime(time.Now())
	_, err := s.writeDB.ExecContext(ctx,
		`UPDATE monitors SET name=?, type=?, url=?, method=?, headers=?, expected_status=?, body_contains=?,
		 follow_redirects=?, dns_record_type=?, dns_expected=?, interval_seconds=?, timeout_ms=?,
		 confirmation_threshold=?, response_time_threshold_ms=?, consensus_threshold=?,
		 is_public=?, tags=?, group_name=?, sla_target=?, sla_period_days=?, updated_at=?
		 WHERE id=?`,
		m.Name, m.Type, m.URL, m.Method, string(headers), m.ExpectedStatus, m.BodyContains,
		boolToInt(m.FollowRedirects), m.DNSRecordType, m.DNSExpected, m.IntervalSeconds, m.TimeoutMs,
		m.ConfirmationThreshold, m.ResponseTimeThresholdMs, m.ConsensusThreshold,
		boolToInt(m.IsPublic), joinTags(m.Tags), m.GroupName, m.SLATarget, m.SLAPeriodDays, now, m.ID,
	)
	if err != nil {
		return err
	}
	m.UpdatedAt = parseTime(now)
	return nil
}

func (s *SQLiteStore) DeleteMonitor(ctx context.Context, id string) error {
	_, err := s.writeDB.ExecContext(ctx, "DELETE FROM monitors WHERE id=?", id)
	return err
}

func (s *SQLiteStore) SetMonitorPaused(ctx context.Context, id string, paused bool) error {
	now := formatTime(time.Now())
	_, err := s.writeDB.ExecContext(ctx,
		"UPDATE monitors SET is_paused=?, updated_at=? WHERE id=?",
		boolToInt(paused), now, id)
	return err
}

// NextDueMonitor returns the single most overdue monitor, or sql.ErrNoRows
// when nothing is due. Never-checked monitors sort first, then oldest
// last_checked_at, so backlogged monitors catch up in creation order.
func (s *SQLiteStore) NextDueMonitor(ctx context.Context, now time.Time) (*Monitor, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+monitorColumns+` FROM monitors
		 WHERE is_paused = 0
		   AND (last_checked_at IS NULL
		        OR datetime(last_checked_at, '+' || interval_seconds || ' seconds') <= datetime(?))
		 ORDER BY last_checked_at ASC
		 LIMIT 1`, formatTime(now))
	return scanMonitor(row)
}
