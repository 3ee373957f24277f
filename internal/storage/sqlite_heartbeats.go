package storage

import (
	"context"
	"database/sql"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx so count queries can run
// inside the apply transaction or against the read pool.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) ListHeartbeats(ctx context.Context, monitorID string, c Cursor) ([]*Heartbeat, error) {
	var rows *sql.Rows
	var err error
	if c.After != nil {
		rows, err = s.readDB.QueryContext(ctx,
			`SELECT seq, id, monitor_id, location_id, status, response_time_ms, status_code, error_message, checked_at
			 FROM heartbeats WHERE monitor_id=? AND seq > ? ORDER BY seq ASC LIMIT ?`,
			monitorID, *c.After, c.limit())
	} else {
		rows, err = s.readDB.QueryContext(ctx,
			`SELECT seq, id, monitor_id, location_id, status, response_time_ms, status_code, error_message, checked_at
			 FROM heartbeats WHERE monitor_id=? ORDER BY seq DESC LIMIT ?`,
			monitorID, c.limit())
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	beats := []*Heartbeat{}
	for rows.Next() {
		h, err := scanHeartbeat(rows)
		if err != nil {
			return nil, err
		}
		beats = append(beats, h)
	}
	return beats, rows.Err()
}

// LatestStatusCounts tallies the most recent heartbeat per location for a
// monitor. The local scheduler counts as its own location (null location_id).
// Locations that have gone stale or inactive are excluded.
func (s *SQLiteStore) LatestStatusCounts(ctx context.Context, monitorID string, now time.Time) (*StatusCounts, error) {
	return s.latestStatusCounts(ctx, s.readDB, monitorID, now)
}

func (s *SQLiteStore) latestStatusCounts(ctx context.Context, q querier, monitorID string, now time.Time) (*StatusCounts, error) {
	staleBefore := formatTime(now.Add(-s.probeStaleAfter))
	rows, err := q.QueryContext(ctx,
		`SELECT t.status, COUNT(*)
		 FROM (
			SELECT location_id, status,
			       ROW_NUMBER() OVER (PARTITION BY COALESCE(location_id, '') ORDER BY seq DESC) AS rn
			FROM heartbeats
			WHERE monitor_id = ?
		 ) t
		 LEFT JOIN check_locations cl ON cl.id = t.location_id
		 WHERE t.rn = 1
		   AND (t.location_id IS NULL
		        OR (cl.is_active = 1 AND cl.last_seen_at IS NOT NULL AND datetime(cl.last_seen_at) >= datetime(?)))
		 GROUP BY t.status`,
		monitorID, staleBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch status {
		case StatusUp:
			counts.Up += n
		case StatusDown:
			counts.Down += n
		case StatusDegraded:
			counts.Degraded += n
		default:
			counts.Unknown += n
		}
		counts.Total += n
	}
	return &counts, rows.Err()
}

func scanHeartbeat(row scanner) (*Heartbeat, error) {
	var h Heartbeat
	var locationID sql.NullString
	var statusCode sql.NullInt64
	var checkedAt string
	err := row.Scan(&h.Seq, &h.ID, &h.MonitorID, &locationID, &h.Status,
		&h.ResponseTimeMs, &statusCode, &h.ErrorMessage, &checkedAt)
	if err != nil {
		return nil, err
	}
	if locationID.Valid {
		lid := locationID.String
		h.LocationID = &lid
	}
	if statusCode.Valid {
		sc := int(statusCode.Int64)
		h.StatusCode = &sc
	}
	h.CheckedAt = parseTime(checkedAt)
	return &h, nil
}
