package storage

import (
	"context"
	"time"
)

// GetUptimeStats aggregates heartbeats in [from, to). Degraded checks count
// toward availability, a degraded service is still answering.
func (s *SQLiteStore) GetUptimeStats(ctx context.Context, monitorID string, from, to time.Time) (*UptimeStats, error) {
	st := &UptimeStats{MonitorID: monitorID}
	err := s.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status='up' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status='down' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status='degraded' THEN 1 ELSE 0 END), 0),
		        COALESCE(CAST(AVG(response_time_ms) AS INTEGER), 0),
		        COALESCE(MIN(response_time_ms), 0),
		        COALESCE(MAX(response_time_ms), 0)
		 FROM heartbeats WHERE monitor_id=? AND checked_at >= ? AND checked_at < ?`,
		monitorID, formatTime(from), formatTime(to)).
		Scan(&st.TotalChecks, &st.UpChecks, &st.DownChecks, &st.DegradedChecks,
			&st.AvgResponseMs, &st.MinResponseMs, &st.MaxResponseMs)
	if err != nil {
		return nil, err
	}
	if st.TotalChecks == 0 {
		st.UptimePct = 100
		return st, nil
	}
	st.UptimePct = float64(st.TotalChecks-st.DownChecks) / float64(st.TotalChecks) * 100
	return st, nil
}

func (s *SQLiteStore) GetDailyUptime(ctx context.Context, monitorID string, from, to time.Time) ([]*DailyUptime, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT DATE(checked_at) as day,
		        COUNT(*),
		        COALESCE(SUM(CASE WHEN status='up' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status='down' THEN 1 ELSE 0 END), 0)
		 FROM heartbeats
		 WHERE monitor_id=? AND checked_at >= ? AND checked_at < ?
		 GROUP BY DATE(checked_at)
		 ORDER BY day ASC`,
		monitorID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := []*DailyUptime{}
	for rows.Next() {
		var d DailyUptime
		if err := rows.Scan(&d.Date, &d.TotalChecks, &d.UpChecks, &d.DownChecks); err != nil {
			return nil, err
		}
		if d.TotalChecks > 0 {
			d.UptimePct = float64(d.TotalChecks-d.DownChecks) / float64(d.TotalChecks) * 100
		}
		days = append(days, &d)
	}
	return days, rows.Err()
}

// GetResponseTimePercentiles computes latency percentiles over heartbeats
// that got an answer. Degraded checks stay in the sample; they are the tail
// the percentiles exist to show.
func (s *SQLiteStore) GetResponseTimePercentiles(ctx context.Context, monitorID string, from, to time.Time) (p50, p95, p99 int64, err error) {
	err = s.readDB.QueryRowContext(ctx,
		`WITH s AS (
		   SELECT response_time_ms,
		          ROW_NUMBER() OVER (ORDER BY response_time_ms) AS rn,
		          COUNT(*) OVER ()                              AS n
		   FROM heartbeats
		   WHERE monitor_id=? AND checked_at >= ? AND checked_at < ?
		     AND status IN ('up', 'degraded')
		 )
		 SELECT
		   COALESCE(MIN(CASE WHEN rn >= n * 0.50 THEN response_time_ms END), 0),
		   COALESCE(MIN(CASE WHEN rn >= n * 0.95 THEN response_time_ms END), 0),
		   COALESCE(MIN(CASE WHEN rn >= n * 0.99 THEN response_time_ms END), 0)
		 FROM s`,
		monitorID, formatTime(from), formatTime(to)).Scan(&p50, &p95, &p99)
	return
}

func (s *SQLiteStore) PurgeOldHeartbeats(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.writeDB.ExecContext(ctx,
		`DELETE FROM heartbeats WHERE checked_at < ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
