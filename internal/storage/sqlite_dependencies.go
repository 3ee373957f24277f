package storage

import (
	"context"
	"database/sql"
	"time"
)

func (s *SQLiteStore) AddDependency(ctx context.Context, monitorID, dependsOnID string) error {
	_, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO monitor_dependencies (monitor_id, depends_on_id, created_at) VALUES (?, ?, ?)`,
		monitorID, dependsOnID, formatTime(time.Now().UTC()))
	return err
}

func (s *SQLiteStore) RemoveDependency(ctx context.Context, monitorID, dependsOnID string) error {
	res, err := s.writeDB.ExecContext(ctx,
		`DELETE FROM monitor_dependencies WHERE monitor_id = ? AND depends_on_id = ?`,
		monitorID, dependsOnID)
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

func (s *SQLiteStore) HasDependency(ctx context.Context, monitorID, dependsOnID string) (bool, error) {
	var n int
	err := s.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM monitor_dependencies WHERE monitor_id = ? AND depends_on_id = ?`,
		monitorID, dependsOnID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListDependencies(ctx context.Context, monitorID string) ([]*Monitor, error) {
	return s.listDependencyMonitors(ctx,
		`SELECT `+monitorColumns+` FROM monitors
		 WHERE id IN (SELECT depends_on_id FROM monitor_dependencies WHERE monitor_id = ?)
		 ORDER BY name COLLATE NOCASE`, monitorID)
}

func (s *SQLiteStore) ListDependents(ctx context.Context, monitorID string) ([]*Monitor, error) {
	return s.listDependencyMonitors(ctx,
		`SELECT `+monitorColumns+` FROM monitors
		 WHERE id IN (SELECT monitor_id FROM monitor_dependencies WHERE depends_on_id = ?)
		 ORDER BY name COLLATE NOCASE`, monitorID)
}

func (s *SQLiteStore) listDependencyMonitors(ctx context.Context, query, monitorID string) ([]*Monitor, error) {
	rows, err := s.readDB.QueryContext(ctx, query, monitorID)
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

// DependencyPathExists reports whether toID is reachable from fromID over
// dependency edges. Used to reject edges that would close a cycle.
func (s *SQLiteStore) DependencyPathExists(ctx context.Context, fromID, toID string) (bool, error) {
	var n int
	err := s.readDB.QueryRowContext(ctx,
		`WITH RECURSIVE reach(id) AS (
			SELECT depends_on_id FROM monitor_dependencies WHERE monitor_id = ?
			UNION
			SELECT md.depends_on_id FROM monitor_dependencies md
			JOIN reach r ON md.monitor_id = r.id
		 )
		 SELECT COUNT(*) FROM reach WHERE id = ?`, fromID, toID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AnyDependencyDown reports whether one of the monitor's direct dependencies
// is currently down. Alerts for the monitor are suppressed while that holds.
func (s *SQLiteStore) AnyDependencyDown(ctx context.Context, monitorID string) (bool, error) {
	return anyDependencyDown(ctx, s.readDB, monitorID)
}

func anyDependencyDownTx(ctx context.Context, tx *sql.Tx, monitorID string) (bool, error) {
	return anyDependencyDown(ctx, tx, monitorID)
}

func anyDependencyDown(ctx context.Context, q querier, monitorID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM monitor_dependencies md
		 JOIN monitors m ON m.id = md.depends_on_id
		 WHERE md.monitor_id = ? AND m.current_status = 'down'`, monitorID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
