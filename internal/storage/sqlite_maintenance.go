package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const maintenanceColumns = "id, monitor_id, title, starts_at, ends_at, created_at"

func (s *SQLiteStore) CreateMaintenanceWindow(ctx context.Context, mw *MaintenanceWindow) error {
	if mw.ID == "" {
		mw.ID = uuid.NewString()
	}
	now := formatTime(time.Now().UTC())
	_, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO maintenance_windows (id, monitor_id, title, starts_at, ends_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		mw.ID, mw.MonitorID, mw.Title, formatTime(mw.StartsAt), formatTime(mw.EndsAt), now)
	if err != nil {
		return err
	}
	mw.CreatedAt = parseTime(now)
	return nil
}

func (s *SQLiteStore) GetMaintenanceWindow(ctx context.Context, id string) (*MaintenanceWindow, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+maintenanceColumns+` FROM maintenance_windows WHERE id = ?`, id)
	return scanMaintenanceWindow(row)
}

func (s *SQLiteStore) ListMaintenanceWindows(ctx context.Context, monitorID string) ([]*MaintenanceWindow, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+maintenanceColumns+` FROM maintenance_windows
		 WHERE monitor_id = ? ORDER BY starts_at DESC`, monitorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	windows := []*MaintenanceWindow{}
	for rows.Next() {
		mw, err := scanMaintenanceWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, mw)
	}
	return windows, rows.Err()
}

func (s *SQLiteStore) DeleteMaintenanceWindow(ctx context.Context, id string) error {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM maintenance_windows WHERE id = ?`, id)
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

// InMaintenance reports whether any window for the monitor covers the given
// instant. The start is inclusive and the end exclusive, so back-to-back
// windows never overlap.
func (s *SQLiteStore) InMaintenance(ctx context.Context, monitorID string, at time.Time) (bool, error) {
	return inMaintenance(ctx, s.readDB, monitorID, at)
}

func inMaintenanceTx(ctx context.Context, tx *sql.Tx, monitorID string, at time.Time) (bool, error) {
	return inMaintenance(ctx, tx, monitorID, at)
}

func inMaintenance(ctx context.Context, q querier, monitorID string, at time.Time) (bool, error) {
	ts := formatTime(at)
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM maintenance_windows
		 WHERE monitor_id = ? AND starts_at <= ? AND ends_at > ?`,
		monitorID, ts, ts).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanMaintenanceWindow(row scanner) (*MaintenanceWindow, error) {
	var mw MaintenanceWindow
	var startsAt, endsAt, createdAt string
	err := row.Scan(&mw.ID, &mw.MonitorID, &mw.Title, &startsAt, &endsAt, &createdAt)
	if err != nil {
		return nil, err
	}
	mw.StartsAt = parseTime(startsAt)
	mw.EndsAt = parseTime(endsAt)
	mw.CreatedAt = parseTime(createdAt)
	return &mw, nil
}
