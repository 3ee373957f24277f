package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const locationColumns = "id, name, region, probe_key_hash, is_active, last_seen_at, created_at"

func (s *SQLiteStore) CreateLocation(ctx context.Context, l *CheckLocation) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := formatTime(time.Now().UTC())
	_, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO check_locations (id, name, region, probe_key_hash, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.Name, l.Region, l.ProbeKeyHash, boolToInt(l.IsActive), now)
	if err != nil {
		return err
	}
	l.CreatedAt = parseTime(now)
	return nil
}

func (s *SQLiteStore) GetLocation(ctx context.Context, id string) (*CheckLocation, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM check_locations WHERE id = ?`, id)
	return s.scanLocation(row, time.Now().UTC())
}

func (s *SQLiteStore) GetLocationByKeyHash(ctx context.Context, keyHash string) (*CheckLocation, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM check_locations WHERE probe_key_hash = ?`, keyHash)
	return s.scanLocation(row, time.Now().UTC())
}

func (s *SQLiteStore) ListLocations(ctx context.Context, now time.Time) ([]*CheckLocation, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+locationColumns+` FROM check_locations ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := []*CheckLocation{}
	for rows.Next() {
		l, err := s.scanLocation(rows, now)
		if err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (s *SQLiteStore) DeleteLocation(ctx context.Context, id string) error {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM check_locations WHERE id = ?`, id)
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

// TouchLocation records that the location's probe reported in.
func (s *SQLiteStore) TouchLocation(ctx context.Context, id string, at time.Time) error {
	_, err := s.writeDB.ExecContext(ctx,
		`UPDATE check_locations SET last_seen_at = ? WHERE id = ?`, formatTime(at), id)
	return err
}

func (s *SQLiteStore) scanLocation(row scanner, now time.Time) (*CheckLocation, error) {
	var l CheckLocation
	var lastSeen sql.NullString
	var createdAt string
	err := row.Scan(&l.ID, &l.Name, &l.Region, &l.ProbeKeyHash, &l.IsActive, &lastSeen, &createdAt)
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := parseTime(lastSeen.String)
		l.LastSeenAt = &t
	}
	l.CreatedAt = parseTime(createdAt)
	l.Stale = l.LastSeenAt == nil || now.Sub(*l.LastSeenAt) > s.probeStaleAfter
	return &l, nil
}
