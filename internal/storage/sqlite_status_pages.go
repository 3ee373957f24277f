package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const statusPageColumns = "id, slug, title, description, custom_head_html, manage_key_hash, created_at, updated_at"

func (s *SQLiteStore) CreateStatusPage(ctx context.Context, p *StatusPage) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := formatTime(time.Now().UTC())

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create status page begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO status_pages (id, slug, title, description, custom_head_html, manage_key_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Title, p.Description, p.CustomHeadHTML, p.ManageKeyHash, now, now)
	if err != nil {
		return err
	}
	if err := setStatusPageMonitorsTx(ctx, tx, p.ID, p.MonitorIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	p.CreatedAt = parseTime(now)
	p.UpdatedAt = parseTime(now)
	return nil
}

func (s *SQLiteStore) GetStatusPageBySlug(ctx context.Context, slug string) (*StatusPage, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+statusPageColumns+` FROM status_pages WHERE slug = ?`, slug)
	p, err := scanStatusPage(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.readDB.QueryContext(ctx,
		`SELECT monitor_id FROM status_page_monitors WHERE page_id = ? ORDER BY position, monitor_id`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	p.MonitorIDs = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		p.MonitorIDs = append(p.MonitorIDs, id)
	}
	return p, rows.Err()
}

func (s *SQLiteStore) UpdateStatusPage(ctx context.Context, p *StatusPage) error {
	now := formatTime(time.Now().UTC())
	res, err := s.writeDB.ExecContext(ctx,
		`UPDATE status_pages SET slug = ?, title = ?, description = ?, custom_head_html = ?, updated_at = ?
		 WHERE id = ?`,
		p.Slug, p.Title, p.Description, p.CustomHeadHTML, now, p.ID)
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
	p.UpdatedAt = parseTime(now)
	return nil
}

func (s *SQLiteStore) DeleteStatusPage(ctx context.Context, id string) error {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM status_pages WHERE id = ?`, id)
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

// SetStatusPageMonitors replaces the page's monitor list. Positions follow
// the order of monitorIDs.
func (s *SQLiteStore) SetStatusPageMonitors(ctx context.Context, pageID string, monitorIDs []string) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set status page monitors begin: %w", err)
	}
	defer tx.Rollback()

	if err := setStatusPageMonitorsTx(ctx, tx, pageID, monitorIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func setStatusPageMonitorsTx(ctx context.Context, tx *sql.Tx, pageID string, monitorIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM status_page_monitors WHERE page_id = ?`, pageID); err != nil {
		return err
	}
	if len(monitorIDs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO status_page_monitors (page_id, monitor_id, position) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, id := range monitorIDs {
		if _, err := stmt.ExecContext(ctx, pageID, id, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) ListStatusPageMonitors(ctx context.Context, pageID string) ([]*Monitor, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+monitorColumns+` FROM monitors
		 WHERE id IN (SELECT monitor_id FROM status_page_monitors WHERE page_id = ?)
		 ORDER BY (SELECT position FROM status_page_monitors spm WHERE spm.page_id = ? AND spm.monitor_id = monitors.id), name COLLATE NOCASE`,
		pageID, pageID)
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

func scanStatusPage(row scanner) (*StatusPage, error) {
	var p StatusPage
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Description, &p.CustomHeadHTML,
		&p.ManageKeyHash, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
