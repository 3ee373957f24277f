package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const channelColumns = "id, monitor_id, name, type, config, is_enabled, created_at"

func (s *SQLiteStore) CreateNotificationChannel(ctx context.Context, ch *NotificationChannel) error {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	cfg, err := json.Marshal(ch.Config)
	if err != nil {
		return fmt.Errorf("marshal channel config: %w", err)
	}
	now := formatTime(time.Now().UTC())
	_, err = s.writeDB.ExecContext(ctx,
		`INSERT INTO notification_channels (id, monitor_id, name, type, config, is_enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.MonitorID, ch.Name, ch.Type, string(cfg), boolToInt(ch.IsEnabled), now)
	if err != nil {
		return err
	}
	ch.CreatedAt = parseTime(now)
	return nil
}

func (s *SQLiteStore) GetNotificationChannel(ctx context.Context, id string) (*NotificationChannel, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM notification_channels WHERE id = ?`, id)
	return scanChannel(row)
}

func (s *SQLiteStore) ListMonitorChannels(ctx context.Context, monitorID string) ([]*NotificationChannel, error) {
	return s.listChannels(ctx,
		`SELECT `+channelColumns+` FROM notification_channels
		 WHERE monitor_id = ? ORDER BY created_at, id`, monitorID)
}

func (s *SQLiteStore) ListEnabledMonitorChannels(ctx context.Context, monitorID string) ([]*NotificationChannel, error) {
	return s.listChannels(ctx,
		`SELECT `+channelColumns+` FROM notification_channels
		 WHERE monitor_id = ? AND is_enabled = 1 ORDER BY created_at, id`, monitorID)
}

func (s *SQLiteStore) listChannels(ctx context.Context, query, monitorID string) ([]*NotificationChannel, error) {
	rows, err := s.readDB.QueryContext(ctx, query, monitorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []*NotificationChannel{}
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (s *SQLiteStore) UpdateNotificationChannel(ctx context.Context, ch *NotificationChannel) error {
	cfg, err := json.Marshal(ch.Config)
	if err != nil {
		return fmt.Errorf("marshal channel config: %w", err)
	}
	res, err := s.writeDB.ExecContext(ctx,
		`UPDATE notification_channels SET name = ?, type = ?, config = ?, is_enabled = ? WHERE id = ?`,
		ch.Name, ch.Type, string(cfg), boolToInt(ch.IsEnabled), ch.ID)
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

func (s *SQLiteStore) DeleteNotificationChannel(ctx context.Context, id string) error {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM notification_channels WHERE id = ?`, id)
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

func scanChannel(row scanner) (*NotificationChannel, error) {
	var ch NotificationChannel
	var cfg, createdAt string
	err := row.Scan(&ch.ID, &ch.MonitorID, &ch.Name, &ch.Type, &cfg, &ch.IsEnabled, &createdAt)
	if err != nil {
		return nil, err
	}
	if cfg == "" {
		cfg = "{}"
	}
	if err := json.Unmarshal([]byte(cfg), &ch.Config); err != nil {
		return nil, fmt.Errorf("unmarshal channel config: %w", err)
	}
	ch.CreatedAt = parseTime(createdAt)
	return &ch, nil
}
