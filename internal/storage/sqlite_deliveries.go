package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const deliveryColumns = "seq, id, delivery_group, monitor_id, event, url, attempt, status, status_code, error_message, response_time_ms, created_at"

func (s *SQLiteStore) InsertWebhookDelivery(ctx context.Context, d *WebhookDelivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := formatTime(time.Now().UTC())
	res, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, delivery_group, monitor_id, event, url, attempt, status, status_code, error_message, response_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DeliveryGroup, d.MonitorID, d.Event, d.URL, d.Attempt,
		d.Status, nullIntPtr(d.StatusCode), d.ErrorMessage, d.ResponseTimeMs, now)
	if err != nil {
		return err
	}
	d.Seq, _ = res.LastInsertId()
	d.CreatedAt = parseTime(now)
	return nil
}

func (s *SQLiteStore) ListWebhookDeliveries(ctx context.Context, monitorID string, c Cursor) ([]*WebhookDelivery, error) {
	var query string
	args := []any{monitorID}
	if c.After != nil {
		query = `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		         WHERE monitor_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?`
		args = append(args, *c.After, c.limit())
	} else {
		query = `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		         WHERE monitor_id = ? ORDER BY seq DESC LIMIT ?`
		args = append(args, c.limit())
	}

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []*WebhookDelivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func scanDelivery(row scanner) (*WebhookDelivery, error) {
	var d WebhookDelivery
	var statusCode sql.NullInt64
	var createdAt string
	err := row.Scan(&d.Seq, &d.ID, &d.DeliveryGroup, &d.MonitorID, &d.Event, &d.URL,
		&d.Attempt, &d.Status, &statusCode, &d.ErrorMessage, &d.ResponseTimeMs, &createdAt)
	if err != nil {
		return nil, err
	}
	if statusCode.Valid {
		code := int(statusCode.Int64)
		d.StatusCode = &code
	}
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}
