package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trading-alerts/internal/model"
)

// SaveAlert inserts or replaces one alert record.
func (d *DB) SaveAlert(ctx context.Context, a model.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("sqlite: marshal alert %s: %w", a.ID, err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO alerts (id, data, updated_at) VALUES (?, ?, ?)`,
		a.ID, string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save alert %s: %w", a.ID, err)
	}
	return nil
}

// DeleteAlert removes an alert record. Deleting a missing id is not an error.
func (d *DB) DeleteAlert(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete alert %s: %w", id, err)
	}
	return nil
}

// LoadAlerts reads every alert record.
func (d *DB) LoadAlerts(ctx context.Context) ([]model.Alert, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, data FROM alerts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("sqlite: scan alert: %w", err)
		}
		var a model.Alert
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			// A corrupt row must not hide every other alert.
			d.log.WithError(err).WithField("alert_id", id).Warn("skipping unreadable alert row")
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
