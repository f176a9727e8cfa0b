package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trading-alerts/internal/model"
)

const settingsKey = "engine"

// SaveSettings replaces the persisted settings.
func (d *DB) SaveSettings(ctx context.Context, s model.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("sqlite: marshal settings: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (name, data, updated_at) VALUES (?, ?, ?)`,
		settingsKey, string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save settings: %w", err)
	}
	return nil
}

// LoadSettings reads the persisted settings. found is false when nothing
// was saved yet.
func (d *DB) LoadSettings(ctx context.Context) (s model.Settings, found bool, err error) {
	var data string
	err = d.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE name = ?`, settingsKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settings{}, false, nil
	}
	if err != nil {
		return model.Settings{}, false, fmt.Errorf("sqlite: read settings: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return model.Settings{}, false, fmt.Errorf("sqlite: decode settings: %w", err)
	}
	return s, true, nil
}
