package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trading-alerts/internal/model"
)

// SaveSymbol inserts or replaces one symbol record.
func (d *DB) SaveSymbol(ctx context.Context, s model.Symbol) error {
	return d.SaveSymbols(ctx, []model.Symbol{s})
}

// SaveSymbols upserts a batch of symbols in a single transaction.
func (d *DB) SaveSymbols(ctx context.Context, symbols []model.Symbol) error {
	if len(symbols) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO symbols (symbol, data, updated_at)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite: prepare symbols: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, s := range symbols {
		data, err := json.Marshal(s)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: marshal symbol %s: %w", s.Symbol, err)
		}
		if _, err := stmt.ExecContext(ctx, s.Symbol, string(data), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: save symbol %s: %w", s.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit symbols: %w", err)
	}
	return nil
}

// DeleteSymbol removes a symbol record. Deleting a missing key is not an error.
func (d *DB) DeleteSymbol(ctx context.Context, symbol string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM symbols WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("sqlite: delete symbol %s: %w", symbol, err)
	}
	return nil
}

// LoadSymbols reads every symbol record.
func (d *DB) LoadSymbols(ctx context.Context) ([]model.Symbol, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT symbol, data FROM symbols ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query symbols: %w", err)
	}
	defer rows.Close()

	var out []model.Symbol
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("sqlite: scan symbol: %w", err)
		}
		var s model.Symbol
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			d.log.WithError(err).WithField("symbol", key).Warn("skipping unreadable symbol row")
			continue
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
