package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetNote retrieves a note by key. A missing key yields "".
func (d *DB) GetNote(ctx context.Context, key string) (string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, "SELECT value FROM notes WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting note: %w", err)
	}
	return value, nil
}

// SetNote stores or updates a note by key.
func (d *DB) SetNote(ctx context.Context, key, value string) error {
	return withRetry(func() error {
		_, err := d.conn.ExecContext(ctx,
			"INSERT INTO notes (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')",
			key, value,
		)
		if err != nil {
			return fmt.Errorf("setting note: %w", err)
		}
		return nil
	})
}

// ListNotes returns every note whose key starts with prefix.
func (d *DB) ListNotes(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := d.conn.QueryContext(ctx,
		"SELECT key, value FROM notes WHERE substr(key, 1, length(?)) = ? ORDER BY key", prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
