package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chris/arcana/internal/journey"
)

const readingColumns = "id, user_id, day_index, week, cards, oracle_text, intention, journal_entry, created_at"

func scanReading(row rowScanner) (journey.Reading, error) {
	var (
		r         journey.Reading
		cardsJSON string
		created   sql.NullString
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.DayIndex, &r.Week, &cardsJSON, &r.OracleText,
		&r.Intention, &r.JournalEntry, &created); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(cardsJSON), &r.Cards); err != nil {
		return r, fmt.Errorf("decoding cards: %w", err)
	}
	t, err := parseTime(created)
	if err != nil {
		return r, fmt.Errorf("parsing created_at: %w", err)
	}
	r.CreatedAt = t
	return r, nil
}

// UpsertReading stores the reading for its (user, day). A second write for
// the same day keeps the original id and creation time.
func (d *DB) UpsertReading(ctx context.Context, r journey.Reading) error {
	cardsJSON, err := json.Marshal(r.Cards)
	if err != nil {
		return fmt.Errorf("encoding cards: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return withRetry(func() error {
		_, err := d.conn.ExecContext(ctx, `
			INSERT INTO readings (`+readingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, day_index) DO UPDATE SET
				week = excluded.week,
				cards = excluded.cards,
				oracle_text = excluded.oracle_text,
				intention = excluded.intention,
				journal_entry = excluded.journal_entry,
				updated_at = datetime('now')`,
			r.ID, r.UserID, r.DayIndex, r.Week, string(cardsJSON), r.OracleText,
			r.Intention, r.JournalEntry, formatTime(created),
		)
		if err != nil {
			return fmt.Errorf("saving reading: %w", err)
		}
		return nil
	})
}

// GetReading returns ErrNotFound when there is no reading for the day.
func (d *DB) GetReading(ctx context.Context, userID string, day int) (journey.Reading, error) {
	row := d.conn.QueryRowContext(ctx,
		"SELECT "+readingColumns+" FROM readings WHERE user_id = ? AND day_index = ?", userID, day)
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return journey.Reading{}, fmt.Errorf("reading %s/%d: %w", userID, day, ErrNotFound)
	}
	if err != nil {
		return journey.Reading{}, fmt.Errorf("getting reading: %w", err)
	}
	return r, nil
}

// FindReading implements journey.Store: a missing reading is nil, nil.
func (d *DB) FindReading(ctx context.Context, userID string, day int) (*journey.Reading, error) {
	r, err := d.GetReading(ctx, userID, day)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReadings returns a user's readings, newest day first. limit <= 0 means all.
func (d *DB) ListReadings(ctx context.Context, userID string, limit int) ([]journey.Reading, error) {
	q := "SELECT " + readingColumns + " FROM readings WHERE user_id = ? ORDER BY day_index DESC"
	args := []any{userID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := d.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing readings: %w", err)
	}
	defer rows.Close()
	var out []journey.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) UpdateJournal(ctx context.Context, userID string, day int, entry string) error {
	return withRetry(func() error {
		res, err := d.conn.ExecContext(ctx,
			"UPDATE readings SET journal_entry = ?, updated_at = datetime('now') WHERE user_id = ? AND day_index = ?",
			entry, userID, day)
		if err != nil {
			return fmt.Errorf("updating journal: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("reading %s/%d: %w", userID, day, ErrNotFound)
		}
		return nil
	})
}
