package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chris/arcana/internal/journey"
	"github.com/chris/arcana/internal/ledger"
)

const journeyColumns = "user_id, started_at, home_timezone, year_intention, day_index, week_index, ledger, confirmed_day, timezone_mismatch, finished"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJourney(row rowScanner) (journey.Journey, error) {
	var (
		j                  journey.Journey
		started            sql.NullString
		ledgerJSON         string
		mismatch, finished int
	)
	if err := row.Scan(&j.UserID, &started, &j.HomeTimezone, &j.YearIntention, &j.DayIndex, &j.WeekIndex,
		&ledgerJSON, &j.ConfirmedDay, &mismatch, &finished); err != nil {
		return j, err
	}
	t, err := parseTime(started)
	if err != nil {
		return j, fmt.Errorf("parsing started_at: %w", err)
	}
	j.StartedAt = t
	j.TimezoneMismatch = mismatch == 1
	j.Finished = finished == 1
	if err := json.Unmarshal([]byte(ledgerJSON), &j.Ledger); err != nil {
		return j, fmt.Errorf("decoding ledger: %w", err)
	}
	if j.Ledger.Completed == nil {
		j.Ledger.Completed = ledger.DaySet{}
	}
	if j.Ledger.Missed == nil {
		j.Ledger.Missed = ledger.DaySet{}
	}
	return j, nil
}

// LoadJourney returns ErrNotFound when the user has no journey row.
func (d *DB) LoadJourney(ctx context.Context, userID string) (journey.Journey, error) {
	row := d.conn.QueryRowContext(ctx, "SELECT "+journeyColumns+" FROM journeys WHERE user_id = ?", userID)
	j, err := scanJourney(row)
	if errors.Is(err, sql.ErrNoRows) {
		return journey.Journey{}, fmt.Errorf("journey %q: %w", userID, ErrNotFound)
	}
	if err != nil {
		return journey.Journey{}, fmt.Errorf("loading journey: %w", err)
	}
	return j, nil
}

// ListJourneys returns every journey ordered by user.
func (d *DB) ListJourneys(ctx context.Context) ([]journey.Journey, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT "+journeyColumns+" FROM journeys ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("listing journeys: %w", err)
	}
	defer rows.Close()
	var out []journey.Journey
	for rows.Next() {
		j, err := scanJourney(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning journey: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// SaveJourney writes j. When the stored row belongs to the same year (same
// start instant) its ledger is merged in: the later grant date wins and the
// completed and missed sets are unioned. The pending acknowledgment flag is
// taken from j so an acknowledgment sticks.
func (d *DB) SaveJourney(ctx context.Context, j journey.Journey) error {
	return withRetry(func() error {
		tx, err := d.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		merged := j.Ledger.Clone()
		prev, err := scanJourney(tx.QueryRowContext(ctx, "SELECT "+journeyColumns+" FROM journeys WHERE user_id = ?", j.UserID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("reading stored journey: %w", err)
		case prev.StartedAt.Equal(j.StartedAt):
			merged.Merge(prev.Ledger)
			merged.PendingAbsenceAck = j.Ledger.PendingAbsenceAck
		}

		ledgerJSON, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encoding ledger: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO journeys (`+journeyColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				started_at = excluded.started_at,
				home_timezone = excluded.home_timezone,
				year_intention = excluded.year_intention,
				day_index = excluded.day_index,
				week_index = excluded.week_index,
				ledger = excluded.ledger,
				confirmed_day = excluded.confirmed_day,
				timezone_mismatch = excluded.timezone_mismatch,
				finished = excluded.finished,
				updated_at = datetime('now')`,
			j.UserID, formatTime(j.StartedAt), j.HomeTimezone, j.YearIntention, j.DayIndex, j.WeekIndex,
			string(ledgerJSON), j.ConfirmedDay, boolInt(j.TimezoneMismatch), boolInt(j.Finished),
		)
		if err != nil {
			return fmt.Errorf("saving journey: %w", err)
		}
		return tx.Commit()
	})
}

// DeleteJourney removes the journey and, by cascade, its readings.
func (d *DB) DeleteJourney(ctx context.Context, userID string) error {
	return withRetry(func() error {
		res, err := d.conn.ExecContext(ctx, "DELETE FROM journeys WHERE user_id = ?", userID)
		if err != nil {
			return fmt.Errorf("deleting journey: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("journey %q: %w", userID, ErrNotFound)
		}
		return nil
	})
}
