package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chris/arcana/internal/prompt"
)

// Preferences are a user's consent and comfort settings.
type Preferences struct {
	ConsentCurrentEvents bool   `json:"consentCurrentEvents"`
	ConsentWeatherTone   bool   `json:"consentWeatherTone"`
	ConsentCalendarHints bool   `json:"consentCalendarHints"`
	CalendarHint         string `json:"calendarHint,omitempty"`
	ContentWarnings      bool   `json:"contentWarnings"`
	GroundingPause       bool   `json:"groundingPause"`
	TransparencyBadge    bool   `json:"transparencyBadge"`
}

// DefaultPreferences has every consent off and every comfort aid on.
func DefaultPreferences() Preferences {
	return Preferences{ContentWarnings: true, GroundingPause: true, TransparencyBadge: true}
}

// Consent derives the prompt context the user has opted into. The calendar
// hint only passes through when calendar hints are consented.
func (p Preferences) Consent() prompt.Consent {
	c := prompt.Consent{CurrentEvents: p.ConsentCurrentEvents, WeatherTone: p.ConsentWeatherTone}
	if p.ConsentCalendarHints && p.CalendarHint != "" {
		hint := p.CalendarHint
		c.CalendarHint = &hint
	}
	return c
}

// GetPreferences returns the defaults for a user with no stored row.
func (d *DB) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	var (
		p                                    Preferences
		events, weather, hints, cw, gp, badge int
	)
	err := d.conn.QueryRowContext(ctx, `
		SELECT consent_current_events, consent_weather_tone, consent_calendar_hints, calendar_hint,
		       content_warnings, grounding_pause, transparency_badge
		FROM preferences WHERE user_id = ?`, userID,
	).Scan(&events, &weather, &hints, &p.CalendarHint, &cw, &gp, &badge)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("getting preferences: %w", err)
	}
	p.ConsentCurrentEvents = events == 1
	p.ConsentWeatherTone = weather == 1
	p.ConsentCalendarHints = hints == 1
	p.ContentWarnings = cw == 1
	p.GroundingPause = gp == 1
	p.TransparencyBadge = badge == 1
	return p, nil
}

func (d *DB) SavePreferences(ctx context.Context, userID string, p Preferences) error {
	return withRetry(func() error {
		_, err := d.conn.ExecContext(ctx, `
			INSERT INTO preferences (user_id, consent_current_events, consent_weather_tone, consent_calendar_hints,
				calendar_hint, content_warnings, grounding_pause, transparency_badge)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				consent_current_events = excluded.consent_current_events,
				consent_weather_tone = excluded.consent_weather_tone,
				consent_calendar_hints = excluded.consent_calendar_hints,
				calendar_hint = excluded.calendar_hint,
				content_warnings = excluded.content_warnings,
				grounding_pause = excluded.grounding_pause,
				transparency_badge = excluded.transparency_badge,
				updated_at = datetime('now')`,
			userID, boolInt(p.ConsentCurrentEvents), boolInt(p.ConsentWeatherTone), boolInt(p.ConsentCalendarHints),
			p.CalendarHint, boolInt(p.ContentWarnings), boolInt(p.GroundingPause), boolInt(p.TransparencyBadge),
		)
		if err != nil {
			return fmt.Errorf("saving preferences: %w", err)
		}
		return nil
	})
}
