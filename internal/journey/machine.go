package journey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/chris/arcana/internal/calendar"
	"github.com/chris/arcana/internal/ledger"
	"github.com/chris/arcana/internal/persona"
	"github.com/chris/arcana/internal/prompt"
)

// Machine drives one journey. It is safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	j        Journey
	loc      *time.Location
	inFlight bool

	oracle Oracle
	store  Store
	log    zerolog.Logger
	device func() string
	newID  func() string

	// observed is the zone last reported by the user's own device.
	observed string
}

type Option func(*Machine)

func WithLogger(l zerolog.Logger) Option { return func(m *Machine) { m.log = l } }

// WithDeviceZone overrides how the observing timezone is resolved.
func WithDeviceZone(f func() string) Option { return func(m *Machine) { m.device = f } }

func WithIDs(f func() string) Option { return func(m *Machine) { m.newID = f } }

// New wraps j. store may be nil, in which case nothing is persisted.
func New(j Journey, o Oracle, store Store, opts ...Option) (*Machine, error) {
	m := &Machine{
		j:      j.Clone(),
		oracle: o,
		store:  store,
		log:    zerolog.Nop(),
		device: calendar.DeviceTimezone,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	if j.HomeTimezone != "" {
		loc, err := loadHome(j.HomeTimezone)
		if err != nil {
			return nil, err
		}
		m.loc = loc
	}
	if m.j.Ledger.Completed == nil {
		m.j.Ledger.Completed = ledger.DaySet{}
	}
	if m.j.Ledger.Missed == nil {
		m.j.Ledger.Missed = ledger.DaySet{}
	}
	return m, nil
}

// Journey returns a copy of the current state.
func (m *Machine) Journey() Journey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.j.Clone()
}

func (m *Machine) UserID() string { return m.j.UserID }

// Location is the home zone, or nil before the journey begins.
func (m *Machine) Location() *time.Location {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loc
}

// BeginYear starts the journey now, or at the next home midnight when
// atMidnight is set. Only a journey that has not started can begin.
func (m *Machine) BeginYear(ctx context.Context, now time.Time, timezone, intention string, atMidnight bool) error {
	loc, err := loadHome(strings.TrimSpace(timezone))
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.j.Started() {
		m.mu.Unlock()
		return ErrAlreadyBegun
	}
	m.loc = loc
	m.j.HomeTimezone = loc.String()
	m.j.YearIntention = strings.TrimSpace(intention)
	m.j.Ledger.Reset()
	m.j.ConfirmedDay = 0
	m.j.Finished = false
	if atMidnight {
		m.j.StartedAt = calendar.ApproxNextMidnight(now, loc)
		m.j.DayIndex = 0
	} else {
		m.j.StartedAt = now
		m.j.DayIndex = 1
	}
	m.j.WeekIndex = calendar.WeekIndex(m.j.DayIndex)
	m.j.TimezoneMismatch = calendar.IsTimezoneMismatch(m.j.HomeTimezone, m.deviceLocked())
	m.j.Today = Today{Status: Absent}
	snap := m.j.Clone()
	m.mu.Unlock()

	m.log.Info().Str("user", snap.UserID).Str("tz", snap.HomeTimezone).Time("started_at", snap.StartedAt).Msg("journey begun")
	m.persist(ctx, snap)
	return nil
}

func (m *Machine) deviceLocked() string {
	if m.observed != "" {
		return m.observed
	}
	return m.device()
}

// ObserveDevice records the zone the user's device reports and re-derives
// the travel notice. The home zone and gating are unaffected.
func (m *Machine) ObserveDevice(ctx context.Context, now time.Time, zone string) (Status, error) {
	zone = strings.TrimSpace(zone)
	loc, err := calendar.LoadZone(zone)
	if err != nil {
		return Status{}, errors.Join(ErrInvalidTimezone, err)
	}
	m.mu.Lock()
	m.observed = loc.String()
	changed := m.recomputeLocked(now)
	st := m.statusLocked(now)
	snap := m.j.Clone()
	m.mu.Unlock()

	if changed {
		m.persist(ctx, snap)
	}
	return st, nil
}

// recomputeLocked re-derives the time-dependent fields and reports whether
// anything changed.
func (m *Machine) recomputeLocked(now time.Time) bool {
	if !m.j.Started() || m.loc == nil {
		return false
	}
	changed := false

	raw := calendar.DayIndex(m.j.StartedAt, m.loc, now)
	day := raw
	if day > MaxDays {
		day = MaxDays
		if !m.j.Finished {
			m.j.Finished = true
			changed = true
		}
	}
	if day != m.j.DayIndex {
		m.j.DayIndex = day
		m.j.WeekIndex = calendar.WeekIndex(day)
		m.j.Today = Today{}
		changed = true
	}
	if m.j.Ledger.RecomputeMissed(day) {
		changed = true
	}
	if mm := calendar.IsTimezoneMismatch(m.j.HomeTimezone, m.deviceLocked()); mm != m.j.TimezoneMismatch {
		m.j.TimezoneMismatch = mm
		changed = true
	}
	return changed
}

// RecomputeTime is the periodic tick. It only derives state; it never grants.
func (m *Machine) RecomputeTime(ctx context.Context, now time.Time) Status {
	m.mu.Lock()
	changed := m.recomputeLocked(now)
	st := m.statusLocked(now)
	snap := m.j.Clone()
	m.mu.Unlock()

	if changed {
		m.log.Debug().Str("user", snap.UserID).Int("day", snap.DayIndex).Msg("journey recomputed")
		m.persist(ctx, snap)
	}
	return st
}

func (m *Machine) stateLocked(now time.Time) State {
	switch {
	case !m.j.Started():
		return NotStarted
	case m.j.Finished || m.j.ConfirmedDay >= MaxDays:
		return Completed
	case m.j.DayIndex == 0:
		return AwaitingMidnight
	case m.inFlight:
		return ReadingInProgress
	case m.j.Ledger.GrantedToday(m.loc, now):
		if m.j.ConfirmedDay == m.j.DayIndex {
			return WaitingForNextDay
		}
		return GrantedAwaitingConfirm
	}
	return CanRead
}

func (m *Machine) State(now time.Time) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(now)
}

// Status does not recompute; call RecomputeTime first for a fresh view.
func (m *Machine) Status(now time.Time) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked(now)
}

func (m *Machine) statusLocked(now time.Time) Status {
	state := m.stateLocked(now)
	week := m.j.WeekIndex
	if week < 1 {
		week = 1
	}
	st := Status{
		UserID:            m.j.UserID,
		State:             state,
		Day:               m.j.DayIndex,
		Week:              m.j.WeekIndex,
		CanReadToday:      state == CanRead,
		Persona:           persona.ScheduleFor(week),
		HomeTimezone:      m.j.HomeTimezone,
		TimezoneMismatch:  m.j.TimezoneMismatch,
		Missed:            m.j.Ledger.Missed.Sorted(),
		PendingAbsenceAck: m.j.Ledger.PendingAbsenceAck,
		CompletedDays:     len(m.j.Ledger.Completed),
		YearIntention:     m.j.YearIntention,
	}
	switch state {
	case AwaitingMidnight:
		st.NextUnlock = m.j.StartedAt
	case GrantedAwaitingConfirm, WaitingForNextDay, ReadingInProgress:
		st.NextUnlock = calendar.ApproxNextMidnight(now, m.loc)
	}
	if m.j.Today.Status == Hydrated && m.j.Today.Reading != nil {
		r := *m.j.Today.Reading
		st.Today = &r
	}
	return st
}

func validCards(cards []string) ([3]string, error) {
	var out [3]string
	if len(cards) != 3 {
		return out, fmt.Errorf("got %d cards: %w", len(cards), prompt.ErrCardCount)
	}
	for i, c := range cards {
		if out[i] = strings.TrimSpace(c); out[i] == "" {
			return out, fmt.Errorf("card %d is empty: %w", i+1, prompt.ErrCardCount)
		}
	}
	return out, nil
}

// RequestReading grants today's single reading. Inputs are validated before
// any state is inspected; an oracle failure leaves the ledger untouched.
func (m *Machine) RequestReading(ctx context.Context, now time.Time, cards []string, intention string, consent prompt.Consent) (*Reading, error) {
	drawn, err := validCards(cards)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.recomputeLocked(now)
	switch m.stateLocked(now) {
	case NotStarted:
		m.mu.Unlock()
		return nil, ErrNotStarted
	case AwaitingMidnight:
		m.mu.Unlock()
		return nil, ErrAwaitingMidnight
	case Completed:
		m.mu.Unlock()
		return nil, ErrJourneyComplete
	case ReadingInProgress:
		m.mu.Unlock()
		return nil, ErrReadingInProgress
	case GrantedAwaitingConfirm, WaitingForNextDay:
		m.mu.Unlock()
		return nil, ErrAlreadyGranted
	}
	m.inFlight = true
	day, week := m.j.DayIndex, m.j.WeekIndex
	if intention = strings.TrimSpace(intention); intention == "" {
		intention = m.j.YearIntention
	}
	req := ReadingRequest{
		Cards:     drawn,
		Week:      week,
		Intention: intention,
		Consent:   consent,
		MissedDay: m.j.Ledger.Missed.Has(day - 1),
	}
	userID := m.j.UserID
	m.mu.Unlock()

	text, oerr := m.oracle.Compose(ctx, req)

	m.mu.Lock()
	m.inFlight = false
	if oerr != nil {
		m.mu.Unlock()
		m.log.Warn().Err(oerr).Str("user", userID).Int("day", day).Msg("oracle failed, ledger untouched")
		return nil, fmt.Errorf("%w: %w", ErrOracleSilent, oerr)
	}
	// Another request may have granted today while the oracle was composing.
	if !m.j.Ledger.CanReadToday(m.loc, now) || m.j.DayIndex != day {
		m.mu.Unlock()
		return nil, ErrAlreadyGranted
	}
	m.j.Ledger.RecordGrant(day, now, m.loc)
	r := &Reading{
		ID:         m.newID(),
		UserID:     userID,
		DayIndex:   day,
		Week:       week,
		Cards:      drawn,
		OracleText: text,
		Intention:  intention,
		CreatedAt:  now,
	}
	stored := *r
	m.j.Today = Today{Status: Hydrated, Reading: &stored}
	snap := m.j.Clone()
	m.mu.Unlock()

	m.log.Info().Str("user", userID).Int("day", day).Int("week", week).Msg("reading granted")
	if m.store != nil {
		if err := m.store.UpsertReading(ctx, *r); err != nil {
			m.log.Warn().Err(err).Str("user", userID).Msg("warning: failed to save reading")
		}
	}
	m.persist(ctx, snap)
	return r, nil
}

// UpdateJournal replaces the journal entry on today's reading.
func (m *Machine) UpdateJournal(ctx context.Context, entry string) error {
	m.mu.Lock()
	today := m.j.Today
	if today.Status != Hydrated || today.Reading == nil || today.Reading.DayIndex != m.j.DayIndex {
		m.mu.Unlock()
		return ErrNoReading
	}
	today.Reading.JournalEntry = entry
	userID, day := m.j.UserID, m.j.DayIndex
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.UpdateJournal(ctx, userID, day, entry); err != nil {
			m.log.Warn().Err(err).Str("user", userID).Msg("warning: failed to save journal")
		}
	}
	return nil
}

// ConfirmDayComplete closes today. Confirming twice is a no-op.
func (m *Machine) ConfirmDayComplete(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	m.recomputeLocked(now)
	if !m.j.Started() || !m.j.Ledger.GrantedToday(m.loc, now) {
		m.mu.Unlock()
		return ErrNothingToConfirm
	}
	if m.j.ConfirmedDay == m.j.DayIndex {
		m.mu.Unlock()
		return nil
	}
	m.j.ConfirmedDay = m.j.DayIndex
	snap := m.j.Clone()
	m.mu.Unlock()

	m.persist(ctx, snap)
	return nil
}

// AcknowledgeAbsence clears the pending missed-day notice only.
func (m *Machine) AcknowledgeAbsence(ctx context.Context) error {
	m.mu.Lock()
	if !m.j.Ledger.PendingAbsenceAck {
		m.mu.Unlock()
		return nil
	}
	m.j.Ledger.AcknowledgeAbsence()
	snap := m.j.Clone()
	m.mu.Unlock()

	m.persist(ctx, snap)
	return nil
}

// Hydrate loads today's reading from the store.
func (m *Machine) Hydrate(ctx context.Context) error {
	m.mu.Lock()
	userID, day := m.j.UserID, m.j.DayIndex
	if m.store == nil || day == 0 {
		m.j.Today = Today{Status: Absent}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	r, err := m.store.FindReading(ctx, userID, day)
	if err != nil {
		return fmt.Errorf("loading reading for day %d: %w", day, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.j.DayIndex != day || m.j.Today.Status == Hydrated {
		return nil
	}
	if r == nil {
		m.j.Today = Today{Status: Absent}
	} else {
		m.j.Today = Today{Status: Hydrated, Reading: r}
	}
	return nil
}

// Today returns a copy of today's reading state.
func (m *Machine) Today() Today {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.j.Clone().Today
}

func (m *Machine) persist(ctx context.Context, j Journey) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveJourney(ctx, j); err != nil {
		m.log.Warn().Stack().Err(pkgerrors.WithStack(err)).Str("user", j.UserID).Msg("warning: failed to save journey")
	}
}
