// Package journey is the state machine for a year-long reading practice.
//
// A Machine owns one Journey. Every operation takes the observing instant
// explicitly; nothing in this package reads the wall clock.
package journey

import (
	"context"
	"errors"
	"time"

	"github.com/chris/arcana/internal/calendar"
	"github.com/chris/arcana/internal/ledger"
	"github.com/chris/arcana/internal/persona"
	"github.com/chris/arcana/internal/prompt"
)

// MaxDays caps the day index.
const MaxDays = 365

var (
	ErrInvalidTimezone   = errors.New("invalid home timezone")
	ErrAlreadyBegun      = errors.New("journey already begun")
	ErrNotStarted        = errors.New("journey not started")
	ErrAwaitingMidnight  = errors.New("journey begins at the next home midnight")
	ErrJourneyComplete   = errors.New("journey complete")
	ErrAlreadyGranted    = errors.New("today's reading has already been drawn")
	ErrReadingInProgress = errors.New("a reading is already in progress")
	ErrOracleSilent      = errors.New("reading could not be composed")
	ErrNothingToConfirm  = errors.New("no reading to confirm today")
	ErrNoReading         = errors.New("no reading today")
)

type State string

const (
	NotStarted             State = "not_started"
	AwaitingMidnight       State = "awaiting_midnight"
	CanRead                State = "can_read"
	ReadingInProgress      State = "reading_in_progress"
	GrantedAwaitingConfirm State = "granted_awaiting_confirm"
	WaitingForNextDay      State = "waiting_for_next_day"
	Completed              State = "completed"
)

// Journey is the persisted per-user state. A zero StartedAt means not started.
type Journey struct {
	UserID           string        `json:"user_id"`
	StartedAt        time.Time     `json:"started_at"`
	HomeTimezone     string        `json:"home_timezone"`
	YearIntention    string        `json:"year_intention,omitempty"`
	DayIndex         int           `json:"day_index"`
	WeekIndex        int           `json:"week_index"`
	Ledger           ledger.Ledger `json:"ledger"`
	ConfirmedDay     int           `json:"confirmed_day,omitempty"`
	TimezoneMismatch bool          `json:"timezone_mismatch"`

	// Finished is set once the day index would pass MaxDays.
	Finished bool `json:"finished,omitempty"`

	Today Today `json:"-"`
}

func (j Journey) Started() bool { return !j.StartedAt.IsZero() }

// Clone deep-copies the ledger and today's reading.
func (j Journey) Clone() Journey {
	c := j
	c.Ledger = j.Ledger.Clone()
	if j.Today.Reading != nil {
		r := *j.Today.Reading
		c.Today.Reading = &r
	}
	return c
}

// Reading is one day's draw. Card order is Past, Present, Potential.
type Reading struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	DayIndex     int       `json:"day_index"`
	Week         int       `json:"week"`
	Cards        [3]string `json:"cards"`
	OracleText   string    `json:"oracle_text"`
	Intention    string    `json:"intention,omitempty"`
	JournalEntry string    `json:"journal_entry,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type TodayStatus int

const (
	// NotLoaded means the store has not been consulted for today yet.
	NotLoaded TodayStatus = iota
	// Absent means the store was consulted and holds no reading for today.
	Absent
	Hydrated
)

func (s TodayStatus) String() string {
	switch s {
	case Absent:
		return "absent"
	case Hydrated:
		return "hydrated"
	}
	return "not_loaded"
}

// Today is today's reading as known to the machine. Reading is set only when
// Status is Hydrated.
type Today struct {
	Status  TodayStatus
	Reading *Reading
}

// ReadingRequest is what the machine hands the oracle.
type ReadingRequest struct {
	Cards     [3]string
	Week      int
	Intention string
	Consent   prompt.Consent
	MissedDay bool
}

// Oracle composes reading text. It may block; the machine never holds its
// lock across the call.
type Oracle interface {
	Compose(ctx context.Context, req ReadingRequest) (string, error)
}

type OracleFunc func(ctx context.Context, req ReadingRequest) (string, error)

func (f OracleFunc) Compose(ctx context.Context, req ReadingRequest) (string, error) {
	return f(ctx, req)
}

// Store persists journeys and readings. FindReading returns nil, nil when
// no reading exists for the day.
type Store interface {
	SaveJourney(ctx context.Context, j Journey) error
	UpsertReading(ctx context.Context, r Reading) error
	FindReading(ctx context.Context, userID string, day int) (*Reading, error)
	UpdateJournal(ctx context.Context, userID string, day int, entry string) error
}

// Status is a read-only view for transports.
type Status struct {
	UserID            string           `json:"user_id"`
	State             State            `json:"state"`
	Day               int              `json:"day"`
	Week              int              `json:"week"`
	CanReadToday      bool             `json:"can_read_today"`
	NextUnlock        time.Time        `json:"next_unlock"`
	Persona           persona.Snapshot `json:"persona"`
	HomeTimezone      string           `json:"home_timezone,omitempty"`
	TimezoneMismatch  bool             `json:"timezone_mismatch"`
	Missed            []int            `json:"missed"`
	PendingAbsenceAck bool             `json:"pending_absence_ack"`
	CompletedDays     int              `json:"completed_days"`
	YearIntention     string           `json:"year_intention,omitempty"`
	Today             *Reading         `json:"today,omitempty"`
}

func loadHome(name string) (*time.Location, error) {
	loc, err := calendar.LoadZone(name)
	if err != nil {
		return nil, errors.Join(ErrInvalidTimezone, err)
	}
	return loc, nil
}
