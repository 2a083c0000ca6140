// Package practice serves many users' journeys from one process. It owns a
// cache of journey machines, the cards each user has drawn but not yet read,
// and the user-facing text console shared by the REPL and the Discord bot.
package practice

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chris/arcana/internal/calendar"
	"github.com/chris/arcana/internal/db"
	"github.com/chris/arcana/internal/journey"
	"github.com/chris/arcana/internal/metrics"
	"github.com/chris/arcana/internal/oracle"
	"github.com/chris/arcana/internal/tarot"
)

// DiscordNotePrefix keys the note holding a user's Discord id.
const DiscordNotePrefix = "discord_user_id:"

var ErrUnknownConsent = errors.New("unknown consent kind")

// Store is the persistence the service needs; *db.DB satisfies it.
type Store interface {
	journey.Store
	LoadJourney(ctx context.Context, userID string) (journey.Journey, error)
	ListJourneys(ctx context.Context) ([]journey.Journey, error)
	ListReadings(ctx context.Context, userID string, limit int) ([]journey.Reading, error)
	GetPreferences(ctx context.Context, userID string) (db.Preferences, error)
	SavePreferences(ctx context.Context, userID string, p db.Preferences) error
	GetNote(ctx context.Context, key string) (string, error)
	SetNote(ctx context.Context, key, value string) error
}

// Reader composes reading text; *oracle.Oracle satisfies it.
type Reader interface {
	Read(ctx context.Context, req oracle.Request) (*oracle.Result, error)
}

type staged struct {
	day   int
	cards [3]tarot.Card
}

type Service struct {
	store  Store
	reader Reader
	deck   tarot.Source
	log    zerolog.Logger

	// DefaultZone is used when Begin is called without a timezone.
	DefaultZone string
	Now         func() time.Time

	beginMu  sync.Mutex
	mu       sync.Mutex
	machines map[string]*journey.Machine
	staged   map[string]staged

	rngMu sync.Mutex
	rng   *rand.Rand

	machineOpts []journey.Option
}

func New(store Store, reader Reader, deck tarot.Source, log zerolog.Logger, opts ...journey.Option) *Service {
	return &Service{
		store:       store,
		reader:      reader,
		deck:        deck,
		log:         log,
		Now:         time.Now,
		machines:    make(map[string]*journey.Machine),
		staged:      make(map[string]staged),
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		machineOpts: opts,
	}
}

// SetRand replaces the card-drawing source.
func (s *Service) SetRand(r *rand.Rand) {
	s.rngMu.Lock()
	s.rng = r
	s.rngMu.Unlock()
}

func (s *Service) compose(ctx context.Context, req journey.ReadingRequest) (string, error) {
	res, err := s.reader.Read(ctx, oracle.Request{
		Cards:     req.Cards[:],
		Week:      req.Week,
		Intention: req.Intention,
		Consent:   req.Consent,
		MissedDay: req.MissedDay,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Machine returns the cached machine for userID, loading it on first use.
// A journey that has not begun is handed out uncached until Begin keeps it.
func (s *Service) Machine(ctx context.Context, userID string) (*journey.Machine, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("empty user id")
	}
	s.mu.Lock()
	m, ok := s.machines[userID]
	s.mu.Unlock()
	if ok {
		return m, nil
	}

	j, err := s.store.LoadJourney(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		j = journey.Journey{UserID: userID}
	} else if err != nil {
		return nil, err
	}
	return s.adopt(ctx, j)
}

func (s *Service) adopt(ctx context.Context, j journey.Journey) (*journey.Machine, error) {
	opts := append([]journey.Option{journey.WithLogger(s.log)}, s.machineOpts...)
	m, err := journey.New(j, journey.OracleFunc(s.compose), s.store, opts...)
	if err != nil {
		return nil, fmt.Errorf("journey %q: %w", j.UserID, err)
	}
	if !j.Started() {
		return m, nil
	}
	m.RecomputeTime(ctx, s.Now())
	if err := m.Hydrate(ctx); err != nil {
		s.log.Warn().Err(err).Str("user", j.UserID).Msg("warning: could not hydrate today's reading")
	}
	return s.keep(m), nil
}

// keep caches m unless another machine for the same user got there first.
func (s *Service) keep(m *journey.Machine) *journey.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.machines[m.UserID()]; ok {
		return existing
	}
	s.machines[m.UserID()] = m
	return m
}

// Cached reports how many journeys are held in memory.
func (s *Service) Cached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.machines)
}

// LoadAll caches a machine for every stored journey.
func (s *Service) LoadAll(ctx context.Context) error {
	js, err := s.store.ListJourneys(ctx)
	if err != nil {
		return err
	}
	for _, j := range js {
		s.mu.Lock()
		_, ok := s.machines[j.UserID]
		s.mu.Unlock()
		if ok {
			continue
		}
		if _, err := s.adopt(ctx, j); err != nil {
			s.log.Warn().Err(err).Str("user", j.UserID).Msg("warning: skipping journey")
		}
	}
	return nil
}

func (s *Service) cached() []*journey.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*journey.Machine, 0, len(s.machines))
	for _, m := range s.machines {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID() < out[j].UserID() })
	return out
}

// RecomputeAll ticks every cached journey that has begun.
func (s *Service) RecomputeAll(ctx context.Context) []journey.Status {
	now := s.Now()
	var out []journey.Status
	for _, m := range s.cached() {
		st := m.RecomputeTime(ctx, now)
		if st.State == journey.NotStarted {
			continue
		}
		out = append(out, st)
	}
	return out
}

// Timezones groups the cached, begun journeys by home timezone.
func (s *Service) Timezones() map[string][]string {
	out := map[string][]string{}
	for _, m := range s.cached() {
		j := m.Journey()
		if j.Started() && j.HomeTimezone != "" {
			out[j.HomeTimezone] = append(out[j.HomeTimezone], j.UserID)
		}
	}
	return out
}

func (s *Service) Begin(ctx context.Context, userID, timezone, intention string, atMidnight bool) (journey.Status, error) {
	s.beginMu.Lock()
	defer s.beginMu.Unlock()

	m, err := s.Machine(ctx, userID)
	if err != nil {
		return journey.Status{}, err
	}
	timezone = homeZone(timezone, s.DefaultZone)
	now := s.Now()
	if err := m.BeginYear(ctx, now, timezone, intention, atMidnight); err != nil {
		return journey.Status{}, err
	}
	if kept := s.keep(m); kept != m {
		return journey.Status{}, journey.ErrAlreadyBegun
	}
	s.clearStaged(m.UserID())
	return m.Status(now), nil
}

// homeZone picks the zone a new year is anchored to. "Local" names whatever
// host runs the process, so it is resolved to an IANA name before it is kept.
func homeZone(requested, fallback string) string {
	for _, tz := range []string{requested, fallback} {
		if tz = strings.TrimSpace(tz); tz != "" && tz != "Local" {
			return tz
		}
	}
	return calendar.DeviceTimezone()
}

// ObserveDevice records the timezone the user's device reports.
func (s *Service) ObserveDevice(ctx context.Context, userID, zone string) (journey.Status, error) {
	m, err := s.Machine(ctx, userID)
	if err != nil {
		return journey.Status{}, err
	}
	return m.ObserveDevice(ctx, s.Now(), zone)
}

// readable maps a non-readable state to the error a reading attempt would get.
func readable(st journey.Status) error {
	switch st.State {
	case journey.NotStarted:
		return journey.ErrNotStarted
	case journey.AwaitingMidnight:
		return journey.ErrAwaitingMidnight
	case journey.Completed:
		return journey.ErrJourneyComplete
	case journey.ReadingInProgress:
		return journey.ErrReadingInProgress
	case journey.GrantedAwaitingConfirm, journey.WaitingForNextDay:
		return journey.ErrAlreadyGranted
	}
	return nil
}

// Draw stages three cards for today. Drawing again the same day returns the
// same cards.
func (s *Service) Draw(ctx context.Context, userID string) ([3]tarot.Card, error) {
	m, err := s.Machine(ctx, userID)
	if err != nil {
		return [3]tarot.Card{}, err
	}
	st := m.RecomputeTime(ctx, s.Now())
	if err := readable(st); err != nil {
		return [3]tarot.Card{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.staged[m.UserID()]; ok && sc.day == st.Day {
		return sc.cards, nil
	}
	s.rngMu.Lock()
	cards := s.deck.Deck(ctx).Draw(s.rng)
	s.rngMu.Unlock()
	s.staged[m.UserID()] = staged{day: st.Day, cards: cards}
	return cards, nil
}

// Staged returns today's drawn-but-unread cards, if any.
func (s *Service) Staged(userID string, day int) ([3]tarot.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.staged[userID]
	if !ok || sc.day != day {
		return [3]tarot.Card{}, false
	}
	return sc.cards, true
}

func (s *Service) clearStaged(userID string) {
	s.mu.Lock()
	delete(s.staged, userID)
	s.mu.Unlock()
}

// Read requests today's reading. With no cards given, the staged draw is
// used, drawing first if needed.
func (s *Service) Read(ctx context.Context, userID string, cards []string, intention string) (*journey.Reading, error) {
	m, err := s.Machine(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		drawn, err := s.Draw(ctx, userID)
		if err != nil {
			return nil, err
		}
		cards = tarot.Names(drawn)
	}
	prefs, err := s.store.GetPreferences(ctx, m.UserID())
	if err != nil {
		s.log.Warn().Err(err).Str("user", m.UserID()).Msg("warning: using default preferences")
		prefs = db.DefaultPreferences()
	}
	r, err := m.RequestReading(ctx, s.Now(), cards, intention, prefs.Consent())
	if err != nil {
		return nil, err
	}
	s.clearStaged(m.UserID())
	metrics.ReadingGranted()
	return r, nil
}

func (s *Service) Journal(ctx context.Context, userID, entry string) error {
	m, err := s.Machine(ctx, userID)
	if err != nil {
		return err
	}
	return m.UpdateJournal(ctx, strings.TrimSpace(entry))
}

func (s *Service) Confirm(ctx context.Context, userID string) error {
	m, err := s.Machine(ctx, userID)
	if err != nil {
		return err
	}
	return m.ConfirmDayComplete(ctx, s.Now())
}

func (s *Service) Acknowledge(ctx context.Context, userID string) error {
	m, err := s.Machine(ctx, userID)
	if err != nil {
		return err
	}
	return m.AcknowledgeAbsence(ctx)
}

// Status recomputes before reporting.
func (s *Service) Status(ctx context.Context, userID string) (journey.Status, error) {
	m, err := s.Machine(ctx, userID)
	if err != nil {
		return journey.Status{}, err
	}
	return m.RecomputeTime(ctx, s.Now()), nil
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]journey.Reading, error) {
	return s.store.ListReadings(ctx, userID, limit)
}

func (s *Service) Preferences(ctx context.Context, userID string) (db.Preferences, error) {
	return s.store.GetPreferences(ctx, userID)
}

func (s *Service) SetPreferences(ctx context.Context, userID string, p db.Preferences) error {
	return s.store.SavePreferences(ctx, userID, p)
}

// SetConsent toggles one consent. kind is one of events, weather, calendar.
func (s *Service) SetConsent(ctx context.Context, userID, kind string, on bool) (db.Preferences, error) {
	p, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return p, err
	}
	switch strings.ToLower(kind) {
	case "events", "current-events", "news":
		p.ConsentCurrentEvents = on
	case "weather":
		p.ConsentWeatherTone = on
	case "calendar", "hints":
		p.ConsentCalendarHints = on
	default:
		return p, fmt.Errorf("%q: %w", kind, ErrUnknownConsent)
	}
	return p, s.store.SavePreferences(ctx, userID, p)
}

// SetCalendarHint stores the day hint. It reaches prompts only with calendar consent.
func (s *Service) SetCalendarHint(ctx context.Context, userID, hint string) (db.Preferences, error) {
	p, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return p, err
	}
	p.CalendarHint = strings.TrimSpace(hint)
	return p, s.store.SavePreferences(ctx, userID, p)
}

// RegisterDiscordUser remembers where to send a user's dawn notices.
func (s *Service) RegisterDiscordUser(ctx context.Context, userID, discordID string) error {
	key := DiscordNotePrefix + userID
	if cur, err := s.store.GetNote(ctx, key); err == nil && cur == discordID {
		return nil
	}
	return s.store.SetNote(ctx, key, discordID)
}

func (s *Service) DiscordUser(ctx context.Context, userID string) (string, error) {
	return s.store.GetNote(ctx, DiscordNotePrefix+userID)
}
