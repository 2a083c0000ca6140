// Package scheduler keeps journeys current while the process runs. A ticker
// recomputes every journey, and one cron entry per home timezone fires at
// local midnight to announce the new day.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/chris/arcana/internal/journey"
	"github.com/chris/arcana/internal/metrics"
)

const (
	DefaultTick   = 60 * time.Second
	DefaultReload = 5 * time.Minute
)

// Practice is the slice of practice.Service the scheduler drives.
type Practice interface {
	LoadAll(ctx context.Context) error
	RecomputeAll(ctx context.Context) []journey.Status
	Timezones() map[string][]string
	Status(ctx context.Context, userID string) (journey.Status, error)
	DiscordUser(ctx context.Context, userID string) (string, error)
}

type Scheduler struct {
	cron       *cron.Cron
	svc        Practice
	webhookURL string
	http       *resty.Client
	dmSend     func(userID, content string) error
	log        zerolog.Logger

	Tick   time.Duration
	Reload time.Duration

	mu       sync.Mutex
	entryIDs map[string]cron.EntryID // zone -> cron entry
	notified map[string]int          // user -> last day announced

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(svc Practice, webhookURL string, dmSend func(userID, content string) error, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		svc:        svc,
		webhookURL: webhookURL,
		http:       resty.New().SetTimeout(10 * time.Second),
		dmSend:     dmSend,
		log:        log,
		Tick:       DefaultTick,
		Reload:     DefaultReload,
		entryIDs:   make(map[string]cron.EntryID),
		notified:   make(map[string]int),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.loadZones(ctx)
	s.cron.Start()

	s.every(ctx, s.Reload, s.loadZones)
	s.every(ctx, s.Tick, func(ctx context.Context) {
		n := len(s.svc.RecomputeAll(ctx))
		metrics.SetActiveJourneys(n)
		s.log.Debug().Int("journeys", n).Msg("recomputed")
	})

	s.log.Info().Dur("tick", s.Tick).Msg("scheduler started")
}

func (s *Scheduler) every(ctx context.Context, d time.Duration, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn(ctx)
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Spec is the cron expression for midnight in zone.
func Spec(zone string) string {
	return fmt.Sprintf("CRON_TZ=%s 0 0 * * *", zone)
}

// loadZones picks up journeys begun elsewhere and keeps exactly one midnight
// entry per home timezone.
func (s *Scheduler) loadZones(ctx context.Context) {
	if err := s.svc.LoadAll(ctx); err != nil {
		s.log.Warn().Err(err).Msg("loading journeys")
	}
	zones := s.svc.Timezones()

	s.mu.Lock()
	defer s.mu.Unlock()

	for zone, id := range s.entryIDs {
		if _, ok := zones[zone]; !ok {
			s.cron.Remove(id)
			delete(s.entryIDs, zone)
		}
	}
	for zone := range zones {
		if _, ok := s.entryIDs[zone]; ok {
			continue
		}
		id, err := s.cron.AddFunc(Spec(zone), func() { s.dawn(ctx, zone) })
		if err != nil {
			s.log.Warn().Err(err).Str("zone", zone).Msg("invalid midnight schedule")
			continue
		}
		s.entryIDs[zone] = id
	}
	s.log.Debug().Int("zones", len(s.entryIDs)).Msg("midnight entries loaded")
}

// Zones lists the timezones with a registered midnight entry.
func (s *Scheduler) Zones() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entryIDs))
	for z := range s.entryIDs {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}

// dawn recomputes every journey homed in zone and announces the new day to
// users who can now read. Each day is announced at most once per user.
func (s *Scheduler) dawn(ctx context.Context, zone string) {
	users := s.svc.Timezones()[zone]
	for _, user := range users {
		st, err := s.svc.Status(ctx, user)
		if err != nil {
			s.log.Warn().Err(err).Str("user", user).Msg("dawn status")
			continue
		}
		if st.State != journey.CanRead {
			continue
		}
		s.mu.Lock()
		seen := s.notified[user] == st.Day
		s.notified[user] = st.Day
		s.mu.Unlock()
		if seen {
			continue
		}
		s.deliver(ctx, user, DawnMessage(st))
	}
}

// DawnMessage is the notice sent when a new day opens.
func DawnMessage(st journey.Status) string {
	msg := fmt.Sprintf("Day %d of your year has dawned. Three cards are waiting.", st.Day)
	if st.PendingAbsenceAck {
		msg += " Welcome back; the days you missed are only noted."
	}
	return msg
}

func (s *Scheduler) deliver(ctx context.Context, user, content string) {
	log := s.log.With().Str("user", user).Logger()
	if s.dmSend != nil {
		id, err := s.svc.DiscordUser(ctx, user)
		if err == nil && id != "" {
			if err := s.dmSend(id, content); err != nil {
				log.Warn().Stack().Err(pkgerrors.WithStack(err)).Msg("DM send failed")
			} else {
				metrics.DawnNotice("dm")
				return
			}
		}
	}
	if s.webhookURL != "" {
		if err := s.postWebhook(ctx, content); err != nil {
			metrics.DawnNotice("failed")
			log.Warn().Stack().Err(pkgerrors.WithStack(err)).Msg("webhook failed")
			return
		}
		metrics.DawnNotice("webhook")
		return
	}
	metrics.DawnNotice("none")
	log.Debug().Msg("no delivery method available (no DM user and no webhook)")
}

func (s *Scheduler) postWebhook(ctx context.Context, content string) error {
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"content": content}).
		Post(s.webhookURL)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
