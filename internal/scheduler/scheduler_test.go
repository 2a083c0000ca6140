package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/arcana/internal/journey"
	"github.com/chris/arcana/internal/logger"
)

type fakePractice struct {
	mu       sync.Mutex
	zones    map[string][]string
	statuses map[string]journey.Status
	discord  map[string]string
	loads    int
	ticks    int
}

func (f *fakePractice) LoadAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return nil
}

func (f *fakePractice) RecomputeAll(context.Context) []journey.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks++
	return nil
}

func (f *fakePractice) Timezones() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]string{}
	for k, v := range f.zones {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (f *fakePractice) Status(_ context.Context, user string) (journey.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[user]
	if !ok {
		return journey.Status{}, errors.New("unknown user")
	}
	return st, nil
}

func (f *fakePractice) DiscordUser(_ context.Context, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discord[user], nil
}

type sent struct{ to, content string }

func TestLoadZonesDiffsEntries(t *testing.T) {
	fp := &fakePractice{zones: map[string][]string{"UTC": {"a"}, "Asia/Tokyo": {"b"}}}
	s := New(fp, "", nil, logger.Nop())
	ctx := context.Background()

	s.loadZones(ctx)
	assert.Equal(t, []string{"Asia/Tokyo", "UTC"}, s.Zones())
	assert.Len(t, s.cron.Entries(), 2)

	fp.zones = map[string][]string{"UTC": {"a"}, "Europe/Paris": {"c"}, "Not/AZone": {"d"}}
	s.loadZones(ctx)
	assert.Equal(t, []string{"Europe/Paris", "UTC"}, s.Zones())
	assert.Len(t, s.cron.Entries(), 2)
	assert.Equal(t, 2, fp.loads)
}

func TestSpecFiresAtLocalMidnight(t *testing.T) {
	sched, err := cron.ParseStandard(Spec("Asia/Tokyo"))
	require.NoError(t, err)
	from := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) // 18:30 in Tokyo
	next := sched.Next(from)
	assert.Equal(t, time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), next.UTC())
}

func TestDawnDeliversOncePerDay(t *testing.T) {
	fp := &fakePractice{
		zones: map[string][]string{"UTC": {"ana", "bo", "cy"}},
		statuses: map[string]journey.Status{
			"ana": {UserID: "ana", State: journey.CanRead, Day: 4, PendingAbsenceAck: true},
			"bo":  {UserID: "bo", State: journey.GrantedAwaitingConfirm, Day: 4},
			"cy":  {UserID: "cy", State: journey.CanRead, Day: 2},
		},
		discord: map[string]string{"ana": "d-ana"},
	}

	var mu sync.Mutex
	var dms []sent
	var hooks []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		hooks = append(hooks, body["content"])
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := New(fp, srv.URL, func(to, content string) error {
		mu.Lock()
		defer mu.Unlock()
		dms = append(dms, sent{to, content})
		return nil
	}, logger.Nop())

	ctx := context.Background()
	s.dawn(ctx, "UTC")
	s.dawn(ctx, "UTC")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dms, 1)
	assert.Equal(t, "d-ana", dms[0].to)
	assert.Equal(t, "Day 4 of your year has dawned. Three cards are waiting. Welcome back; the days you missed are only noted.", dms[0].content)
	require.Len(t, hooks, 1, "users without a DM id fall back to the webhook")
	assert.Equal(t, "Day 2 of your year has dawned. Three cards are waiting.", hooks[0])

	fp.mu.Lock()
	fp.statuses["cy"] = journey.Status{UserID: "cy", State: journey.CanRead, Day: 3}
	fp.mu.Unlock()
	mu.Unlock()
	s.dawn(ctx, "UTC")
	mu.Lock()
	assert.Len(t, hooks, 2)
}

func TestDeliverFallsBackWhenDMFails(t *testing.T) {
	fp := &fakePractice{discord: map[string]string{"ana": "d-ana"}}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(fp, srv.URL, func(string, string) error { return errors.New("closed") }, logger.Nop())
	s.deliver(context.Background(), "ana", "hello")
	assert.Equal(t, int32(1), hits.Load())
}

func TestDeliveryFailureLogsStack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	s := New(&fakePractice{}, srv.URL, nil, logger.NewWithWriter("scheduler", &buf, "json", "warn"))
	s.deliver(context.Background(), "ana", "hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	assert.Equal(t, "webhook failed", entry["message"])
	assert.Equal(t, "ana", entry["user"])
	assert.NotEmpty(t, entry["stack"])
}

func TestPostWebhookStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := New(&fakePractice{}, srv.URL, nil, logger.Nop())
	err := s.postWebhook(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestStartTicksAndStops(t *testing.T) {
	fp := &fakePractice{zones: map[string][]string{"UTC": {"a"}}}
	s := New(fp, "", nil, logger.Nop())
	s.Tick = 5 * time.Millisecond
	s.Reload = time.Hour

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		fp.mu.Lock()
		defer fp.mu.Unlock()
		return fp.ticks >= 2
	}, time.Second, 5*time.Millisecond)
	s.Stop()
	assert.Equal(t, []string{"UTC"}, s.Zones())
}
