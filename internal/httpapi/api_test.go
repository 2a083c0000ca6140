package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/arcana/internal/db"
	"github.com/chris/arcana/internal/journey"
	"github.com/chris/arcana/internal/llm"
	"github.com/chris/arcana/internal/logger"
	"github.com/chris/arcana/internal/oracle"
	"github.com/chris/arcana/internal/practice"
	"github.com/chris/arcana/internal/tarot"
)

type harness struct {
	handler http.Handler
	calls   atomic.Int32
	fail    atomic.Bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{}
	complete := llm.CompleterFunc(func(ctx context.Context, p string, temp float64, max int) (string, error) {
		h.calls.Add(1)
		if h.fail.Load() {
			return "", errors.New("upstream 529")
		}
		return "A quiet morning opens.", nil
	})
	deck := tarot.Standard()
	o := oracle.New(complete, deck, logger.Nop())
	svc := practice.New(store, o, deck, logger.Nop(), journey.WithDeviceZone(func() string { return "UTC" }))
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }
	h.handler = New(svc, o, logger.Nop()).Router()
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	w, body := h.do(t, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UP", body["status"])
}

func TestMetricsRoute(t *testing.T) {
	h := newHarness(t)
	_, _ = h.do(t, "POST", "/api/oracle", `{"cards":["The Fool","The Star","Ace of Cups"],"weekNumber":2}`)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `arcana_oracle_requests_total{outcome="ok"}`)
}

func TestOracleRoute(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, "POST", "/api/oracle", `{"cards":["The Fool","The Star","Ace of Cups"],"weekNumber":20}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "A quiet morning opens.", body["text"])
	assert.Equal(t, "fracture", body["persona"].(map[string]any)["act"])

	_, body = h.do(t, "POST", "/api/oracle", `{"cards":["The Fool","The Star","Ace of Cups"],"weekNumber":1,"previewPersonaWeek":40}`)
	assert.Equal(t, "pilgrimage", body["persona"].(map[string]any)["act"])
	assert.Equal(t, int32(2), h.calls.Load())
}

func TestOracleRouteInputErrors(t *testing.T) {
	h := newHarness(t)
	cases := map[string]string{
		"two cards":      `{"cards":["The Fool","The Star"],"weekNumber":3}`,
		"week below one": `{"cards":["The Fool","The Star","Ace of Cups"],"weekNumber":-1}`,
		"long intention": `{"cards":["The Fool","The Star","Ace of Cups"],"intention":"` + strings.Repeat("so much to say ", 1500) + `"}`,
		"bad json":       `{"cards":`,
		"empty body":     ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w, _ := h.do(t, "POST", "/api/oracle", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Zero(t, h.calls.Load(), "input errors never reach the completion call")
}

func TestOracleRouteWeekDefaultsToOne(t *testing.T) {
	h := newHarness(t)
	w, body := h.do(t, "POST", "/api/oracle", `{"cards":["The Fool","The Magician","The Star"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "veil", body["persona"].(map[string]any)["act"])
}

func TestDeviceZoneReport(t *testing.T) {
	h := newHarness(t)
	w, _ := h.do(t, "POST", "/api/journeys/ana/begin", `{"timezone":"UTC"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest("GET", "/api/journeys/ana", nil)
	req.Header.Set(DeviceZoneHeader, "Australia/Sydney")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, true, st["timezone_mismatch"])
	assert.Equal(t, "UTC", st["home_timezone"])

	_, body := h.do(t, "GET", "/api/journeys/ana?deviceTz=UTC", "")
	assert.Equal(t, false, body["timezone_mismatch"])

	w, _ = h.do(t, "GET", "/api/journeys/ana?deviceTz=Local", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOracleRouteSilent(t *testing.T) {
	h := newHarness(t)
	h.fail.Store(true)
	w, body := h.do(t, "POST", "/api/oracle", `{"cards":["The Fool","The Star","Ace of Cups"],"weekNumber":2}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, oracle.SilentMessage, body["message"])
}

func TestPersonaRoute(t *testing.T) {
	h := newHarness(t)
	w, body := h.do(t, "GET", "/api/persona/48", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "release", body["act"])
	assert.Equal(t, "compassionate_mirror", body["persona"])
	assert.Equal(t, 0.3, body["style"].(map[string]any)["temperature"])

	w, _ = h.do(t, "GET", "/api/persona/0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = h.do(t, "GET", "/api/persona/soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJourneyRoutes(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, "GET", "/api/journeys/ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not_started", body["state"])

	w, body = h.do(t, "POST", "/api/journeys/ana/reading", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = h.do(t, "POST", "/api/journeys/ana/begin", `{"timezone":"UTC","intention":"patience"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "can_read", body["state"])
	assert.Equal(t, float64(1), body["day"])

	w, _ = h.do(t, "POST", "/api/journeys/ana/begin", `{"timezone":"UTC"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = h.do(t, "POST", "/api/journeys/bo/begin", `{"timezone":"Mars/Olympus"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = h.do(t, "POST", "/api/journeys/ana/draw", "")
	require.Equal(t, http.StatusOK, w.Code)
	drawn := body["cards"].([]any)
	require.Len(t, drawn, 3)
	firstName := drawn[0].(map[string]any)["name"]

	w, body = h.do(t, "POST", "/api/journeys/ana/reading", `{}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, firstName, body["cards"].([]any)[0])
	assert.Equal(t, "patience", body["intention"])

	w, _ = h.do(t, "POST", "/api/journeys/ana/reading", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = h.do(t, "POST", "/api/journeys/ana/journal", `{"entry":"breathed first"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, body = h.do(t, "POST", "/api/journeys/ana/confirm", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "waiting_for_next_day", body["state"])
	assert.NotEmpty(t, body["today"])

	w, body = h.do(t, "GET", "/api/journeys/ana/readings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
	rd := body["readings"].([]any)[0].(map[string]any)
	assert.Equal(t, "breathed first", rd["journal_entry"])

	w, _ = h.do(t, "GET", "/api/journeys/ana/readings?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = h.do(t, "POST", "/api/journeys/ana/acknowledge", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["pending_absence_ack"])
}

func TestJourneyReadingSilent(t *testing.T) {
	h := newHarness(t)
	w, _ := h.do(t, "POST", "/api/journeys/ana/begin", `{"timezone":"UTC"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	h.fail.Store(true)
	w, body := h.do(t, "POST", "/api/journeys/ana/reading", `{"cards":["The Fool","The Star","Ace of Cups"]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, oracle.SilentMessage, body["message"])

	_, body = h.do(t, "GET", "/api/journeys/ana", "")
	assert.Equal(t, "can_read", body["state"])
}

func TestPreferencesRoutes(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, "GET", "/api/users/ana/preferences", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["consentWeatherTone"])
	assert.Equal(t, true, body["contentWarnings"])

	w, body = h.do(t, "PUT", "/api/users/ana/preferences", `{"consentWeatherTone":true,"calendarHint":"exam day"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["consentWeatherTone"])
	assert.Equal(t, true, body["groundingPause"], "unspecified fields keep their values")

	_, body = h.do(t, "GET", "/api/users/ana/preferences", "")
	assert.Equal(t, "exam day", body["calendarHint"])

	w, _ = h.do(t, "PUT", "/api/users/ana/preferences", `nope`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecovererCatchesPanic(t *testing.T) {
	hd := recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	hd.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(db.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(journey.ErrAwaitingMidnight))
	assert.Equal(t, http.StatusBadRequest, statusFor(practice.ErrUnknownConsent))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("other")))
}

func TestRecovererLogsPanicWithStack(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("httpapi", &buf, "json", "")
	h := recoverer(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("deck spilled")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/persona/1", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	assert.Equal(t, "panic: deck spilled", entry["error"])
	assert.NotEmpty(t, entry["stack"])
}
