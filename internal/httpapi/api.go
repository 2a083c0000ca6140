// Package httpapi exposes the oracle and the journey practice over JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/chris/arcana/internal/metrics"
	"github.com/chris/arcana/internal/oracle"
	"github.com/chris/arcana/internal/practice"
)

type API struct {
	svc    *practice.Service
	reader practice.Reader
	log    zerolog.Logger
}

func New(svc *practice.Service, reader practice.Reader, log zerolog.Logger) *API {
	return &API{svc: svc, reader: reader, log: log}
}

// Router wires every route.
func (a *API) Router() *mux.Router {
	root := mux.NewRouter()
	root.Use(recoverer(a.log))

	root.HandleFunc("/healthz", a.health).Methods("GET")
	root.Handle("/metrics", metrics.Handler()).Methods("GET")
	root.HandleFunc("/api/oracle", a.oracleReading).Methods("POST")
	root.HandleFunc("/api/persona/{week}", a.personaPreview).Methods("GET")

	const j = "/api/journeys/{userId}"
	root.HandleFunc(j, a.device(a.journeyStatus)).Methods("GET")
	root.HandleFunc(j+"/begin", a.begin).Methods("POST")
	root.HandleFunc(j+"/draw", a.device(a.draw)).Methods("POST")
	root.HandleFunc(j+"/reading", a.device(a.reading)).Methods("POST")
	root.HandleFunc(j+"/journal", a.journal).Methods("POST")
	root.HandleFunc(j+"/confirm", a.device(a.confirm)).Methods("POST")
	root.HandleFunc(j+"/acknowledge", a.acknowledge).Methods("POST")
	root.HandleFunc(j+"/readings", a.readings).Methods("GET")

	root.HandleFunc("/api/users/{userId}/preferences", a.getPreferences).Methods("GET")
	root.HandleFunc("/api/users/{userId}/preferences", a.putPreferences).Methods("PUT")
	return root
}

// Server builds an http.Server whose requests inherit ctx.
func (a *API) Server(ctx context.Context, addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

// DeviceZoneHeader carries the IANA zone of the caller's device. The
// deviceTz query parameter is accepted for clients that cannot set headers.
const DeviceZoneHeader = "X-Device-Timezone"

// device records the caller's reported zone on the journey before h runs.
func (a *API) device(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		zone := r.Header.Get(DeviceZoneHeader)
		if zone == "" {
			zone = r.URL.Query().Get("deviceTz")
		}
		if zone != "" {
			if _, err := a.svc.ObserveDevice(r.Context(), mux.Vars(r)["userId"], zone); err != nil {
				a.fail(w, r, err)
				return
			}
		}
		h(w, r)
	}
}

// decode accepts an empty body as "no fields".
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "UP",
		"timestamp": a.svc.Now().Format(time.RFC3339),
	})
}

// oracleReading POST /api/oracle
func (a *API) oracleReading(w http.ResponseWriter, r *http.Request) {
	var req oracle.Request
	if !decode(w, r, &req) {
		return
	}
	res, err := a.reader.Read(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// personaPreview GET /api/persona/{week}
func (a *API) personaPreview(w http.ResponseWriter, r *http.Request) {
	week, err := strconv.Atoi(mux.Vars(r)["week"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "week must be a number")
		return
	}
	snap, err := oracle.PreviewWeek(week)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// journeyStatus GET /api/journeys/{userId}
func (a *API) journeyStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Status(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// begin POST /api/journeys/{userId}/begin
func (a *API) begin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Timezone   string `json:"timezone"`
		Intention  string `json:"intention"`
		AtMidnight bool   `json:"atMidnight"`
	}
	if !decode(w, r, &req) {
		return
	}
	st, err := a.svc.Begin(r.Context(), mux.Vars(r)["userId"], req.Timezone, req.Intention, req.AtMidnight)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// draw POST /api/journeys/{userId}/draw
func (a *API) draw(w http.ResponseWriter, r *http.Request) {
	cards, err := a.svc.Draw(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

// reading POST /api/journeys/{userId}/reading
func (a *API) reading(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cards     []string `json:"cards"`
		Intention string   `json:"intention"`
	}
	if !decode(w, r, &req) {
		return
	}
	rd, err := a.svc.Read(r.Context(), mux.Vars(r)["userId"], req.Cards, req.Intention)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rd)
}

// journal POST /api/journeys/{userId}/journal
func (a *API) journal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entry string `json:"entry"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := a.svc.Journal(r.Context(), mux.Vars(r)["userId"], req.Entry); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// confirm POST /api/journeys/{userId}/confirm
func (a *API) confirm(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if err := a.svc.Confirm(r.Context(), userID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.journeyStatus(w, r)
}

// acknowledge POST /api/journeys/{userId}/acknowledge
func (a *API) acknowledge(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Acknowledge(r.Context(), mux.Vars(r)["userId"]); err != nil {
		a.fail(w, r, err)
		return
	}
	a.journeyStatus(w, r)
}

// readings GET /api/journeys/{userId}/readings?limit=n
func (a *API) readings(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = n
	}
	rs, err := a.svc.History(r.Context(), mux.Vars(r)["userId"], limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": rs, "count": len(rs)})
}

// getPreferences GET /api/users/{userId}/preferences
func (a *API) getPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Preferences(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// putPreferences PUT /api/users/{userId}/preferences
func (a *API) putPreferences(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	p, err := a.svc.Preferences(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	// Fields absent from the body keep their stored values.
	if !decode(w, r, &p) {
		return
	}
	if err := a.svc.SetPreferences(r.Context(), userID, p); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
