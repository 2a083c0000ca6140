package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/chris/arcana/internal/db"
	"github.com/chris/arcana/internal/journey"
	"github.com/chris/arcana/internal/llm"
	"github.com/chris/arcana/internal/oracle"
	"github.com/chris/arcana/internal/persona"
	"github.com/chris/arcana/internal/practice"
	"github.com/chris/arcana/internal/prompt"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Code: status, Message: message})
}

// statusFor maps domain errors to HTTP codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, prompt.ErrCardCount),
		errors.Is(err, llm.ErrPromptTooLong),
		errors.Is(err, persona.ErrWeekOutOfRange),
		errors.Is(err, journey.ErrInvalidTimezone),
		errors.Is(err, practice.ErrUnknownConsent):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound),
		errors.Is(err, journey.ErrNoReading):
		return http.StatusNotFound
	case errors.Is(err, journey.ErrAlreadyBegun),
		errors.Is(err, journey.ErrAlreadyGranted),
		errors.Is(err, journey.ErrReadingInProgress),
		errors.Is(err, journey.ErrAwaitingMidnight),
		errors.Is(err, journey.ErrJourneyComplete),
		errors.Is(err, journey.ErrNotStarted),
		errors.Is(err, journey.ErrNothingToConfirm):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	ev := a.log.Debug()
	if code >= 500 {
		if errors.Is(err, oracle.ErrSilent) || errors.Is(err, journey.ErrOracleSilent) {
			msg = oracle.SilentMessage
		}
		ev = a.log.Warn().Stack()
		err = pkgerrors.WithStack(err)
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", code).Msg("request failed")
	writeError(w, code, msg)
}

// recoverer turns a handler panic into a 500.
func recoverer(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					log.Error().Stack().Err(pkgerrors.Errorf("panic: %v", v)).Str("path", r.URL.Path).Msg("handler panic")
					writeError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
