// Package oracle composes a reading: persona snapshot, assembled prompt and
// one completion call.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/chris/arcana/internal/llm"
	"github.com/chris/arcana/internal/metrics"
	"github.com/chris/arcana/internal/persona"
	"github.com/chris/arcana/internal/prompt"
)

const (
	DefaultMaxTokens = 900
	DefaultTimeout   = 60 * time.Second

	// SilentText replaces an empty completion.
	SilentText = "The Oracle speaks in silence."

	// SilentMessage is what a user sees in place of ErrSilent.
	SilentMessage = "The Oracle is temporarily silent. Please try again."
)

// ErrSilent is returned when the completion service fails or times out.
var ErrSilent = errors.New("oracle: completion failed")

type Request struct {
	Cards []string `json:"cards"`
	// Week 0 means the field was omitted and reads as week 1.
	Week      int            `json:"weekNumber"`
	Intention string         `json:"intention,omitempty"`
	Consent   prompt.Consent `json:"consent"`
	MissedDay bool           `json:"missedDay,omitempty"`

	// PreviewWeek, when positive, replaces Week for persona selection.
	PreviewWeek int `json:"previewPersonaWeek,omitempty"`
}

type Result struct {
	Text     string           `json:"text"`
	Snapshot persona.Snapshot `json:"persona"`
}

type Oracle struct {
	completer llm.Completer
	lookup    prompt.MeaningLookup
	log       zerolog.Logger

	MaxTokens int
	Timeout   time.Duration
	// PromptBudget caps the assembled prompt in estimated tokens; 0 disables it.
	PromptBudget int
}

func New(c llm.Completer, lookup prompt.MeaningLookup, log zerolog.Logger) *Oracle {
	return &Oracle{
		completer: c,
		lookup:    lookup,
		log:       log,
		MaxTokens:    DefaultMaxTokens,
		Timeout:      DefaultTimeout,
		PromptBudget: llm.DefaultPromptBudget,
	}
}

// Read validates the request before any completion call is made.
func (o *Oracle) Read(ctx context.Context, req Request) (*Result, error) {
	week := req.Week
	if week == 0 {
		week = 1
	}
	if req.PreviewWeek > 0 {
		week = req.PreviewWeek
	}
	if err := persona.ValidWeek(week); err != nil {
		return nil, err
	}
	lines, err := prompt.MeaningLines(o.lookup, req.Cards)
	if err != nil {
		return nil, err
	}

	snap := persona.ScheduleFor(week)
	p := prompt.Assemble(lines, req.Intention, snap, req.Consent, req.MissedDay)
	budget := llm.Budget{Prompt: o.PromptBudget, Output: o.MaxTokens}
	promptTokens, err := budget.Check(p.Text)
	if err != nil {
		return nil, err
	}

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := o.completer.Complete(ctx, p.Text, p.Temperature, o.MaxTokens)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveOracle(metrics.OutcomeError, elapsed)
		o.log.Warn().Stack().Err(pkgerrors.WithStack(err)).Int("week", week).Dur("elapsed", elapsed).Msg("completion failed")
		return nil, fmt.Errorf("%w: %v", ErrSilent, err)
	}
	o.log.Debug().
		Int("week", week).
		Str("act", string(snap.Act)).
		Int("prompt_tokens", promptTokens).
		Int("call_tokens", budget.Total(p.Text)).
		Dur("elapsed", elapsed).
		Msg("reading composed")

	outcome := metrics.OutcomeOK
	if text = strings.TrimSpace(text); text == "" {
		text, outcome = SilentText, metrics.OutcomeEmpty
	}
	metrics.ObserveOracle(outcome, elapsed)
	return &Result{Text: text, Snapshot: snap}, nil
}

// PreviewWeek returns the snapshot a given week would use, without a reading.
func PreviewWeek(week int) (persona.Snapshot, error) {
	if err := persona.ValidWeek(week); err != nil {
		return persona.Snapshot{}, err
	}
	return persona.ScheduleFor(week), nil
}
