// Package prompt assembles the completion-ready reading prompt from a persona
// snapshot, three card-meaning lines, the user's intention and any
// consent-gated context.
//
// Assembly is deterministic: identical inputs give byte-identical text.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chris/arcana/internal/persona"
)

var ErrCardCount = errors.New("three cards are required for a reading")

// Position labels a card slot. The order of Positions is fixed.
type Position string

const (
	Past      Position = "PAST"
	Present   Position = "PRESENT"
	Potential Position = "POTENTIAL"
)

var Positions = [3]Position{Past, Present, Potential}

// NoIntention is used when neither a daily nor a year intention is given.
const NoIntention = "No specific intention given."

// MeaningLookup resolves a card name in a position to a one-line meaning.
// Implementations must not fail; ok=false means the card was not found.
type MeaningLookup interface {
	MeaningLine(card string, pos Position) (line string, ok bool)
}

// Consent carries the user's opt-ins for optional context. It only ever adds
// lines; it never changes the persona or style.
type Consent struct {
	CurrentEvents bool    `json:"currentEvents"`
	WeatherTone   bool    `json:"weatherTone"`
	CalendarHint  *string `json:"calendarHint"`
}

// Prompt is the assembled text and the single generation parameter the
// snapshot dictates.
type Prompt struct {
	Text        string
	Temperature float64
}

// FallbackLine is substituted when the lookup misses.
func FallbackLine(card string, pos Position) string {
	return fmt.Sprintf("%s - %s: A card of reflection inviting clarity.", pos, card)
}

// MeaningLines resolves exactly three cards, in Past/Present/Potential order.
func MeaningLines(lookup MeaningLookup, cards []string) ([3]string, error) {
	var lines [3]string
	if len(cards) != 3 {
		return lines, fmt.Errorf("got %d cards: %w", len(cards), ErrCardCount)
	}
	for i, card := range cards {
		card = strings.TrimSpace(card)
		if card == "" {
			return lines, fmt.Errorf("card %d is empty: %w", i+1, ErrCardCount)
		}
		line, ok := "", false
		if lookup != nil {
			line, ok = lookup.MeaningLine(card, Positions[i])
		}
		if !ok || line == "" {
			line = FallbackLine(card, Positions[i])
		}
		lines[i] = line
	}
	return lines, nil
}

// Assemble builds the reading prompt.
func Assemble(lines [3]string, intention string, snap persona.Snapshot, consent Consent, missedDay bool) Prompt {
	style := snap.Style
	var b strings.Builder

	fmt.Fprintf(&b, "You are The Oracle — reflective, grounded, ethical. Align with the persona: %s.\n\n",
		persona.Describe(snap.Persona))

	b.WriteString("Cards drawn: Past / Present / Potential\n\n")
	b.WriteString(strings.Join(lines[:], "\n\n"))
	b.WriteString("\n\n")

	if intention = strings.TrimSpace(intention); intention != "" {
		fmt.Fprintf(&b, "Their intention: %q\n", intention)
	} else {
		b.WriteString(NoIntention + "\n")
	}
	if missedDay {
		b.WriteString("Note: They missed the previous day. Acknowledge gently without shame.\n")
	}

	if ctx := consentLines(consent); len(ctx) > 0 {
		b.WriteString("\nContext (consented):\n")
		writeList(&b, ctx)
	}

	b.WriteString("\nWrite a brief reading using these blocks:\n")
	writeList(&b, []string{
		"Intro image (1–2 sentences) that sets a grounded mood",
		"Card-by-card reflections (Past, Present, Potential)",
		"Brief synthesis that invites agency",
		fmt.Sprintf("%s concise reflective question(s)", questionWord(style.QuestionCount)),
	})

	b.WriteString("\nStyle guidance:\n")
	writeList(&b, []string{
		"Tone: " + style.Tone,
		"Voice: " + persona.VoiceGuidance(snap.Persona),
		"Metaphor density: " + style.MetaphorDensity.String(),
		"Asides: " + style.AsideFrequency.String(),
		"Directness: " + style.Directness.String(),
		"Humility: " + style.Humility.String(),
		fmt.Sprintf("Ask %d short reflective question(s) at the end", style.QuestionCount),
	})

	b.WriteString("\nIMPORTANT SAFETY:\n")
	writeList(&b, persona.SafetyRails())

	b.WriteString("\nKeep it concise (≈ 170–220 words). Prefer concrete language over grand prophecy. Close with the question(s).")

	return Prompt{Text: b.String(), Temperature: style.Temperature}
}

func consentLines(c Consent) []string {
	var out []string
	if c.CurrentEvents {
		out = append(out, "If relevant, you may weave subtle public-current motifs (no news specifics).")
	}
	if c.WeatherTone {
		out = append(out, "You may mirror local weather as tone (e.g., soft rain, bright chill).")
	}
	if c.CalendarHint != nil {
		if hint := strings.TrimSpace(*c.CalendarHint); hint != "" {
			out = append(out, fmt.Sprintf("User-provided day hint: %q (invite reflection; do not advise).", hint))
		}
	}
	return out
}

func questionWord(n int) string {
	if n == 1 {
		return "One"
	}
	return fmt.Sprintf("%d", n)
}

func writeList(b *strings.Builder, items []string) {
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
}
