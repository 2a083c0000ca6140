// Package persona maps a journey week to the oracle's act, persona and style.
//
// The act table below is the only place the week→act mapping is defined.
// ScheduleFor is pure; callers may cache its results per week.
package persona

import (
	"errors"
	"fmt"
)

var ErrWeekOutOfRange = errors.New("week must be 1 or greater")

type Act string

const (
	ActVeil       Act = "veil"
	ActEchoes     Act = "echoes"
	ActFracture   Act = "fracture"
	ActPilgrimage Act = "pilgrimage"
	ActRelease    Act = "release"
)

type Persona string

const (
	ConfidentMystical   Persona = "confident_mystical"
	PatternRecognizing  Persona = "pattern_recognizing"
	QuestioningSelf     Persona = "questioning_self"
	VulnerableHumble    Persona = "vulnerable_humble"
	CompassionateMirror Persona = "compassionate_mirror"
)

// Level is a three-step ordinal used by most style knobs.
type Level int

const (
	Low Level = iota + 1
	Medium
	High
)

func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// Frequency is the three-step ordinal for asides.
type Frequency int

const (
	Never Frequency = iota + 1
	Rare
	Occasional
)

func (f Frequency) String() string {
	switch f {
	case Never:
		return "none"
	case Rare:
		return "rare"
	case Occasional:
		return "occasional"
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

func (f Frequency) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

type StyleKnobs struct {
	Tone            string    `json:"tone"`
	MetaphorDensity Level     `json:"metaphor_density"`
	AsideFrequency  Frequency `json:"aside_frequency"`
	Directness      Level     `json:"directness"`
	Humility        Level     `json:"humility"`
	QuestionCount   int       `json:"question_count"`
	Temperature     float64   `json:"temperature"`
}

// Snapshot is the immutable schedule output for one week.
type Snapshot struct {
	Week    int        `json:"week"`
	Act     Act        `json:"act"`
	Persona Persona    `json:"persona"`
	Style   StyleKnobs `json:"style"`
}

// ActInfo describes one contiguous block of weeks. LastWeek is 0 for the
// final, open-ended act.
type ActInfo struct {
	Act       Act     `json:"act"`
	Persona   Persona `json:"persona"`
	FirstWeek int     `json:"first_week"`
	LastWeek  int     `json:"last_week,omitempty"`
}

type actRow struct {
	act         Act
	persona     Persona
	firstWeek   int
	description string
	voice       string
	style       StyleKnobs
}

// acts must stay ascending by firstWeek, starting at week 1; each act runs
// until the week before the next one begins.
var acts = [...]actRow{
	{
		act: ActVeil, persona: ConfidentMystical, firstWeek: 1,
		description: "Confident and mystical, speaking with ancient wisdom",
		voice:       "serene and assured; use gentle, grounded mysticism sparingly",
		style: StyleKnobs{
			Tone: "serene, lyrical, lightly mystical", MetaphorDensity: Medium, AsideFrequency: Never,
			Directness: Medium, Humility: Low, QuestionCount: 2, Temperature: 0.6,
		},
	},
	{
		act: ActEchoes, persona: PatternRecognizing, firstWeek: 5,
		description: "Thoughtful and observant, beginning to notice patterns",
		voice:       "reflective and observant; name patterns clearly and kindly",
		style: StyleKnobs{
			Tone: "reflective, pattern-aware, grounded", MetaphorDensity: Medium, AsideFrequency: Rare,
			Directness: Medium, Humility: Medium, QuestionCount: 2, Temperature: 0.6,
		},
	},
	{
		act: ActFracture, persona: QuestioningSelf, firstWeek: 18,
		description: "Increasingly self-aware, admitting uncertainty",
		voice:       "honest about uncertainty; prefer clarity over flourish",
		style: StyleKnobs{
			Tone: "honest, self-aware, gently uncertain", MetaphorDensity: Low, AsideFrequency: Occasional,
			Directness: High, Humility: High, QuestionCount: 3, Temperature: 0.5,
		},
	},
	{
		act: ActPilgrimage, persona: VulnerableHumble, firstWeek: 35,
		description: "Vulnerable and humble, showing genuine uncertainty",
		voice:       "vulnerable and humble; invite the player's wisdom in",
		style: StyleKnobs{
			Tone: "warm, invitational, candid", MetaphorDensity: Low, AsideFrequency: Occasional,
			Directness: High, Humility: High, QuestionCount: 3, Temperature: 0.4,
		},
	},
	{
		act: ActRelease, persona: CompassionateMirror, firstWeek: 48,
		description: "Honest and compassionate, embracing role as reflection tool",
		voice:       "clear and compassionate; mirror their words back with care",
		style: StyleKnobs{
			Tone: "clear, compassionate, minimalist", MetaphorDensity: Low, AsideFrequency: Rare,
			Directness: High, Humility: High, QuestionCount: 2, Temperature: 0.3,
		},
	},
}

func rowFor(week int) *actRow {
	for i := len(acts) - 1; i > 0; i-- {
		if week >= acts[i].firstWeek {
			return &acts[i]
		}
	}
	return &acts[0]
}

func rowForPersona(p Persona) *actRow {
	for i := range acts {
		if acts[i].persona == p {
			return &acts[i]
		}
	}
	return nil
}

// ValidWeek rejects weeks the journey can never be in.
func ValidWeek(week int) error {
	if week < 1 {
		return fmt.Errorf("week %d: %w", week, ErrWeekOutOfRange)
	}
	return nil
}

// ScheduleFor returns the snapshot for a week. It is total: weeks below 1
// resolve to the first act, weeks past the last boundary to the final act.
func ScheduleFor(week int) Snapshot {
	r := rowFor(week)
	return Snapshot{Week: week, Act: r.act, Persona: r.persona, Style: r.style}
}

// Acts lists the act ranges in order.
func Acts() []ActInfo {
	out := make([]ActInfo, len(acts))
	for i, r := range acts {
		out[i] = ActInfo{Act: r.act, Persona: r.persona, FirstWeek: r.firstWeek}
		if i+1 < len(acts) {
			out[i].LastWeek = acts[i+1].firstWeek - 1
		}
	}
	return out
}

// Describe returns the preamble description for a persona.
func Describe(p Persona) string {
	if r := rowForPersona(p); r != nil {
		return r.description
	}
	return acts[0].description
}

// VoiceGuidance is a one-line voice hint for a persona.
func VoiceGuidance(p Persona) string {
	if r := rowForPersona(p); r != nil {
		return r.voice
	}
	return acts[0].voice
}

// SafetyRails are fixed and apply to every reading.
func SafetyRails() []string {
	return []string{
		"No medical, legal, or financial advice.",
		"Avoid deterministic or prophetic claims; emphasize agency and reflection.",
		"Be respectful and non-judgmental; offer invitations, not directives.",
		"This is reflection, not fortune telling.",
	}
}
