package persona

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleForBoundaries(t *testing.T) {
	tests := []struct {
		week    int
		act     Act
		persona Persona
		temp    float64
		qs      int
	}{
		{1, ActVeil, ConfidentMystical, 0.6, 2},
		{4, ActVeil, ConfidentMystical, 0.6, 2},
		{5, ActEchoes, PatternRecognizing, 0.6, 2},
		{17, ActEchoes, PatternRecognizing, 0.6, 2},
		{18, ActFracture, QuestioningSelf, 0.5, 3},
		{34, ActFracture, QuestioningSelf, 0.5, 3},
		{35, ActPilgrimage, VulnerableHumble, 0.4, 3},
		{47, ActPilgrimage, VulnerableHumble, 0.4, 3},
		{48, ActRelease, CompassionateMirror, 0.3, 2},
		{52, ActRelease, CompassionateMirror, 0.3, 2},
		{53, ActRelease, CompassionateMirror, 0.3, 2},
		{400, ActRelease, CompassionateMirror, 0.3, 2},
	}
	for _, tt := range tests {
		s := ScheduleFor(tt.week)
		if s.Act != tt.act || s.Persona != tt.persona {
			t.Errorf("ScheduleFor(%d) = %s/%s, want %s/%s", tt.week, s.Act, s.Persona, tt.act, tt.persona)
		}
		if s.Style.Temperature != tt.temp || s.Style.QuestionCount != tt.qs {
			t.Errorf("ScheduleFor(%d) style = %.1f/%d, want %.1f/%d", tt.week, s.Style.Temperature, s.Style.QuestionCount, tt.temp, tt.qs)
		}
		if s.Week != tt.week {
			t.Errorf("ScheduleFor(%d).Week = %d", tt.week, s.Week)
		}
	}
}

func TestScheduleForIsReferentiallyTransparent(t *testing.T) {
	for w := 1; w <= 60; w++ {
		assert.Equal(t, ScheduleFor(w), ScheduleFor(w), "week %d", w)
	}
}

func TestActsPartitionWeeks(t *testing.T) {
	infos := Acts()
	require.Len(t, infos, 5)
	assert.Equal(t, 1, infos[0].FirstWeek)
	for i := 1; i < len(infos); i++ {
		assert.Equal(t, infos[i-1].LastWeek+1, infos[i].FirstWeek, "gap or overlap before %s", infos[i].Act)
	}
	assert.Zero(t, infos[len(infos)-1].LastWeek, "final act is open-ended")

	// Every week maps to exactly the act whose range contains it.
	for w := 1; w <= 104; w++ {
		got := ScheduleFor(w).Act
		matches := 0
		for _, in := range infos {
			if w >= in.FirstWeek && (in.LastWeek == 0 || w <= in.LastWeek) {
				matches++
				assert.Equal(t, in.Act, got, "week %d", w)
			}
		}
		assert.Equal(t, 1, matches, "week %d", w)
	}
}

func TestTrajectory(t *testing.T) {
	// Humility never decreases; temperature never increases.
	prev := ScheduleFor(1)
	for _, in := range Acts()[1:] {
		cur := ScheduleFor(in.FirstWeek)
		assert.GreaterOrEqual(t, cur.Style.Humility, prev.Style.Humility, "%s", cur.Act)
		assert.LessOrEqual(t, cur.Style.Temperature, prev.Style.Temperature, "%s", cur.Act)
		assert.LessOrEqual(t, cur.Style.MetaphorDensity, prev.Style.MetaphorDensity, "%s", cur.Act)
		prev = cur
	}
}

func TestValidWeek(t *testing.T) {
	assert.ErrorIs(t, ValidWeek(0), ErrWeekOutOfRange)
	assert.ErrorIs(t, ValidWeek(-2), ErrWeekOutOfRange)
	assert.NoError(t, ValidWeek(1))
	assert.NoError(t, ValidWeek(99))
}

func TestDescribeAndVoice(t *testing.T) {
	assert.Equal(t, "Increasingly self-aware, admitting uncertainty", Describe(QuestioningSelf))
	assert.Equal(t, Describe(ConfidentMystical), Describe(Persona("unknown")))
	assert.Contains(t, VoiceGuidance(CompassionateMirror), "mirror their words")
	assert.Contains(t, SafetyRails(), "This is reflection, not fortune telling.")
}

func TestSnapshotJSON(t *testing.T) {
	b, err := json.Marshal(ScheduleFor(20))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"week": 20, "act": "fracture", "persona": "questioning_self",
		"style": {
			"tone": "honest, self-aware, gently uncertain",
			"metaphor_density": "low", "aside_frequency": "occasional",
			"directness": "high", "humility": "high",
			"question_count": 3, "temperature": 0.5
		}
	}`, string(b))
}
