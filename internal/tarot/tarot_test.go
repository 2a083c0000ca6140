package tarot

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/arcana/internal/logger"
	"github.com/chris/arcana/internal/prompt"
)

func TestStandardDeck(t *testing.T) {
	d := Standard()
	require.Equal(t, 78, d.Len())

	majorsSeen, minorsSeen := 0, 0
	ids := map[string]bool{}
	for _, c := range d.Cards() {
		assert.False(t, ids[c.ID], "duplicate id %s", c.ID)
		ids[c.ID] = true
		assert.NotEmpty(t, c.Meaning, c.ID)
		assert.NotEmpty(t, c.Keywords, c.ID)
		if c.Arcana == Major {
			majorsSeen++
		} else {
			minorsSeen++
			assert.NotContains(t, c.Meaning, "%s", c.ID)
		}
	}
	assert.Equal(t, 22, majorsSeen)
	assert.Equal(t, 56, minorsSeen)

	c, ok := d.ByID("queen-of-swords")
	require.True(t, ok)
	assert.Equal(t, "Queen of Swords", c.Name)
	assert.Equal(t, "Inner mastery and stewardship shape thought, truth, conflict.", c.Meaning)
	assert.Len(t, c.Keywords, 4)
}

func TestByName(t *testing.T) {
	d := Standard()
	for _, name := range []string{"The Fool", "the fool", "Fool", "  THE STAR ", "wheel of fortune", "Ace of Cups"} {
		_, ok := d.ByName(name)
		assert.True(t, ok, name)
	}
	_, ok := d.ByName("The Jester")
	assert.False(t, ok)
}

func TestMeaningLine(t *testing.T) {
	d := Standard()
	line, ok := d.MeaningLine("the star", prompt.Present)
	require.True(t, ok)
	assert.Equal(t, "PRESENT - The Star: Hope returns after difficulty. Trust in the guidance that comes from your highest aspirations.", line)

	_, ok = d.MeaningLine("Nope", prompt.Past)
	assert.False(t, ok)

	lines, err := prompt.MeaningLines(d, []string{"The Fool", "Nope", "Two of Wands"})
	require.NoError(t, err)
	assert.Equal(t, prompt.FallbackLine("Nope", prompt.Present), lines[1])
	assert.Equal(t, "POTENTIAL - Two of Wands: A choice or balance point emerges in creativity, action, will.", lines[2])
}

func TestMeaningLineCacheExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Standard()
	d.now = func() time.Time { return now }

	_, ok := d.MeaningLine("The Fool", prompt.Past)
	require.True(t, ok)
	require.Len(t, d.lines, 1)

	d.lines["PAST|the fool"] = cachedLine{line: "stale", expires: now.Add(time.Minute)}
	line, _ := d.MeaningLine("The Fool", prompt.Past)
	assert.Equal(t, "stale", line)

	now = now.Add(2 * time.Minute)
	line, _ = d.MeaningLine("The Fool", prompt.Past)
	assert.Contains(t, line, "A fresh start awaits.")
}

func TestDrawDistinct(t *testing.T) {
	d := Standard()
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		cards := d.Draw(rng)
		assert.NotEqual(t, cards[0].ID, cards[1].ID)
		assert.NotEqual(t, cards[1].ID, cards[2].ID)
		assert.NotEqual(t, cards[0].ID, cards[2].ID)
	}
	a := d.Draw(rand.New(rand.NewPCG(7, 7)))
	b := d.Draw(rand.New(rand.NewPCG(7, 7)))
	assert.Equal(t, a, b)
	assert.Len(t, Names(a), 3)
}

func TestSearch(t *testing.T) {
	d := Standard()
	hits := d.Search("star")
	require.NotEmpty(t, hits)
	assert.Equal(t, "The Star", hits[0].Name)

	hits = d.Search("queen cups")
	require.Len(t, hits, 1)
	assert.Equal(t, "queen-of-cups", hits[0].ID)

	assert.Empty(t, d.Search("   "))
	assert.Empty(t, d.Search("zzzz"))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "high-priestess", Slugify("The High Priestess"))
	assert.Equal(t, "wheel-of-fortune", Slugify("Wheel Of Fortune"))
	assert.Equal(t, "ten-of-cups", Slugify(" Ten  of Cups "))
}

func TestSpreads(t *testing.T) {
	s, ok := Spreads["past_present_potential"]
	require.True(t, ok)
	assert.Equal(t, []string{"Past", "Present", "Potential"}, s.Positions)
	assert.Len(t, Spreads, 3)
}

func TestRemoteDeckOverlaysAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "/cards", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nhits":2,"cards":[
			{"type":"major","name_short":"ar00","name":"The Fool","meaning_up":"Folly, mania, extravagance."},
			{"type":"minor","name_short":"cuku","name":"King of Cups","suit":"cups","meaning_up":"Fair man, man of business."}
		]}`))
	}))
	defer srv.Close()

	local := Standard()
	r := NewRemoteDeck(srv.URL, local, logger.Nop())
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	d := r.Deck(context.Background())
	require.Equal(t, 78, d.Len())
	fool, _ := d.ByID("fool")
	assert.Equal(t, "Folly, mania, extravagance.", fool.Meaning)
	star, _ := d.ByID("star")
	assert.Contains(t, star.Meaning, "Hope returns")

	// Local deck is untouched.
	localFool, _ := local.ByID("fool")
	assert.Contains(t, localFool.Meaning, "A fresh start")

	r.Deck(context.Background())
	assert.Equal(t, 1, hits)
	now = now.Add(25 * time.Hour)
	r.Deck(context.Background())
	assert.Equal(t, 2, hits)
}

func TestRemoteDeckFallsBackToLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	local := Standard()
	r := NewRemoteDeck(srv.URL, local, logger.Nop())
	assert.Same(t, local, r.Deck(context.Background()))
}
