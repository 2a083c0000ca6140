// Package tarot holds the 78-card deck and resolves card names to the
// one-line meanings the prompt assembler needs.
package tarot

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chris/arcana/internal/prompt"
)

const meaningTTL = 6 * time.Hour

type cachedLine struct {
	line    string
	expires time.Time
}

// Deck is safe for concurrent use.
type Deck struct {
	cards  []Card
	byID   map[string]int
	byName map[string]int

	mu    sync.Mutex
	lines map[string]cachedLine
	now   func() time.Time
}

// NewDeck builds a deck from cards. Later duplicates of an ID or name are ignored.
func NewDeck(cards []Card) *Deck {
	d := &Deck{
		byID:   make(map[string]int, len(cards)),
		byName: make(map[string]int, len(cards)),
		lines:  make(map[string]cachedLine),
		now:    time.Now,
	}
	for _, c := range cards {
		name := strings.ToLower(c.Name)
		if _, dup := d.byName[name]; dup {
			continue
		}
		if _, dup := d.byID[c.ID]; dup {
			continue
		}
		d.byID[c.ID] = len(d.cards)
		d.byName[name] = len(d.cards)
		d.cards = append(d.cards, c)
	}
	return d
}

// Standard returns the full local deck: majors first, then minors by suit.
func Standard() *Deck {
	cards := make([]Card, 0, 78)
	cards = append(cards, majors...)
	cards = append(cards, minors()...)
	return NewDeck(cards)
}

func (d *Deck) Len() int { return len(d.cards) }

// Cards returns a copy of the deck in order.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

func (d *Deck) ByID(id string) (Card, bool) {
	i, ok := d.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Card{}, false
	}
	return d.cards[i], true
}

// ByName matches case-insensitively. A missing leading "The" is tolerated.
func (d *Deck) ByName(name string) (Card, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if i, ok := d.byName[key]; ok {
		return d.cards[i], true
	}
	if i, ok := d.byName["the "+key]; ok {
		return d.cards[i], true
	}
	if i, ok := d.byID[Slugify(name)]; ok {
		return d.cards[i], true
	}
	return Card{}, false
}

// Lookup resolves an ID or a name.
func (d *Deck) Lookup(ref string) (Card, bool) {
	if c, ok := d.ByID(ref); ok {
		return c, true
	}
	return d.ByName(ref)
}

// MeaningLine implements prompt.MeaningLookup.
func (d *Deck) MeaningLine(name string, pos prompt.Position) (string, bool) {
	key := string(pos) + "|" + strings.ToLower(strings.TrimSpace(name))
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.lines[key]; ok && now.Before(c.expires) {
		return c.line, true
	}
	card, ok := d.ByName(name)
	if !ok {
		return "", false
	}
	line := fmt.Sprintf("%s - %s: %s", pos, card.Name, card.Meaning)
	d.lines[key] = cachedLine{line: line, expires: now.Add(meaningTTL)}
	return line, true
}

// Draw picks three distinct cards in Past, Present, Potential order.
func (d *Deck) Draw(rng *rand.Rand) [3]Card {
	var out [3]Card
	if len(d.cards) < 3 {
		return out
	}
	perm := rng.Perm(len(d.cards))
	for i := range out {
		out[i] = d.cards[perm[i]]
	}
	return out
}

// Search returns cards whose name, keywords or meaning contain every word of
// the query. Name matches sort first.
func (d *Deck) Search(query string) []Card {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil
	}
	type hit struct {
		card  Card
		score int
	}
	var hits []hit
	for _, c := range d.cards {
		name := strings.ToLower(c.Name)
		body := strings.ToLower(strings.Join(c.Keywords, " ") + " " + c.Meaning)
		score, all := 0, true
		for _, w := range words {
			switch {
			case strings.Contains(name, w):
				score += 2
			case strings.Contains(body, w):
				score++
			default:
				all = false
			}
		}
		if all {
			hits = append(hits, hit{c, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	out := make([]Card, len(hits))
	for i, h := range hits {
		out[i] = h.card
	}
	return out
}

// Names returns the card names, as the prompt assembler expects them.
func Names(cards [3]Card) []string {
	return []string{cards[0].Name, cards[1].Name, cards[2].Name}
}

// Source yields the deck to use right now.
type Source interface {
	Deck(ctx context.Context) *Deck
}

// Deck lets a plain deck serve as its own Source.
func (d *Deck) Deck(context.Context) *Deck { return d }
