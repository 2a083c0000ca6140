package tarot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/chris/arcana/internal/prompt"
)

const (
	DefaultRemoteURL = "https://tarotapi.dev/api/v1"
	remoteTTL        = 24 * time.Hour
)

type remoteCard struct {
	Type      string `json:"type"`
	NameShort string `json:"name_short"`
	Name      string `json:"name"`
	Suit      string `json:"suit"`
	MeaningUp string `json:"meaning_up"`
}

type remoteResponse struct {
	Cards []remoteCard `json:"cards"`
}

// RemoteDeck overlays upright meanings from a public card API on the local
// deck. Any fetch failure keeps serving the last good deck, or the local one.
type RemoteDeck struct {
	client *resty.Client
	local  *Deck
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	deck    *Deck
	fetched time.Time
}

func NewRemoteDeck(baseURL string, local *Deck, log zerolog.Logger) *RemoteDeck {
	if baseURL == "" {
		baseURL = DefaultRemoteURL
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)
	return &RemoteDeck{client: c, local: local, log: log, now: time.Now}
}

// Deck returns the current deck, refreshing it when older than a day.
func (r *RemoteDeck) Deck(ctx context.Context) *Deck {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.deck != nil && now.Sub(r.fetched) < remoteTTL {
		return r.deck
	}
	cards, err := r.fetch(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("remote deck unavailable, using local deck")
		if r.deck != nil {
			return r.deck
		}
		return r.local
	}
	r.deck = overlay(r.local, cards)
	r.fetched = now
	r.log.Info().Int("cards", len(cards)).Msg("remote deck refreshed")
	return r.deck
}

// MeaningLine implements prompt.MeaningLookup against the current deck.
func (r *RemoteDeck) MeaningLine(name string, pos prompt.Position) (string, bool) {
	return r.Deck(context.Background()).MeaningLine(name, pos)
}

func (r *RemoteDeck) fetch(ctx context.Context) ([]remoteCard, error) {
	var out remoteResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/cards")
	if err != nil {
		return nil, fmt.Errorf("tarot api request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("tarot api status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Cards) == 0 {
		return nil, fmt.Errorf("tarot api returned no cards")
	}
	return out.Cards, nil
}

// overlay replaces the meaning of every local card the remote deck also
// names. IDs, names and keywords stay local so stored readings keep resolving.
func overlay(local *Deck, remote []remoteCard) *Deck {
	meanings := make(map[string]string, len(remote))
	for _, rc := range remote {
		if m := strings.TrimSpace(rc.MeaningUp); m != "" {
			meanings[Slugify(rc.Name)] = m
		}
	}
	cards := local.Cards()
	for i, c := range cards {
		if m, ok := meanings[c.ID]; ok {
			cards[i].Meaning = m
		}
	}
	return NewDeck(cards)
}
