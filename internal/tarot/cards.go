package tarot

import "strings"

type Arcana string

const (
	Major Arcana = "major"
	Minor Arcana = "minor"
)

type Card struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Arcana   Arcana   `json:"arcana"`
	Suit     string   `json:"suit,omitempty"`
	Keywords []string `json:"keywords"`
	Meaning  string   `json:"meaning"`
	Question string   `json:"question"`
}

const majorQuestion = "What larger pattern or invitation is emerging for you?"

func major(id, name, meaning string, keywords ...string) Card {
	return Card{ID: id, Name: name, Arcana: Major, Keywords: keywords, Meaning: meaning, Question: majorQuestion}
}

var majors = []Card{
	major("fool", "The Fool", "A fresh start awaits. Embrace the unknown with childlike wonder and trust in the journey ahead.", "new beginnings", "innocence", "adventure", "leap of faith"),
	major("magician", "The Magician", "You have all the tools you need. Focus your intention and make your vision reality.", "manifestation", "willpower", "skill", "concentration"),
	major("high-priestess", "The High Priestess", "Trust your inner knowing. The answers you seek lie within, beyond the veil of conscious thought.", "intuition", "inner wisdom", "mystery", "subconscious"),
	major("empress", "The Empress", "Creative energy flows through you. Nurture your ideas and watch them flourish into abundance.", "abundance", "creativity", "nurturing", "fertility"),
	major("emperor", "The Emperor", "Establish order and take command. Your strength lies in creating stable foundations.", "authority", "structure", "stability", "leadership"),
	major("hierophant", "The Hierophant", "Seek wisdom from established traditions. Sometimes the old ways illuminate new paths.", "tradition", "spiritual guidance", "conformity", "education"),
	major("lovers", "The Lovers", "A significant choice approaches. Consider what truly aligns with your deepest values.", "choice", "partnership", "harmony", "values"),
	major("chariot", "The Chariot", "Victory comes through focused determination. Harness opposing forces and drive forward.", "willpower", "determination", "victory", "control"),
	major("strength", "Strength", "True strength comes from within. Gentle persistence overcomes the greatest obstacles.", "inner courage", "compassion", "patience", "gentle power"),
	major("hermit", "The Hermit", "Turn inward for answers. The wisdom you seek can only be found in quiet contemplation.", "soul searching", "inner guidance", "solitude", "wisdom"),
	major("wheel-of-fortune", "Wheel of Fortune", "The wheel turns and change arrives. Embrace the cycles of life with faith and adaptability.", "cycles", "change", "fate", "opportunity"),
	major("justice", "Justice", "Seek balance and truth in all things. Your actions create consequences that return to you.", "balance", "fairness", "truth", "accountability"),
	major("hanged-man", "The Hanged Man", "Sometimes we must pause and surrender to gain a new perspective on our situation.", "suspension", "sacrifice", "new perspective", "letting go"),
	major("death", "Death", "An ending makes way for a new beginning. Transformation requires releasing what no longer serves.", "transformation", "endings", "rebirth", "change"),
	major("temperance", "Temperance", "Find the middle path. Balance opposing forces through patience and careful consideration.", "balance", "moderation", "patience", "harmony"),
	major("devil", "The Devil", "Examine what binds you. Often our chains are of our own making and can be removed.", "bondage", "materialism", "temptation", "illusion"),
	major("tower", "The Tower", "Old structures crumble to make way for truth. Sudden change brings unexpected liberation.", "sudden change", "revelation", "awakening", "liberation"),
	major("star", "The Star", "Hope returns after difficulty. Trust in the guidance that comes from your highest aspirations.", "hope", "inspiration", "healing", "guidance"),
	major("moon", "The Moon", "Not everything is as it seems. Trust your intuition to navigate through uncertainty.", "illusion", "intuition", "mystery", "subconscious"),
	major("sun", "The Sun", "Joy and success illuminate your path. Embrace the warmth of achievement and happiness.", "joy", "success", "vitality", "clarity"),
	major("judgement", "Judgement", "A calling awakens within you. Past experiences transform into wisdom for your new beginning.", "rebirth", "awakening", "calling", "forgiveness"),
	major("world", "The World", "A cycle completes with achievement and fulfillment. You have integrated all aspects of your journey.", "completion", "achievement", "fulfillment", "wholeness"),
}

type suit struct {
	id, name, domain string
	keywords         []string
}

var suits = []suit{
	{"cups", "Cups", "emotions, relationships, intuition", []string{"feelings", "relationships", "intuition", "flow"}},
	{"wands", "Wands", "creativity, action, will", []string{"creativity", "action", "inspiration", "drive"}},
	{"swords", "Swords", "thought, truth, conflict", []string{"thought", "clarity", "truth", "conflict"}},
	{"pentacles", "Pentacles", "work, body, resources", []string{"practicality", "resources", "health", "work"}},
}

type rank struct {
	id, name, meaning, question string
	keywords                    []string
}

// Rank meanings use %s for the suit's domain.
var ranks = []rank{
	{"ace", "Ace", "A fresh beginning arises in the domain of %s.", "What new beginning are you ready to welcome here?", []string{"beginnings", "pure potential", "seed"}},
	{"two", "Two", "A choice or balance point emerges in %s.", "Where do you need balance or partnership now?", []string{"duality", "choice", "balance"}},
	{"three", "Three", "Early growth appears through cooperation in %s.", "Who or what supports this early growth?", []string{"growth", "collaboration", "initial results"}},
	{"four", "Four", "Stability holds, perhaps too tightly, within %s.", "Where has comfort become stagnation?", []string{"stability", "structure", "plateau"}},
	{"five", "Five", "A challenge invites adjustment in %s.", "What can be learned from this friction?", []string{"challenge", "loss", "recalibration"}},
	{"six", "Six", "Relief, generosity, or helpful movement enters %s.", "What support can you give or receive now?", []string{"recovery", "support", "exchange"}},
	{"seven", "Seven", "Pause and reassess your approach within %s.", "What strategy needs refinement?", []string{"assessment", "strategy", "patience"}},
	{"eight", "Eight", "Sustained effort builds mastery in %s.", "Where is disciplined practice asking for your time?", []string{"skill", "progress", "dedication"}},
	{"nine", "Nine", "Approaching completion brings intensity in %s.", "What boundary or mindset sustains you now?", []string{"nearing fulfillment", "resilience", "intensity"}},
	{"ten", "Ten", "A cycle completes with tangible outcomes in %s.", "What completes, and what begins because of it?", []string{"completion", "culmination", "legacy"}},
	{"page", "Page", "Beginner's mind explores %s with openness.", "What can you learn if you approach this as new?", []string{"curiosity", "learning", "messages"}},
	{"knight", "Knight", "Focused pursuit drives momentum in %s.", "What commitment deserves decisive action?", []string{"pursuit", "movement", "commitment"}},
	{"queen", "Queen", "Inner mastery and stewardship shape %s.", "How can you steward this with care and wisdom?", []string{"mastery", "care", "embodiment"}},
	{"king", "King", "Clear leadership brings order to %s.", "What structure or decision will serve the whole?", []string{"authority", "responsibility", "vision"}},
}

func minors() []Card {
	out := make([]Card, 0, len(suits)*len(ranks))
	for _, s := range suits {
		for _, r := range ranks {
			out = append(out, Card{
				ID:       r.id + "-of-" + s.id,
				Name:     r.name + " of " + s.name,
				Arcana:   Minor,
				Suit:     s.id,
				Keywords: mergeKeywords(4, r.keywords, s.keywords),
				Meaning:  strings.Replace(r.meaning, "%s", s.domain, 1),
				Question: r.question,
			})
		}
	}
	return out
}

func mergeKeywords(max int, lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range lists {
		for _, k := range l {
			if seen[k] || len(out) == max {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// Slugify turns a card name into a deck ID: "The High Priestess" -> "high-priestess".
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case r == ' ' || r == '-':
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimPrefix(strings.TrimSuffix(b.String(), "-"), "the-")
}

// Spread is a named layout of positions.
type Spread struct {
	Name        string
	Positions   []string
	Description string
}

var Spreads = map[string]Spread{
	"past_present_potential": {
		Name:        "Past / Present / Potential",
		Positions:   []string{"Past", "Present", "Potential"},
		Description: "A gentle reflection on where you've been, where you are, and where you might be going.",
	},
	"crossroads": {
		Name:        "Crossroads",
		Positions:   []string{"Current Path", "Option A", "Option B", "Hidden Cost"},
		Description: "When facing a significant decision, illuminate the paths before you.",
	},
	"mirror": {
		Name:        "Mirror",
		Positions:   []string{"How I See Myself", "How Others See Me", "Hidden Truth"},
		Description: "Reflect on the relationship between self-perception and external reality.",
	},
}
