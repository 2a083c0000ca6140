package practice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/chris/arcana/internal/calendar"
	"github.com/chris/arcana/internal/db"
	"github.com/chris/arcana/internal/journey"
	"github.com/chris/arcana/internal/llm"
	"github.com/chris/arcana/internal/oracle"
	"github.com/chris/arcana/internal/persona"
	"github.com/chris/arcana/internal/prompt"
	"github.com/chris/arcana/internal/tarot"
)

const (
	badgeLine     = "[AI-composed reflection]"
	groundingLine = "Take a breath before you read on."
	contentNote   = "Content note: readings can touch on loss, change, and difficult feelings."
)

const helpText = `Commands:
  begin [timezone] [midnight] [intention...]  start your year
  draw                                         draw today's three cards
  read [intention...]                          ask the Oracle about today's cards
  journal <text>                               save a journal entry for today
  done                                         mark today complete
  ack                                          acknowledge missed days
  status                                       where you are in the year
  here <timezone>                              tell the Oracle where you are today
  history [n]                                  your recent readings
  consent [events|weather|calendar on|off]     view or change what the Oracle may know
  consent hint <text>                          set today's calendar hint
  persona [week]                               preview the Oracle's voice
  card <name>                                  look up a card
  help                                         this text`

// Console turns one line of user text into one reply.
type Console struct {
	svc *Service
}

func NewConsole(svc *Service) *Console { return &Console{svc: svc} }

func (c *Console) Exec(ctx context.Context, userID, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	var (
		out string
		err error
	)
	switch cmd {
	case "begin", "start":
		out, err = c.begin(ctx, userID, args)
	case "draw":
		out, err = c.draw(ctx, userID)
	case "read", "reading":
		out, err = c.read(ctx, userID, rest)
	case "journal", "note":
		if rest == "" {
			return "Usage: journal <text>"
		}
		if err = c.svc.Journal(ctx, userID, rest); err == nil {
			out = "Journal saved."
		}
	case "done", "confirm":
		if err = c.svc.Confirm(ctx, userID); err == nil {
			out = "Day complete. The next cards wait for your midnight."
		}
	case "ack", "acknowledge":
		if err = c.svc.Acknowledge(ctx, userID); err == nil {
			out = "Welcome back. The missed days are noted, not held against you."
		}
	case "status":
		out, err = c.status(ctx, userID)
	case "here":
		if len(args) != 1 {
			return "Usage: here <timezone>"
		}
		out, err = c.here(ctx, userID, args[0])
	case "history":
		out, err = c.history(ctx, userID, args)
	case "consent":
		out, err = c.consent(ctx, userID, args, rest)
	case "persona":
		out, err = c.persona(ctx, userID, args)
	case "card":
		if rest == "" {
			return "Usage: card <name>"
		}
		return c.card(ctx, rest)
	case "help", "?":
		return helpText
	default:
		return fmt.Sprintf("Unknown command %q. Type help for the list.", cmd)
	}
	if err != nil {
		return describeError(err)
	}
	return out
}

func describeError(err error) string {
	switch {
	case errors.Is(err, journey.ErrNotStarted):
		return "Your year has not begun. Type begin to start."
	case errors.Is(err, journey.ErrAlreadyBegun):
		return "Your year has already begun."
	case errors.Is(err, journey.ErrInvalidTimezone):
		return "That timezone is not one I know. Try an IANA name like America/Chicago."
	case errors.Is(err, journey.ErrAwaitingMidnight):
		return "Your first cards unlock at your midnight."
	case errors.Is(err, journey.ErrAlreadyGranted):
		return "Today's reading has been given. Return after your midnight."
	case errors.Is(err, journey.ErrReadingInProgress):
		return "The Oracle is already reading for you."
	case errors.Is(err, journey.ErrJourneyComplete):
		return "Your year of readings is complete."
	case errors.Is(err, llm.ErrPromptTooLong):
		return "That intention is too long for one reading. Try a sentence or two."
	case errors.Is(err, journey.ErrOracleSilent):
		return oracle.SilentMessage
	case errors.Is(err, journey.ErrNothingToConfirm), errors.Is(err, journey.ErrNoReading):
		return "There is no reading for today yet."
	case errors.Is(err, prompt.ErrCardCount):
		return "A reading needs exactly three cards."
	case errors.Is(err, persona.ErrWeekOutOfRange):
		return "Weeks start at 1."
	case errors.Is(err, ErrUnknownConsent):
		return "Consent kinds are events, weather and calendar."
	}
	return "Something went wrong. Try again?"
}

func (c *Console) here(ctx context.Context, userID, zone string) (string, error) {
	st, err := c.svc.ObserveDevice(ctx, userID, zone)
	if err != nil {
		return "", err
	}
	if st.State == journey.NotStarted {
		return "Noted. Your year has not begun yet.", nil
	}
	if st.TimezoneMismatch {
		return fmt.Sprintf("Noted. You are away from %s; your days still turn at midnight there.", st.HomeTimezone), nil
	}
	return "Noted. You are home.", nil
}

func (c *Console) begin(ctx context.Context, userID string, args []string) (string, error) {
	var tz string
	midnight := false
	if len(args) > 0 && looksLikeZone(args[0]) {
		tz, args = args[0], args[1:]
	}
	if len(args) > 0 && strings.EqualFold(args[0], "midnight") {
		midnight, args = true, args[1:]
	}
	st, err := c.svc.Begin(ctx, userID, tz, strings.Join(args, " "), midnight)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your year begins in %s.", st.HomeTimezone)
	if st.State == journey.AwaitingMidnight {
		fmt.Fprintf(&b, " Day 1 unlocks %s.", c.countdown(st.NextUnlock))
	} else {
		b.WriteString(" Day 1 is open. Type draw.")
	}
	return b.String(), nil
}

// looksLikeZone treats any word with a slash as a zone name.
func looksLikeZone(s string) bool {
	if strings.Contains(s, "/") {
		return true
	}
	if s == "Local" {
		return false
	}
	_, err := calendar.LoadZone(s)
	return err == nil
}

func (c *Console) draw(ctx context.Context, userID string) (string, error) {
	cards, err := c.svc.Draw(ctx, userID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, card := range cards {
		fmt.Fprintf(&b, "%s: %s (%s)\n", prompt.Positions[i], card.Name, strings.Join(card.Keywords, ", "))
	}
	b.WriteString("Type read to ask the Oracle, optionally with an intention.")
	return b.String(), nil
}

func (c *Console) read(ctx context.Context, userID, intention string) (string, error) {
	r, err := c.svc.Read(ctx, userID, nil, intention)
	if err != nil {
		return "", err
	}
	prefs, perr := c.svc.Preferences(ctx, userID)
	if perr != nil {
		prefs = db.DefaultPreferences()
	}
	return renderReading(*r, prefs), nil
}

func renderReading(r journey.Reading, p db.Preferences) string {
	var b strings.Builder
	if p.ContentWarnings {
		b.WriteString(contentNote + "\n")
	}
	if p.GroundingPause {
		b.WriteString(groundingLine + "\n")
	}
	fmt.Fprintf(&b, "Day %d - %s\n\n", r.DayIndex, strings.Join(r.Cards[:], " / "))
	b.WriteString(r.OracleText)
	if p.TransparencyBadge {
		b.WriteString("\n\n" + badgeLine)
	}
	return b.String()
}

func (c *Console) countdown(next time.Time) string {
	if next.IsZero() {
		return "soon"
	}
	return humanize.RelTime(next, c.svc.Now(), "ago", "from now")
}

func (c *Console) status(ctx context.Context, userID string) (string, error) {
	st, err := c.svc.Status(ctx, userID)
	if err != nil {
		return "", err
	}
	return c.renderStatus(st), nil
}

func (c *Console) renderStatus(st journey.Status) string {
	if st.State == journey.NotStarted {
		return "Your year has not begun. Type begin to start."
	}
	var b strings.Builder
	switch st.State {
	case journey.AwaitingMidnight:
		fmt.Fprintf(&b, "Your year begins %s.", c.countdown(st.NextUnlock))
	case journey.Completed:
		fmt.Fprintf(&b, "Your year is complete. %d of %d days read.", st.CompletedDays, journey.MaxDays)
	default:
		fmt.Fprintf(&b, "It is the %s day of your year, week %d (%s).", humanize.Ordinal(st.Day), st.Week, st.Persona.Act)
		switch st.State {
		case journey.CanRead:
			b.WriteString(" Today's cards are waiting.")
		case journey.ReadingInProgress:
			b.WriteString(" The Oracle is reading.")
		default:
			fmt.Fprintf(&b, " Next reading %s.", c.countdown(st.NextUnlock))
		}
		fmt.Fprintf(&b, "\nCompleted %d, missed %d.", st.CompletedDays, len(st.Missed))
	}
	if st.PendingAbsenceAck {
		b.WriteString("\nYou have been away. Type ack when you are ready to continue.")
	}
	if st.TimezoneMismatch {
		fmt.Fprintf(&b, "\nYou seem to be away from %s. Days still turn at home midnight.", st.HomeTimezone)
	}
	return b.String()
}

func (c *Console) history(ctx context.Context, userID string, args []string) (string, error) {
	limit := 5
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return "Usage: history [n]", nil
		}
		limit = n
	}
	rs, err := c.svc.History(ctx, userID, limit)
	if err != nil {
		return "", err
	}
	if len(rs) == 0 {
		return "No readings yet.", nil
	}
	var b strings.Builder
	for i, r := range rs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Day %d (%s): %s", r.DayIndex, humanize.Time(r.CreatedAt), strings.Join(r.Cards[:], " / "))
		if r.JournalEntry != "" {
			fmt.Fprintf(&b, "\n  journal: %s", r.JournalEntry)
		}
	}
	return b.String(), nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (c *Console) consent(ctx context.Context, userID string, args []string, rest string) (string, error) {
	var (
		p   db.Preferences
		err error
	)
	switch {
	case len(args) == 0:
		p, err = c.svc.Preferences(ctx, userID)
	case strings.EqualFold(args[0], "hint"):
		p, err = c.svc.SetCalendarHint(ctx, userID, strings.TrimSpace(rest[len(args[0]):]))
	case len(args) == 2 && (args[1] == "on" || args[1] == "off"):
		p, err = c.svc.SetConsent(ctx, userID, args[0], args[1] == "on")
	default:
		return "Usage: consent [events|weather|calendar on|off] or consent hint <text>", nil
	}
	if err != nil {
		return "", err
	}
	s := fmt.Sprintf("events: %s, weather: %s, calendar: %s",
		onOff(p.ConsentCurrentEvents), onOff(p.ConsentWeatherTone), onOff(p.ConsentCalendarHints))
	if p.CalendarHint != "" {
		s += fmt.Sprintf(" (hint: %s)", p.CalendarHint)
	}
	return s, nil
}

func (c *Console) persona(ctx context.Context, userID string, args []string) (string, error) {
	var week int
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return "Usage: persona [week]", nil
		}
		week = n
	} else {
		st, err := c.svc.Status(ctx, userID)
		if err != nil {
			return "", err
		}
		week = max(st.Week, 1)
	}
	snap, err := oracle.PreviewWeek(week)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Week %d: %s. %s. Tone: %s.", snap.Week, snap.Act, persona.Describe(snap.Persona), snap.Style.Tone), nil
}

func (c *Console) card(ctx context.Context, ref string) string {
	d := c.svc.deck.Deck(ctx)
	if card, ok := d.Lookup(ref); ok {
		return describeCard(card)
	}
	hits := d.Search(ref)
	switch len(hits) {
	case 0:
		return fmt.Sprintf("No card matches %q.", ref)
	case 1:
		return describeCard(hits[0])
	}
	names := make([]string, 0, 8)
	for i, h := range hits {
		if i == 8 {
			break
		}
		names = append(names, h.Name)
	}
	return "Did you mean: " + strings.Join(names, ", ")
}

func describeCard(card tarot.Card) string {
	return fmt.Sprintf("%s: %s\nKeywords: %s", card.Name, card.Meaning, strings.Join(card.Keywords, ", "))
}
