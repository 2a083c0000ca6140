// Package ledger tracks which canonical day has already been granted a
// reading and which day indices were completed or missed.
//
// Missed days are informational: they never block day advancement and never
// forfeit future readings.
package ledger

import (
	"time"

	"github.com/chris/arcana/internal/calendar"
)

// Ledger is the grant state carried on a journey.
type Ledger struct {
	LastGranted       *calendar.Date `json:"last_granted,omitempty"`
	LastGrantedDay    int            `json:"last_granted_day,omitempty"`
	Completed         DaySet         `json:"completed"`
	Missed            DaySet         `json:"missed"`
	PendingAbsenceAck bool           `json:"pending_absence_ack"`
}

// CanReadToday is the sole gating predicate: at most one newly started
// reading per canonical day in the home zone.
func CanReadToday(last *calendar.Date, loc *time.Location, now time.Time) bool {
	if last == nil {
		return true
	}
	return *last != calendar.CanonicalDate(now, loc)
}

func (l *Ledger) CanReadToday(loc *time.Location, now time.Time) bool {
	return CanReadToday(l.LastGranted, loc, now)
}

// GrantedToday reports whether the last grant falls on today's canonical date.
func (l *Ledger) GrantedToday(loc *time.Location, now time.Time) bool {
	return l.LastGranted != nil && !CanReadToday(l.LastGranted, loc, now)
}

// RecordGrant marks day as granted on today's canonical date. Recording the
// same day twice is a no-op for the completed set.
func (l *Ledger) RecordGrant(day int, now time.Time, loc *time.Location) {
	today := calendar.CanonicalDate(now, loc)
	l.LastGranted = &today
	if day > l.LastGrantedDay {
		l.LastGrantedDay = day
	}
	if l.Completed == nil {
		l.Completed = DaySet{}
	}
	l.Completed.Add(day)
}

// RecomputeMissed flags every day strictly between the last granted day and
// day as missed. The acknowledgment flag is raised only when new days were
// added, so a gap the user already acknowledged is not re-raised every tick.
// It reports whether the ledger changed.
func (l *Ledger) RecomputeMissed(day int) bool {
	if l.LastGrantedDay <= 0 || day <= l.LastGrantedDay+1 {
		return false
	}
	if l.Missed == nil {
		l.Missed = DaySet{}
	}
	added := false
	for d := l.LastGrantedDay + 1; d < day; d++ {
		if l.Missed.Has(d) || l.Completed.Has(d) {
			continue
		}
		l.Missed.Add(d)
		added = true
	}
	if added {
		l.PendingAbsenceAck = true
	}
	return added
}

// AcknowledgeAbsence clears the pending notice. Missed days stay in history.
func (l *Ledger) AcknowledgeAbsence() {
	l.PendingAbsenceAck = false
}

// Reset clears every field, as when a new year begins.
func (l *Ledger) Reset() {
	*l = Ledger{Completed: DaySet{}, Missed: DaySet{}}
}

// Merge folds another copy of the same journey's ledger into l: the later
// grant date wins, completed and missed sets are unioned.
func (l *Ledger) Merge(o Ledger) {
	if o.LastGranted != nil && (l.LastGranted == nil || o.LastGranted.After(*l.LastGranted)) {
		d := *o.LastGranted
		l.LastGranted = &d
	}
	if o.LastGrantedDay > l.LastGrantedDay {
		l.LastGrantedDay = o.LastGrantedDay
	}
	if l.Completed == nil {
		l.Completed = DaySet{}
	}
	if l.Missed == nil {
		l.Missed = DaySet{}
	}
	l.Completed.Union(o.Completed)
	l.Missed.Union(o.Missed)
	// A day completed on another device is no longer missed.
	for d := range l.Completed {
		delete(l.Missed, d)
	}
	l.PendingAbsenceAck = l.PendingAbsenceAck || o.PendingAbsenceAck
}

// Clone returns a deep copy.
func (l Ledger) Clone() Ledger {
	c := l
	if l.LastGranted != nil {
		d := *l.LastGranted
		c.LastGranted = &d
	}
	c.Completed = l.Completed.Clone()
	c.Missed = l.Missed.Clone()
	return c
}
