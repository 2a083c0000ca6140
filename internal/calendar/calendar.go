// Package calendar converts instants into civil dates in a named timezone and
// derives the journey's day and week indices from them.
//
// All arithmetic goes through day serial numbers (days since 1970-01-01 in the
// proleptic Gregorian calendar), never through fixed 24-hour offsets, so DST
// transitions and month/year rollovers cannot shift a day.
package calendar

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	ErrEmptyZone = errors.New("timezone name is empty")
	ErrHostZone  = errors.New("timezone must be an IANA name, not Local")
)

const zoneinfoDir = "zoneinfo/"

// localtimePath is where the host names its zone when TZ is unset.
var localtimePath = "/etc/localtime"

// Date is a civil date resolved in some timezone. The zero value is not a
// valid date; use IsZero to check.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// CanonicalDate returns the civil date t falls on when viewed in loc.
func CanonicalDate(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	p, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// Serial returns the number of days from 1970-01-01 to d.
func (d Date) Serial() int {
	return daysFromCivil(d.Year, int(d.Month), d.Day)
}

// AddDays returns the civil date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return civilFromDays(d.Serial() + n)
}

// Compare orders dates by calendar: -1 if d is before o, +1 if after, 0 if equal.
func (d Date) Compare(o Date) int {
	a, b := d.Serial(), o.Serial()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

// DaysBetween is the signed number of civil days from a to b.
func DaysBetween(a, b Date) int {
	return b.Serial() - a.Serial()
}

// daysFromCivil is Howard Hinnant's days_from_civil.
func daysFromCivil(y, m, d int) int {
	if m <= 2 {
		y--
	}
	era := floorDiv(y, 400)
	yoe := y - era*400
	mp := (m + 9) % 12 // March = 0
	doy := (153*mp+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

// civilFromDays is the inverse of daysFromCivil.
func civilFromDays(z int) Date {
	z += 719468
	era := floorDiv(z, 146097)
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d := doy - (153*mp+2)/5 + 1
	m := mp + 3
	if m > 12 {
		m -= 12
	}
	if m <= 2 {
		y++
	}
	return Date{Year: y, Month: time.Month(m), Day: d}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// LoadZone resolves an IANA timezone name.
func LoadZone(name string) (*time.Location, error) {
	switch name {
	case "":
		return nil, ErrEmptyZone
	case "Local":
		return nil, ErrHostZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", name, err)
	}
	return loc, nil
}

// DayIndex is the 1-based count of civil days since start in loc, or 0 when
// the journey has not civically begun there yet (or start is unset).
func DayIndex(start time.Time, loc *time.Location, now time.Time) int {
	if start.IsZero() {
		return 0
	}
	delta := DaysBetween(CanonicalDate(start, loc), CanonicalDate(now, loc))
	if delta < 0 {
		return 0
	}
	return delta + 1
}

// DayIndexFromString is DayIndex for an RFC 3339 start instant. Anything
// unparseable is treated as "not started" so callers can poll it every tick.
func DayIndexFromString(start string, loc *time.Location, now time.Time) int {
	t, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return 0
	}
	return DayIndex(t, loc, now)
}

// WeekIndex groups day indices into 7-day scheduling units.
func WeekIndex(day int) int {
	if day <= 0 {
		return 0
	}
	return (day-1)/7 + 1
}

// DeviceTimezone returns the IANA name of the zone this process observes:
// TZ, then the name Go gave time.Local, then the /etc/localtime link target.
// It is UTC when none of those names a zone.
func DeviceTimezone() string {
	return resolveZone(os.Getenv("TZ"), time.Local.String(), os.Readlink)
}

func resolveZone(tz, local string, readlink func(string) (string, error)) string {
	for _, name := range []string{zoneName(tz), zoneName(local)} {
		if knownZone(name) {
			return name
		}
	}
	if target, err := readlink(localtimePath); err == nil {
		if name := zoneName(target); knownZone(name) {
			return name
		}
	}
	return "UTC"
}

// zoneName strips the POSIX ":" prefix and any path up to zoneinfo/.
func zoneName(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), ":")
	if i := strings.LastIndex(s, zoneinfoDir); i >= 0 {
		s = s[i+len(zoneinfoDir):]
	}
	return s
}

func knownZone(name string) bool {
	if name == "" || name == "Local" || strings.HasPrefix(name, "/") {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// IsTimezoneMismatch reports whether the device is outside the home zone.
// It drives a travel notice only and never affects gating.
func IsTimezoneMismatch(home, device string) bool {
	if home == "" || device == "" || device == "Local" {
		return false
	}
	return home != device
}

// IsHomeMidnight reports whether now is exactly 00:00:00 in loc.
func IsHomeMidnight(now time.Time, loc *time.Location) bool {
	h, m, s := now.In(loc).Clock()
	return h == 0 && m == 0 && s == 0
}

const (
	midnightScanStep = 5 * time.Minute
	midnightScanCap  = 36 * time.Hour
)

// ApproxNextMidnight returns the first instant at or after now whose civil date
// in loc is later than today's. It scans in coarse steps and then bisects to
// one-second precision; if nothing is found within 36h it returns now+24h.
func ApproxNextMidnight(now time.Time, loc *time.Location) time.Time {
	today := CanonicalDate(now, loc)
	limit := now.Add(midnightScanCap)

	lo := now
	for t := now; !t.After(limit); t = t.Add(midnightScanStep) {
		if !CanonicalDate(t, loc).After(today) {
			lo = t
			continue
		}
		hi := t
		for hi.Sub(lo) > time.Second {
			mid := lo.Add(hi.Sub(lo) / 2)
			if CanonicalDate(mid, loc).After(today) {
				hi = mid
			} else {
				lo = mid
			}
		}
		return hi
	}
	return now.Add(24 * time.Hour)
}
