/*
Package calendar provides the timezone-aware date primitives the engine is
built on.

PURPOSE:
  A company's midnight does not line up with UTC midnight. Every question the
  engine asks ("what day is it for this company?", "is this check-in on the
  same day as that exemption?", "when does the shift start?") goes through a
  Zone, never through naive UTC date math.

KEY TYPES:
  Zone:      A loaded IANA timezone. Unknown identifiers fail fast.
  Date:      A civil calendar date (YYYY-MM-DD) with no zone attached.
  TimeOfDay: A local wall-clock time (HH:MM) with no date attached.
  WorkWeek:  The set of weekday codes a team works.
  Period:    An inclusive range of Dates.
  Clock:     Injected source of "now".

SEE ALSO:
  - period.go: Period and day iteration
  - clock.go:  Clock implementations
*/
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownTimezone is returned when a timezone identifier cannot be loaded.
// Callers must not substitute a default zone silently.
var ErrUnknownTimezone = errors.New("unknown timezone")

const dateLayout = "2006-01-02"

// =============================================================================
// ZONE
// =============================================================================

// Zone is a loaded IANA timezone.
type Zone struct {
	name string
	loc  *time.Location
}

// LoadZone loads an IANA timezone identifier such as "Asia/Manila".
//
// The empty string is rejected: time.LoadLocation maps it to UTC, which would
// quietly shift every date boundary for a misconfigured company.
func LoadZone(name string) (Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Zone{}, fmt.Errorf("%w: empty identifier", ErrUnknownTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: %q: %v", ErrUnknownTimezone, name, err)
	}
	return Zone{name: name, loc: loc}, nil
}

// MustLoadZone is LoadZone for tests and static configuration.
func MustLoadZone(name string) Zone {
	z, err := LoadZone(name)
	if err != nil {
		panic(err)
	}
	return z
}

func (z Zone) Name() string             { return z.name }
func (z Zone) Location() *time.Location { return z.loc }
func (z Zone) IsZero() bool             { return z.loc == nil }

// DateOf returns the local calendar date of an instant.
func (z Zone) DateOf(t time.Time) Date {
	local := t.In(z.loc)
	return NewDate(local.Year(), local.Month(), local.Day())
}

// WeekdayOf returns the local weekday of an instant.
func (z Zone) WeekdayOf(t time.Time) time.Weekday {
	return t.In(z.loc).Weekday()
}

// Today is DateOf(now), named for readability at call sites.
func (z Zone) Today(now time.Time) Date { return z.DateOf(now) }

// DayBounds returns the first instant of d and the first instant of the next
// local day. The end is exclusive. On DST transition days the span is 23 or
// 25 hours.
func (z Zone) DayBounds(d Date) (start, end time.Time) {
	start = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, z.loc)
	next := d.AddDays(1)
	end = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, z.loc)
	return start, end
}

// At returns the instant at which the local time-of-day tod occurs on d.
func (z Zone) At(d Date, tod TimeOfDay) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour, tod.Minute, 0, 0, z.loc)
}

// MinuteOfDay returns minutes since local midnight for an instant.
func (z Zone) MinuteOfDay(t time.Time) int {
	local := t.In(z.loc)
	return local.Hour()*60 + local.Minute()
}

// =============================================================================
// DATE - civil date, no zone
// =============================================================================

// Date is a calendar day. Arithmetic runs on a UTC-midnight anchor so that DST
// never moves it; the zero value is "no date".
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return Date{t: t}, nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int { return d.t.Compare(o.t) }

// DaysUntil returns the number of days from d to o (negative if o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.t.Sub(d.t).Hours() / 24)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// MinDate and MaxDate return the earlier/later of two dates.
func MinDate(a, b Date) Date {
	if b.Before(a) {
		return b
	}
	return a
}

func MaxDate(a, b Date) Date {
	if b.After(a) {
		return b
	}
	return a
}

// =============================================================================
// TIME OF DAY
// =============================================================================

// TimeOfDay is a local wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (use HH:MM): %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func MustParseTimeOfDay(s string) TimeOfDay {
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return tod
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// =============================================================================
// WORK WEEK
// =============================================================================

// WorkWeek is a set of weekdays, one bit per time.Weekday.
type WorkWeek uint8

var weekdayCodes = [7]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

// MondayToFriday is the common default.
const MondayToFriday WorkWeek = 1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday | 1<<time.Thursday | 1<<time.Friday

// NewWorkWeek builds a set from weekdays.
func NewWorkWeek(days ...time.Weekday) WorkWeek {
	var w WorkWeek
	for _, d := range days {
		w |= 1 << d
	}
	return w
}

// ParseWorkWeek parses a comma separated list of codes ("MON,TUE,WED").
func ParseWorkWeek(s string) (WorkWeek, error) {
	var w WorkWeek
	for _, part := range strings.Split(s, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		found := false
		for i, c := range weekdayCodes {
			if c == code {
				w |= 1 << time.Weekday(i)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("invalid weekday code %q", part)
		}
	}
	return w, nil
}

func (w WorkWeek) Contains(d time.Weekday) bool { return w&(1<<d) != 0 }
func (w WorkWeek) IsEmpty() bool                { return w == 0 }

// Codes returns the codes in Monday-first order.
func (w WorkWeek) Codes() []string {
	codes := make([]string, 0, 7)
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if w.Contains(d) {
			codes = append(codes, WeekdayCode(d))
		}
	}
	return codes
}

func (w WorkWeek) String() string { return strings.Join(w.Codes(), ",") }

// WeekdayCode returns the three-letter code of a weekday.
func WeekdayCode(d time.Weekday) string { return weekdayCodes[d] }
