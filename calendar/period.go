package calendar

import (
	"errors"
	"fmt"
)

// ErrInvalidPeriod is returned when a period ends before it starts.
var ErrInvalidPeriod = errors.New("invalid period: end before start")

// =============================================================================
// PERIOD - inclusive range of local dates
// =============================================================================

// Period is the inclusive range [Start, End].
//
// Examples:
//   - Exemption coverage: leave from Mar 3 to Mar 7
//   - Reconciliation window: baseline through yesterday
//   - Reporting period: a calendar month
type Period struct {
	Start Date
	End   Date
}

// NewPeriod validates and builds a period.
func NewPeriod(start, end Date) (Period, error) {
	p := Period{Start: start, End: end}
	return p, p.Validate()
}

// ParsePeriod parses two YYYY-MM-DD strings.
func ParsePeriod(from, to string) (Period, error) {
	start, err := ParseDate(from)
	if err != nil {
		return Period{}, err
	}
	end, err := ParseDate(to)
	if err != nil {
		return Period{}, err
	}
	return NewPeriod(start, end)
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: missing bound", ErrInvalidPeriod)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}
	return nil
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// IsEmpty reports whether the period holds no days.
func (p Period) IsEmpty() bool { return p.End.Before(p.Start) }

// Len returns the number of days in the period.
func (p Period) Len() int {
	if p.IsEmpty() {
		return 0
	}
	return p.Start.DaysUntil(p.End) + 1
}

// Days returns every day in the period in order.
func (p Period) Days() []Date {
	days := make([]Date, 0, p.Len())
	for d := p.Start; !d.After(p.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Clamp intersects p with other. The result may be empty.
func (p Period) Clamp(other Period) Period {
	return Period{Start: MaxDate(p.Start, other.Start), End: MinDate(p.End, other.End)}
}

// Overlaps reports whether the two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return !p.Clamp(other).IsEmpty()
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// MonthOf returns the calendar month containing d.
func MonthOf(d Date) Period {
	start := NewDate(d.Year(), d.Month(), 1)
	end := NewDate(d.Year(), d.Month()+1, 1).AddDays(-1)
	return Period{Start: start, End: end}
}
