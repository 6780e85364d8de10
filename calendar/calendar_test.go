package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/readiness-engine/calendar"
)

func TestLoadZone_UnknownIdentifierFailsFast(t *testing.T) {
	_, err := calendar.LoadZone("Mars/Olympus_Mons")
	require.Error(t, err)
	assert.ErrorIs(t, err, calendar.ErrUnknownTimezone)

	_, err = calendar.LoadZone("")
	assert.ErrorIs(t, err, calendar.ErrUnknownTimezone, "empty must not fall back to UTC")
}

func TestZone_DateOf_DoesNotUseUTCMidnight(t *testing.T) {
	// GIVEN: 2025-03-10 20:30 UTC
	// THEN: Manila (UTC+8) is already on Mar 11, New York still on Mar 10
	instant := time.Date(2025, time.March, 10, 20, 30, 0, 0, time.UTC)

	manila := calendar.MustLoadZone("Asia/Manila")
	newYork := calendar.MustLoadZone("America/New_York")

	assert.Equal(t, "2025-03-11", manila.DateOf(instant).String())
	assert.Equal(t, time.Tuesday, manila.WeekdayOf(instant))
	assert.Equal(t, "2025-03-10", newYork.DateOf(instant).String())
	assert.Equal(t, time.Monday, newYork.WeekdayOf(instant))
}

func TestZone_DayBounds_DSTSpringForward(t *testing.T) {
	ny := calendar.MustLoadZone("America/New_York")
	start, end := ny.DayBounds(calendar.MustParseDate("2025-03-09"))

	assert.Equal(t, 23*time.Hour, end.Sub(start))
	assert.Equal(t, "2025-03-09", ny.DateOf(start).String())
	assert.Equal(t, "2025-03-10", ny.DateOf(end).String())
	assert.Equal(t, "2025-03-09", ny.DateOf(end.Add(-time.Nanosecond)).String())
}

func TestZone_At_And_MinuteOfDay(t *testing.T) {
	manila := calendar.MustLoadZone("Asia/Manila")
	d := calendar.MustParseDate("2025-06-02")

	at := manila.At(d, calendar.MustParseTimeOfDay("08:15"))
	assert.Equal(t, time.Date(2025, time.June, 2, 0, 15, 0, 0, time.UTC), at.UTC())
	assert.Equal(t, 8*60+15, manila.MinuteOfDay(at))
}

func TestDate_Arithmetic(t *testing.T) {
	d := calendar.MustParseDate("2024-02-28")

	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, 2, d.DaysUntil(d.AddDays(2)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.Equal(t, -1, d.Compare(d.AddDays(1)))

	_, err := calendar.ParseDate("2024-13-01")
	assert.Error(t, err)
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := calendar.ParseTimeOfDay("07:45")
	require.NoError(t, err)
	assert.Equal(t, 465, tod.Minutes())
	assert.Equal(t, "07:45", tod.String())

	_, err = calendar.ParseTimeOfDay("25:00")
	assert.Error(t, err)
}

func TestWorkWeek(t *testing.T) {
	w, err := calendar.ParseWorkWeek("mon, TUE,wed,THU,FRI")
	require.NoError(t, err)
	assert.Equal(t, calendar.MondayToFriday, w)
	assert.True(t, w.Contains(time.Monday))
	assert.False(t, w.Contains(time.Sunday))
	assert.Equal(t, "MON,TUE,WED,THU,FRI", w.String())

	weekend := calendar.NewWorkWeek(time.Saturday, time.Sunday)
	assert.Equal(t, []string{"SAT", "SUN"}, weekend.Codes())
	assert.Equal(t, "WED", calendar.WeekdayCode(time.Wednesday))

	_, err = calendar.ParseWorkWeek("MON,FUNDAY")
	assert.Error(t, err)
}

func TestPeriod(t *testing.T) {
	p, err := calendar.ParsePeriod("2025-01-30", "2025-02-02")
	require.NoError(t, err)

	days := p.Days()
	require.Len(t, days, 4)
	assert.Equal(t, "2025-01-30", days[0].String())
	assert.Equal(t, "2025-02-02", days[3].String())
	assert.True(t, p.Contains(calendar.MustParseDate("2025-02-01")))
	assert.False(t, p.Contains(calendar.MustParseDate("2025-02-03")))

	_, err = calendar.ParsePeriod("2025-02-02", "2025-01-30")
	assert.ErrorIs(t, err, calendar.ErrInvalidPeriod)

	clamped := p.Clamp(calendar.Period{Start: calendar.MustParseDate("2025-02-01"), End: calendar.MustParseDate("2025-03-01")})
	assert.Equal(t, 2, clamped.Len())

	empty := p.Clamp(calendar.Period{Start: calendar.MustParseDate("2025-03-01"), End: calendar.MustParseDate("2025-03-02")})
	assert.True(t, empty.IsEmpty())
	assert.Empty(t, empty.Days())
}

func TestMonthOf(t *testing.T) {
	m := calendar.MonthOf(calendar.MustParseDate("2024-02-14"))
	assert.Equal(t, "2024-02-01", m.Start.String())
	assert.Equal(t, "2024-02-29", m.End.String())
}
