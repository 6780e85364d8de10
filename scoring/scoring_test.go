package scoring_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/scoring"
)

// =============================================================================
// READINESS
// =============================================================================

func TestScoreCheckin_Extremes(t *testing.T) {
	best, err := scoring.ScoreCheckin(scoring.Metrics{Mood: 10, Stress: 1, Sleep: 10, Physical: 10})
	require.NoError(t, err)
	assert.Equal(t, scoring.Readiness{Score: 100, Status: scoring.Green}, best)

	worst, err := scoring.ScoreCheckin(scoring.Metrics{Mood: 1, Stress: 10, Sleep: 1, Physical: 1})
	require.NoError(t, err)
	assert.Equal(t, scoring.Readiness{Score: 10, Status: scoring.Red}, worst)
}

func TestScoreCheckin_RangeAndDeterminism(t *testing.T) {
	// Every valid tuple scores inside [10,100] and scores the same twice.
	for mood := 1; mood <= 10; mood++ {
		for stress := 1; stress <= 10; stress++ {
			for sleep := 1; sleep <= 10; sleep += 3 {
				for physical := 1; physical <= 10; physical += 3 {
					m := scoring.Metrics{Mood: mood, Stress: stress, Sleep: sleep, Physical: physical}
					a, err := scoring.ScoreCheckin(m)
					require.NoError(t, err)
					b, _ := scoring.ScoreCheckin(m)
					assert.Equal(t, a, b)
					assert.GreaterOrEqual(t, a.Score, 10)
					assert.LessOrEqual(t, a.Score, 100)
				}
			}
		}
	}
}

func TestScoreCheckin_HalfRoundsUp(t *testing.T) {
	// sum = 7+6+8+8 = 29 -> avg 7.25 -> 72.5 -> 73
	r, err := scoring.ScoreCheckin(scoring.Metrics{Mood: 7, Stress: 5, Sleep: 8, Physical: 8})
	require.NoError(t, err)
	assert.Equal(t, 73, r.Score)
	assert.Equal(t, scoring.Green, r.Status)
}

func TestReadinessStatus_Thresholds(t *testing.T) {
	assert.Equal(t, scoring.Green, scoring.ReadinessStatus(70))
	assert.Equal(t, scoring.Yellow, scoring.ReadinessStatus(69))
	assert.Equal(t, scoring.Yellow, scoring.ReadinessStatus(50))
	assert.Equal(t, scoring.Red, scoring.ReadinessStatus(49))
}

func TestScoreCheckin_RejectsOutOfRange(t *testing.T) {
	_, err := scoring.ScoreCheckin(scoring.Metrics{Mood: 0, Stress: 5, Sleep: 5, Physical: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, scoring.ErrMetricOutOfRange)

	var metricErr *scoring.MetricError
	require.ErrorAs(t, err, &metricErr)
	assert.Equal(t, "mood", metricErr.Metric)

	_, err = scoring.ScoreCheckin(scoring.Metrics{Mood: 5, Stress: 11, Sleep: 5, Physical: 5})
	assert.ErrorIs(t, err, scoring.ErrMetricOutOfRange)
}

// =============================================================================
// PUNCTUALITY
// =============================================================================

func TestResolveAttendance_GraceWindow(t *testing.T) {
	manila := calendar.MustLoadZone("Asia/Manila")
	shift := calendar.MustParseTimeOfDay("08:00")
	day := calendar.MustParseDate("2025-06-02")

	at := func(hhmm string) time.Time { return manila.At(day, calendar.MustParseTimeOfDay(hhmm)) }

	assert.Equal(t, scoring.Punctuality{Status: scoring.Green}, scoring.ResolveAttendance(at("07:30"), manila, shift, 15), "early")
	assert.Equal(t, scoring.Punctuality{Status: scoring.Green}, scoring.ResolveAttendance(at("08:10"), manila, shift, 15))
	assert.Equal(t, scoring.Punctuality{Status: scoring.Green}, scoring.ResolveAttendance(at("08:15"), manila, shift, 15), "boundary")
	assert.Equal(t, scoring.Punctuality{Status: scoring.Yellow, MinutesLate: 1}, scoring.ResolveAttendance(at("08:16"), manila, shift, 15))
	assert.Equal(t, scoring.Punctuality{Status: scoring.Yellow, MinutesLate: 15}, scoring.ResolveAttendance(at("08:30"), manila, shift, 15))
}

func TestResolveAttendance_UsesLocalMinuteNotUTC(t *testing.T) {
	// 00:30 UTC is 08:30 in Manila: late there, even though it is "early" in UTC.
	manila := calendar.MustLoadZone("Asia/Manila")
	instant := time.Date(2025, time.June, 2, 0, 30, 0, 0, time.UTC)

	p := scoring.ResolveAttendance(instant, manila, calendar.MustParseTimeOfDay("08:00"), scoring.DefaultGracePeriod)
	assert.Equal(t, scoring.Yellow, p.Status)
	assert.Equal(t, 15, p.MinutesLate)
}

func TestResolveMinute_Property(t *testing.T) {
	shift := calendar.MustParseTimeOfDay("09:30")
	for grace := 0; grace <= 30; grace += 5 {
		boundary := shift.Minutes() + grace
		for minute := 0; minute < 24*60; minute += 7 {
			p := scoring.ResolveMinute(minute, shift, grace)
			if minute <= boundary {
				assert.Equal(t, scoring.Green, p.Status)
				assert.Zero(t, p.MinutesLate)
			} else {
				assert.Equal(t, scoring.Yellow, p.Status)
				assert.Equal(t, minute-boundary, p.MinutesLate)
				assert.Positive(t, p.MinutesLate)
			}
		}
	}
}

// =============================================================================
// GRADES
// =============================================================================

func TestLetterGrade_Boundaries(t *testing.T) {
	cases := map[int]scoring.Grade{
		100: scoring.GradeA, 90: scoring.GradeA, 89: scoring.GradeB, 80: scoring.GradeB,
		79: scoring.GradeC, 70: scoring.GradeC, 69: scoring.GradeD, 60: scoring.GradeD,
		59: scoring.GradeF, 0: scoring.GradeF,
	}
	for score, want := range cases {
		assert.Equal(t, want, scoring.LetterGrade(score), "score %d", score)
	}
}

func TestBreakdown_ExcusedLeavesDenominator(t *testing.T) {
	// GREEN, GREEN, EXCUSED, UNEXCUSED, GREEN -> (100+100+0+100)/4 = 75 -> C
	var b scoring.Breakdown
	for _, k := range []scoring.DayKind{scoring.DayGreen, scoring.DayGreen, scoring.DayExcused, scoring.DayAbsent, scoring.DayGreen} {
		b.Add(k)
	}

	score, ok := b.Score()
	require.True(t, ok)
	assert.Equal(t, 4, b.Counted())
	assert.Equal(t, 75, score)
	assert.Equal(t, scoring.GradeC, b.Grade())
}

func TestBreakdown_NothingCounted(t *testing.T) {
	var b scoring.Breakdown
	b.Add(scoring.DayExcused)
	b.Add(scoring.DayNotRequired)

	_, ok := b.Score()
	assert.False(t, ok)
	assert.Equal(t, scoring.GradeNone, b.Grade())
}

func TestBreakdown_YellowWeight(t *testing.T) {
	var b scoring.Breakdown
	b.Add(scoring.DayGreen)
	b.Add(scoring.DayYellow)

	score, _ := b.Score()
	assert.Equal(t, 88, score, "87.5 rounds half away from zero")
}

func TestTeamScore(t *testing.T) {
	// 85*0.6 + 70*0.4 = 51 + 28 = 79
	assert.Equal(t, 79, scoring.TeamScore(decimal.NewFromInt(85), decimal.NewFromInt(70)))
	// 82.5*0.6 + 90*0.4 = 49.5 + 36 = 85.5 -> 86
	assert.Equal(t, 86, scoring.TeamScore(decimal.RequireFromString("82.5"), decimal.NewFromInt(90)))
}
