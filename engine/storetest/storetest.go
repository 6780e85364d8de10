// Package storetest is a conformance suite every engine.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/engine"
	"github.com/warp/readiness-engine/scoring"
)

// Backend is a store that can also be seeded.
type Backend interface {
	engine.Store
	engine.Seeder
}

// Run executes the suite. open must return an empty backend per call.
func Run(t *testing.T, open func(t *testing.T) Backend) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Backend)
	}{
		{"Directory", testDirectory},
		{"Checkins", testCheckins},
		{"LowScoreReasonOnce", testLowScoreReason},
		{"ExemptionsAndHolidays", testExemptionsAndHolidays},
		{"InsertAbsenceIfAbsent", testInsertAbsence},
		{"ConcurrentInsertAbsence", testConcurrentInsertAbsence},
		{"AbsenceQueues", testAbsenceQueues},
		{"AbsenceTxCommitAndRollback", testAbsenceTx},
		{"Streak", testStreak},
		{"Reset", testReset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			seed(t, s)
			tt.fn(t, s)
		})
	}
}

// =============================================================================
// FIXTURE
// =============================================================================

var (
	ctx  = context.Background()
	zone = calendar.MustLoadZone("Asia/Manila")
)

func day(s string) calendar.Date { return calendar.MustParseDate(s) }

func at(date, hhmm string) time.Time {
	return zone.At(day(date), calendar.MustParseTimeOfDay(hhmm))
}

func period(from, to string) calendar.Period {
	return calendar.Period{Start: day(from), End: day(to)}
}

func seed(t *testing.T, s Backend) {
	t.Helper()
	joined := at("2025-06-01", "10:00")
	require.NoError(t, s.SaveCompany(ctx, engine.Company{ID: "acme", Name: "Acme", Timezone: "Asia/Manila"}))
	require.NoError(t, s.SaveTeam(ctx, engine.Team{
		ID: "t-1", CompanyID: "acme", Name: "Blasting",
		WorkDays:     calendar.NewWorkWeek(time.Monday, time.Wednesday, time.Friday),
		ShiftStart:   calendar.MustParseTimeOfDay("07:30"),
		ShiftEnd:     calendar.MustParseTimeOfDay("16:00"),
		SupervisorID: "sup-1",
	}))
	require.NoError(t, s.SaveWorker(ctx, engine.Worker{
		ID: "sup-1", CompanyID: "acme", Name: "Sam", Role: engine.RoleSupervisor, CreatedAt: at("2025-01-01", "09:00"),
	}))
	for _, id := range []engine.WorkerID{"w-1", "w-2"} {
		require.NoError(t, s.SaveWorker(ctx, engine.Worker{
			ID: id, CompanyID: "acme", TeamID: "t-1", Name: string(id), Role: engine.RoleWorker,
			TeamJoinedAt: &joined, CreatedAt: at("2025-05-01", "09:00"),
		}))
	}
}

func newCheckin(worker engine.WorkerID, date string, m scoring.Metrics) engine.Checkin {
	r, _ := scoring.ScoreCheckin(m)
	created := at(date, "08:20")
	return engine.Checkin{
		ID:          engine.CheckinID(fmt.Sprintf("c-%s-%s", worker, date)),
		WorkerID:    worker,
		CompanyID:   "acme",
		Date:        day(date),
		Metrics:     m,
		Readiness:   r,
		Punctuality: scoring.ResolveAttendance(created, zone, calendar.MustParseTimeOfDay("08:00"), 15),
		Note:        "ok",
		CreatedAt:   created,
	}
}

func newAbsence(worker engine.WorkerID, date string) engine.Absence {
	return engine.Absence{
		ID:        engine.AbsenceID(fmt.Sprintf("a-%s-%s", worker, date)),
		WorkerID:  worker,
		TeamID:    "t-1",
		CompanyID: "acme",
		Date:      day(date),
		Status:    engine.AbsencePendingJustification,
		CreatedAt: at(date, "23:30"),
	}
}

func dates[T any](items []T, date func(T) calendar.Date) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = date(it).String()
	}
	return out
}

func absenceDate(a engine.Absence) calendar.Date { return a.Date }

// =============================================================================
// CASES
// =============================================================================

func testDirectory(t *testing.T, s Backend) {
	w, err := s.Worker(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, engine.TeamID("t-1"), w.TeamID)
	require.NotNil(t, w.TeamJoinedAt)
	assert.WithinDuration(t, at("2025-06-01", "10:00"), *w.TeamJoinedAt, time.Second)
	assert.Nil(t, w.LastCheckinDate)

	sup, err := s.Worker(ctx, "sup-1")
	require.NoError(t, err)
	assert.Empty(t, sup.TeamID)
	assert.Nil(t, sup.TeamJoinedAt)

	team, err := s.Team(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "MON,WED,FRI", team.WorkDays.String())
	assert.Equal(t, "07:30", team.ShiftStart.String())
	assert.Equal(t, "16:00", team.ShiftEnd.String())
	assert.Equal(t, engine.WorkerID("sup-1"), team.SupervisorID)

	c, err := s.Company(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Manila", c.Timezone)

	members, err := s.TeamMembers(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, engine.WorkerID("w-1"), members[0].ID)

	led, err := s.TeamsLedBy(ctx, "sup-1")
	require.NoError(t, err)
	require.Len(t, led, 1)
	assert.Equal(t, engine.TeamID("t-1"), led[0].ID)

	_, err = s.Worker(ctx, "ghost")
	assert.ErrorIs(t, err, engine.ErrWorkerNotFound)
	_, err = s.Team(ctx, "ghost")
	assert.ErrorIs(t, err, engine.ErrTeamNotFound)
	_, err = s.Company(ctx, "ghost")
	assert.ErrorIs(t, err, engine.ErrCompanyNotFound)
}

func testCheckins(t *testing.T, s Backend) {
	_, ok, err := s.FirstCheckinDate(ctx, "w-1")
	require.NoError(t, err)
	assert.False(t, ok)

	good := scoring.Metrics{Mood: 8, Stress: 3, Sleep: 7, Physical: 8}
	require.NoError(t, s.InsertCheckin(ctx, newCheckin("w-1", "2025-06-04", good)))
	require.NoError(t, s.InsertCheckin(ctx, newCheckin("w-1", "2025-06-02", good)))
	require.NoError(t, s.InsertCheckin(ctx, newCheckin("w-2", "2025-06-02", good)))

	dup := newCheckin("w-1", "2025-06-04", good)
	dup.ID = "other-id"
	assert.ErrorIs(t, s.InsertCheckin(ctx, dup), engine.ErrDuplicateCheckin)

	first, ok, err := s.FirstCheckinDate(ctx, "w-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-06-02", first.String())

	inRange, err := s.CheckinsInRange(ctx, "w-1", period("2025-06-01", "2025-06-03"))
	require.NoError(t, err)
	require.Len(t, inRange, 1)

	all, err := s.CheckinsInRange(ctx, "w-1", period("2025-06-01", "2025-06-30"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-02", "2025-06-04"}, dates(all, func(c engine.Checkin) calendar.Date { return c.Date }))

	got, err := s.Checkin(ctx, "c-w-1-2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, good, got.Metrics)
	assert.Equal(t, scoring.Readiness{Score: 78, Status: scoring.Green}, got.Readiness)
	assert.Equal(t, scoring.Punctuality{Status: scoring.Yellow, MinutesLate: 5}, got.Punctuality)
	assert.Equal(t, "ok", got.Note)
	assert.Nil(t, got.LowScoreReason)
	assert.WithinDuration(t, at("2025-06-02", "08:20"), got.CreatedAt, time.Second)

	_, err = s.Checkin(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrCheckinNotFound)
}

func testLowScoreReason(t *testing.T, s Backend) {
	c := newCheckin("w-1", "2025-06-02", scoring.Metrics{Mood: 2, Stress: 9, Sleep: 3, Physical: 3})
	require.NoError(t, s.InsertCheckin(ctx, c))

	updated, err := s.SetLowScoreReason(ctx, c.ID, "sick kid")
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = s.SetLowScoreReason(ctx, c.ID, "second try")
	require.NoError(t, err)
	assert.False(t, updated)

	got, err := s.Checkin(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LowScoreReason)
	assert.Equal(t, "sick kid", *got.LowScoreReason)
}

func testExemptionsAndHolidays(t *testing.T, s Backend) {
	require.NoError(t, s.SaveExemption(ctx, engine.Exemption{
		ID: "ex-1", WorkerID: "w-1", Type: "SICK_LEAVE", Status: engine.ExemptionApproved,
		StartDate: day("2025-06-03"), EndDate: day("2025-06-05"),
	}))
	require.NoError(t, s.SaveExemption(ctx, engine.Exemption{
		ID: "ex-2", WorkerID: "w-1", Type: "VACATION", Status: engine.ExemptionPending,
		StartDate: day("2025-06-09"), EndDate: day("2025-06-10"),
	}))
	require.NoError(t, s.SaveExemption(ctx, engine.Exemption{
		ID: "ex-3", WorkerID: "w-2", Type: "VACATION", Status: engine.ExemptionApproved,
		StartDate: day("2025-06-03"), EndDate: day("2025-06-03"),
	}))

	ex, err := s.ApprovedExemptions(ctx, "w-1", period("2025-06-05", "2025-06-30"))
	require.NoError(t, err)
	require.Len(t, ex, 1, "overlap at the end date counts; PENDING never does")
	assert.Equal(t, engine.ExemptionID("ex-1"), ex[0].ID)
	assert.True(t, ex[0].Covers(day("2025-06-04")))

	ex, err = s.ApprovedExemptions(ctx, "w-1", period("2025-06-06", "2025-06-30"))
	require.NoError(t, err)
	assert.Empty(t, ex)

	require.NoError(t, s.SaveHoliday(ctx, engine.Holiday{ID: "h-1", CompanyID: "acme", Date: day("2025-06-12"), Name: "Independence Day"}))
	require.NoError(t, s.SaveHoliday(ctx, engine.Holiday{ID: "h-2", CompanyID: "other", Date: day("2025-06-13"), Name: "Elsewhere"}))

	hs, err := s.Holidays(ctx, "acme", period("2025-06-01", "2025-06-30"))
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "2025-06-12", hs[0].Date.String())
	assert.Equal(t, "Independence Day", hs[0].Name)
}

func testInsertAbsence(t *testing.T, s Backend) {
	inserted, err := s.InsertAbsence(ctx, newAbsence("w-1", "2025-06-02"))
	require.NoError(t, err)
	assert.True(t, inserted)

	again := newAbsence("w-1", "2025-06-02")
	again.ID = "different-id"
	inserted, err = s.InsertAbsence(ctx, again)
	require.NoError(t, err, "a duplicate is not an error")
	assert.False(t, inserted)

	got, err := s.Absence(ctx, "a-w-1-2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02", got.Date.String())
	assert.Equal(t, engine.TeamID("t-1"), got.TeamID)
	assert.IsType(t, engine.AwaitingWorker{}, got.State())

	_, err = s.Absence(ctx, "different-id")
	assert.ErrorIs(t, err, engine.ErrAbsenceNotFound)
}

func testConcurrentInsertAbsence(t *testing.T, s Backend) {
	const writers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		failures []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := newAbsence("w-1", "2025-06-02")
			a.ID = engine.AbsenceID(fmt.Sprintf("race-%d", i))
			inserted, err := s.InsertAbsence(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
			}
			if inserted {
				winners++
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, failures)
	assert.Equal(t, 1, winners)
	all, err := s.AbsencesInRange(ctx, "w-1", period("2025-06-02", "2025-06-02"))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testAbsenceQueues(t *testing.T, s Backend) {
	for _, date := range []string{"2025-06-06", "2025-06-02", "2025-06-04"} {
		_, err := s.InsertAbsence(ctx, newAbsence("w-1", date))
		require.NoError(t, err)
	}
	_, err := s.InsertAbsence(ctx, newAbsence("w-2", "2025-06-02"))
	require.NoError(t, err)

	pending, err := s.PendingJustifications(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-02", "2025-06-04", "2025-06-06"}, dates(pending, absenceDate), "oldest first")

	// Justify one of w-1's and w-2's
	justifiedAt := at("2025-06-09", "09:00")
	err = s.WithAbsenceTx(ctx, func(tx engine.AbsenceTx) error {
		for _, id := range []engine.AbsenceID{"a-w-1-2025-06-04", "a-w-2-2025-06-02"} {
			a, err := tx.AbsenceForUpdate(ctx, id)
			if err != nil {
				return err
			}
			next, err := a.Justify(engine.Justification{Category: engine.ReasonSick, Explanation: "flu", At: justifiedAt})
			if err != nil {
				return err
			}
			if err := tx.SaveAbsence(ctx, next); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	pending, err = s.PendingJustifications(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-02", "2025-06-06"}, dates(pending, absenceDate))

	queue, err := s.AwaitingReview(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, engine.WorkerID("w-1"), queue[1].WorkerID)

	got, err := s.Absence(ctx, "a-w-1-2025-06-04")
	require.NoError(t, err)
	state, ok := got.State().(engine.AwaitingSupervisor)
	require.True(t, ok)
	assert.Equal(t, engine.ReasonSick, state.Justification.Category)
	assert.Equal(t, "flu", state.Justification.Explanation)
	assert.WithinDuration(t, justifiedAt, state.Justification.At, time.Second)

	inRange, err := s.AbsencesInRange(ctx, "w-1", period("2025-06-03", "2025-06-30"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-04", "2025-06-06"}, dates(inRange, absenceDate))
}

func testAbsenceTx(t *testing.T, s Backend) {
	for _, date := range []string{"2025-06-02", "2025-06-04"} {
		_, err := s.InsertAbsence(ctx, newAbsence("w-1", date))
		require.NoError(t, err)
	}
	j := engine.Justification{Category: engine.ReasonFamily, Explanation: "wedding", At: at("2025-06-09", "09:00")}

	// Rollback: the first save is undone when the second step fails
	boom := fmt.Errorf("boom")
	err := s.WithAbsenceTx(ctx, func(tx engine.AbsenceTx) error {
		a, err := tx.AbsenceForUpdate(ctx, "a-w-1-2025-06-02")
		require.NoError(t, err)
		next, err := a.Justify(j)
		require.NoError(t, err)
		require.NoError(t, tx.SaveAbsence(ctx, next))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Absence(ctx, "a-w-1-2025-06-02")
	require.NoError(t, err)
	assert.IsType(t, engine.AwaitingWorker{}, got.State(), "rolled back")

	// Commit through review to a terminal state
	err = s.WithAbsenceTx(ctx, func(tx engine.AbsenceTx) error {
		a, err := tx.AbsenceForUpdate(ctx, "a-w-1-2025-06-04")
		if err != nil {
			return err
		}
		a, err = a.Justify(j)
		if err != nil {
			return err
		}
		a, err = a.Review(engine.DecisionExcused, engine.Review{By: "sup-1", At: at("2025-06-09", "10:00"), Notes: "approved"})
		if err != nil {
			return err
		}
		return tx.SaveAbsence(ctx, a)
	})
	require.NoError(t, err)

	got, err = s.Absence(ctx, "a-w-1-2025-06-04")
	require.NoError(t, err)
	assert.Equal(t, engine.AbsenceExcused, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, engine.WorkerID("sup-1"), *got.ReviewedBy)
	require.NotNil(t, got.ReviewNotes)
	assert.Equal(t, "approved", *got.ReviewNotes)

	err = s.WithAbsenceTx(ctx, func(tx engine.AbsenceTx) error {
		_, err := tx.AbsenceForUpdate(ctx, "missing")
		return err
	})
	assert.ErrorIs(t, err, engine.ErrAbsenceNotFound)
}

func testStreak(t *testing.T, s Backend) {
	require.NoError(t, s.UpdateStreak(ctx, "w-1", 3, 7, day("2025-06-06")))

	w, err := s.Worker(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, 3, w.CurrentStreak)
	assert.Equal(t, 7, w.LongestStreak)
	require.NotNil(t, w.LastCheckinDate)
	assert.Equal(t, "2025-06-06", w.LastCheckinDate.String())

	assert.ErrorIs(t, s.UpdateStreak(ctx, "ghost", 1, 1, day("2025-06-06")), engine.ErrWorkerNotFound)
}

func testReset(t *testing.T, s Backend) {
	_, err := s.InsertAbsence(ctx, newAbsence("w-1", "2025-06-02"))
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx))

	_, err = s.Worker(ctx, "w-1")
	assert.ErrorIs(t, err, engine.ErrWorkerNotFound)
	all, err := s.AbsencesInRange(ctx, "w-1", period("2025-06-01", "2025-06-30"))
	require.NoError(t, err)
	assert.Empty(t, all)
}
