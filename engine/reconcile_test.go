package engine_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/engine"
)

func TestReconcile_SkipsEveryExclusionCategory(t *testing.T) {
	// GIVEN: Mon Jun 2 .. Sun Jun 8, no check-ins yet
	//   Wed Jun 4 is a company holiday
	//   Thu Jun 5 is covered by an APPROVED exemption
	//   Fri Jun 6 only has a PENDING exemption
	f := newFixture(t, "2025-06-09", "09:00")
	f.holiday("2025-06-04", "Independence Day (observed)")
	f.exemption(worker, "2025-06-05", "2025-06-05", engine.ExemptionApproved)
	f.exemption(worker, "2025-06-06", "2025-06-06", engine.ExemptionPending)

	// WHEN
	created, err := f.engine.Reconcile(f.ctx, worker)

	// THEN: Mon, Tue and Fri become absences; the weekend and today are ignored
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-02", "2025-06-03", "2025-06-06"}, dates(created))
	for _, a := range created {
		assert.Equal(t, engine.AbsencePendingJustification, a.Status)
		assert.Nil(t, a.JustifiedAt)
		assert.Nil(t, a.ReviewedBy)
		assert.Equal(t, team, a.TeamID)
		assert.IsType(t, engine.AwaitingWorker{}, a.State())
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t, "2025-06-09", "09:00")

	first, err := f.engine.Reconcile(f.ctx, worker)
	require.NoError(t, err)
	require.Len(t, first, 5)

	second, err := f.engine.Reconcile(f.ctx, worker)
	require.NoError(t, err)
	assert.Empty(t, second, "re-running over a processed range creates nothing")

	all, err := f.store.AbsencesInRange(f.ctx, worker, f.period("2025-06-01", "2025-06-30"))
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestReconcile_ConcurrentCallersInsertOnce(t *testing.T) {
	f := newFixture(t, "2025-06-09", "09:00")

	const callers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := f.engine.Reconcile(f.ctx, worker)
			assert.NoError(t, err)
			mu.Lock()
			total += len(created)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, total, "each date is created by exactly one caller")
	all, err := f.store.AbsencesInRange(f.ctx, worker, f.period("2025-06-01", "2025-06-30"))
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestReconcile_NeverEvaluatesToday(t *testing.T) {
	// Monday Jun 2 is the first required day, and it is still "today"
	f := newFixture(t, "2025-06-02", "23:59")

	created, err := f.engine.Reconcile(f.ctx, worker)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestReconcile_UsesCompanyMidnightNotUTC(t *testing.T) {
	// GIVEN: 2025-06-09 16:30 UTC, which is already Tue Jun 10 00:30 in Manila
	f := newFixture(t, "2025-06-09", "09:00")
	utc := time.Date(2025, time.June, 9, 16, 30, 0, 0, time.UTC)
	f.now.Store(&utc)

	created, err := f.engine.Reconcile(f.ctx, worker)

	// THEN: Monday Jun 9 is complete for the company and becomes an absence
	require.NoError(t, err)
	assert.Contains(t, dates(created), "2025-06-09")
	assert.Len(t, created, 6)
}

func TestReconcile_BaselineIsFirstCheckin(t *testing.T) {
	// GIVEN: first check-in on Wed Jun 4, nothing else
	f := newFixture(t, "2025-06-09", "09:00")
	f.checkin(worker, "2025-06-04", "07:55", goodMetrics)

	created, err := f.engine.Reconcile(f.ctx, worker)

	// THEN: the scan starts at Jun 4, so Mon and Tue are not absences
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-05", "2025-06-06"}, dates(created))

	base, err := f.engine.Baseline(f.ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-04", base.String())
}

func TestReconcile_BaselineFallsBackToAccountCreation(t *testing.T) {
	f := newFixture(t, "2025-06-09", "09:00")
	created := f.at("2025-06-04", "15:00")
	require.NoError(t, f.store.SaveWorker(f.ctx, engine.Worker{
		ID: "w-2", CompanyID: company, TeamID: team, Role: engine.RoleWorker, CreatedAt: created,
	}))

	base, err := f.engine.Baseline(f.ctx, "w-2")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-05", base.String(), "day after account creation")

	absences, err := f.engine.Reconcile(f.ctx, "w-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-05", "2025-06-06"}, dates(absences))
}

func TestReconcile_TransferAppliesNewTeamFromJoinDate(t *testing.T) {
	// GIVEN: a worker who checked in on an old team in May, then joined
	// this team on Wed Jun 4
	f := newFixture(t, "2025-06-09", "09:00")
	f.addWorker("w-2", "2025-06-04")
	f.checkin("w-2", "2025-05-15", "07:50", goodMetrics)

	created, err := f.engine.Reconcile(f.ctx, "w-2")

	// THEN: nothing before the day after joining is evaluated
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-05", "2025-06-06"}, dates(created))
}

func TestReconcile_LookbackIsBounded(t *testing.T) {
	// GIVEN: an account created months ago, never checked in, 7 day lookback
	f := newFixture(t, "2025-06-09", "09:00")
	require.NoError(t, f.store.SaveWorker(f.ctx, engine.Worker{
		ID: "w-old", CompanyID: company, TeamID: team, Role: engine.RoleWorker,
		CreatedAt: f.at("2025-01-02", "09:00"),
	}))
	eng := f.newEngine(engine.Options{MaxLookbackDays: 7})

	created, err := eng.Reconcile(f.ctx, "w-old")

	// THEN: only Jun 2..Jun 8 is scanned
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-02", "2025-06-03", "2025-06-04", "2025-06-05", "2025-06-06"}, dates(created))
}

func TestReconcile_NeverResolvesExistingAbsences(t *testing.T) {
	// GIVEN: an absence recorded before an exemption was approved for that day
	f := newFixture(t, "2025-06-09", "09:00")
	a := f.absence(worker, "2025-06-02")
	f.exemption(worker, "2025-06-02", "2025-06-02", engine.ExemptionApproved)

	_, err := f.engine.Reconcile(f.ctx, worker)
	require.NoError(t, err)

	// THEN: it is still waiting on the worker
	got, err := f.store.Absence(f.ctx, a.ID)
	require.NoError(t, err)
	assert.IsType(t, engine.AwaitingWorker{}, got.State())
}

func TestReconcile_EnvironmentErrorsFailLoudly(t *testing.T) {
	f := newFixture(t, "2025-06-09", "09:00")

	t.Run("worker without team", func(t *testing.T) {
		require.NoError(t, f.store.SaveWorker(f.ctx, engine.Worker{ID: "drifter", CompanyID: company}))
		_, err := f.engine.Reconcile(f.ctx, "drifter")
		assert.ErrorIs(t, err, engine.ErrMissingTeam)
	})

	t.Run("unknown timezone", func(t *testing.T) {
		require.NoError(t, f.store.SaveCompany(f.ctx, engine.Company{ID: "mars", Timezone: "Mars/Olympus"}))
		require.NoError(t, f.store.SaveTeam(f.ctx, engine.Team{ID: "rovers", CompanyID: "mars", WorkDays: calendar.MondayToFriday}))
		require.NoError(t, f.store.SaveWorker(f.ctx, engine.Worker{ID: "rover", CompanyID: "mars", TeamID: "rovers", CreatedAt: f.at("2025-01-01", "00:00")}))

		created, err := f.engine.Reconcile(f.ctx, "rover")
		assert.ErrorIs(t, err, calendar.ErrUnknownTimezone)
		assert.Empty(t, created)
	})

	t.Run("team without work days", func(t *testing.T) {
		require.NoError(t, f.store.SaveTeam(f.ctx, engine.Team{ID: "idle", CompanyID: company}))
		require.NoError(t, f.store.SaveWorker(f.ctx, engine.Worker{ID: "idler", CompanyID: company, TeamID: "idle"}))
		_, err := f.engine.Reconcile(f.ctx, "idler")
		assert.ErrorIs(t, err, engine.ErrInvalidTeamConfig)
	})

	t.Run("unknown worker", func(t *testing.T) {
		_, err := f.engine.Reconcile(f.ctx, "ghost")
		assert.ErrorIs(t, err, engine.ErrWorkerNotFound)
		assert.True(t, engine.IsNotFound(err))
	})
}
