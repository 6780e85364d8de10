package engine_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/engine"
	"github.com/warp/readiness-engine/engine/store"
	"github.com/warp/readiness-engine/scoring"
)

// =============================================================================
// FIXTURE
//
// Company "acme" runs on Asia/Manila (UTC+8, no DST). Team "t-1" works
// MON-FRI with an 08:00 shift start and is led by "sup-1". Worker "w-1" joined
// the team on Sunday 2025-06-01, so Monday 2025-06-02 is the first day they
// can owe a check-in.
// =============================================================================

const (
	manila     = "Asia/Manila"
	company    = engine.CompanyID("acme")
	team       = engine.TeamID("t-1")
	supervisor = engine.WorkerID("sup-1")
	worker     = engine.WorkerID("w-1")
)

var goodMetrics = scoring.Metrics{Mood: 9, Stress: 2, Sleep: 8, Physical: 9}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Memory
	engine *engine.Engine
	zone   calendar.Zone
	now    atomic.Pointer[time.Time]
	ids    atomic.Int64
}

// newFixture pins "now" to date at hhmm in Manila.
func newFixture(t *testing.T, date, hhmm string) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: store.NewMemory(),
		zone:  calendar.MustLoadZone(manila),
	}
	f.setNow(date, hhmm)
	f.engine = f.newEngine(engine.Options{})

	require.NoError(t, f.store.SaveCompany(f.ctx, engine.Company{ID: company, Name: "Acme", Timezone: manila}))
	require.NoError(t, f.store.SaveTeam(f.ctx, engine.Team{
		ID:           team,
		CompanyID:    company,
		Name:         "Blasting",
		WorkDays:     calendar.MondayToFriday,
		ShiftStart:   calendar.MustParseTimeOfDay("08:00"),
		ShiftEnd:     calendar.MustParseTimeOfDay("17:00"),
		SupervisorID: supervisor,
	}))
	require.NoError(t, f.store.SaveWorker(f.ctx, engine.Worker{
		ID: supervisor, CompanyID: company, Name: "Sam Supervisor", Role: engine.RoleSupervisor,
		CreatedAt: f.at("2025-01-01", "09:00"),
	}))
	f.addWorker(worker, "2025-06-01")
	return f
}

func (f *fixture) newEngine(opts engine.Options) *engine.Engine {
	opts.Clock = calendar.Func(func() time.Time { return *f.now.Load() })
	opts.NewID = func() string { return fmt.Sprintf("id-%d", f.ids.Add(1)) }
	return engine.New(f.store, opts)
}

func (f *fixture) setNow(date, hhmm string) {
	now := f.at(date, hhmm)
	f.now.Store(&now)
}

func (f *fixture) date(s string) calendar.Date { return calendar.MustParseDate(s) }

func (f *fixture) at(date, hhmm string) time.Time {
	return f.zone.At(calendar.MustParseDate(date), calendar.MustParseTimeOfDay(hhmm))
}

func (f *fixture) period(from, to string) calendar.Period {
	p, err := calendar.ParsePeriod(from, to)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) addWorker(id engine.WorkerID, joined string) {
	f.t.Helper()
	joinedAt := f.at(joined, "10:00")
	require.NoError(f.t, f.store.SaveWorker(f.ctx, engine.Worker{
		ID:           id,
		CompanyID:    company,
		TeamID:       team,
		Name:         string(id),
		Role:         engine.RoleWorker,
		TeamJoinedAt: &joinedAt,
		CreatedAt:    f.at("2025-05-01", "09:00"),
	}))
}

// checkin writes a historical check-in directly to the store.
func (f *fixture) checkin(id engine.WorkerID, date, hhmm string, m scoring.Metrics) engine.Checkin {
	f.t.Helper()
	r, err := scoring.ScoreCheckin(m)
	require.NoError(f.t, err)
	at := f.at(date, hhmm)
	c := engine.Checkin{
		ID:          engine.CheckinID(fmt.Sprintf("c-%s-%s", id, date)),
		WorkerID:    id,
		CompanyID:   company,
		Date:        f.date(date),
		Metrics:     m,
		Readiness:   r,
		Punctuality: scoring.ResolveAttendance(at, f.zone, calendar.MustParseTimeOfDay("08:00"), scoring.DefaultGracePeriod),
		CreatedAt:   at,
	}
	require.NoError(f.t, f.store.InsertCheckin(f.ctx, c))
	return c
}

// absence writes a PENDING_JUSTIFICATION absence directly to the store.
func (f *fixture) absence(id engine.WorkerID, date string) engine.Absence {
	f.t.Helper()
	a := engine.Absence{
		ID:        engine.AbsenceID(fmt.Sprintf("a-%s-%s", id, date)),
		WorkerID:  id,
		TeamID:    team,
		CompanyID: company,
		Date:      f.date(date),
		Status:    engine.AbsencePendingJustification,
		CreatedAt: f.at(date, "23:00"),
	}
	inserted, err := f.store.InsertAbsence(f.ctx, a)
	require.NoError(f.t, err)
	require.True(f.t, inserted)
	return a
}

func (f *fixture) exemption(id engine.WorkerID, from, to string, status engine.ExemptionStatus) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveExemption(f.ctx, engine.Exemption{
		ID:        engine.ExemptionID(fmt.Sprintf("ex-%s-%s-%s", id, from, status)),
		WorkerID:  id,
		Type:      "SICK_LEAVE",
		StartDate: f.date(from),
		EndDate:   f.date(to),
		Status:    status,
	}))
}

func (f *fixture) holiday(date, name string) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveHoliday(f.ctx, engine.Holiday{
		ID: "h-" + date, CompanyID: company, Date: f.date(date), Name: name,
	}))
}

// resolve runs an absence through justification and review.
func (f *fixture) resolve(a engine.Absence, d engine.Decision) {
	f.t.Helper()
	_, err := f.engine.SubmitJustification(f.ctx, a.WorkerID, []engine.JustificationItem{{
		AbsenceID: a.ID, Category: engine.ReasonSick, Explanation: "fever",
	}})
	require.NoError(f.t, err)
	_, err = f.engine.ReviewAbsence(f.ctx, a.ID, supervisor, d, "")
	require.NoError(f.t, err)
}

func dates(absences []engine.Absence) []string {
	out := make([]string, len(absences))
	for i, a := range absences {
		out[i] = a.Date.String()
	}
	return out
}
