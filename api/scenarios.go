/*
scenarios.go - Demo scenario loaders for testing and demonstrations

AVAILABLE SCENARIOS:

	missed-week:          Worker joined eight days ago and never checked in
	justification-queue:  Same, but every absence is already explained and
	                      waiting for the supervisor
	steady-streak:        Two weeks of on-time check-ins
	holiday-and-leave:    Check-ins around a company holiday and an approved
	                      exemption, with one late arrival

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create the company, team and supervisor
 3. Create the scenario's worker relative to "today" in the company zone
 4. Insert historical check-ins, exemptions and holidays
 5. Run engine operations where the scenario needs engine-made state

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "missed-week"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/engine"
	"github.com/warp/readiness-engine/scoring"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "missed-week",
		Name:        "Missed Week",
		Description: "New hire with no check-ins; the next read creates one absence per missed work day",
	},
	{
		ID:          "justification-queue",
		Name:        "Justification Queue",
		Description: "Every missed day explained by the worker and waiting for supervisor review",
	},
	{
		ID:          "steady-streak",
		Name:        "Steady Streak",
		Description: "Two weeks of on-time check-ins on every work day",
	},
	{
		ID:          "holiday-and-leave",
		Name:        "Holiday and Leave",
		Description: "A company holiday and an approved exemption that neither break the streak nor count as absences",
	},
}

var scenarioLoaders = map[string]func(ctx context.Context, h *Handler) error{
	"missed-week":         loadMissedWeekScenario,
	"justification-queue": loadJustificationQueueScenario,
	"steady-streak":       loadSteadyStreakScenario,
	"holiday-and-leave":   loadHolidayAndLeaveScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", "VALIDATION", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if err := load(r.Context(), h); err != nil {
		h.writeEngineError(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID
	h.log.WithField("scenario", req.ScenarioID).Info("scenario loaded")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario_id": req.ScenarioID})
}

// =============================================================================
// SHARED SETUP
// =============================================================================

const (
	demoCompany    engine.CompanyID = "acme"
	demoTeam       engine.TeamID    = "line-1"
	demoSupervisor engine.WorkerID  = "sup-mara"
	demoTimezone                    = "Asia/Manila"
)

var (
	demoShiftStart = calendar.MustParseTimeOfDay("08:00")
	demoShiftEnd   = calendar.MustParseTimeOfDay("17:00")
	steadyMetrics  = scoring.Metrics{Mood: 8, Stress: 3, Sleep: 7, Physical: 8}
)

// scenarioContext holds what every loader needs after the organisation is
// seeded.
type scenarioContext struct {
	h     *Handler
	zone  calendar.Zone
	today calendar.Date
}

func seedOrganisation(ctx context.Context, h *Handler) (scenarioContext, error) {
	zone, err := calendar.LoadZone(demoTimezone)
	if err != nil {
		return scenarioContext{}, err
	}
	sc := scenarioContext{h: h, zone: zone, today: zone.Today(h.Engine.Clock().Now())}

	if err := h.Store.SaveCompany(ctx, engine.Company{ID: demoCompany, Name: "Acme Logistics", Timezone: demoTimezone}); err != nil {
		return sc, err
	}
	if err := h.Store.SaveTeam(ctx, engine.Team{
		ID:           demoTeam,
		CompanyID:    demoCompany,
		Name:         "Loading Dock",
		WorkDays:     calendar.MondayToFriday,
		ShiftStart:   demoShiftStart,
		ShiftEnd:     demoShiftEnd,
		SupervisorID: demoSupervisor,
	}); err != nil {
		return sc, err
	}
	err = h.Store.SaveWorker(ctx, engine.Worker{
		ID:        demoSupervisor,
		CompanyID: demoCompany,
		Name:      "Mara Santos",
		Role:      engine.RoleSupervisor,
		CreatedAt: zone.At(sc.today.AddDays(-365), demoShiftStart),
	})
	return sc, err
}

// addWorker joins the demo team daysAgo days before today, mid-morning.
func (sc scenarioContext) addWorker(ctx context.Context, id engine.WorkerID, name string, daysAgo int) error {
	joined := sc.zone.At(sc.today.AddDays(-daysAgo), calendar.TimeOfDay{Hour: 10})
	return sc.h.Store.SaveWorker(ctx, engine.Worker{
		ID:           id,
		CompanyID:    demoCompany,
		TeamID:       demoTeam,
		Name:         name,
		Role:         engine.RoleWorker,
		TeamJoinedAt: &joined,
		CreatedAt:    joined,
	})
}

// checkin inserts a historical check-in created at the given local time.
func (sc scenarioContext) checkin(ctx context.Context, workerID engine.WorkerID, d calendar.Date, at calendar.TimeOfDay, m scoring.Metrics) error {
	readiness, err := scoring.ScoreCheckin(m)
	if err != nil {
		return err
	}
	created := sc.zone.At(d, at)
	return sc.h.Store.InsertCheckin(ctx, engine.Checkin{
		ID:          engine.CheckinID(uuid.NewString()),
		WorkerID:    workerID,
		CompanyID:   demoCompany,
		Date:        d,
		Metrics:     m,
		Readiness:   readiness,
		Punctuality: scoring.ResolveAttendance(created, sc.zone, demoShiftStart, sc.h.Engine.GracePeriod()),
		CreatedAt:   created,
	})
}

// workDaysBefore lists the Monday-to-Friday dates in [today-days, today-1].
func (sc scenarioContext) workDaysBefore(days int) []calendar.Date {
	var out []calendar.Date
	for _, d := range (calendar.Period{Start: sc.today.AddDays(-days), End: sc.today.AddDays(-1)}).Days() {
		if calendar.MondayToFriday.Contains(d.Weekday()) {
			out = append(out, d)
		}
	}
	return out
}

// =============================================================================
// LOADERS
// =============================================================================

func loadMissedWeekScenario(ctx context.Context, h *Handler) error {
	sc, err := seedOrganisation(ctx, h)
	if err != nil {
		return err
	}
	return sc.addWorker(ctx, "w-ana", "Ana Reyes", 8)
}

func loadJustificationQueueScenario(ctx context.Context, h *Handler) error {
	sc, err := seedOrganisation(ctx, h)
	if err != nil {
		return err
	}
	if err := sc.addWorker(ctx, "w-ben", "Ben Cruz", 8); err != nil {
		return err
	}
	created, err := h.Engine.Reconcile(ctx, "w-ben")
	if err != nil {
		return err
	}
	if len(created) == 0 {
		return nil
	}
	items := make([]engine.JustificationItem, len(created))
	for i, a := range created {
		items[i] = engine.JustificationItem{AbsenceID: a.ID, Category: engine.ReasonSick, Explanation: "Fever, clinic visit on the first day"}
	}
	_, err = h.Engine.SubmitJustification(ctx, "w-ben", items)
	return err
}

func loadSteadyStreakScenario(ctx context.Context, h *Handler) error {
	sc, err := seedOrganisation(ctx, h)
	if err != nil {
		return err
	}
	if err := sc.addWorker(ctx, "w-cy", "Cy Navarro", 15); err != nil {
		return err
	}
	// Joined mid-morning, so the join day itself is not required.
	days := sc.workDaysBefore(14)
	for _, d := range days {
		if err := sc.checkin(ctx, "w-cy", d, calendar.TimeOfDay{Hour: 7, Minute: 50}, steadyMetrics); err != nil {
			return err
		}
	}
	if len(days) == 0 {
		return nil
	}
	return h.Store.UpdateStreak(ctx, "w-cy", len(days), len(days), days[len(days)-1])
}

func loadHolidayAndLeaveScenario(ctx context.Context, h *Handler) error {
	sc, err := seedOrganisation(ctx, h)
	if err != nil {
		return err
	}
	if err := sc.addWorker(ctx, "w-dee", "Dee Lim", 15); err != nil {
		return err
	}

	days := sc.workDaysBefore(14)
	if len(days) < 6 {
		return nil
	}
	holiday := days[1]
	leave := calendar.Period{Start: days[3], End: days[4]}

	if err := h.Store.SaveHoliday(ctx, engine.Holiday{ID: "hol-" + holiday.String(), CompanyID: demoCompany, Date: holiday, Name: "Founders Day"}); err != nil {
		return err
	}
	if err := h.Store.SaveExemption(ctx, engine.Exemption{
		ID:        "ex-dee-leave",
		WorkerID:  "w-dee",
		Type:      "SICK_LEAVE",
		StartDate: leave.Start,
		EndDate:   leave.End,
		Status:    engine.ExemptionApproved,
		Reason:    "Dental surgery",
	}); err != nil {
		return err
	}

	streak := 0
	var last calendar.Date
	for i, d := range days {
		if d.Equal(holiday) || leave.Contains(d) {
			continue
		}
		arrival := calendar.TimeOfDay{Hour: 7, Minute: 55}
		if i == len(days)-1 {
			arrival = calendar.TimeOfDay{Hour: 8, Minute: 40} // one YELLOW day
		}
		if err := sc.checkin(ctx, "w-dee", d, arrival, steadyMetrics); err != nil {
			return err
		}
		streak++
		last = d
	}
	return h.Store.UpdateStreak(ctx, "w-dee", streak, streak, last)
}
