/*
performance.go - Attendance performance and team grades

DAY CLASSIFICATION (scheduled days only; non-work days and holidays are
not listed):

  check-in on the date          -> GREEN or YELLOW (punctuality at creation)
  EXCUSED absence               -> EXCUSED        (leaves the denominator)
  pending or UNEXCUSED absence  -> ABSENT         (weight 0)
  anything else                 -> NOT_REQUIRED   (exempt, before baseline,
                                                   today, future)

  score = round(sum(weights) / counted), grade N/A when nothing counted.

TEAM GRADE:
  round(avgReadiness*0.6 + compliance*0.4), where avgReadiness is the mean
  readiness score of every member check-in in the period and compliance is
  the attendance score over the merged member breakdowns.
*/
package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/scoring"
)

// =============================================================================
// WORKER PERFORMANCE
// =============================================================================

type DayResult struct {
	Date        calendar.Date
	Kind        scoring.DayKind
	CheckinID   CheckinID
	AbsenceID   AbsenceID
	MinutesLate int
}

type Performance struct {
	WorkerID  WorkerID
	Period    calendar.Period
	Breakdown scoring.Breakdown
	Score     int
	Graded    bool // false when no day counted
	Grade     scoring.Grade
	Days      []DayResult

	readinessSum   int
	readinessCount int
}

// ComputePerformance grades workerID's attendance over p. It reads absences
// as they are; callers wanting fresh results reconcile first.
func (e *Engine) ComputePerformance(ctx context.Context, workerID WorkerID, p calendar.Period) (Performance, error) {
	if err := p.Validate(); err != nil {
		return Performance{}, err
	}
	s, err := e.scope(ctx, workerID)
	if err != nil {
		return Performance{}, err
	}
	return e.performance(ctx, s, p)
}

func (e *Engine) performance(ctx context.Context, s workerScope, p calendar.Period) (Performance, error) {
	idx, err := e.loadDayIndex(ctx, s, p)
	if err != nil {
		return Performance{}, err
	}
	checkins, err := e.Store.CheckinsInRange(ctx, s.Worker.ID, p)
	if err != nil {
		return Performance{}, fmt.Errorf("load checkins: %w", err)
	}
	absences, err := e.Store.AbsencesInRange(ctx, s.Worker.ID, p)
	if err != nil {
		return Performance{}, fmt.Errorf("load absences: %w", err)
	}

	byDate := make(map[calendar.Date]Checkin, len(checkins))
	perf := Performance{WorkerID: s.Worker.ID, Period: p}
	for _, c := range checkins {
		byDate[c.Date] = c
		perf.readinessSum += c.Readiness.Score
		perf.readinessCount++
	}
	absent := make(map[calendar.Date]Absence, len(absences))
	for _, a := range absences {
		absent[a.Date] = a
	}

	for _, d := range p.Days() {
		if !idx.isScheduled(d) {
			continue
		}
		r := DayResult{Date: d, Kind: scoring.DayNotRequired}
		if c, ok := byDate[d]; ok {
			r.Kind = scoring.DayKindFor(c.Punctuality.Status)
			r.CheckinID = c.ID
			r.MinutesLate = c.Punctuality.MinutesLate
		} else if a, ok := absent[d]; ok {
			r.AbsenceID = a.ID
			r.Kind = scoring.DayAbsent
			if _, excused := a.State().(Excused); excused {
				r.Kind = scoring.DayExcused
			}
		}
		perf.Breakdown.Add(r.Kind)
		perf.Days = append(perf.Days, r)
	}

	perf.Score, perf.Graded = perf.Breakdown.Score()
	perf.Grade = perf.Breakdown.Grade()
	return perf, nil
}

// =============================================================================
// TEAM GRADE
// =============================================================================

type TeamGrade struct {
	TeamID           TeamID
	Period           calendar.Period
	Members          int
	Checkins         int
	AverageReadiness decimal.Decimal
	Compliance       decimal.Decimal
	Breakdown        scoring.Breakdown
	Score            int
	Graded           bool
	Grade            scoring.Grade
}

// ComputeTeamGrade blends readiness and attendance for every team member.
// The grade is N/A when no member has a counted day.
func (e *Engine) ComputeTeamGrade(ctx context.Context, teamID TeamID, p calendar.Period) (TeamGrade, error) {
	if err := p.Validate(); err != nil {
		return TeamGrade{}, err
	}
	if _, err := e.Store.Team(ctx, teamID); err != nil {
		return TeamGrade{}, err
	}
	members, err := e.Store.TeamMembers(ctx, teamID)
	if err != nil {
		return TeamGrade{}, err
	}

	g := TeamGrade{TeamID: teamID, Period: p, Members: len(members), Grade: scoring.GradeNone}
	readinessSum := 0
	for _, m := range members {
		s, err := e.scope(ctx, m.ID)
		if err != nil {
			return TeamGrade{}, err
		}
		perf, err := e.performance(ctx, s, p)
		if err != nil {
			return TeamGrade{}, fmt.Errorf("worker %s: %w", m.ID, err)
		}
		g.Breakdown.Merge(perf.Breakdown)
		readinessSum += perf.readinessSum
		g.Checkins += perf.readinessCount
	}

	if g.Checkins > 0 {
		g.AverageReadiness = decimal.NewFromInt(int64(readinessSum)).Div(decimal.NewFromInt(int64(g.Checkins)))
	}
	counted := g.Breakdown.Counted()
	if counted == 0 {
		return g, nil
	}
	g.Compliance = decimal.NewFromInt(int64(g.Breakdown.WeightSum())).Div(decimal.NewFromInt(int64(counted)))
	g.Score = scoring.TeamScore(g.AverageReadiness, g.Compliance)
	g.Graded = true
	g.Grade = scoring.LetterGrade(g.Score)
	return g, nil
}

// ReconcileTeam reconciles every member of teamID and returns how many
// absences were created.
func (e *Engine) ReconcileTeam(ctx context.Context, teamID TeamID) (int, error) {
	members, err := e.Store.TeamMembers(ctx, teamID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, m := range members {
		created, err := e.Reconcile(ctx, m.ID)
		if err != nil {
			return total, fmt.Errorf("worker %s: %w", m.ID, err)
		}
		total += len(created)
	}
	return total, nil
}
