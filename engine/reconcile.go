/*
reconcile.go - Absence detection

PURPOSE:
  Brings a worker's calendar to a consistent state. For every work day
  strictly before today (company-local), at least one of these holds after
  Reconcile returns:

    1. the date is not a team work day
    2. a company holiday falls on it
    3. an APPROVED exemption covers it
    4. a check-in exists for it
    5. an absence is already recorded for it

  Otherwise a PENDING_JUSTIFICATION absence is created.

BASELINE:
  first check-in date  >  day after team join  >  day after account creation

  When the team-join date is known the scan never starts on or before it.
  Historical absences from a previous team are left as they are; the current
  team's schedule only applies from the day after joining.

WINDOW:
  [max(baseline, today - MaxLookbackDays), yesterday]. Today is never
  evaluated. An empty window is a no-op.

IDEMPOTENCE:
  The store's unique (worker, date) constraint decides. A duplicate insert
  comes back as inserted=false and is skipped. No in-memory lock.
*/
package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/warp/readiness-engine/calendar"
)

// Reconcile creates the absences missing for workerID and returns the ones
// this call inserted.
func (e *Engine) Reconcile(ctx context.Context, workerID WorkerID) ([]Absence, error) {
	s, err := e.scope(ctx, workerID)
	if err != nil {
		return nil, err
	}
	return e.reconcile(ctx, s)
}

func (e *Engine) reconcile(ctx context.Context, s workerScope) ([]Absence, error) {
	window, err := e.reconcileWindow(ctx, s)
	if err != nil {
		return nil, err
	}
	log := e.log.WithFields(logrus.Fields{
		"worker_id": s.Worker.ID,
		"from":      window.Start.String(),
		"to":        window.End.String(),
	})
	if window.IsEmpty() {
		log.Debug("reconcile: nothing to scan")
		return nil, nil
	}

	idx, err := e.loadDayIndex(ctx, s, window)
	if err != nil {
		return nil, err
	}
	checkins, err := e.Store.CheckinsInRange(ctx, s.Worker.ID, window)
	if err != nil {
		return nil, fmt.Errorf("load checkins: %w", err)
	}
	existing, err := e.Store.AbsencesInRange(ctx, s.Worker.ID, window)
	if err != nil {
		return nil, fmt.Errorf("load absences: %w", err)
	}

	covered := make(map[calendar.Date]bool, len(checkins)+len(existing))
	for _, c := range checkins {
		covered[c.Date] = true
	}
	for _, a := range existing {
		covered[a.Date] = true
	}

	var created []Absence
	now := e.clock.Now()
	for _, d := range window.Days() {
		if !idx.isScheduled(d) || idx.isExempt(d) || covered[d] {
			continue
		}
		a := Absence{
			ID:        AbsenceID(e.newID()),
			WorkerID:  s.Worker.ID,
			TeamID:    s.Team.ID,
			CompanyID: s.Company.ID,
			Date:      d,
			Status:    AbsencePendingJustification,
			CreatedAt: now,
		}
		inserted, err := e.Store.InsertAbsence(ctx, a)
		if err != nil {
			return created, fmt.Errorf("insert absence %s: %w", d, err)
		}
		if !inserted {
			log.WithField("date", d.String()).Debug("reconcile: absence already recorded")
			continue
		}
		created = append(created, a)
	}

	if len(created) > 0 {
		log.WithField("created", len(created)).Info("reconcile: absences recorded")
	}
	return created, nil
}

// Baseline returns the first date the worker can owe a check-in.
func (e *Engine) Baseline(ctx context.Context, workerID WorkerID) (calendar.Date, error) {
	s, err := e.scope(ctx, workerID)
	if err != nil {
		return calendar.Date{}, err
	}
	return e.baseline(ctx, s)
}

func (e *Engine) baseline(ctx context.Context, s workerScope) (calendar.Date, error) {
	first, ok, err := e.Store.FirstCheckinDate(ctx, s.Worker.ID)
	if err != nil {
		return calendar.Date{}, fmt.Errorf("first checkin: %w", err)
	}

	var joined calendar.Date
	if s.Worker.TeamJoinedAt != nil {
		joined = s.Zone.DateOf(*s.Worker.TeamJoinedAt).AddDays(1)
	}

	switch {
	case ok && !joined.IsZero():
		return calendar.MaxDate(first, joined), nil
	case ok:
		return first, nil
	case !joined.IsZero():
		return joined, nil
	default:
		return s.Zone.DateOf(s.Worker.CreatedAt).AddDays(1), nil
	}
}

func (e *Engine) reconcileWindow(ctx context.Context, s workerScope) (calendar.Period, error) {
	base, err := e.baseline(ctx, s)
	if err != nil {
		return calendar.Period{}, err
	}
	oldest := s.Today.AddDays(-e.maxLookbackDays)
	return calendar.Period{
		Start: calendar.MaxDate(base, oldest),
		End:   s.Today.AddDays(-1),
	}, nil
}
