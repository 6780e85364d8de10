/*
review.go - Worker justification and supervisor review

FLOW:
  1. Reconcile creates an absence            (AwaitingWorker)
  2. Worker submits a justification batch    (AwaitingSupervisor)
  3. Team supervisor reviews one absence     (Excused | Unexcused)

BATCH RULE:
  SubmitJustification validates every item before writing any. The whole
  batch runs in one store transaction, so a failure on item N leaves items
  1..N-1 untouched.

REVIEW RULE:
  One absence per call. The reviewer must be the supervisor of the team the
  absence was recorded under.
*/
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/warp/readiness-engine/calendar"
)

// JustificationItem targets one absence in a batch.
type JustificationItem struct {
	AbsenceID   AbsenceID
	Category    ReasonCategory
	Explanation string
}

// =============================================================================
// QUERIES
// =============================================================================

// ListPendingJustifications returns absences the worker still has to explain.
func (e *Engine) ListPendingJustifications(ctx context.Context, workerID WorkerID) ([]Absence, error) {
	if _, err := e.Store.Worker(ctx, workerID); err != nil {
		return nil, err
	}
	return e.Store.PendingJustifications(ctx, workerID)
}

// ListAbsences returns every absence of workerID dated within p.
func (e *Engine) ListAbsences(ctx context.Context, workerID WorkerID, p calendar.Period) ([]Absence, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if _, err := e.Store.Worker(ctx, workerID); err != nil {
		return nil, err
	}
	return e.Store.AbsencesInRange(ctx, workerID, p)
}

// IsCheckinBlocked reports whether the worker owes at least one justification.
func (e *Engine) IsCheckinBlocked(ctx context.Context, workerID WorkerID) (bool, error) {
	pending, err := e.ListPendingJustifications(ctx, workerID)
	if err != nil {
		return false, err
	}
	return len(pending) > 0, nil
}

// ListAwaitingReview returns justified absences waiting on supervisorID,
// oldest first.
func (e *Engine) ListAwaitingReview(ctx context.Context, supervisorID WorkerID) ([]Absence, error) {
	if _, err := e.Store.Worker(ctx, supervisorID); err != nil {
		return nil, err
	}
	teams, err := e.Store.TeamsLedBy(ctx, supervisorID)
	if err != nil {
		return nil, err
	}
	var queue []Absence
	for _, t := range teams {
		absences, err := e.Store.AwaitingReview(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("team %s: %w", t.ID, err)
		}
		queue = append(queue, absences...)
	}
	sort.SliceStable(queue, func(i, j int) bool {
		if !queue[i].Date.Equal(queue[j].Date) {
			return queue[i].Date.Before(queue[j].Date)
		}
		return queue[i].WorkerID < queue[j].WorkerID
	})
	return queue, nil
}

// =============================================================================
// JUSTIFY
// =============================================================================

// SubmitJustification applies every item or none.
func (e *Engine) SubmitJustification(ctx context.Context, workerID WorkerID, items []JustificationItem) ([]Absence, error) {
	if len(items) == 0 {
		return nil, &ValidationError{Field: "items", Message: "at least one absence is required"}
	}
	seen := make(map[AbsenceID]bool, len(items))
	for _, it := range items {
		if it.AbsenceID == "" {
			return nil, &ValidationError{Field: "absence_id", Message: "is required"}
		}
		if seen[it.AbsenceID] {
			return nil, &ValidationError{Field: "absence_id", Message: "duplicate id " + string(it.AbsenceID)}
		}
		seen[it.AbsenceID] = true
	}

	now := e.clock.Now()
	updated := make([]Absence, 0, len(items))

	err := e.Store.WithAbsenceTx(ctx, func(tx AbsenceTx) error {
		// Validate all
		for _, it := range items {
			a, err := tx.AbsenceForUpdate(ctx, it.AbsenceID)
			if err != nil {
				return err
			}
			if a.WorkerID != workerID {
				return &StateError{Code: CodeNotAbsenceOwner, AbsenceID: a.ID, Message: "absence belongs to another worker"}
			}
			next, err := a.Justify(Justification{Category: it.Category, Explanation: it.Explanation, At: now})
			if err != nil {
				return err
			}
			updated = append(updated, next)
		}
		// Write all
		for _, a := range updated {
			if err := tx.SaveAbsence(ctx, a); err != nil {
				return fmt.Errorf("save absence %s: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"worker_id": workerID,
		"count":     len(updated),
	}).Info("justification submitted")
	return updated, nil
}

// =============================================================================
// REVIEW
// =============================================================================

// ReviewAbsence records a supervisor decision on a single absence.
func (e *Engine) ReviewAbsence(ctx context.Context, absenceID AbsenceID, reviewerID WorkerID, d Decision, notes string) (Absence, error) {
	if !d.Valid() {
		return Absence{}, &ValidationError{Field: "decision", Message: "must be EXCUSE or UNEXCUSE"}
	}
	current, err := e.Store.Absence(ctx, absenceID)
	if err != nil {
		return Absence{}, err
	}
	if err := e.authorizeReviewer(ctx, current, reviewerID); err != nil {
		return Absence{}, err
	}

	var result Absence
	err = e.Store.WithAbsenceTx(ctx, func(tx AbsenceTx) error {
		a, err := tx.AbsenceForUpdate(ctx, absenceID)
		if err != nil {
			return err
		}
		next, err := a.Review(d, Review{By: reviewerID, At: e.clock.Now(), Notes: notes})
		if err != nil {
			return err
		}
		if err := tx.SaveAbsence(ctx, next); err != nil {
			return fmt.Errorf("save absence %s: %w", a.ID, err)
		}
		result = next
		return nil
	})
	if err != nil {
		return Absence{}, err
	}

	e.log.WithFields(logrus.Fields{
		"absence_id":  absenceID,
		"worker_id":   result.WorkerID,
		"reviewer_id": reviewerID,
		"decision":    d,
	}).Info("absence reviewed")
	return result, nil
}

func (e *Engine) authorizeReviewer(ctx context.Context, a Absence, reviewerID WorkerID) error {
	teamID := a.TeamID
	if teamID == "" {
		w, err := e.Store.Worker(ctx, a.WorkerID)
		if err != nil {
			return err
		}
		teamID = w.TeamID
	}
	if teamID != "" {
		t, err := e.Store.Team(ctx, teamID)
		if err != nil {
			return err
		}
		if t.SupervisorID != "" && t.SupervisorID == reviewerID {
			return nil
		}
	}
	return &StateError{Code: CodeNotTeamSupervisor, AbsenceID: a.ID, Message: "reviewer does not lead this team"}
}
