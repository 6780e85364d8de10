package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/warp/readiness-engine/scoring"
)

// CheckinInput is what a worker submits.
type CheckinInput struct {
	Metrics scoring.Metrics
	Note    string
}

// CheckinResult is the created check-in plus the streak it produced.
type CheckinResult struct {
	Checkin Checkin
	Streak  Streak
}

// SubmitCheckin records today's check-in for workerID.
//
// Order: validate, reconcile, refuse while justifications are owed, score,
// resolve punctuality against the team shift, insert, advance the streak.
func (e *Engine) SubmitCheckin(ctx context.Context, workerID WorkerID, in CheckinInput) (CheckinResult, error) {
	readiness, err := scoring.ScoreCheckin(in.Metrics)
	if err != nil {
		return CheckinResult{}, err
	}
	s, err := e.scope(ctx, workerID)
	if err != nil {
		return CheckinResult{}, err
	}
	if _, err := e.reconcile(ctx, s); err != nil {
		return CheckinResult{}, fmt.Errorf("reconcile: %w", err)
	}

	pending, err := e.Store.PendingJustifications(ctx, workerID)
	if err != nil {
		return CheckinResult{}, err
	}
	if len(pending) > 0 {
		return CheckinResult{}, &StateError{
			Code:    CodeCheckinBlocked,
			Message: fmt.Sprintf("%d absence(s) need a justification first", len(pending)),
		}
	}

	now := e.clock.Now()
	c := Checkin{
		ID:          CheckinID(e.newID()),
		WorkerID:    workerID,
		CompanyID:   s.Company.ID,
		Date:        s.Zone.DateOf(now),
		Metrics:     in.Metrics,
		Readiness:   readiness,
		Punctuality: scoring.ResolveAttendance(now, s.Zone, s.Team.ShiftStart, e.gracePeriod),
		Note:        strings.TrimSpace(in.Note),
		CreatedAt:   now,
	}
	if err := e.Store.InsertCheckin(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCheckin) {
			return CheckinResult{}, &StateError{Code: CodeAlreadyCheckedIn, Message: "already checked in on " + c.Date.String()}
		}
		return CheckinResult{}, fmt.Errorf("insert checkin: %w", err)
	}

	streak, err := e.advanceStreak(ctx, s, c.Date)
	if err != nil {
		return CheckinResult{}, err
	}

	e.log.WithFields(logrus.Fields{
		"worker_id":    workerID,
		"date":         c.Date.String(),
		"score":        c.Readiness.Score,
		"status":       c.Readiness.Status,
		"punctuality":  c.Punctuality.Status,
		"minutes_late": c.Punctuality.MinutesLate,
	}).Info("checkin recorded")
	return CheckinResult{Checkin: c, Streak: streak}, nil
}

// SetLowScoreReason attaches an explanation to a non-GREEN check-in. It may
// be set once.
func (e *Engine) SetLowScoreReason(ctx context.Context, id CheckinID, reason string) (Checkin, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Checkin{}, &ValidationError{Field: "reason", Message: "must not be empty"}
	}
	c, err := e.Store.Checkin(ctx, id)
	if err != nil {
		return Checkin{}, err
	}
	if c.Readiness.Status == scoring.Green {
		return Checkin{}, &StateError{Code: CodeLowScoreReasonNotAllowed, Message: "checkin readiness is GREEN"}
	}
	if c.LowScoreReason != nil {
		return Checkin{}, &StateError{Code: CodeLowScoreReasonNotAllowed, Message: "reason already recorded"}
	}
	updated, err := e.Store.SetLowScoreReason(ctx, id, reason)
	if err != nil {
		return Checkin{}, err
	}
	if !updated {
		return Checkin{}, &StateError{Code: CodeLowScoreReasonNotAllowed, Message: "reason already recorded"}
	}
	c.LowScoreReason = &reason
	return c, nil
}
