package engine

import (
	"context"
	"fmt"

	"github.com/warp/readiness-engine/calendar"
)

// Streak is the worker's consecutive check-in count over required days.
type Streak struct {
	WorkerID        WorkerID
	Current         int
	Longest         int
	LastCheckinDate *calendar.Date
}

// GetStreak returns the stored counters.
func (e *Engine) GetStreak(ctx context.Context, workerID WorkerID) (Streak, error) {
	w, err := e.Store.Worker(ctx, workerID)
	if err != nil {
		return Streak{}, err
	}
	return Streak{
		WorkerID:        w.ID,
		Current:         w.CurrentStreak,
		Longest:         w.LongestStreak,
		LastCheckinDate: w.LastCheckinDate,
	}, nil
}

// advanceStreak is called once per created check-in.
//
// The streak continues when no required day (team work day that is neither
// a holiday nor covered by an APPROVED exemption) lies strictly between the
// previous check-in date and date. Otherwise it restarts at 1.
func (e *Engine) advanceStreak(ctx context.Context, s workerScope, date calendar.Date) (Streak, error) {
	w := s.Worker
	current := 1

	if last := w.LastCheckinDate; last != nil && date.After(*last) {
		gap := calendar.Period{Start: last.AddDays(1), End: date.AddDays(-1)}
		idx, err := e.loadDayIndex(ctx, s, gap)
		if err != nil {
			return Streak{}, err
		}
		if !anyRequired(idx, gap) {
			current = w.CurrentStreak + 1
		}
	}

	longest := max(w.LongestStreak, current)
	if err := e.Store.UpdateStreak(ctx, w.ID, current, longest, date); err != nil {
		return Streak{}, fmt.Errorf("update streak: %w", err)
	}
	return Streak{WorkerID: w.ID, Current: current, Longest: longest, LastCheckinDate: &date}, nil
}

func anyRequired(idx dayIndex, p calendar.Period) bool {
	for _, d := range p.Days() {
		if idx.isRequired(d) {
			return true
		}
	}
	return false
}
