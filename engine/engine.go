package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/scoring"
)

// DefaultMaxLookbackDays bounds how far back a single reconciliation scans.
const DefaultMaxLookbackDays = 90

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Clock           calendar.Clock
	Logger          logrus.FieldLogger
	GracePeriod     *int // minutes after shift start still GREEN; nil selects the default
	MaxLookbackDays int
	NewID           func() string
}

// Engine runs reconciliation, review, streak and performance operations
// against a Store.
type Engine struct {
	Store Store

	clock           calendar.Clock
	log             logrus.FieldLogger
	gracePeriod     int
	maxLookbackDays int
	newID           func() string
}

func New(store Store, opts Options) *Engine {
	e := &Engine{
		Store:           store,
		clock:           opts.Clock,
		log:             opts.Logger,
		gracePeriod:     scoring.DefaultGracePeriod,
		maxLookbackDays: opts.MaxLookbackDays,
		newID:           opts.NewID,
	}
	if e.clock == nil {
		e.clock = calendar.Real{}
	}
	if e.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		e.log = discard
	}
	if opts.GracePeriod != nil {
		e.gracePeriod = max(*opts.GracePeriod, 0)
	}
	if e.maxLookbackDays <= 0 {
		e.maxLookbackDays = DefaultMaxLookbackDays
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// Clock returns the engine's time source.
func (e *Engine) Clock() calendar.Clock { return e.clock }

// GracePeriod is the number of minutes after shift start still counted GREEN.
func (e *Engine) GracePeriod() int { return e.gracePeriod }

// =============================================================================
// WORKER CONTEXT
// =============================================================================

// workerScope is everything needed to reason about one worker's calendar.
type workerScope struct {
	Worker  Worker
	Team    Team
	Company Company
	Zone    calendar.Zone
	Today   calendar.Date
}

// scope loads the worker, their team and company, and the company zone.
// A worker without a team, a team without work days, or an unknown timezone
// are errors: guessing would silently create or hide absences.
func (e *Engine) scope(ctx context.Context, workerID WorkerID) (workerScope, error) {
	w, err := e.Store.Worker(ctx, workerID)
	if err != nil {
		return workerScope{}, err
	}
	if w.TeamID == "" {
		return workerScope{}, fmt.Errorf("worker %s: %w", workerID, ErrMissingTeam)
	}
	t, err := e.Store.Team(ctx, w.TeamID)
	if err != nil {
		return workerScope{}, fmt.Errorf("worker %s: %w", workerID, err)
	}
	if err := t.Validate(); err != nil {
		return workerScope{}, err
	}
	c, err := e.Store.Company(ctx, t.CompanyID)
	if err != nil {
		return workerScope{}, fmt.Errorf("team %s: %w", t.ID, err)
	}
	zone, err := calendar.LoadZone(c.Timezone)
	if err != nil {
		return workerScope{}, fmt.Errorf("company %s: %w", c.ID, err)
	}
	return workerScope{
		Worker:  w,
		Team:    t,
		Company: c,
		Zone:    zone,
		Today:   zone.Today(e.clock.Now()),
	}, nil
}

// dayIndex answers "is this date excluded from the worker's calendar" for a
// fixed period, from a single read of each signal.
type dayIndex struct {
	workDays   calendar.WorkWeek
	holidays   map[calendar.Date]bool
	exemptions []Exemption
}

func (e *Engine) loadDayIndex(ctx context.Context, s workerScope, p calendar.Period) (dayIndex, error) {
	idx := dayIndex{workDays: s.Team.WorkDays, holidays: make(map[calendar.Date]bool)}
	if p.IsEmpty() {
		return idx, nil
	}
	holidays, err := e.Store.Holidays(ctx, s.Company.ID, p)
	if err != nil {
		return idx, fmt.Errorf("load holidays: %w", err)
	}
	for _, h := range holidays {
		idx.holidays[h.Date] = true
	}
	exemptions, err := e.Store.ApprovedExemptions(ctx, s.Worker.ID, p)
	if err != nil {
		return idx, fmt.Errorf("load exemptions: %w", err)
	}
	idx.exemptions = exemptions
	return idx, nil
}

// isScheduled reports a team work day that is not a holiday.
func (idx dayIndex) isScheduled(d calendar.Date) bool {
	return idx.workDays.Contains(d.Weekday()) && !idx.holidays[d]
}

func (idx dayIndex) isExempt(d calendar.Date) bool {
	for _, ex := range idx.exemptions {
		if ex.Covers(d) {
			return true
		}
	}
	return false
}

// isRequired reports a day on which the worker was expected to check in.
func (idx dayIndex) isRequired(d calendar.Date) bool {
	return idx.isScheduled(d) && !idx.isExempt(d)
}
