// Package store provides an in-memory engine.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	companies  map[engine.CompanyID]engine.Company
	teams      map[engine.TeamID]engine.Team
	workers    map[engine.WorkerID]engine.Worker
	exemptions map[engine.ExemptionID]engine.Exemption
	holidays   map[holidayKey]engine.Holiday

	checkins     map[engine.CheckinID]engine.Checkin
	checkinByDay map[dayKey]engine.CheckinID
	absences     map[engine.AbsenceID]engine.Absence
	absenceByDay map[dayKey]engine.AbsenceID
}

// dayKey is the (worker, date) uniqueness key.
type dayKey struct {
	WorkerID engine.WorkerID
	Date     calendar.Date
}

type holidayKey struct {
	CompanyID engine.CompanyID
	Date      calendar.Date
}

var (
	_ engine.Store  = (*Memory)(nil)
	_ engine.Seeder = (*Memory)(nil)
)

func NewMemory() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

func (m *Memory) resetLocked() {
	m.companies = make(map[engine.CompanyID]engine.Company)
	m.teams = make(map[engine.TeamID]engine.Team)
	m.workers = make(map[engine.WorkerID]engine.Worker)
	m.exemptions = make(map[engine.ExemptionID]engine.Exemption)
	m.holidays = make(map[holidayKey]engine.Holiday)
	m.checkins = make(map[engine.CheckinID]engine.Checkin)
	m.checkinByDay = make(map[dayKey]engine.CheckinID)
	m.absences = make(map[engine.AbsenceID]engine.Absence)
	m.absenceByDay = make(map[dayKey]engine.AbsenceID)
}

// =============================================================================
// SEEDER
// =============================================================================

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

func (m *Memory) SaveCompany(_ context.Context, c engine.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[c.ID] = c
	return nil
}

func (m *Memory) SaveTeam(_ context.Context, t engine.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[t.ID] = t
	return nil
}

func (m *Memory) SaveWorker(_ context.Context, w engine.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[w.ID] = w
	return nil
}

func (m *Memory) SaveExemption(_ context.Context, e engine.Exemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exemptions[e.ID] = e
	return nil
}

func (m *Memory) SaveHoliday(_ context.Context, h engine.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays[holidayKey{CompanyID: h.CompanyID, Date: h.Date}] = h
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) Worker(_ context.Context, id engine.WorkerID) (engine.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	if !ok {
		return engine.Worker{}, engine.ErrWorkerNotFound
	}
	return w, nil
}

func (m *Memory) Team(_ context.Context, id engine.TeamID) (engine.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return engine.Team{}, engine.ErrTeamNotFound
	}
	return t, nil
}

func (m *Memory) Company(_ context.Context, id engine.CompanyID) (engine.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.companies[id]
	if !ok {
		return engine.Company{}, engine.ErrCompanyNotFound
	}
	return c, nil
}

func (m *Memory) TeamMembers(_ context.Context, id engine.TeamID) ([]engine.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Worker
	for _, w := range m.workers {
		if w.TeamID == id {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) TeamsLedBy(_ context.Context, supervisorID engine.WorkerID) ([]engine.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Team
	for _, t := range m.teams {
		if t.SupervisorID == supervisorID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// CHECKINS
// =============================================================================

func (m *Memory) FirstCheckinDate(_ context.Context, workerID engine.WorkerID) (calendar.Date, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var first calendar.Date
	found := false
	for k := range m.checkinByDay {
		if k.WorkerID != workerID {
			continue
		}
		if !found || k.Date.Before(first) {
			first, found = k.Date, true
		}
	}
	return first, found, nil
}

func (m *Memory) CheckinsInRange(_ context.Context, workerID engine.WorkerID, p calendar.Period) ([]engine.Checkin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Checkin
	for _, c := range m.checkins {
		if c.WorkerID == workerID && p.Contains(c.Date) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) Checkin(_ context.Context, id engine.CheckinID) (engine.Checkin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checkins[id]
	if !ok {
		return engine.Checkin{}, engine.ErrCheckinNotFound
	}
	return c, nil
}

func (m *Memory) InsertCheckin(_ context.Context, c engine.Checkin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := dayKey{WorkerID: c.WorkerID, Date: c.Date}
	if _, exists := m.checkinByDay[k]; exists {
		return engine.ErrDuplicateCheckin
	}
	m.checkins[c.ID] = c
	m.checkinByDay[k] = c.ID
	return nil
}

func (m *Memory) SetLowScoreReason(_ context.Context, id engine.CheckinID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checkins[id]
	if !ok {
		return false, engine.ErrCheckinNotFound
	}
	if c.LowScoreReason != nil {
		return false, nil
	}
	c.LowScoreReason = &reason
	m.checkins[id] = c
	return true, nil
}

// =============================================================================
// EXEMPTIONS & HOLIDAYS
// =============================================================================

func (m *Memory) ApprovedExemptions(_ context.Context, workerID engine.WorkerID, p calendar.Period) ([]engine.Exemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Exemption
	for _, e := range m.exemptions {
		if e.WorkerID != workerID || e.Status != engine.ExemptionApproved {
			continue
		}
		if p.Overlaps(calendar.Period{Start: e.StartDate, End: e.EndDate}) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *Memory) Holidays(_ context.Context, companyID engine.CompanyID, p calendar.Period) ([]engine.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Holiday
	for k, h := range m.holidays {
		if k.CompanyID == companyID && p.Contains(k.Date) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// ABSENCES
// =============================================================================

func (m *Memory) InsertAbsence(_ context.Context, a engine.Absence) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := dayKey{WorkerID: a.WorkerID, Date: a.Date}
	if _, exists := m.absenceByDay[k]; exists {
		return false, nil
	}
	m.absences[a.ID] = a
	m.absenceByDay[k] = a.ID
	return true, nil
}

func (m *Memory) Absence(_ context.Context, id engine.AbsenceID) (engine.Absence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.absenceLocked(id)
}

func (m *Memory) absenceLocked(id engine.AbsenceID) (engine.Absence, error) {
	a, ok := m.absences[id]
	if !ok {
		return engine.Absence{}, engine.ErrAbsenceNotFound
	}
	return a, nil
}

func (m *Memory) AbsencesInRange(_ context.Context, workerID engine.WorkerID, p calendar.Period) ([]engine.Absence, error) {
	return m.filterAbsences(func(a engine.Absence) bool {
		return a.WorkerID == workerID && p.Contains(a.Date)
	}), nil
}

func (m *Memory) PendingJustifications(_ context.Context, workerID engine.WorkerID) ([]engine.Absence, error) {
	return m.filterAbsences(func(a engine.Absence) bool {
		return a.WorkerID == workerID && a.IsAwaitingWorker()
	}), nil
}

func (m *Memory) AwaitingReview(_ context.Context, teamID engine.TeamID) ([]engine.Absence, error) {
	return m.filterAbsences(func(a engine.Absence) bool {
		_, waiting := a.State().(engine.AwaitingSupervisor)
		return a.TeamID == teamID && waiting
	}), nil
}

func (m *Memory) filterAbsences(keep func(engine.Absence) bool) []engine.Absence {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Absence
	for _, a := range m.absences {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	return out
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithAbsenceTx holds the write lock for the whole of fn and restores the
// absence table if fn fails. fn must only use tx.
func (m *Memory) WithAbsenceTx(ctx context.Context, fn func(engine.AbsenceTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[engine.AbsenceID]engine.Absence, len(m.absences))
	for id, a := range m.absences {
		snapshot[id] = a
	}

	if err := fn(&memoryTx{parent: m}); err != nil {
		m.absences = snapshot
		return err
	}
	return nil
}

type memoryTx struct {
	parent *Memory
}

func (tx *memoryTx) AbsenceForUpdate(_ context.Context, id engine.AbsenceID) (engine.Absence, error) {
	return tx.parent.absenceLocked(id)
}

func (tx *memoryTx) SaveAbsence(_ context.Context, a engine.Absence) error {
	if _, ok := tx.parent.absences[a.ID]; !ok {
		return engine.ErrAbsenceNotFound
	}
	tx.parent.absences[a.ID] = a
	return nil
}

// =============================================================================
// STREAK
// =============================================================================

func (m *Memory) UpdateStreak(_ context.Context, workerID engine.WorkerID, current, longest int, last calendar.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[workerID]
	if !ok {
		return engine.ErrWorkerNotFound
	}
	w.CurrentStreak = current
	w.LongestStreak = max(longest, current)
	w.LastCheckinDate = &last
	m.workers[workerID] = w
	return nil
}
