/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines the boundary between reconciliation logic and storage. The engine
  never assumes an in-process lock: every guarantee that must hold across
  concurrent callers is pushed down to the store.

KEY INTERFACES:
  Directory:      Workers, teams and companies (read-only here)
  CheckinStore:   Check-in reads plus unique (worker, date) insert
  ExemptionStore: APPROVED exemption lookups
  HolidayStore:   Company holiday lookups
  AbsenceStore:   Insert-if-absent plus transactional updates
  StreakStore:    Streak counter persistence
  Seeder:         Writes for collaborator-owned data (scenarios, tests)

INSERT-IF-ABSENT CONTRACT:
  InsertAbsence returns inserted=false, err=nil when an absence already exists
  for (worker, date). Two reconcilers racing on the same worker both succeed;
  exactly one row is written.

IMPLEMENTATIONS:
  - engine/store/memory.go:    In-memory, for tests and the demo server
  - store/sqlite/sqlite.go:    database/sql + mattn/go-sqlite3
  - store/gormstore/store.go:  gorm + gorm sqlite driver

SEE ALSO:
  - reconcile.go: Main consumer of InsertAbsence
  - review.go:    Main consumer of WithAbsenceTx
*/
package engine

import (
	"context"

	"github.com/warp/readiness-engine/calendar"
)

// =============================================================================
// DIRECTORY - organisation data owned by collaborators
// =============================================================================

type Directory interface {
	// Worker returns ErrWorkerNotFound when missing.
	Worker(ctx context.Context, id WorkerID) (Worker, error)
	// Team returns ErrTeamNotFound when missing.
	Team(ctx context.Context, id TeamID) (Team, error)
	// Company returns ErrCompanyNotFound when missing.
	Company(ctx context.Context, id CompanyID) (Company, error)

	TeamMembers(ctx context.Context, id TeamID) ([]Worker, error)
	TeamsLedBy(ctx context.Context, supervisorID WorkerID) ([]Team, error)
}

// =============================================================================
// SIGNALS
// =============================================================================

type CheckinStore interface {
	// FirstCheckinDate returns ok=false when the worker never checked in.
	FirstCheckinDate(ctx context.Context, workerID WorkerID) (d calendar.Date, ok bool, err error)
	CheckinsInRange(ctx context.Context, workerID WorkerID, p calendar.Period) ([]Checkin, error)
	// Checkin returns ErrCheckinNotFound when missing.
	Checkin(ctx context.Context, id CheckinID) (Checkin, error)

	// InsertCheckin returns ErrDuplicateCheckin when (worker, date) exists.
	InsertCheckin(ctx context.Context, c Checkin) error

	// SetLowScoreReason writes the reason only if none is set yet.
	// updated=false means another writer got there first.
	SetLowScoreReason(ctx context.Context, id CheckinID, reason string) (updated bool, err error)
}

type ExemptionStore interface {
	// ApprovedExemptions returns APPROVED exemptions overlapping p.
	ApprovedExemptions(ctx context.Context, workerID WorkerID, p calendar.Period) ([]Exemption, error)
}

type HolidayStore interface {
	Holidays(ctx context.Context, companyID CompanyID, p calendar.Period) ([]Holiday, error)
}

// =============================================================================
// ABSENCES
// =============================================================================

type AbsenceStore interface {
	// InsertAbsence writes a if no absence exists for (a.WorkerID, a.Date).
	InsertAbsence(ctx context.Context, a Absence) (inserted bool, err error)

	// Absence returns ErrAbsenceNotFound when missing.
	Absence(ctx context.Context, id AbsenceID) (Absence, error)
	AbsencesInRange(ctx context.Context, workerID WorkerID, p calendar.Period) ([]Absence, error)

	// PendingJustifications returns absences with no justification yet,
	// oldest first.
	PendingJustifications(ctx context.Context, workerID WorkerID) ([]Absence, error)

	// AwaitingReview returns justified, unreviewed absences for a team.
	AwaitingReview(ctx context.Context, teamID TeamID) ([]Absence, error)

	// WithAbsenceTx runs fn in one transaction. A non-nil error from fn
	// rolls back every write made through tx.
	WithAbsenceTx(ctx context.Context, fn func(tx AbsenceTx) error) error
}

// AbsenceTx is the view of the absence table inside a transaction.
type AbsenceTx interface {
	// AbsenceForUpdate reads a row and holds it until commit.
	AbsenceForUpdate(ctx context.Context, id AbsenceID) (Absence, error)
	SaveAbsence(ctx context.Context, a Absence) error
}

// =============================================================================
// STREAK
// =============================================================================

type StreakStore interface {
	UpdateStreak(ctx context.Context, workerID WorkerID, current, longest int, last calendar.Date) error
}

// =============================================================================
// COMPOSITE
// =============================================================================

// Store is everything the engine needs.
type Store interface {
	Directory
	CheckinStore
	ExemptionStore
	HolidayStore
	AbsenceStore
	StreakStore
}

// Seeder writes the records that collaborators own in production.
type Seeder interface {
	SaveCompany(ctx context.Context, c Company) error
	SaveTeam(ctx context.Context, t Team) error
	SaveWorker(ctx context.Context, w Worker) error
	SaveExemption(ctx context.Context, e Exemption) error
	SaveHoliday(ctx context.Context, h Holiday) error

	// Reset removes every record. Used when loading a scenario.
	Reset(ctx context.Context) error
}
