/*
Package engine implements attendance and absence reconciliation.

PURPOSE:
  Reconciles three independent signals (check-ins, approved exemptions and
  company holidays) against each worker's team work calendar, and decides for
  every past work day whether the worker performed as expected.

KEY CONCEPTS IN THIS FILE (types.go):
  - Company, Team, Worker: read-only configuration owned by collaborators
  - Checkin:   one per worker per company-local date
  - Exemption: an inclusive leave range; only APPROVED ones count
  - Holiday:   a company-wide non-working date
  - Absence:   the engine's own record for an unexplained work day

DESIGN PRINCIPLES:
  1. Local dates only: every date here is a calendar.Date in the company zone
  2. Insert-if-absent: absence uniqueness is enforced by the store, not memory
  3. No automatic resolution: absences change state only through a human
  4. Injected time: nothing reads the wall clock except through calendar.Clock

SEE ALSO:
  - absence.go:     Absence state machine
  - reconcile.go:   Absence detection
  - review.go:      Justification and supervisor review
  - streak.go:      Streak maintenance
  - performance.go: Performance and team grades
  - store.go:       Persistence interfaces
*/
package engine

import (
	"time"

	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/scoring"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type TeamID string
type CompanyID string
type AbsenceID string
type CheckinID string
type ExemptionID string

// =============================================================================
// ORGANISATION - owned by collaborators, read-only here
// =============================================================================

type Company struct {
	ID       CompanyID
	Name     string
	Timezone string // IANA identifier, e.g. "Asia/Manila"
}

// Team owns the work calendar and shift window of its members.
type Team struct {
	ID           TeamID
	CompanyID    CompanyID
	Name         string
	WorkDays     calendar.WorkWeek
	ShiftStart   calendar.TimeOfDay
	ShiftEnd     calendar.TimeOfDay
	SupervisorID WorkerID
}

// Validate fails on a team the engine cannot compute a calendar for.
func (t Team) Validate() error {
	if t.WorkDays.IsEmpty() {
		return &ConfigError{Subject: "team " + string(t.ID), Problem: "has no work days"}
	}
	if t.CompanyID == "" {
		return &ConfigError{Subject: "team " + string(t.ID), Problem: "has no company"}
	}
	return nil
}

type Role string

const (
	RoleWorker     Role = "WORKER"
	RoleSupervisor Role = "SUPERVISOR"
	RoleAdmin      Role = "ADMIN"
)

// Worker carries the streak state alongside the organisational links.
type Worker struct {
	ID           WorkerID
	CompanyID    CompanyID
	TeamID       TeamID // empty when not on a team
	Name         string
	Role         Role
	TeamJoinedAt *time.Time
	CreatedAt    time.Time

	CurrentStreak   int
	LongestStreak   int
	LastCheckinDate *calendar.Date
}

// =============================================================================
// CHECK-IN
// =============================================================================

// Checkin is immutable once created except for LowScoreReason, which may be
// set once when Readiness.Status is not GREEN.
type Checkin struct {
	ID        CheckinID
	WorkerID  WorkerID
	CompanyID CompanyID
	Date      calendar.Date // company-local date of CreatedAt

	Metrics     scoring.Metrics
	Readiness   scoring.Readiness
	Punctuality scoring.Punctuality

	Note           string
	LowScoreReason *string
	CreatedAt      time.Time
}

// =============================================================================
// EXEMPTION
// =============================================================================

type ExemptionStatus string

const (
	ExemptionPending  ExemptionStatus = "PENDING"
	ExemptionApproved ExemptionStatus = "APPROVED"
	ExemptionRejected ExemptionStatus = "REJECTED"
)

// Exemption is an inclusive leave range in company-local dates.
type Exemption struct {
	ID        ExemptionID
	WorkerID  WorkerID
	Type      string
	StartDate calendar.Date
	EndDate   calendar.Date
	Status    ExemptionStatus
	Reason    string
}

// Covers reports whether an APPROVED exemption includes d.
func (e Exemption) Covers(d calendar.Date) bool {
	if e.Status != ExemptionApproved {
		return false
	}
	return calendar.Period{Start: e.StartDate, End: e.EndDate}.Contains(d)
}

// =============================================================================
// HOLIDAY
// =============================================================================

type Holiday struct {
	ID        string
	CompanyID CompanyID
	Date      calendar.Date
	Name      string
}

// =============================================================================
// ABSENCE - storage shape
// =============================================================================

type AbsenceStatus string

const (
	AbsencePendingJustification AbsenceStatus = "PENDING_JUSTIFICATION"
	AbsenceExcused              AbsenceStatus = "EXCUSED"
	AbsenceUnexcused            AbsenceStatus = "UNEXCUSED"
)

type ReasonCategory string

const (
	ReasonSick      ReasonCategory = "SICK"
	ReasonEmergency ReasonCategory = "EMERGENCY"
	ReasonPersonal  ReasonCategory = "PERSONAL"
	ReasonFamily    ReasonCategory = "FAMILY"
	ReasonTransport ReasonCategory = "TRANSPORT"
	ReasonOther     ReasonCategory = "OTHER"
)

var reasonCategories = map[ReasonCategory]bool{
	ReasonSick: true, ReasonEmergency: true, ReasonPersonal: true,
	ReasonFamily: true, ReasonTransport: true, ReasonOther: true,
}

// Valid reports whether c is a known category.
func (c ReasonCategory) Valid() bool { return reasonCategories[c] }

// Absence is the nullable-field representation used at the store boundary.
// Engine logic works on State() instead of inspecting the fields directly.
type Absence struct {
	ID        AbsenceID
	WorkerID  WorkerID
	TeamID    TeamID
	CompanyID CompanyID
	Date      calendar.Date

	ReasonCategory *ReasonCategory
	Explanation    *string
	JustifiedAt    *time.Time

	Status      AbsenceStatus
	ReviewedBy  *WorkerID
	ReviewedAt  *time.Time
	ReviewNotes *string

	CreatedAt time.Time
}

// IsAwaitingWorker is true while the worker still owes a justification.
func (a Absence) IsAwaitingWorker() bool {
	return a.Status == AbsencePendingJustification && a.JustifiedAt == nil
}
