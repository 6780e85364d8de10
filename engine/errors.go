/*
errors.go - Error taxonomy for the engine

ERROR CATEGORIES:
  1. Validation errors  - malformed input, rejected before any write
  2. State violations   - illegal transition, carries a reason code
  3. Not found          - referenced record does not exist
  4. Environment errors - unknown timezone, missing team configuration

Duplicate absence inserts are NOT errors: the store reports inserted=false
and the reconciler moves on, because the winning writer already produced the
desired end state.

USAGE:
  if errors.Is(err, engine.ErrStateViolation) {
      var se *engine.StateError
      errors.As(err, &se) // se.Code == engine.CodeAlreadyJustified
  }
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/scoring"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	ErrValidation     = errors.New("validation failed")
	ErrStateViolation = errors.New("state violation")

	ErrWorkerNotFound  = errors.New("worker not found")
	ErrTeamNotFound    = errors.New("team not found")
	ErrCompanyNotFound = errors.New("company not found")
	ErrAbsenceNotFound = errors.New("absence not found")
	ErrCheckinNotFound = errors.New("checkin not found")

	// ErrMissingTeam is returned when a worker has no team and therefore no
	// work calendar. It is an environment error, not a client error.
	ErrMissingTeam = errors.New("worker has no team")

	// ErrInvalidTeamConfig wraps misconfigured teams or companies.
	ErrInvalidTeamConfig = errors.New("invalid configuration")

	// ErrDuplicateCheckin is what stores return when (worker, date) already
	// has a check-in. The engine turns it into CodeAlreadyCheckedIn.
	ErrDuplicateCheckin = errors.New("duplicate checkin for worker and date")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StateCode is the machine-readable reason for a StateError.
type StateCode string

const (
	CodeAlreadyJustified         StateCode = "ALREADY_JUSTIFIED"
	CodeNotYetJustified          StateCode = "NOT_YET_JUSTIFIED"
	CodeAlreadyReviewed          StateCode = "ALREADY_REVIEWED"
	CodeNotAbsenceOwner          StateCode = "NOT_ABSENCE_OWNER"
	CodeNotTeamSupervisor        StateCode = "NOT_TEAM_SUPERVISOR"
	CodeCheckinBlocked           StateCode = "CHECKIN_BLOCKED"
	CodeAlreadyCheckedIn         StateCode = "ALREADY_CHECKED_IN"
	CodeLowScoreReasonNotAllowed StateCode = "LOW_SCORE_REASON_NOT_ALLOWED"
)

// StateError is an illegal transition. No record was mutated.
type StateError struct {
	Code      StateCode
	AbsenceID AbsenceID
	Message   string
}

func (e *StateError) Error() string {
	if e.AbsenceID != "" {
		return fmt.Sprintf("%s: absence %s: %s", e.Code, e.AbsenceID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StateError) Unwrap() error { return ErrStateViolation }

// ConfigError describes an environment problem that must fail loudly.
type ConfigError struct {
	Subject string
	Problem string
}

func (e *ConfigError) Error() string { return e.Subject + " " + e.Problem }

func (e *ConfigError) Unwrap() error { return ErrInvalidTeamConfig }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports errors caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, scoring.ErrMetricOutOfRange) ||
		errors.Is(err, calendar.ErrInvalidPeriod)
}

// IsStateViolation reports an illegal transition.
func IsStateViolation(err error) bool {
	return errors.Is(err, ErrStateViolation)
}

// IsNotFound reports a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrTeamNotFound) ||
		errors.Is(err, ErrCompanyNotFound) ||
		errors.Is(err, ErrAbsenceNotFound) ||
		errors.Is(err, ErrCheckinNotFound)
}

// StateCodeOf extracts the StateCode, or "".
func StateCodeOf(err error) StateCode {
	var se *StateError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
