/*
absence.go - Absence lifecycle as explicit states

STATE MACHINE:

	AwaitingWorker --Justify--> AwaitingSupervisor --Review(EXCUSE)----> Excused
	                                               --Review(UNEXCUSE)--> Unexcused

  Excused and Unexcused are terminal. There is no path that resolves an
  absence without a worker justification followed by a supervisor review.

The nullable columns on Absence exist for storage only. Code that decides
anything about an absence calls State() and switches on the variant, so
"reviewed but never justified" cannot be represented.
*/
package engine

import (
	"strings"
	"time"
)

// =============================================================================
// STATES
// =============================================================================

// AbsenceState is one of AwaitingWorker, AwaitingSupervisor, Excused,
// Unexcused.
type AbsenceState interface {
	Status() AbsenceStatus
	isAbsenceState()
}

type Justification struct {
	Category    ReasonCategory
	Explanation string
	At          time.Time
}

type Review struct {
	By    WorkerID
	At    time.Time
	Notes string
}

type AwaitingWorker struct{}

type AwaitingSupervisor struct {
	Justification Justification
}

type Excused struct {
	Justification Justification
	Review        Review
}

type Unexcused struct {
	Justification Justification
	Review        Review
}

func (AwaitingWorker) Status() AbsenceStatus     { return AbsencePendingJustification }
func (AwaitingSupervisor) Status() AbsenceStatus { return AbsencePendingJustification }
func (Excused) Status() AbsenceStatus            { return AbsenceExcused }
func (Unexcused) Status() AbsenceStatus          { return AbsenceUnexcused }

func (AwaitingWorker) isAbsenceState()     {}
func (AwaitingSupervisor) isAbsenceState() {}
func (Excused) isAbsenceState()            {}
func (Unexcused) isAbsenceState()          {}

// =============================================================================
// FIELD <-> STATE
// =============================================================================

// State lifts the stored fields into a variant.
func (a Absence) State() AbsenceState {
	var j Justification
	if a.JustifiedAt != nil {
		j.At = *a.JustifiedAt
		if a.ReasonCategory != nil {
			j.Category = *a.ReasonCategory
		}
		if a.Explanation != nil {
			j.Explanation = *a.Explanation
		}
	}
	var r Review
	if a.ReviewedBy != nil {
		r.By = *a.ReviewedBy
	}
	if a.ReviewedAt != nil {
		r.At = *a.ReviewedAt
	}
	if a.ReviewNotes != nil {
		r.Notes = *a.ReviewNotes
	}

	switch a.Status {
	case AbsenceExcused:
		return Excused{Justification: j, Review: r}
	case AbsenceUnexcused:
		return Unexcused{Justification: j, Review: r}
	}
	if a.JustifiedAt == nil {
		return AwaitingWorker{}
	}
	return AwaitingSupervisor{Justification: j}
}

// WithState collapses s back into the nullable fields.
func (a Absence) WithState(s AbsenceState) Absence {
	a.ReasonCategory, a.Explanation, a.JustifiedAt = nil, nil, nil
	a.ReviewedBy, a.ReviewedAt, a.ReviewNotes = nil, nil, nil
	a.Status = s.Status()

	setJustification := func(j Justification) {
		cat, exp, at := j.Category, j.Explanation, j.At
		a.ReasonCategory, a.Explanation, a.JustifiedAt = &cat, &exp, &at
	}
	setReview := func(r Review) {
		by, at := r.By, r.At
		a.ReviewedBy, a.ReviewedAt = &by, &at
		if r.Notes != "" {
			notes := r.Notes
			a.ReviewNotes = &notes
		}
	}

	switch v := s.(type) {
	case AwaitingSupervisor:
		setJustification(v.Justification)
	case Excused:
		setJustification(v.Justification)
		setReview(v.Review)
	case Unexcused:
		setJustification(v.Justification)
		setReview(v.Review)
	}
	return a
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Decision is the supervisor's verdict.
type Decision string

const (
	DecisionExcused   Decision = "EXCUSED"
	DecisionUnexcused Decision = "UNEXCUSED"
)

func (d Decision) Valid() bool { return d == DecisionExcused || d == DecisionUnexcused }

// ParseDecision accepts the verbs EXCUSE/UNEXCUSE and the past-tense status
// names, case-insensitively.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EXCUSE", string(DecisionExcused):
		return DecisionExcused, nil
	case "UNEXCUSE", string(DecisionUnexcused):
		return DecisionUnexcused, nil
	}
	return "", &ValidationError{Field: "decision", Message: "must be EXCUSE or UNEXCUSE"}
}

// Justify moves AwaitingWorker to AwaitingSupervisor.
func (a Absence) Justify(j Justification) (Absence, error) {
	if !j.Category.Valid() {
		return a, &ValidationError{Field: "reason_category", Message: "unknown category " + string(j.Category)}
	}
	if strings.TrimSpace(j.Explanation) == "" {
		return a, &ValidationError{Field: "explanation", Message: "must not be empty"}
	}
	if _, ok := a.State().(AwaitingWorker); !ok {
		return a, &StateError{Code: CodeAlreadyJustified, AbsenceID: a.ID, Message: "absence already has a justification"}
	}
	return a.WithState(AwaitingSupervisor{Justification: j}), nil
}

// Review moves AwaitingSupervisor to Excused or Unexcused.
func (a Absence) Review(d Decision, r Review) (Absence, error) {
	if !d.Valid() {
		return a, &ValidationError{Field: "decision", Message: "must be EXCUSE or UNEXCUSE"}
	}
	switch s := a.State().(type) {
	case AwaitingWorker:
		return a, &StateError{Code: CodeNotYetJustified, AbsenceID: a.ID, Message: "worker has not justified this absence"}
	case AwaitingSupervisor:
		if d == DecisionExcused {
			return a.WithState(Excused{Justification: s.Justification, Review: r}), nil
		}
		return a.WithState(Unexcused{Justification: s.Justification, Review: r}), nil
	default:
		return a, &StateError{Code: CodeAlreadyReviewed, AbsenceID: a.ID, Message: "absence already reviewed"}
	}
}
