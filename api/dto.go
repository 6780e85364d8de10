/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES AND TIMES:
  Calendar dates are "YYYY-MM-DD" in the company timezone. Instants are
  RFC3339 in UTC.

VALIDATION:
  Validation is done by the engine, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/readiness-engine/engine"
	"github.com/warp/readiness-engine/scoring"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// MetricsRequest carries the four self-reported 1..10 values.
type MetricsRequest struct {
	Mood           int `json:"mood"`
	Stress         int `json:"stress"`
	Sleep          int `json:"sleep"`
	PhysicalHealth int `json:"physical_health"`
}

func (m MetricsRequest) metrics() scoring.Metrics {
	return scoring.Metrics{Mood: m.Mood, Stress: m.Stress, Sleep: m.Sleep, Physical: m.PhysicalHealth}
}

type SubmitCheckinRequest struct {
	MetricsRequest
	Note string `json:"note"`
}

type ResolveAttendanceRequest struct {
	CheckinAt    string `json:"checkin_at"` // RFC3339
	Timezone     string `json:"timezone"`
	ShiftStart   string `json:"shift_start"` // HH:MM
	GraceMinutes *int   `json:"grace_minutes,omitempty"`
}

type JustificationItemRequest struct {
	AbsenceID      string `json:"absence_id"`
	ReasonCategory string `json:"reason_category"`
	Explanation    string `json:"explanation"`
}

type SubmitJustificationRequest struct {
	Items []JustificationItemRequest `json:"items"`
}

type ReviewAbsenceRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Decision   string `json:"decision"`
	Notes      string `json:"notes"`
}

type LowScoreReasonRequest struct {
	Reason string `json:"reason"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type CheckinDTO struct {
	ID                string  `json:"id"`
	WorkerID          string  `json:"worker_id"`
	Date              string  `json:"date"`
	Mood              int     `json:"mood"`
	Stress            int     `json:"stress"`
	Sleep             int     `json:"sleep"`
	PhysicalHealth    int     `json:"physical_health"`
	ReadinessScore    int     `json:"readiness_score"`
	ReadinessStatus   string  `json:"readiness_status"`
	PunctualityStatus string  `json:"punctuality_status"`
	MinutesLate       int     `json:"minutes_late"`
	Note              string  `json:"note,omitempty"`
	LowScoreReason    *string `json:"low_score_reason,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

type StreakDTO struct {
	WorkerID        string  `json:"worker_id"`
	Current         int     `json:"current"`
	Longest         int     `json:"longest"`
	LastCheckinDate *string `json:"last_checkin_date"`
}

type CheckinResultDTO struct {
	Checkin CheckinDTO `json:"checkin"`
	Streak  StreakDTO  `json:"streak"`
}

// AbsenceDTO exposes both the stored status and the finer lifecycle state
// (AWAITING_WORKER / AWAITING_SUPERVISOR / EXCUSED / UNEXCUSED).
type AbsenceDTO struct {
	ID             string  `json:"id"`
	WorkerID       string  `json:"worker_id"`
	TeamID         string  `json:"team_id"`
	Date           string  `json:"date"`
	Status         string  `json:"status"`
	State          string  `json:"state"`
	ReasonCategory *string `json:"reason_category"`
	Explanation    *string `json:"explanation"`
	JustifiedAt    *string `json:"justified_at"`
	ReviewedBy     *string `json:"reviewed_by"`
	ReviewedAt     *string `json:"reviewed_at"`
	ReviewNotes    *string `json:"review_notes"`
	CreatedAt      string  `json:"created_at"`
}

type ReconcileDTO struct {
	WorkerID string       `json:"worker_id"`
	Created  []AbsenceDTO `json:"created"`
	Blocked  bool         `json:"checkin_blocked"`
}

type DayDTO struct {
	Date        string `json:"date"`
	Kind        string `json:"kind"`
	CheckinID   string `json:"checkin_id,omitempty"`
	AbsenceID   string `json:"absence_id,omitempty"`
	MinutesLate int    `json:"minutes_late,omitempty"`
}

type PerformanceDTO struct {
	WorkerID  string            `json:"worker_id"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Score     *int              `json:"score"` // null when nothing counted
	Grade     string            `json:"grade"`
	Breakdown scoring.Breakdown `json:"breakdown"`
	Days      []DayDTO          `json:"days"`
}

type TeamGradeDTO struct {
	TeamID           string            `json:"team_id"`
	From             string            `json:"from"`
	To               string            `json:"to"`
	Members          int               `json:"members"`
	Checkins         int               `json:"checkins"`
	AverageReadiness decimal.Decimal   `json:"average_readiness"`
	Compliance       decimal.Decimal   `json:"compliance"`
	Score            *int              `json:"score"`
	Grade            string            `json:"grade"`
	Breakdown        scoring.Breakdown `json:"breakdown"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optInstant(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatInstant(*t)
	return &s
}

func toCheckinDTO(c engine.Checkin) CheckinDTO {
	return CheckinDTO{
		ID:                string(c.ID),
		WorkerID:          string(c.WorkerID),
		Date:              c.Date.String(),
		Mood:              c.Metrics.Mood,
		Stress:            c.Metrics.Stress,
		Sleep:             c.Metrics.Sleep,
		PhysicalHealth:    c.Metrics.Physical,
		ReadinessScore:    c.Readiness.Score,
		ReadinessStatus:   string(c.Readiness.Status),
		PunctualityStatus: string(c.Punctuality.Status),
		MinutesLate:       c.Punctuality.MinutesLate,
		Note:              c.Note,
		LowScoreReason:    c.LowScoreReason,
		CreatedAt:         formatInstant(c.CreatedAt),
	}
}

func toStreakDTO(s engine.Streak) StreakDTO {
	dto := StreakDTO{WorkerID: string(s.WorkerID), Current: s.Current, Longest: s.Longest}
	if s.LastCheckinDate != nil {
		d := s.LastCheckinDate.String()
		dto.LastCheckinDate = &d
	}
	return dto
}

func stateName(s engine.AbsenceState) string {
	switch s.(type) {
	case engine.AwaitingWorker:
		return "AWAITING_WORKER"
	case engine.AwaitingSupervisor:
		return "AWAITING_SUPERVISOR"
	case engine.Excused:
		return "EXCUSED"
	case engine.Unexcused:
		return "UNEXCUSED"
	}
	return ""
}

func toAbsenceDTO(a engine.Absence) AbsenceDTO {
	dto := AbsenceDTO{
		ID:          string(a.ID),
		WorkerID:    string(a.WorkerID),
		TeamID:      string(a.TeamID),
		Date:        a.Date.String(),
		Status:      string(a.Status),
		State:       stateName(a.State()),
		Explanation: a.Explanation,
		JustifiedAt: optInstant(a.JustifiedAt),
		ReviewedAt:  optInstant(a.ReviewedAt),
		ReviewNotes: a.ReviewNotes,
		CreatedAt:   formatInstant(a.CreatedAt),
	}
	if a.ReasonCategory != nil {
		c := string(*a.ReasonCategory)
		dto.ReasonCategory = &c
	}
	if a.ReviewedBy != nil {
		by := string(*a.ReviewedBy)
		dto.ReviewedBy = &by
	}
	return dto
}

func toAbsenceDTOs(as []engine.Absence) []AbsenceDTO {
	dtos := make([]AbsenceDTO, len(as))
	for i, a := range as {
		dtos[i] = toAbsenceDTO(a)
	}
	return dtos
}

func optScore(score int, graded bool) *int {
	if !graded {
		return nil
	}
	return &score
}

func toPerformanceDTO(p engine.Performance) PerformanceDTO {
	dto := PerformanceDTO{
		WorkerID:  string(p.WorkerID),
		From:      p.Period.Start.String(),
		To:        p.Period.End.String(),
		Score:     optScore(p.Score, p.Graded),
		Grade:     string(p.Grade),
		Breakdown: p.Breakdown,
		Days:      make([]DayDTO, len(p.Days)),
	}
	for i, d := range p.Days {
		dto.Days[i] = DayDTO{
			Date:        d.Date.String(),
			Kind:        string(d.Kind),
			CheckinID:   string(d.CheckinID),
			AbsenceID:   string(d.AbsenceID),
			MinutesLate: d.MinutesLate,
		}
	}
	return dto
}

func toTeamGradeDTO(g engine.TeamGrade) TeamGradeDTO {
	return TeamGradeDTO{
		TeamID:           string(g.TeamID),
		From:             g.Period.Start.String(),
		To:               g.Period.End.String(),
		Members:          g.Members,
		Checkins:         g.Checkins,
		AverageReadiness: g.AverageReadiness.Round(2),
		Compliance:       g.Compliance.Round(2),
		Score:            optScore(g.Score, g.Graded),
		Grade:            string(g.Grade),
		Breakdown:        g.Breakdown,
	}
}
