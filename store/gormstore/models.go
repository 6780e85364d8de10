package gormstore

import (
	"time"

	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/engine"
	"github.com/warp/readiness-engine/scoring"
)

// Rows store calendar dates as "YYYY-MM-DD" text so range filters compare
// lexically, exactly like the database/sql store.

type companyModel struct {
	ID       string `gorm:"primaryKey"`
	Name     string `gorm:"not null;default:''"`
	Timezone string `gorm:"not null"`
}

func (companyModel) TableName() string { return "companies" }

type teamModel struct {
	ID           string  `gorm:"primaryKey"`
	CompanyID    string  `gorm:"not null"`
	Name         string  `gorm:"not null;default:''"`
	WorkDays     string  `gorm:"not null"`
	ShiftStart   string  `gorm:"type:varchar(5);not null"`
	ShiftEnd     string  `gorm:"type:varchar(5);not null"`
	SupervisorID *string `gorm:"index"`
}

func (teamModel) TableName() string { return "teams" }

type workerModel struct {
	ID              string  `gorm:"primaryKey"`
	CompanyID       string  `gorm:"not null"`
	TeamID          *string `gorm:"index"`
	Name            string  `gorm:"not null;default:''"`
	Role            string  `gorm:"type:varchar(20);not null"`
	TeamJoinedAt    *time.Time
	CreatedAt       time.Time
	CurrentStreak   int     `gorm:"not null;default:0;check:current_streak >= 0"`
	LongestStreak   int     `gorm:"not null;default:0;check:longest_streak >= current_streak"`
	LastCheckinDate *string `gorm:"type:varchar(10)"`
}

func (workerModel) TableName() string { return "workers" }

type checkinModel struct {
	ID                string `gorm:"primaryKey"`
	WorkerID          string `gorm:"not null;uniqueIndex:idx_checkins_worker_date"`
	CompanyID         string `gorm:"not null"`
	Date              string `gorm:"type:varchar(10);not null;uniqueIndex:idx_checkins_worker_date"`
	Mood              int    `gorm:"not null"`
	Stress            int    `gorm:"not null"`
	Sleep             int    `gorm:"not null"`
	PhysicalHealth    int    `gorm:"not null"`
	ReadinessScore    int    `gorm:"not null"`
	ReadinessStatus   string `gorm:"type:varchar(10);not null"`
	PunctualityStatus string `gorm:"type:varchar(10);not null"`
	MinutesLate       int    `gorm:"not null;default:0"`
	Note              string `gorm:"not null;default:''"`
	LowScoreReason    *string
	CreatedAt         time.Time
}

func (checkinModel) TableName() string { return "checkins" }

type exemptionModel struct {
	ID        string `gorm:"primaryKey"`
	WorkerID  string `gorm:"not null;index:idx_exemptions_worker"`
	Type      string `gorm:"type:varchar(30);not null"`
	StartDate string `gorm:"type:varchar(10);not null"`
	EndDate   string `gorm:"type:varchar(10);not null"`
	Status    string `gorm:"type:varchar(10);not null;index:idx_exemptions_worker"`
	Reason    string `gorm:"not null;default:''"`
}

func (exemptionModel) TableName() string { return "exemptions" }

type holidayModel struct {
	ID        string `gorm:"primaryKey"`
	CompanyID string `gorm:"not null;uniqueIndex:idx_holidays_company_date"`
	Date      string `gorm:"type:varchar(10);not null;uniqueIndex:idx_holidays_company_date"`
	Name      string `gorm:"not null;default:''"`
}

func (holidayModel) TableName() string { return "holidays" }

type absenceModel struct {
	ID             string `gorm:"primaryKey"`
	WorkerID       string `gorm:"not null;uniqueIndex:idx_absences_worker_date"`
	TeamID         string `gorm:"not null;default:'';index:idx_absences_team_status"`
	CompanyID      string `gorm:"not null"`
	Date           string `gorm:"type:varchar(10);not null;uniqueIndex:idx_absences_worker_date"`
	ReasonCategory *string
	Explanation    *string
	JustifiedAt    *time.Time
	Status         string `gorm:"type:varchar(25);not null;index:idx_absences_team_status"`
	ReviewedBy     *string
	ReviewedAt     *time.Time
	ReviewNotes    *string
	CreatedAt      time.Time
}

func (absenceModel) TableName() string { return "absences" }

var allModels = []any{
	&companyModel{}, &teamModel{}, &workerModel{}, &checkinModel{},
	&exemptionModel{}, &holidayModel{}, &absenceModel{},
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func parseOptDate(s *string) (*calendar.Date, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func fromTeam(t engine.Team) teamModel {
	return teamModel{
		ID:           string(t.ID),
		CompanyID:    string(t.CompanyID),
		Name:         t.Name,
		WorkDays:     t.WorkDays.String(),
		ShiftStart:   t.ShiftStart.String(),
		ShiftEnd:     t.ShiftEnd.String(),
		SupervisorID: optString(string(t.SupervisorID)),
	}
}

func (m teamModel) toTeam() (engine.Team, error) {
	t := engine.Team{
		ID:           engine.TeamID(m.ID),
		CompanyID:    engine.CompanyID(m.CompanyID),
		Name:         m.Name,
		SupervisorID: engine.WorkerID(derefString(m.SupervisorID)),
	}
	var err error
	if t.WorkDays, err = calendar.ParseWorkWeek(m.WorkDays); err != nil {
		return engine.Team{}, err
	}
	if t.ShiftStart, err = calendar.ParseTimeOfDay(m.ShiftStart); err != nil {
		return engine.Team{}, err
	}
	if t.ShiftEnd, err = calendar.ParseTimeOfDay(m.ShiftEnd); err != nil {
		return engine.Team{}, err
	}
	return t, nil
}

func fromWorker(w engine.Worker) workerModel {
	role := string(w.Role)
	if role == "" {
		role = string(engine.RoleWorker)
	}
	m := workerModel{
		ID:            string(w.ID),
		CompanyID:     string(w.CompanyID),
		TeamID:        optString(string(w.TeamID)),
		Name:          w.Name,
		Role:          role,
		TeamJoinedAt:  utcPtr(w.TeamJoinedAt),
		CreatedAt:     w.CreatedAt.UTC(),
		CurrentStreak: w.CurrentStreak,
		LongestStreak: max(w.LongestStreak, w.CurrentStreak),
	}
	if w.LastCheckinDate != nil && !w.LastCheckinDate.IsZero() {
		m.LastCheckinDate = optString(w.LastCheckinDate.String())
	}
	return m
}

func (m workerModel) toWorker() (engine.Worker, error) {
	last, err := parseOptDate(m.LastCheckinDate)
	if err != nil {
		return engine.Worker{}, err
	}
	return engine.Worker{
		ID:              engine.WorkerID(m.ID),
		CompanyID:       engine.CompanyID(m.CompanyID),
		TeamID:          engine.TeamID(derefString(m.TeamID)),
		Name:            m.Name,
		Role:            engine.Role(m.Role),
		TeamJoinedAt:    m.TeamJoinedAt,
		CreatedAt:       m.CreatedAt,
		CurrentStreak:   m.CurrentStreak,
		LongestStreak:   m.LongestStreak,
		LastCheckinDate: last,
	}, nil
}

func fromCheckin(c engine.Checkin) checkinModel {
	return checkinModel{
		ID:                string(c.ID),
		WorkerID:          string(c.WorkerID),
		CompanyID:         string(c.CompanyID),
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
		CreatedAt:         c.CreatedAt.UTC(),
	}
}

func (m checkinModel) toCheckin() (engine.Checkin, error) {
	d, err := calendar.ParseDate(m.Date)
	if err != nil {
		return engine.Checkin{}, err
	}
	return engine.Checkin{
		ID:        engine.CheckinID(m.ID),
		WorkerID:  engine.WorkerID(m.WorkerID),
		CompanyID: engine.CompanyID(m.CompanyID),
		Date:      d,
		Metrics: scoring.Metrics{
			Mood:     m.Mood,
			Stress:   m.Stress,
			Sleep:    m.Sleep,
			Physical: m.PhysicalHealth,
		},
		Readiness:      scoring.Readiness{Score: m.ReadinessScore, Status: scoring.Status(m.ReadinessStatus)},
		Punctuality:    scoring.Punctuality{Status: scoring.Status(m.PunctualityStatus), MinutesLate: m.MinutesLate},
		Note:           m.Note,
		LowScoreReason: m.LowScoreReason,
		CreatedAt:      m.CreatedAt,
	}, nil
}

func (m exemptionModel) toExemption() (engine.Exemption, error) {
	start, err := calendar.ParseDate(m.StartDate)
	if err != nil {
		return engine.Exemption{}, err
	}
	end, err := calendar.ParseDate(m.EndDate)
	if err != nil {
		return engine.Exemption{}, err
	}
	return engine.Exemption{
		ID:        engine.ExemptionID(m.ID),
		WorkerID:  engine.WorkerID(m.WorkerID),
		Type:      m.Type,
		StartDate: start,
		EndDate:   end,
		Status:    engine.ExemptionStatus(m.Status),
		Reason:    m.Reason,
	}, nil
}

func fromAbsence(a engine.Absence) absenceModel {
	m := absenceModel{
		ID:          string(a.ID),
		WorkerID:    string(a.WorkerID),
		TeamID:      string(a.TeamID),
		CompanyID:   string(a.CompanyID),
		Date:        a.Date.String(),
		Explanation: a.Explanation,
		JustifiedAt: utcPtr(a.JustifiedAt),
		Status:      string(a.Status),
		ReviewedAt:  utcPtr(a.ReviewedAt),
		ReviewNotes: a.ReviewNotes,
		CreatedAt:   a.CreatedAt.UTC(),
	}
	if a.ReasonCategory != nil {
		m.ReasonCategory = optString(string(*a.ReasonCategory))
	}
	if a.ReviewedBy != nil {
		m.ReviewedBy = optString(string(*a.ReviewedBy))
	}
	return m
}

func (m absenceModel) toAbsence() (engine.Absence, error) {
	d, err := calendar.ParseDate(m.Date)
	if err != nil {
		return engine.Absence{}, err
	}
	a := engine.Absence{
		ID:          engine.AbsenceID(m.ID),
		WorkerID:    engine.WorkerID(m.WorkerID),
		TeamID:      engine.TeamID(m.TeamID),
		CompanyID:   engine.CompanyID(m.CompanyID),
		Date:        d,
		Explanation: m.Explanation,
		JustifiedAt: m.JustifiedAt,
		Status:      engine.AbsenceStatus(m.Status),
		ReviewedAt:  m.ReviewedAt,
		ReviewNotes: m.ReviewNotes,
		CreatedAt:   m.CreatedAt,
	}
	if m.ReasonCategory != nil {
		c := engine.ReasonCategory(*m.ReasonCategory)
		a.ReasonCategory = &c
	}
	if m.ReviewedBy != nil {
		by := engine.WorkerID(*m.ReviewedBy)
		a.ReviewedBy = &by
	}
	return a, nil
}
