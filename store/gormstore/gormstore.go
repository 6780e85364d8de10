/*
Package gormstore provides an engine.Store built on gorm.

PURPOSE:
  Same contract as store/sqlite, expressed as gorm models migrated with
  AutoMigrate. Useful when the collaborator tables (workers, teams,
  exemptions, holidays) are already managed through gorm.

UNIQUENESS:
  idx_checkins_worker_date and idx_absences_worker_date are declared on the
  models. Absences are inserted with clause.OnConflict{DoNothing: true} and
  the affected row count tells the caller whether it won the race.
  Duplicate check-ins surface as gorm.ErrDuplicatedKey (TranslateError).

SEE ALSO:
  - store/sqlite:  database/sql implementation
  - engine/store:  in-memory implementation
*/
package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/engine"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store implements engine.Store and engine.Seeder on a *gorm.DB.
type Store struct {
	db *gorm.DB
}

var (
	_ engine.Store  = (*Store)(nil)
	_ engine.Seeder = (*Store)(nil)
)

// Open opens a SQLite database through gorm and migrates it. Slow queries and
// errors are reported through log.
func Open(dsn string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		log.WithError(err).Warn("failed to enable foreign keys")
	}

	return New(db)
}

// New migrates the schema on an existing connection.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// =============================================================================
// SEEDER
// =============================================================================

func (s *Store) SaveCompany(ctx context.Context, c engine.Company) error {
	m := companyModel{ID: string(c.ID), Name: c.Name, Timezone: c.Timezone}
	return s.db.WithContext(ctx).Save(&m).Error
}

func (s *Store) SaveTeam(ctx context.Context, t engine.Team) error {
	m := fromTeam(t)
	return s.db.WithContext(ctx).Save(&m).Error
}

func (s *Store) SaveWorker(ctx context.Context, w engine.Worker) error {
	m := fromWorker(w)
	return s.db.WithContext(ctx).Save(&m).Error
}

func (s *Store) SaveExemption(ctx context.Context, e engine.Exemption) error {
	m := exemptionModel{
		ID:        string(e.ID),
		WorkerID:  string(e.WorkerID),
		Type:      e.Type,
		StartDate: e.StartDate.String(),
		EndDate:   e.EndDate.String(),
		Status:    string(e.Status),
		Reason:    e.Reason,
	}
	return s.db.WithContext(ctx).Save(&m).Error
}

// SaveHoliday replaces any holiday the company already has on that date.
func (s *Store) SaveHoliday(ctx context.Context, h engine.Holiday) error {
	m := holidayModel{ID: h.ID, CompanyID: string(h.CompanyID), Date: h.Date.String(), Name: h.Name}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "name"}),
	}).Create(&m).Error
}

func (s *Store) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range allModels {
			if err := tx.Where("1 = 1").Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) Worker(ctx context.Context, id engine.WorkerID) (engine.Worker, error) {
	var m workerModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Worker{}, engine.ErrWorkerNotFound
	}
	if err != nil {
		return engine.Worker{}, err
	}
	return m.toWorker()
}

func (s *Store) TeamMembers(ctx context.Context, id engine.TeamID) ([]engine.Worker, error) {
	var rows []workerModel
	if err := s.db.WithContext(ctx).Where("team_id = ?", string(id)).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]engine.Worker, 0, len(rows))
	for _, m := range rows {
		w, err := m.toWorker()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *Store) Team(ctx context.Context, id engine.TeamID) (engine.Team, error) {
	var m teamModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Team{}, engine.ErrTeamNotFound
	}
	if err != nil {
		return engine.Team{}, err
	}
	return m.toTeam()
}

func (s *Store) TeamsLedBy(ctx context.Context, supervisorID engine.WorkerID) ([]engine.Team, error) {
	var rows []teamModel
	if err := s.db.WithContext(ctx).Where("supervisor_id = ?", string(supervisorID)).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]engine.Team, 0, len(rows))
	for _, m := range rows {
		t, err := m.toTeam()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) Company(ctx context.Context, id engine.CompanyID) (engine.Company, error) {
	var m companyModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Company{}, engine.ErrCompanyNotFound
	}
	if err != nil {
		return engine.Company{}, err
	}
	return engine.Company{ID: engine.CompanyID(m.ID), Name: m.Name, Timezone: m.Timezone}, nil
}

// =============================================================================
// CHECKINS
// =============================================================================

func (s *Store) InsertCheckin(ctx context.Context, c engine.Checkin) error {
	m := fromCheckin(c)
	err := s.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return engine.ErrDuplicateCheckin
	}
	return err
}

func (s *Store) Checkin(ctx context.Context, id engine.CheckinID) (engine.Checkin, error) {
	var m checkinModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Checkin{}, engine.ErrCheckinNotFound
	}
	if err != nil {
		return engine.Checkin{}, err
	}
	return m.toCheckin()
}

func (s *Store) CheckinsInRange(ctx context.Context, workerID engine.WorkerID, p calendar.Period) ([]engine.Checkin, error) {
	var rows []checkinModel
	err := s.db.WithContext(ctx).
		Where("worker_id = ? AND date >= ? AND date <= ?", string(workerID), p.Start.String(), p.End.String()).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]engine.Checkin, 0, len(rows))
	for _, m := range rows {
		c, err := m.toCheckin()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) FirstCheckinDate(ctx context.Context, workerID engine.WorkerID) (calendar.Date, bool, error) {
	var first sql.NullString
	err := s.db.WithContext(ctx).Model(&checkinModel{}).
		Select("MIN(date)").
		Where("worker_id = ?", string(workerID)).
		Row().Scan(&first)
	if err != nil {
		return calendar.Date{}, false, err
	}
	if !first.Valid {
		return calendar.Date{}, false, nil
	}
	d, err := calendar.ParseDate(first.String)
	return d, err == nil, err
}

func (s *Store) SetLowScoreReason(ctx context.Context, id engine.CheckinID, reason string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&checkinModel{}).
		Where("id = ? AND low_score_reason IS NULL", string(id)).
		Update("low_score_reason", reason)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&checkinModel{}).Where("id = ?", string(id)).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, engine.ErrCheckinNotFound
	}
	return false, nil
}

// =============================================================================
// EXEMPTIONS & HOLIDAYS
// =============================================================================

func (s *Store) ApprovedExemptions(ctx context.Context, workerID engine.WorkerID, p calendar.Period) ([]engine.Exemption, error) {
	var rows []exemptionModel
	err := s.db.WithContext(ctx).
		Where("worker_id = ? AND status = ? AND start_date <= ? AND end_date >= ?",
			string(workerID), string(engine.ExemptionApproved), p.End.String(), p.Start.String()).
		Order("start_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]engine.Exemption, 0, len(rows))
	for _, m := range rows {
		e, err := m.toExemption()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) Holidays(ctx context.Context, companyID engine.CompanyID, p calendar.Period) ([]engine.Holiday, error) {
	var rows []holidayModel
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND date >= ? AND date <= ?", string(companyID), p.Start.String(), p.End.String()).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]engine.Holiday, 0, len(rows))
	for _, m := range rows {
		d, err := calendar.ParseDate(m.Date)
		if err != nil {
			return nil, err
		}
		out = append(out, engine.Holiday{ID: m.ID, CompanyID: engine.CompanyID(m.CompanyID), Date: d, Name: m.Name})
	}
	return out, nil
}

// =============================================================================
// ABSENCES
// =============================================================================

func (s *Store) InsertAbsence(ctx context.Context, a engine.Absence) (bool, error) {
	m := fromAbsence(a)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "worker_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&m)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert absence: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) Absence(ctx context.Context, id engine.AbsenceID) (engine.Absence, error) {
	return absenceByID(s.db.WithContext(ctx), id)
}

func (s *Store) AbsencesInRange(ctx context.Context, workerID engine.WorkerID, p calendar.Period) ([]engine.Absence, error) {
	return findAbsences(s.db.WithContext(ctx).
		Where("worker_id = ? AND date >= ? AND date <= ?", string(workerID), p.Start.String(), p.End.String()).
		Order("date ASC"))
}

func (s *Store) PendingJustifications(ctx context.Context, workerID engine.WorkerID) ([]engine.Absence, error) {
	return findAbsences(s.db.WithContext(ctx).
		Where("worker_id = ? AND status = ? AND justified_at IS NULL",
			string(workerID), string(engine.AbsencePendingJustification)).
		Order("date ASC"))
}

func (s *Store) AwaitingReview(ctx context.Context, teamID engine.TeamID) ([]engine.Absence, error) {
	return findAbsences(s.db.WithContext(ctx).
		Where("team_id = ? AND status = ? AND justified_at IS NOT NULL",
			string(teamID), string(engine.AbsencePendingJustification)).
		Order("date ASC, worker_id ASC"))
}

func absenceByID(db *gorm.DB, id engine.AbsenceID) (engine.Absence, error) {
	var m absenceModel
	err := db.First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Absence{}, engine.ErrAbsenceNotFound
	}
	if err != nil {
		return engine.Absence{}, err
	}
	return m.toAbsence()
}

func findAbsences(q *gorm.DB) ([]engine.Absence, error) {
	var rows []absenceModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]engine.Absence, 0, len(rows))
	for _, m := range rows {
		a, err := m.toAbsence()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// WithAbsenceTx runs fn inside db.Transaction; returning an error rolls back.
func (s *Store) WithAbsenceTx(ctx context.Context, fn func(engine.AbsenceTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&absenceTx{tx: tx})
	})
}

type absenceTx struct {
	tx *gorm.DB
}

// AbsenceForUpdate asks for a row lock. The SQLite dialect drops the FOR
// UPDATE clause; there the single connection serialises writers instead.
func (t *absenceTx) AbsenceForUpdate(ctx context.Context, id engine.AbsenceID) (engine.Absence, error) {
	return absenceByID(t.tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (t *absenceTx) SaveAbsence(ctx context.Context, a engine.Absence) error {
	m := fromAbsence(a)
	res := t.tx.WithContext(ctx).Model(&absenceModel{}).Where("id = ?", m.ID).Updates(map[string]any{
		"reason_category": m.ReasonCategory,
		"explanation":     m.Explanation,
		"justified_at":    m.JustifiedAt,
		"status":          m.Status,
		"reviewed_by":     m.ReviewedBy,
		"reviewed_at":     m.ReviewedAt,
		"review_notes":    m.ReviewNotes,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update absence: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return engine.ErrAbsenceNotFound
	}
	return nil
}

// =============================================================================
// STREAK
// =============================================================================

func (s *Store) UpdateStreak(ctx context.Context, workerID engine.WorkerID, current, longest int, last calendar.Date) error {
	res := s.db.WithContext(ctx).Model(&workerModel{}).Where("id = ?", string(workerID)).Updates(map[string]any{
		"current_streak":    current,
		"longest_streak":    max(longest, current),
		"last_checkin_date": last.String(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update streak: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return engine.ErrWorkerNotFound
	}
	return nil
}
