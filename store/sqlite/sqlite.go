/*
Package sqlite provides a SQLite-backed engine.Store.

PURPOSE:
  Persists organisation data, check-ins, exemptions, holidays and absences
  with database/sql and mattn/go-sqlite3. The same schema ports to
  PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  engine.Store:  Everything the engine reads and writes
  engine.Seeder: Collaborator-owned records (scenarios, tests)

KEY TABLES:
  companies, teams, workers:  Organisation (read-only for the engine)
  checkins:                   One row per (worker_id, date)
  exemptions, holidays:       Calendar exclusions
  absences:                   One row per (worker_id, date)

CONSTRAINTS:
  The database, not the caller, enforces the invariants that must survive
  concurrent writers and direct data edits:
  - idx_checkins_worker_date:  UNIQUE(worker_id, date)
  - idx_absences_worker_date:  UNIQUE(worker_id, date), used by
                               INSERT ... ON CONFLICT DO NOTHING
  - workers:   CHECK(longest_streak >= current_streak)
  - absences:  CHECK reviewed => justified, and terminal => reviewed

CONCURRENCY:
  A sync.RWMutex serialises writers in-process and the pool is limited to a
  single connection, so ":memory:" databases are shared by every caller.
  Transactions are opened with _txlock=immediate.

DATES:
  Local calendar dates are stored as "YYYY-MM-DD" text and compared as
  strings. Instants are stored as RFC3339Nano in UTC.

USAGE:
  store, err := sqlite.New("./readiness.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  eng := engine.New(store, engine.Options{})

SEE ALSO:
  - engine/store.go:         Interface definitions
  - engine/store/memory.go:  In-memory implementation
  - store/gormstore:         gorm implementation of the same interfaces
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/engine"
)

// Store implements engine.Store and engine.Seeder using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ engine.Store  = (*Store)(nil)
	_ engine.Seeder = (*Store)(nil)
)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection (used by /healthz).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		work_days TEXT NOT NULL,
		shift_start TEXT NOT NULL,
		shift_end TEXT NOT NULL,
		supervisor_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_teams_supervisor ON teams(supervisor_id);

	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		team_id TEXT,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'WORKER',
		team_joined_at TEXT,
		created_at TEXT NOT NULL,
		current_streak INTEGER NOT NULL DEFAULT 0,
		longest_streak INTEGER NOT NULL DEFAULT 0,
		last_checkin_date TEXT,
		CHECK (current_streak >= 0),
		CHECK (longest_streak >= current_streak)
	);
	CREATE INDEX IF NOT EXISTS idx_workers_team ON workers(team_id);

	CREATE TABLE IF NOT EXISTS checkins (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		date TEXT NOT NULL,
		mood INTEGER NOT NULL CHECK (mood BETWEEN 1 AND 10),
		stress INTEGER NOT NULL CHECK (stress BETWEEN 1 AND 10),
		sleep INTEGER NOT NULL CHECK (sleep BETWEEN 1 AND 10),
		physical_health INTEGER NOT NULL CHECK (physical_health BETWEEN 1 AND 10),
		readiness_score INTEGER NOT NULL,
		readiness_status TEXT NOT NULL,
		punctuality_status TEXT NOT NULL,
		minutes_late INTEGER NOT NULL DEFAULT 0,
		note TEXT NOT NULL DEFAULT '',
		low_score_reason TEXT,
		created_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_checkins_worker_date ON checkins(worker_id, date);

	CREATE TABLE IF NOT EXISTS exemptions (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		CHECK (start_date <= end_date)
	);
	CREATE INDEX IF NOT EXISTS idx_exemptions_worker ON exemptions(worker_id, status, start_date);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		date TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT ''
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_company_date ON holidays(company_id, date);

	CREATE TABLE IF NOT EXISTS absences (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		team_id TEXT NOT NULL DEFAULT '',
		company_id TEXT NOT NULL,
		date TEXT NOT NULL,
		reason_category TEXT,
		explanation TEXT,
		justified_at TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING_JUSTIFICATION',
		reviewed_by TEXT,
		reviewed_at TEXT,
		review_notes TEXT,
		created_at TEXT NOT NULL,
		CHECK (status = 'PENDING_JUSTIFICATION' OR (reviewed_by IS NOT NULL AND reviewed_at IS NOT NULL)),
		CHECK (reviewed_by IS NULL OR justified_at IS NOT NULL)
	);

	-- One absence per worker per local date. Reconciliation relies on this.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_absences_worker_date ON absences(worker_id, date);
	CREATE INDEX IF NOT EXISTS idx_absences_team_status ON absences(team_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SEEDER
// =============================================================================

func (s *Store) SaveCompany(ctx context.Context, c engine.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, timezone) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, timezone = excluded.timezone
	`, c.ID, c.Name, c.Timezone)
	return err
}

func (s *Store) SaveTeam(ctx context.Context, t engine.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (id, company_id, name, work_days, shift_start, shift_end, supervisor_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			name = excluded.name,
			work_days = excluded.work_days,
			shift_start = excluded.shift_start,
			shift_end = excluded.shift_end,
			supervisor_id = excluded.supervisor_id
	`, t.ID, t.CompanyID, t.Name, t.WorkDays.String(), t.ShiftStart.String(), t.ShiftEnd.String(),
		nullString(string(t.SupervisorID)))
	return err
}

func (s *Store) SaveWorker(ctx context.Context, w engine.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (id, company_id, team_id, name, role, team_joined_at, created_at,
		                     current_streak, longest_streak, last_checkin_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			team_id = excluded.team_id,
			name = excluded.name,
			role = excluded.role,
			team_joined_at = excluded.team_joined_at,
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_checkin_date = excluded.last_checkin_date
	`, w.ID, w.CompanyID, nullString(string(w.TeamID)), w.Name, roleOrDefault(w.Role),
		nullTime(w.TeamJoinedAt), formatTime(w.CreatedAt),
		w.CurrentStreak, max(w.LongestStreak, w.CurrentStreak), nullDate(w.LastCheckinDate))
	return err
}

func (s *Store) SaveExemption(ctx context.Context, e engine.Exemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exemptions (id, worker_id, type, start_date, end_date, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			status = excluded.status,
			reason = excluded.reason
	`, e.ID, e.WorkerID, e.Type, e.StartDate.String(), e.EndDate.String(), e.Status, e.Reason)
	return err
}

func (s *Store) SaveHoliday(ctx context.Context, h engine.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, company_id, date, name) VALUES (?, ?, ?, ?)
		ON CONFLICT(company_id, date) DO UPDATE SET id = excluded.id, name = excluded.name
	`, h.ID, h.CompanyID, h.Date.String(), h.Name)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"absences", "checkins", "exemptions", "holidays", "workers", "teams", "companies"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

const workerColumns = `id, company_id, team_id, name, role, team_joined_at, created_at,
	current_streak, longest_streak, last_checkin_date`

func (s *Store) Worker(ctx context.Context, id engine.WorkerID) (engine.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+workerColumns+" FROM workers WHERE id = ?", id)
	if err != nil {
		return engine.Worker{}, err
	}
	workers, err := scanWorkers(rows)
	if err != nil {
		return engine.Worker{}, err
	}
	if len(workers) == 0 {
		return engine.Worker{}, engine.ErrWorkerNotFound
	}
	return workers[0], nil
}

func (s *Store) TeamMembers(ctx context.Context, id engine.TeamID) ([]engine.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+workerColumns+" FROM workers WHERE team_id = ? ORDER BY id", id)
	if err != nil {
		return nil, err
	}
	return scanWorkers(rows)
}

func scanWorkers(rows *sql.Rows) ([]engine.Worker, error) {
	defer rows.Close()

	var workers []engine.Worker
	for rows.Next() {
		var (
			w                  engine.Worker
			teamID, joinedAt   sql.NullString
			createdAt          string
			lastCheckinDateStr sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.CompanyID, &teamID, &w.Name, &w.Role, &joinedAt, &createdAt,
			&w.CurrentStreak, &w.LongestStreak, &lastCheckinDateStr); err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		w.TeamID = engine.TeamID(teamID.String)
		var err error
		if w.TeamJoinedAt, err = parseNullTime(joinedAt); err != nil {
			return nil, err
		}
		if w.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if lastCheckinDateStr.Valid {
			d, err := calendar.ParseDate(lastCheckinDateStr.String)
			if err != nil {
				return nil, err
			}
			w.LastCheckinDate = &d
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

const teamColumns = "id, company_id, name, work_days, shift_start, shift_end, supervisor_id"

func (s *Store) Team(ctx context.Context, id engine.TeamID) (engine.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+teamColumns+" FROM teams WHERE id = ?", id)
	if err != nil {
		return engine.Team{}, err
	}
	teams, err := scanTeams(rows)
	if err != nil {
		return engine.Team{}, err
	}
	if len(teams) == 0 {
		return engine.Team{}, engine.ErrTeamNotFound
	}
	return teams[0], nil
}

func (s *Store) TeamsLedBy(ctx context.Context, supervisorID engine.WorkerID) ([]engine.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+teamColumns+" FROM teams WHERE supervisor_id = ? ORDER BY id", supervisorID)
	if err != nil {
		return nil, err
	}
	return scanTeams(rows)
}

func scanTeams(rows *sql.Rows) ([]engine.Team, error) {
	defer rows.Close()

	var teams []engine.Team
	for rows.Next() {
		var (
			t                              engine.Team
			workDays, shiftStart, shiftEnd string
			supervisorID                   sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Name, &workDays, &shiftStart, &shiftEnd, &supervisorID); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		var err error
		if t.WorkDays, err = calendar.ParseWorkWeek(workDays); err != nil {
			return nil, fmt.Errorf("team %s: %w", t.ID, err)
		}
		if t.ShiftStart, err = calendar.ParseTimeOfDay(shiftStart); err != nil {
			return nil, fmt.Errorf("team %s: %w", t.ID, err)
		}
		if t.ShiftEnd, err = calendar.ParseTimeOfDay(shiftEnd); err != nil {
			return nil, fmt.Errorf("team %s: %w", t.ID, err)
		}
		t.SupervisorID = engine.WorkerID(supervisorID.String)
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *Store) Company(ctx context.Context, id engine.CompanyID) (engine.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c engine.Company
	err := s.db.QueryRowContext(ctx, "SELECT id, name, timezone FROM companies WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Company{}, engine.ErrCompanyNotFound
	}
	return c, err
}

// =============================================================================
// CHECKINS
// =============================================================================

const checkinColumns = `id, worker_id, company_id, date, mood, stress, sleep, physical_health,
	readiness_score, readiness_status, punctuality_status, minutes_late, note, low_score_reason, created_at`

func (s *Store) InsertCheckin(ctx context.Context, c engine.Checkin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkins (`+checkinColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.WorkerID, c.CompanyID, c.Date.String(),
		c.Metrics.Mood, c.Metrics.Stress, c.Metrics.Sleep, c.Metrics.Physical,
		c.Readiness.Score, c.Readiness.Status,
		c.Punctuality.Status, c.Punctuality.MinutesLate,
		c.Note, c.LowScoreReason, formatTime(c.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateCheckin
		}
		return fmt.Errorf("failed to insert checkin: %w", err)
	}
	return nil
}

func (s *Store) Checkin(ctx context.Context, id engine.CheckinID) (engine.Checkin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checkins, err := s.queryCheckins(ctx, "SELECT "+checkinColumns+" FROM checkins WHERE id = ?", id)
	if err != nil {
		return engine.Checkin{}, err
	}
	if len(checkins) == 0 {
		return engine.Checkin{}, engine.ErrCheckinNotFound
	}
	return checkins[0], nil
}

func (s *Store) CheckinsInRange(ctx context.Context, workerID engine.WorkerID, p calendar.Period) ([]engine.Checkin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryCheckins(ctx, `
		SELECT `+checkinColumns+` FROM checkins
		WHERE worker_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, workerID, p.Start.String(), p.End.String())
}

func (s *Store) FirstCheckinDate(ctx context.Context, workerID engine.WorkerID) (calendar.Date, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var first sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MIN(date) FROM checkins WHERE worker_id = ?", workerID).Scan(&first); err != nil {
		return calendar.Date{}, false, err
	}
	if !first.Valid {
		return calendar.Date{}, false, nil
	}
	d, err := calendar.ParseDate(first.String)
	return d, err == nil, err
}

func (s *Store) SetLowScoreReason(ctx context.Context, id engine.CheckinID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE checkins SET low_score_reason = ? WHERE id = ? AND low_score_reason IS NULL", reason, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM checkins WHERE id = ?", id).Scan(&exists); err != nil {
			return false, err
		}
		if exists == 0 {
			return false, engine.ErrCheckinNotFound
		}
	}
	return n > 0, nil
}

func (s *Store) queryCheckins(ctx context.Context, query string, args ...any) ([]engine.Checkin, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkins: %w", err)
	}
	defer rows.Close()

	var checkins []engine.Checkin
	for rows.Next() {
		var (
			c               engine.Checkin
			date, createdAt string
			lowScoreReason  sql.NullString
		)
		err := rows.Scan(&c.ID, &c.WorkerID, &c.CompanyID, &date,
			&c.Metrics.Mood, &c.Metrics.Stress, &c.Metrics.Sleep, &c.Metrics.Physical,
			&c.Readiness.Score, &c.Readiness.Status,
			&c.Punctuality.Status, &c.Punctuality.MinutesLate,
			&c.Note, &lowScoreReason, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkin: %w", err)
		}
		if c.Date, err = calendar.ParseDate(date); err != nil {
			return nil, err
		}
		if lowScoreReason.Valid {
			c.LowScoreReason = &lowScoreReason.String
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		checkins = append(checkins, c)
	}
	return checkins, rows.Err()
}

// =============================================================================
// EXEMPTIONS & HOLIDAYS
// =============================================================================

func (s *Store) ApprovedExemptions(ctx context.Context, workerID engine.WorkerID, p calendar.Period) ([]engine.Exemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, type, start_date, end_date, status, reason
		FROM exemptions
		WHERE worker_id = ? AND status = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC
	`, workerID, engine.ExemptionApproved, p.End.String(), p.Start.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query exemptions: %w", err)
	}
	defer rows.Close()

	var out []engine.Exemption
	for rows.Next() {
		var (
			e          engine.Exemption
			start, end string
		)
		if err := rows.Scan(&e.ID, &e.WorkerID, &e.Type, &start, &end, &e.Status, &e.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan exemption: %w", err)
		}
		if e.StartDate, err = calendar.ParseDate(start); err != nil {
			return nil, err
		}
		if e.EndDate, err = calendar.ParseDate(end); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Holidays(ctx context.Context, companyID engine.CompanyID, p calendar.Period) ([]engine.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, date, name FROM holidays
		WHERE company_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, companyID, p.Start.String(), p.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []engine.Holiday
	for rows.Next() {
		var (
			h    engine.Holiday
			date string
		)
		if err := rows.Scan(&h.ID, &h.CompanyID, &date, &h.Name); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		if h.Date, err = calendar.ParseDate(date); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// ABSENCES
// =============================================================================

const absenceColumns = `id, worker_id, team_id, company_id, date, reason_category, explanation,
	justified_at, status, reviewed_by, reviewed_at, review_notes, created_at`

// InsertAbsence relies on idx_absences_worker_date: a conflicting row is
// left untouched and reported as inserted=false.
func (s *Store) InsertAbsence(ctx context.Context, a engine.Absence) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO absences (`+absenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, date) DO NOTHING
	`, absenceArgs(a)...)
	if err != nil {
		return false, fmt.Errorf("failed to insert absence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Absence(ctx context.Context, id engine.AbsenceID) (engine.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return absenceByID(ctx, s.db, id)
}

func (s *Store) AbsencesInRange(ctx context.Context, workerID engine.WorkerID, p calendar.Period) ([]engine.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryAbsences(ctx, s.db, `
		SELECT `+absenceColumns+` FROM absences
		WHERE worker_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, workerID, p.Start.String(), p.End.String())
}

func (s *Store) PendingJustifications(ctx context.Context, workerID engine.WorkerID) ([]engine.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryAbsences(ctx, s.db, `
		SELECT `+absenceColumns+` FROM absences
		WHERE worker_id = ? AND status = ? AND justified_at IS NULL
		ORDER BY date ASC
	`, workerID, engine.AbsencePendingJustification)
}

func (s *Store) AwaitingReview(ctx context.Context, teamID engine.TeamID) ([]engine.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryAbsences(ctx, s.db, `
		SELECT `+absenceColumns+` FROM absences
		WHERE team_id = ? AND status = ? AND justified_at IS NOT NULL
		ORDER BY date ASC, worker_id ASC
	`, teamID, engine.AbsencePendingJustification)
}

func absenceArgs(a engine.Absence) []any {
	var reviewedBy *string
	if a.ReviewedBy != nil {
		v := string(*a.ReviewedBy)
		reviewedBy = &v
	}
	var category *string
	if a.ReasonCategory != nil {
		v := string(*a.ReasonCategory)
		category = &v
	}
	return []any{
		a.ID, a.WorkerID, a.TeamID, a.CompanyID, a.Date.String(),
		category, a.Explanation, nullTime(a.JustifiedAt),
		a.Status, reviewedBy, nullTime(a.ReviewedAt), a.ReviewNotes,
		formatTime(a.CreatedAt),
	}
}

func absenceByID(ctx context.Context, db execer, id engine.AbsenceID) (engine.Absence, error) {
	absences, err := queryAbsences(ctx, db, "SELECT "+absenceColumns+" FROM absences WHERE id = ?", id)
	if err != nil {
		return engine.Absence{}, err
	}
	if len(absences) == 0 {
		return engine.Absence{}, engine.ErrAbsenceNotFound
	}
	return absences[0], nil
}

func queryAbsences(ctx context.Context, db execer, query string, args ...any) ([]engine.Absence, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query absences: %w", err)
	}
	defer rows.Close()

	var absences []engine.Absence
	for rows.Next() {
		var (
			a                                   engine.Absence
			date, createdAt                     string
			category, explanation, justifiedAt  sql.NullString
			reviewedBy, reviewedAt, reviewNotes sql.NullString
		)
		err := rows.Scan(&a.ID, &a.WorkerID, &a.TeamID, &a.CompanyID, &date,
			&category, &explanation, &justifiedAt,
			&a.Status, &reviewedBy, &reviewedAt, &reviewNotes, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan absence: %w", err)
		}
		if a.Date, err = calendar.ParseDate(date); err != nil {
			return nil, err
		}
		if category.Valid {
			c := engine.ReasonCategory(category.String)
			a.ReasonCategory = &c
		}
		if explanation.Valid {
			a.Explanation = &explanation.String
		}
		if a.JustifiedAt, err = parseNullTime(justifiedAt); err != nil {
			return nil, err
		}
		if reviewedBy.Valid {
			by := engine.WorkerID(reviewedBy.String)
			a.ReviewedBy = &by
		}
		if a.ReviewedAt, err = parseNullTime(reviewedAt); err != nil {
			return nil, err
		}
		if reviewNotes.Valid {
			a.ReviewNotes = &reviewNotes.String
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		absences = append(absences, a)
	}
	return absences, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithAbsenceTx executes fn within a database transaction.
func (s *Store) WithAbsenceTx(ctx context.Context, fn func(engine.AbsenceTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&absenceTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type absenceTx struct {
	tx *sql.Tx
}

// AbsenceForUpdate reads inside the immediate transaction, which already
// holds the database write lock.
func (t *absenceTx) AbsenceForUpdate(ctx context.Context, id engine.AbsenceID) (engine.Absence, error) {
	return absenceByID(ctx, t.tx, id)
}

func (t *absenceTx) SaveAbsence(ctx context.Context, a engine.Absence) error {
	args := absenceArgs(a)
	res, err := t.tx.ExecContext(ctx, `
		UPDATE absences SET
			reason_category = ?, explanation = ?, justified_at = ?,
			status = ?, reviewed_by = ?, reviewed_at = ?, review_notes = ?
		WHERE id = ?
	`, args[5], args[6], args[7], args[8], args[9], args[10], args[11], a.ID)
	if err != nil {
		return fmt.Errorf("failed to update absence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrAbsenceNotFound
	}
	return nil
}

// =============================================================================
// STREAK
// =============================================================================

func (s *Store) UpdateStreak(ctx context.Context, workerID engine.WorkerID, current, longest int, last calendar.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE workers SET current_streak = ?, longest_streak = ?, last_checkin_date = ?
		WHERE id = ?
	`, current, max(longest, current), last.String(), workerID)
	if err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrWorkerNotFound
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullDate(d *calendar.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func roleOrDefault(r engine.Role) engine.Role {
	if r == "" {
		return engine.RoleWorker
	}
	return r
}
