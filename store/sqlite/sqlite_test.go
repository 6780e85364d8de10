package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/engine"
	"github.com/warp/readiness-engine/engine/storetest"
	"github.com/warp/readiness-engine/store/sqlite"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		s, err := sqlite.New(filepath.Join(t.TempDir(), "readiness.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	// GIVEN: a company written through one call
	ctx := context.Background()
	require.NoError(t, s.SaveCompany(ctx, engine.Company{ID: "acme", Timezone: "Asia/Manila"}))

	// THEN: every later call sees it (single shared connection)
	c, err := s.Company(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Manila", c.Timezone)
	assert.NoError(t, s.Ping(ctx))
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "readiness.db")

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveCompany(ctx, engine.Company{ID: "acme", Timezone: "UTC"}))
	require.NoError(t, s.SaveTeam(ctx, engine.Team{
		ID: "t-1", CompanyID: "acme", WorkDays: calendar.MondayToFriday,
		ShiftStart: calendar.MustParseTimeOfDay("08:00"), ShiftEnd: calendar.MustParseTimeOfDay("17:00"),
	}))
	require.NoError(t, s.Close())

	// WHEN: the file is opened again and migrated a second time
	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()

	// THEN
	team, err := s.Team(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, calendar.MondayToFriday, team.WorkDays)
	assert.Equal(t, "08:00", team.ShiftStart.String())
}

func TestSQLiteStore_CorruptTimestampSurfaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "readiness.db")

	// GIVEN: an absence whose justified_at was edited by hand into garbage
	s, err := sqlite.New(path)
	require.NoError(t, err)
	inserted, err := s.InsertAbsence(ctx, engine.Absence{
		ID: "a-1", WorkerID: "w-1", TeamID: "t-1", CompanyID: "acme",
		Date:      calendar.MustParseDate("2025-06-02"),
		Status:    engine.AbsencePendingJustification,
		CreatedAt: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, s.Close())

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`UPDATE absences SET justified_at = 'last tuesday' WHERE id = 'a-1'`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()

	// WHEN
	_, err = s.Absence(ctx, "a-1")

	// THEN: the read fails instead of returning a zero instant
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last tuesday")
}
