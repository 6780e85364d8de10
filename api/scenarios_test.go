package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/readiness-engine/api"
)

func (s *testServer) load(id string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: id})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenarios_ListAndUnknown(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]api.ScenarioDTO](t, rec), 4)

	rec = s.do(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenario_MissedWeek(t *testing.T) {
	s := newTestServer(t)
	s.load("missed-week")

	rec := s.do(http.MethodGet, "/api/workers/w-ana/absences/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]api.AbsenceDTO](t, rec), 5)

	rec = s.do(http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "missed-week", decodeBody[api.ScenarioDTO](t, rec).ID)
}

func TestScenario_JustificationQueue(t *testing.T) {
	s := newTestServer(t)
	s.load("justification-queue")

	rec := s.do(http.MethodGet, "/api/supervisors/sup-mara/reviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queue := decodeBody[[]api.AbsenceDTO](t, rec)
	require.Len(t, queue, 5)
	for _, a := range queue {
		assert.Equal(t, "AWAITING_SUPERVISOR", a.State)
		require.NotNil(t, a.ReasonCategory)
		assert.Equal(t, "SICK", *a.ReasonCategory)
	}
}

func TestScenario_SteadyStreak(t *testing.T) {
	// GIVEN: ten on-time work days, May 26 .. Jun 6
	s := newTestServer(t)
	s.load("steady-streak")

	rec := s.do(http.MethodGet, "/api/workers/w-cy/streak", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	streak := decodeBody[api.StreakDTO](t, rec)
	assert.Equal(t, 10, streak.Current)
	assert.Equal(t, 10, streak.Longest)

	rec = s.do(http.MethodGet, "/api/workers/w-cy/performance?from=2025-05-26&to=2025-06-08", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	perf := decodeBody[api.PerformanceDTO](t, rec)
	require.NotNil(t, perf.Score)
	assert.Equal(t, 100, *perf.Score)
	assert.Equal(t, "A", perf.Grade)
}

func TestScenario_HolidayAndLeave(t *testing.T) {
	s := newTestServer(t)
	s.load("holiday-and-leave")

	// THEN: neither the holiday nor the exemption became an absence
	rec := s.do(http.MethodGet, "/api/workers/w-dee/absences/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]api.AbsenceDTO](t, rec))

	rec = s.do(http.MethodGet, "/api/workers/w-dee/performance?from=2025-05-26&to=2025-06-06", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	perf := decodeBody[api.PerformanceDTO](t, rec)
	assert.Equal(t, 6, perf.Breakdown.Green)
	assert.Equal(t, 1, perf.Breakdown.Yellow)
	assert.Equal(t, 2, perf.Breakdown.NotRequired, "the two exempt days")
	assert.Len(t, perf.Days, 9, "the holiday is not listed")

	rec = s.do(http.MethodGet, "/api/workers/w-dee/streak", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, decodeBody[api.StreakDTO](t, rec).Current)
}
