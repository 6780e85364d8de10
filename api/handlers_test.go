package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/readiness-engine/api"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/engine"
	"github.com/warp/readiness-engine/engine/store"
)

// Monday 2025-06-09 09:00 in Manila.
var testNow = time.Date(2025, 6, 9, 1, 0, 0, 0, time.UTC)

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *store.Memory
	engine *engine.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	mem := store.NewMemory()
	eng := engine.New(mem, engine.Options{Clock: calendar.Fixed{T: testNow}, Logger: log})
	h := api.NewHandler(eng, mem, log)
	return &testServer{t: t, router: api.NewRouter(h, nil), store: mem, engine: eng}
}

// seed creates acme (Manila), team t-1 (MON-FRI, 08:00) led by sup-1, and
// w-1 who joined on Sunday 2025-06-01.
func (s *testServer) seed() {
	s.t.Helper()
	ctx := context.Background()
	zone := calendar.MustLoadZone("Asia/Manila")
	joined := zone.At(calendar.MustParseDate("2025-06-01"), calendar.TimeOfDay{Hour: 10})

	require.NoError(s.t, s.store.SaveCompany(ctx, engine.Company{ID: "acme", Timezone: "Asia/Manila"}))
	require.NoError(s.t, s.store.SaveTeam(ctx, engine.Team{
		ID: "t-1", CompanyID: "acme", WorkDays: calendar.MondayToFriday,
		ShiftStart: calendar.MustParseTimeOfDay("08:00"), ShiftEnd: calendar.MustParseTimeOfDay("17:00"),
		SupervisorID: "sup-1",
	}))
	require.NoError(s.t, s.store.SaveWorker(ctx, engine.Worker{ID: "sup-1", CompanyID: "acme", Role: engine.RoleSupervisor, CreatedAt: joined}))
	require.NoError(s.t, s.store.SaveWorker(ctx, engine.Worker{ID: "w-1", CompanyID: "acme", TeamID: "t-1", TeamJoinedAt: &joined, CreatedAt: joined}))
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var good = map[string]int{"mood": 9, "stress": 2, "sleep": 8, "physical_health": 9}

func TestScoreReadiness(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/readiness/score", map[string]int{"mood": 8, "stress": 3, "sleep": 7, "physical_health": 8})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 78, got["score"])
	assert.Equal(t, "GREEN", got["status"])

	rec = s.do(http.MethodPost, "/api/readiness/score", map[string]int{"mood": 0, "stress": 3, "sleep": 7, "physical_health": 8})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decodeBody[api.ErrorResponse](t, rec).Code)
}

func TestResolveAttendance(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/attendance/resolve", api.ResolveAttendanceRequest{
		CheckinAt: "2025-06-09T00:20:00Z", Timezone: "Asia/Manila", ShiftStart: "08:00",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "YELLOW", got["status"])
	assert.EqualValues(t, 5, got["minutes_late"])

	rec = s.do(http.MethodPost, "/api/attendance/resolve", api.ResolveAttendanceRequest{
		CheckinAt: "2025-06-09T00:20:00Z", Timezone: "Mars/Olympus", ShiftStart: "08:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAbsenceLifecycleOverHTTP(t *testing.T) {
	// GIVEN: a worker who missed their whole first week
	s := newTestServer(t)
	s.seed()

	// WHEN: they try to check in
	rec := s.do(http.MethodPost, "/api/workers/w-1/checkins", good)

	// THEN: the gate is closed and the week is waiting to be explained
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "CHECKIN_BLOCKED", decodeBody[api.ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodGet, "/api/workers/w-1/absences/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeBody[[]api.AbsenceDTO](t, rec)
	require.Len(t, pending, 5)
	assert.Equal(t, "2025-06-02", pending[0].Date)
	assert.Equal(t, "AWAITING_WORKER", pending[0].State)

	// WHEN: they explain every day
	items := make([]api.JustificationItemRequest, len(pending))
	for i, a := range pending {
		items[i] = api.JustificationItemRequest{AbsenceID: a.ID, ReasonCategory: "sick", Explanation: "flu"}
	}
	rec = s.do(http.MethodPost, "/api/workers/w-1/justifications", api.SubmitJustificationRequest{Items: items})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: the supervisor sees them, and only the supervisor may decide
	rec = s.do(http.MethodGet, "/api/supervisors/sup-1/reviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queue := decodeBody[[]api.AbsenceDTO](t, rec)
	require.Len(t, queue, 5)
	assert.Equal(t, "AWAITING_SUPERVISOR", queue[0].State)

	rec = s.do(http.MethodPost, "/api/absences/"+queue[0].ID+"/review", api.ReviewAbsenceRequest{ReviewerID: "w-1", Decision: "EXCUSED"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_TEAM_SUPERVISOR", decodeBody[api.ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodPost, "/api/absences/"+queue[0].ID+"/review", api.ReviewAbsenceRequest{ReviewerID: "sup-1", Decision: "EXCUSE", Notes: "doctor's note"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reviewed := decodeBody[api.AbsenceDTO](t, rec)
	assert.Equal(t, "EXCUSED", reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "sup-1", *reviewed.ReviewedBy)

	// AND: the check-in now goes through, 45 minutes past the grace window
	rec = s.do(http.MethodPost, "/api/workers/w-1/checkins", good)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[api.CheckinResultDTO](t, rec)
	assert.Equal(t, 88, res.Checkin.ReadinessScore)
	assert.Equal(t, "YELLOW", res.Checkin.PunctualityStatus)
	assert.Equal(t, 45, res.Checkin.MinutesLate)
	assert.Equal(t, 1, res.Streak.Current)

	// AND: performance counts 1 excused, 4 absent, 1 yellow: 75/5 = 15
	rec = s.do(http.MethodGet, "/api/workers/w-1/performance?from=2025-06-02&to=2025-06-09", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	perf := decodeBody[api.PerformanceDTO](t, rec)
	require.NotNil(t, perf.Score)
	assert.Equal(t, 15, *perf.Score)
	assert.Equal(t, "F", perf.Grade)
	assert.Equal(t, 1, perf.Breakdown.Excused)
	assert.Equal(t, 4, perf.Breakdown.Absent)
	assert.Equal(t, 1, perf.Breakdown.Yellow)

	// AND: team grade blends readiness 88 with compliance 15: 52.8 + 6 = 59
	rec = s.do(http.MethodGet, "/api/teams/t-1/grade?from=2025-06-02&to=2025-06-09", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	grade := decodeBody[api.TeamGradeDTO](t, rec)
	require.NotNil(t, grade.Score)
	assert.Equal(t, 59, *grade.Score)
	assert.Equal(t, "88", grade.AverageReadiness.String())

	rec = s.do(http.MethodGet, "/api/workers/w-1/streak", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	streak := decodeBody[api.StreakDTO](t, rec)
	require.NotNil(t, streak.LastCheckinDate)
	assert.Equal(t, "2025-06-09", *streak.LastCheckinDate)
}

func TestReconcileEndpoint_IsIdempotent(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	rec := s.do(http.MethodPost, "/api/workers/w-1/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeBody[api.ReconcileDTO](t, rec)
	assert.Len(t, first.Created, 5)
	assert.True(t, first.Blocked)

	rec = s.do(http.MethodPost, "/api/workers/w-1/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[api.ReconcileDTO](t, rec).Created)
}

func TestReviewAbsence_DecisionVerbs(t *testing.T) {
	// GIVEN: two justified absences waiting for sup-1
	s := newTestServer(t)
	s.seed()
	rec := s.do(http.MethodGet, "/api/workers/w-1/absences/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeBody[[]api.AbsenceDTO](t, rec)
	require.GreaterOrEqual(t, len(pending), 3)

	items := make([]api.JustificationItemRequest, len(pending))
	for i, a := range pending {
		items[i] = api.JustificationItemRequest{AbsenceID: a.ID, ReasonCategory: "FAMILY", Explanation: "moving house"}
	}
	rec = s.do(http.MethodPost, "/api/workers/w-1/justifications", api.SubmitJustificationRequest{Items: items})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []struct {
		decision string
		status   int
		want     string
	}{
		{"EXCUSE", http.StatusOK, "EXCUSED"},
		{"unexcuse", http.StatusOK, "UNEXCUSED"},
		{"PARDON", http.StatusBadRequest, ""},
	}
	for i, tt := range tests {
		t.Run(tt.decision, func(t *testing.T) {
			// WHEN: the supervisor decides with the verb
			rec := s.do(http.MethodPost, "/api/absences/"+pending[i].ID+"/review", api.ReviewAbsenceRequest{ReviewerID: "sup-1", Decision: tt.decision})

			// THEN: the verb maps onto the terminal status
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.want == "" {
				assert.Equal(t, "VALIDATION", decodeBody[api.ErrorResponse](t, rec).Code)
				return
			}
			assert.Equal(t, tt.want, decodeBody[api.AbsenceDTO](t, rec).Status)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	ctx := context.Background()
	require.NoError(t, s.store.SaveWorker(ctx, engine.Worker{ID: "floater", CompanyID: "acme", CreatedAt: testNow}))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown worker", http.MethodGet, "/api/workers/ghost/absences/pending", nil, http.StatusNotFound, "NOT_FOUND"},
		{"missing period", http.MethodGet, "/api/workers/w-1/performance", nil, http.StatusBadRequest, "VALIDATION"},
		{"inverted period", http.MethodGet, "/api/workers/w-1/absences?from=2025-06-09&to=2025-06-01", nil, http.StatusBadRequest, "VALIDATION"},
		{"bad json", http.MethodPost, "/api/workers/w-1/justifications", "not an object", http.StatusBadRequest, "VALIDATION"},
		{"empty batch", http.MethodPost, "/api/workers/w-1/justifications", api.SubmitJustificationRequest{}, http.StatusBadRequest, "VALIDATION"},
		{"unknown absence", http.MethodPost, "/api/absences/nope/review", api.ReviewAbsenceRequest{ReviewerID: "sup-1", Decision: "EXCUSED"}, http.StatusNotFound, "NOT_FOUND"},
		{"worker without team", http.MethodPost, "/api/workers/floater/reconcile", nil, http.StatusInternalServerError, "INTERNAL"},
		{"unknown team", http.MethodGet, "/api/teams/nope/grade?from=2025-06-02&to=2025-06-06", nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody[api.ErrorResponse](t, rec).Code)
		})
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}
