/*
handlers.go - HTTP API handlers for the readiness and attendance engine

ENDPOINTS:
  Scoring:
    POST   /api/readiness/score                   Score four metrics
    POST   /api/attendance/resolve                Punctuality for an instant

  Workers:
    POST   /api/workers/{id}/checkins             Submit today's check-in
    POST   /api/workers/{id}/reconcile            Materialise missed days
    GET    /api/workers/{id}/absences/pending     Days the worker must explain
    GET    /api/workers/{id}/absences?from=&to=   Absences in a period
    POST   /api/workers/{id}/justifications       Explain absences (batch)
    GET    /api/workers/{id}/performance?from=&to=
    GET    /api/workers/{id}/streak

  Review:
    GET    /api/supervisors/{id}/reviews          Justified, unreviewed absences
    POST   /api/absences/{id}/review              EXCUSE or UNEXCUSE

  Misc:
    PATCH  /api/checkins/{id}/low-score-reason
    GET    /api/teams/{id}/grade?from=&to=

RECONCILE BEFORE READ:
  Endpoints that report absences or grades reconcile first, so a worker who
  has not opened the app in a week still sees every missed day.

ERROR HANDLING:
  - 400: Validation errors, invalid input, invalid period
  - 404: Worker, team, absence or check-in not found
  - 409: State violation (body "code" carries the StateCode)
  - 500: Environment errors (unknown timezone, worker without team) and
         storage failures

SECURITY NOTE:
  No authentication. Identities come from the path or body.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/warp/readiness-engine/calendar"
	"github.com/warp/readiness-engine/engine"
	"github.com/warp/readiness-engine/scoring"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the storage the handlers need: the engine's store plus seeding
// for scenarios.
type Backend interface {
	engine.Store
	engine.Seeder
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
	Store  Backend

	log logrus.FieldLogger

	mu              sync.Mutex
	currentScenario string
}

func NewHandler(eng *engine.Engine, store Backend, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Engine: eng, Store: store, log: log}
}

// =============================================================================
// SCORING
// =============================================================================

func (h *Handler) ScoreReadiness(w http.ResponseWriter, r *http.Request) {
	var req MetricsRequest
	if !decode(w, r, &req) {
		return
	}
	readiness, err := scoring.ScoreCheckin(req.metrics())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readiness)
}

func (h *Handler) ResolveAttendance(w http.ResponseWriter, r *http.Request) {
	var req ResolveAttendanceRequest
	if !decode(w, r, &req) {
		return
	}
	at, err := time.Parse(time.RFC3339, req.CheckinAt)
	if err != nil {
		h.writeEngineError(w, r, &engine.ValidationError{Field: "checkin_at", Message: "must be RFC3339"})
		return
	}
	shift, err := calendar.ParseTimeOfDay(req.ShiftStart)
	if err != nil {
		h.writeEngineError(w, r, &engine.ValidationError{Field: "shift_start", Message: err.Error()})
		return
	}
	zone, err := calendar.LoadZone(req.Timezone)
	if err != nil {
		h.writeEngineError(w, r, &engine.ValidationError{Field: "timezone", Message: err.Error()})
		return
	}
	grace := h.Engine.GracePeriod()
	if req.GraceMinutes != nil {
		if *req.GraceMinutes < 0 {
			h.writeEngineError(w, r, &engine.ValidationError{Field: "grace_minutes", Message: "must not be negative"})
			return
		}
		grace = *req.GraceMinutes
	}
	writeJSON(w, http.StatusOK, scoring.ResolveAttendance(at, zone, shift, grace))
}

// =============================================================================
// CHECK-INS
// =============================================================================

func (h *Handler) SubmitCheckin(w http.ResponseWriter, r *http.Request) {
	var req SubmitCheckinRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Engine.SubmitCheckin(r.Context(), workerParam(r), engine.CheckinInput{
		Metrics: req.metrics(),
		Note:    req.Note,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CheckinResultDTO{
		Checkin: toCheckinDTO(res.Checkin),
		Streak:  toStreakDTO(res.Streak),
	})
}

func (h *Handler) SetLowScoreReason(w http.ResponseWriter, r *http.Request) {
	var req LowScoreReasonRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Engine.SetLowScoreReason(r.Context(), engine.CheckinID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckinDTO(c))
}

func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.GetStreak(r.Context(), workerParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreakDTO(s))
}

// =============================================================================
// RECONCILIATION & ABSENCES
// =============================================================================

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	workerID := workerParam(r)
	created, err := h.Engine.Reconcile(r.Context(), workerID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	blocked, err := h.Engine.IsCheckinBlocked(r.Context(), workerID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileDTO{
		WorkerID: string(workerID),
		Created:  toAbsenceDTOs(created),
		Blocked:  blocked,
	})
}

func (h *Handler) ListPendingJustifications(w http.ResponseWriter, r *http.Request) {
	workerID := workerParam(r)
	if _, err := h.Engine.Reconcile(r.Context(), workerID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	pending, err := h.Engine.ListPendingJustifications(r.Context(), workerID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTOs(pending))
}

func (h *Handler) ListAbsences(w http.ResponseWriter, r *http.Request) {
	p, err := periodParams(r)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	workerID := workerParam(r)
	if _, err := h.Engine.Reconcile(r.Context(), workerID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	absences, err := h.Engine.ListAbsences(r.Context(), workerID, p)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTOs(absences))
}

func (h *Handler) SubmitJustification(w http.ResponseWriter, r *http.Request) {
	var req SubmitJustificationRequest
	if !decode(w, r, &req) {
		return
	}
	items := make([]engine.JustificationItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = engine.JustificationItem{
			AbsenceID:   engine.AbsenceID(it.AbsenceID),
			Category:    engine.ReasonCategory(strings.ToUpper(strings.TrimSpace(it.ReasonCategory))),
			Explanation: it.Explanation,
		}
	}
	updated, err := h.Engine.SubmitJustification(r.Context(), workerParam(r), items)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTOs(updated))
}

func (h *Handler) ListAwaitingReview(w http.ResponseWriter, r *http.Request) {
	queue, err := h.Engine.ListAwaitingReview(r.Context(), engine.WorkerID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTOs(queue))
}

func (h *Handler) ReviewAbsence(w http.ResponseWriter, r *http.Request) {
	var req ReviewAbsenceRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ReviewerID) == "" {
		h.writeEngineError(w, r, &engine.ValidationError{Field: "reviewer_id", Message: "required"})
		return
	}
	decision, err := engine.ParseDecision(req.Decision)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	a, err := h.Engine.ReviewAbsence(r.Context(),
		engine.AbsenceID(chi.URLParam(r, "id")),
		engine.WorkerID(req.ReviewerID),
		decision,
		req.Notes,
	)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTO(a))
}

// =============================================================================
// PERFORMANCE
// =============================================================================

func (h *Handler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	p, err := periodParams(r)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	workerID := workerParam(r)
	if _, err := h.Engine.Reconcile(r.Context(), workerID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	perf, err := h.Engine.ComputePerformance(r.Context(), workerID, p)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPerformanceDTO(perf))
}

func (h *Handler) GetTeamGrade(w http.ResponseWriter, r *http.Request) {
	p, err := periodParams(r)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	teamID := engine.TeamID(chi.URLParam(r, "id"))
	if _, err := h.Engine.Store.Team(r.Context(), teamID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if _, err := h.Engine.ReconcileTeam(r.Context(), teamID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	g, err := h.Engine.ComputeTeamGrade(r.Context(), teamID, p)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTeamGradeDTO(g))
}

// =============================================================================
// HEALTH & ADMIN
// =============================================================================

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable", "", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func workerParam(r *http.Request) engine.WorkerID {
	return engine.WorkerID(chi.URLParam(r, "id"))
}

func periodParams(r *http.Request) (calendar.Period, error) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		return calendar.Period{}, &engine.ValidationError{Field: "from,to", Message: "both are required (YYYY-MM-DD)"}
	}
	p, err := calendar.ParsePeriod(from, to)
	if err != nil {
		return calendar.Period{}, fmt.Errorf("%w: %w", engine.ErrValidation, err)
	}
	return p, nil
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine errors to HTTP statuses. Anything it does not
// recognise is a 500 and gets logged.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", "VALIDATION", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", "NOT_FOUND", err)
	case engine.IsStateViolation(err):
		writeError(w, http.StatusConflict, "State violation", string(engine.StateCodeOf(err)), err)
	default:
		h.log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", "INTERNAL", err)
	}
}
