/*
server.go - HTTP router and middleware configuration

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. Logger:     Request logging through logrus
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/readiness, /api/attendance   Stateless scoring
  /api/workers/*                    Worker-facing operations
  /api/supervisors/*, /api/absences Review
  /api/teams/*                      Team grades
  /api/checkins/*                   Check-in follow-ups
  /api/scenarios/*                  Demo scenarios
  /healthz                          Liveness + database ping

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured. An empty
// allowedOrigins list allows any origin.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/readiness/score", h.ScoreReadiness)
		r.Post("/attendance/resolve", h.ResolveAttendance)

		r.Route("/workers/{id}", func(r chi.Router) {
			r.Post("/checkins", h.SubmitCheckin)
			r.Post("/reconcile", h.Reconcile)
			r.Get("/absences", h.ListAbsences)
			r.Get("/absences/pending", h.ListPendingJustifications)
			r.Post("/justifications", h.SubmitJustification)
			r.Get("/performance", h.GetPerformance)
			r.Get("/streak", h.GetStreak)
		})

		r.Get("/supervisors/{id}/reviews", h.ListAwaitingReview)
		r.Post("/absences/{id}/review", h.ReviewAbsence)
		r.Patch("/checkins/{id}/low-score-reason", h.SetLowScoreReason)
		r.Get("/teams/{id}/grade", h.GetTeamGrade)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger replaces middleware.Logger so access logs share the
// process logger's format and level.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.WithFields(logrus.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
				}).Info("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
