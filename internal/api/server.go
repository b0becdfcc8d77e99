// Package api provides the HTTP server for the engine. It exposes the quest
// board, claims, streaks, leagues and experiments as a local REST API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psycle-labs/psycle/internal/app/experiment"
	"github.com/psycle-labs/psycle/internal/app/league"
	"github.com/psycle-labs/psycle/internal/app/quest"
	"github.com/psycle-labs/psycle/internal/app/streak"
	"github.com/psycle-labs/psycle/internal/health"
	"github.com/psycle-labs/psycle/internal/infra/scheduler"
)

// Server is the engine HTTP API server.
type Server struct {
	userID      string
	quests      *quest.Service
	streaks     *streak.Service
	leagues     *league.Service
	experiments *experiment.Service

	checker *health.Checker
	retry   *scheduler.RetryQueue

	metricsEnabled bool
	now            func() time.Time
}

// NewServer creates a new API server for one user's engine state.
func NewServer(userID string, q *quest.Service, s *streak.Service, l *league.Service, e *experiment.Service) *Server {
	return &Server{
		userID:      userID,
		quests:      q,
		streaks:     s,
		leagues:     l,
		experiments: e,
		now:         time.Now,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetClock overrides the server clock. Test hook.
func (s *Server) SetClock(now func() time.Time) { s.now = now }

// SetHealthChecker wires periodic health checks into /health.
func (s *Server) SetHealthChecker(c *health.Checker) { s.checker = c }

// SetRetryQueue wires deferred retries for failed ranking-authority writes.
func (s *Server) SetRetryQueue(rq *scheduler.RetryQueue) { s.retry = rq }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/events", s.handleRecordEvent)
		r.Get("/level", s.handleLevel)

		r.Route("/quests", func(r chi.Router) {
			r.Get("/board", s.handleBoard)
			r.Post("/autoclaim", s.handleAutoClaim)
			r.Post("/{id}/claim", s.handleClaimQuest)
			r.Post("/bundles/{period}/claim", s.handleClaimBundle)
		})

		r.Route("/streak", func(r chi.Router) {
			r.Get("/", s.handleStreakStatus)
			r.Get("/risk", s.handleStudyRisk)
			r.Post("/freezes", s.handleAddFreezes)
			r.Post("/freezes/use", s.handleUseFreeze)
			r.Get("/recovery", s.handleRecoveryStatus)
			r.Post("/recovery/claim", s.handleRecoveryClaim)
			r.Get("/guard", s.handleGuardStatus)
			r.Post("/guard/save", s.handleGuardSave)
		})

		r.Route("/league", func(r chi.Router) {
			r.Get("/", s.handleMyLeague)
			r.Post("/join", s.handleJoinLeague)
			r.Get("/boundary", s.handleBoundary)
			r.Post("/settle", s.handleSettleWeek)
			r.Get("/reward", s.handlePendingReward)
			r.Post("/reward/claim", s.handleClaimReward)
		})

		r.Route("/experiments", func(r chi.Router) {
			r.Get("/{id}", s.handleAssignment)
			r.Post("/{id}/exposure", s.handleExposure)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := http.StatusOK
	state := "ok"
	if !s.checker.IsHealthy() {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status": state,
		"checks": s.checker.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
