package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"RewardVault/internal/core"
	"RewardVault/internal/observability"
	"RewardVault/internal/query"
)

// Server is the HTTP read surface. Current-engine status comes from the
// core's lock-free snapshot; historical rounds, claims, and the leaderboard
// come from Postgres projections via the query service.
type Server struct {
	core    *core.DeterministicCore
	queries *query.QueryService
	health  *observability.HealthChecker
	metrics *observability.Metrics
	logger  zerolog.Logger

	router http.Handler
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Core    *core.DeterministicCore
	Queries *query.QueryService
	Health  *observability.HealthChecker
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

func New(cfg Config) *Server {
	s := &Server{
		core:    cfg.Core,
		queries: cfg.Queries,
		health:  cfg.Health,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/status", s.GetStatus)
		api.Get("/rounds/{engine}/current", s.GetCurrentRound)
		api.Get("/rounds/{engine}/{roundID}", s.GetRound)
		api.Get("/rounds/lp/{roundID}/ranked", s.GetRanked)
		api.Get("/participants/{participant}/claims", s.GetClaims)
		api.Get("/participants/{participant}/claims/{engine}/{roundID}", s.GetClaimable)
		api.Get("/participants/{participant}/lifetime", s.GetLifetime)
		api.Get("/participants/{participant}/journal", s.GetJournalHistory)
		api.Get("/admin/integrity", s.VerifyIntegrity)
	})

	return r
}

// GetStatus serves the core's latest published snapshot. Never touches the
// database or the processing goroutine.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, "status", http.StatusOK, s.core.StatusSnapshot())
}

func (s *Server) GetCurrentRound(w http.ResponseWriter, r *http.Request) {
	status := s.core.StatusSnapshot()
	switch chi.URLParam(r, "engine") {
	case "buyer":
		s.respondJSON(w, "current_round", http.StatusOK, status.Buyer)
	case "lp":
		s.respondJSON(w, "current_round", http.StatusOK, status.LP)
	default:
		s.respondError(w, "current_round", http.StatusBadRequest, "engine must be buyer or lp")
	}
}

func (s *Server) GetRound(w http.ResponseWriter, r *http.Request) {
	engine := chi.URLParam(r, "engine")
	if engine != "buyer" && engine != "lp" {
		s.respondError(w, "round", http.StatusBadRequest, "engine must be buyer or lp")
		return
	}
	roundID, err := strconv.ParseUint(chi.URLParam(r, "roundID"), 10, 64)
	if err != nil {
		s.respondError(w, "round", http.StatusBadRequest, "invalid round id")
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	round, err := s.queries.GetRound(ctx, engine, roundID)
	if err != nil {
		s.serverError(w, "round", err)
		return
	}
	if round == nil {
		s.respondError(w, "round", http.StatusNotFound, "round not found")
		return
	}
	s.respondJSON(w, "round", http.StatusOK, round)
}

func (s *Server) GetRanked(w http.ResponseWriter, r *http.Request) {
	roundID, err := strconv.ParseUint(chi.URLParam(r, "roundID"), 10, 64)
	if err != nil {
		s.respondError(w, "ranked", http.StatusBadRequest, "invalid round id")
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	ranked, err := s.queries.GetRanked(ctx, roundID)
	if err != nil {
		s.serverError(w, "ranked", err)
		return
	}
	s.respondJSON(w, "ranked", http.StatusOK, ranked)
}

func (s *Server) GetClaims(w http.ResponseWriter, r *http.Request) {
	participant, ok := s.parseParticipant(w, r, "claims")
	if !ok {
		return
	}
	limit := parseLimit(r, 50)

	ctx, cancel := s.queryContext(r)
	defer cancel()

	claims, err := s.queries.GetClaims(ctx, participant, limit)
	if err != nil {
		s.serverError(w, "claims", err)
		return
	}
	s.respondJSON(w, "claims", http.StatusOK, claims)
}

func (s *Server) GetClaimable(w http.ResponseWriter, r *http.Request) {
	participant, ok := s.parseParticipant(w, r, "claimable")
	if !ok {
		return
	}
	engine := chi.URLParam(r, "engine")
	if engine != "buyer" && engine != "lp" {
		s.respondError(w, "claimable", http.StatusBadRequest, "engine must be buyer or lp")
		return
	}
	roundID, err := strconv.ParseUint(chi.URLParam(r, "roundID"), 10, 64)
	if err != nil {
		s.respondError(w, "claimable", http.StatusBadRequest, "invalid round id")
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	claim, err := s.queries.GetClaimable(ctx, engine, participant, roundID)
	if err != nil {
		s.serverError(w, "claimable", err)
		return
	}
	if claim == nil {
		s.respondError(w, "claimable", http.StatusNotFound, "no claim record")
		return
	}
	s.respondJSON(w, "claimable", http.StatusOK, claim)
}

func (s *Server) GetLifetime(w http.ResponseWriter, r *http.Request) {
	participant, ok := s.parseParticipant(w, r, "lifetime")
	if !ok {
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	lifetime, err := s.queries.GetLifetime(ctx, participant)
	if err != nil {
		s.serverError(w, "lifetime", err)
		return
	}
	s.respondJSON(w, "lifetime", http.StatusOK, lifetime)
}

func (s *Server) GetJournalHistory(w http.ResponseWriter, r *http.Request) {
	participant, ok := s.parseParticipant(w, r, "journal")
	if !ok {
		return
	}
	limit := parseLimit(r, 100)

	var afterSeq *int64
	if v := r.URL.Query().Get("after"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.respondError(w, "journal", http.StatusBadRequest, "invalid after cursor")
			return
		}
		afterSeq = &seq
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	entries, err := s.queries.GetJournalHistory(ctx, participant, limit, afterSeq)
	if err != nil {
		s.serverError(w, "journal", err)
		return
	}
	s.respondJSON(w, "journal", http.StatusOK, entries)
}

func (s *Server) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	report, err := s.queries.VerifyIntegrity(ctx)
	if err != nil {
		s.serverError(w, "integrity", err)
		return
	}
	s.respondJSON(w, "integrity", http.StatusOK, report)
}

// --- helpers ---

func (s *Server) parseParticipant(w http.ResponseWriter, r *http.Request, endpoint string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "participant"))
	if err != nil {
		s.respondError(w, endpoint, http.StatusBadRequest, "invalid participant id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}

func parseLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 || limit > 1000 {
		return def
	}
	return limit
}

func (s *Server) respondJSON(w http.ResponseWriter, endpoint string, status int, v interface{}) {
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("response encoding failed")
	}
}

func (s *Server) respondError(w http.ResponseWriter, endpoint string, status int, msg string) {
	if s.metrics != nil {
		s.metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) serverError(w http.ResponseWriter, endpoint string, err error) {
	s.logger.Error().Err(err).Str("endpoint", endpoint).Msg("query failed")
	s.respondError(w, endpoint, http.StatusInternalServerError, "internal error")
}
