// Package api exposes the leaderboard engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/rankboard/internal/domain/types"
	"github.com/okian/rankboard/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PointsDependencies
	LeaderboardDependencies
	MemberDependencies
	HealthDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Route patterns. Leaderboard keys are any single path segment; member keys
// are alphanumeric.
const (
	leaderboardParam = "leaderboard"
	memberParam      = "member"
	leaderboardPath  = "/leaderboard/{" + leaderboardParam + "}"
	memberPath       = "/member/{" + memberParam + ":[0-9a-zA-Z]+}"
)

// Server wires HTTP routes for the leaderboard API.
type Server struct {
	deps           Dependencies
	metricsEnabled bool
	rateLimiter    *IPRateLimiter
	logger         logger.Logger

	pointsHandler      *PointsHandler
	leaderboardHandler *LeaderboardHandler
	memberHandler      *MemberHandler
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}

	s.pointsHandler = NewPointsHandler(deps, s.logger)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.logger)
	s.memberHandler = NewMemberHandler(deps, s.logger)
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(RequestIDMiddleware)
	if s.rateLimiter != nil {
		r.Use(RateLimitMiddleware(s.rateLimiter))
	}
	r.Use(MetricsMiddleware)

	r.Get("/status", s.healthHandler.HandleStatus)
	r.Get("/stats", s.statsHandler.HandleStats)
	if s.metricsEnabled {
		r.Get("/metrics", s.healthHandler.HandleMetrics)
	}

	r.Patch(leaderboardPath+memberPath, s.pointsHandler.HandlePatchLeaderboardMember)
	r.Patch(leaderboardPath, s.pointsHandler.HandlePatchLeaderboard)
	r.Patch(memberPath, s.pointsHandler.HandlePatchMember)

	r.Get(leaderboardPath, s.leaderboardHandler.HandleGetLeaderboard)
	r.Delete(leaderboardPath+memberPath, s.leaderboardHandler.HandleDeleteMember)
	r.Get(memberPath, s.memberHandler.HandleGetMember)
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err, logs server-side failures and writes the JSON
// error body.
func writeError(ctx context.Context, log logger.Logger, w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed",
			logger.String("request_id", RequestIDFromContext(ctx)),
			logger.Int("status", status),
			logger.Error(err))
	}
	writeJSON(w, status, errorResponse{
		Code:      code,
		Message:   err.Error(),
		RequestID: RequestIDFromContext(ctx),
	})
}
