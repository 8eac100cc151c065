package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/rankboard/pkg/logger"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	GetLeaderboard(ctx context.Context, lb string, start, end int, includeMember string) ([]Entry, error)
	RemoveMember(ctx context.Context, lb, member string) (bool, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps   LeaderboardDependencies
	logger logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, l logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, logger: l}
}

// HandleGetLeaderboard handles GET /leaderboard/{lb}?start&end&includeMember.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	start, err := intParam(q.Get("start"))
	if err != nil {
		writeError(ctx, h.logger, w, fmt.Errorf("%w: start: %w", ErrBadRequest, err))
		return
	}
	end, err := intParam(q.Get("end"))
	if err != nil {
		writeError(ctx, h.logger, w, fmt.Errorf("%w: end: %w", ErrBadRequest, err))
		return
	}

	entries, err := h.deps.GetLeaderboard(ctx, chi.URLParam(r, leaderboardParam), start, end, q.Get("includeMember"))
	if err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleDeleteMember handles DELETE /leaderboard/{lb}/member/{member}.
func (h *LeaderboardHandler) HandleDeleteMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := h.deps.RemoveMember(ctx, chi.URLParam(r, leaderboardParam), chi.URLParam(r, memberParam)); err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// intParam parses an optional integer query parameter; empty means 0.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
