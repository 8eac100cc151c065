package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/rankboard/internal/domain/model"
	"github.com/okian/rankboard/pkg/logger"
)

// PointsDependencies defines the interface for points updates.
type PointsDependencies interface {
	ApplyUpdates(ctx context.Context, updates []model.Update) ([]Entry, error)
}

// PointsHandler serves the three PATCH routes. Every patch in a body is
// validated before any is applied.
type PointsHandler struct {
	deps   PointsDependencies
	logger logger.Logger
}

// NewPointsHandler creates a new points handler.
func NewPointsHandler(deps PointsDependencies, l logger.Logger) *PointsHandler {
	return &PointsHandler{deps: deps, logger: l}
}

// HandlePatchLeaderboardMember handles PATCH /leaderboard/{lb}/member/{member}.
func (h *PointsHandler) HandlePatchLeaderboardMember(w http.ResponseWriter, r *http.Request) {
	lb, member := chi.URLParam(r, leaderboardParam), chi.URLParam(r, memberParam)
	h.apply(w, r, func(p model.Patch) (model.Update, error) {
		return p.ToUpdate(lb, member)
	})
}

// HandlePatchLeaderboard handles PATCH /leaderboard/{lb}; each patch names its
// member with path "/member/{member}/points".
func (h *PointsHandler) HandlePatchLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb := chi.URLParam(r, leaderboardParam)
	h.apply(w, r, func(p model.Patch) (model.Update, error) {
		member, err := model.MemberFromPath(p.Path)
		if err != nil {
			return model.Update{}, err
		}
		return p.ToUpdate(lb, member)
	})
}

// HandlePatchMember handles PATCH /member/{member}; each patch names its
// leaderboard with path "/leaderboard/{lb}/points".
func (h *PointsHandler) HandlePatchMember(w http.ResponseWriter, r *http.Request) {
	member := chi.URLParam(r, memberParam)
	h.apply(w, r, func(p model.Patch) (model.Update, error) {
		lb, err := model.LeaderboardFromPath(p.Path)
		if err != nil {
			return model.Update{}, err
		}
		return p.ToUpdate(lb, member)
	})
}

func (h *PointsHandler) apply(w http.ResponseWriter, r *http.Request, bind func(model.Patch) (model.Update, error)) {
	ctx := r.Context()

	var patches []model.Patch
	if err := json.NewDecoder(r.Body).Decode(&patches); err != nil {
		writeError(ctx, h.logger, w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	updates := make([]model.Update, 0, len(patches))
	for i, p := range patches {
		u, err := bind(p)
		if err != nil {
			writeError(ctx, h.logger, w, fmt.Errorf("patch %d: %w", i, err))
			return
		}
		updates = append(updates, u)
	}

	entries, err := h.deps.ApplyUpdates(ctx, updates)
	if err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
