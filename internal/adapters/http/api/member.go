package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/rankboard/pkg/logger"
)

// MemberDependencies defines the interface for member reads.
type MemberDependencies interface {
	GetMember(ctx context.Context, member string) ([]Entry, error)
}

// MemberHandler handles member requests.
type MemberHandler struct {
	deps   MemberDependencies
	logger logger.Logger
}

// NewMemberHandler creates a new member handler.
func NewMemberHandler(deps MemberDependencies, l logger.Logger) *MemberHandler {
	return &MemberHandler{deps: deps, logger: l}
}

// HandleGetMember handles GET /member/{member}.
func (h *MemberHandler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.GetMember(r.Context(), chi.URLParam(r, memberParam))
	if err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
