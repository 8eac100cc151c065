package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/rankboard/internal/adapters/repository"
	"github.com/okian/rankboard/internal/domain/keys"
	"github.com/okian/rankboard/internal/domain/model"
	"github.com/okian/rankboard/internal/domain/types"
	"github.com/okian/rankboard/pkg/logger"
	"github.com/okian/rankboard/pkg/metrics"
)

// UpdatePoints applies one increment or absolute set to a member's score and
// returns the member's standing afterwards.
//
// The score write, the membership write and the index maintenance are separate
// store calls. A failure part way leaves the index stale, never wrong about a
// held score for longer than one reconciliation interval.
func (s *Service) UpdatePoints(ctx context.Context, lb, member string, action types.Action, value float64) (types.Entry, error) {
	entry, err := s.updatePoints(ctx, lb, member, action, value)
	if err != nil {
		metrics.RecordPointsUpdateError(errorKind(err))
		return types.Entry{}, fmt.Errorf("update points %s/%s: %w", lb, member, err)
	}
	metrics.RecordPointsUpdate(action.String())
	return entry, nil
}

// ApplyUpdates validates every update, then runs UpdatePoints for each in
// order and stops at the first failure. An invalid update rejects the whole
// batch before anything is written.
func (s *Service) ApplyUpdates(ctx context.Context, updates []model.Update) ([]types.Entry, error) {
	for i, u := range updates {
		if err := validateKeys(u.Leaderboard, u.Member); err != nil {
			metrics.RecordPointsUpdateError(errorKind(err))
			return nil, fmt.Errorf("update %d: %w", i, err)
		}
	}

	entries := make([]types.Entry, 0, len(updates))
	for _, u := range updates {
		e, err := s.UpdatePoints(ctx, u.Leaderboard, u.Member, u.Action, u.Value)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Service) updatePoints(ctx context.Context, lb, member string, action types.Action, value float64) (types.Entry, error) {
	if err := validateKeys(lb, member); err != nil {
		return types.Entry{}, err
	}

	var score, prev float64
	var err error
	switch action {
	case types.ActionIncrement:
		score, prev, err = s.store.IncrementScore(ctx, lb, member, value)
	case types.ActionAdd:
		prev, _, err = s.store.SetScore(ctx, lb, member, value)
		score = value
	default:
		return types.Entry{}, fmt.Errorf("%w: %d", types.ErrUnknownAction, int(action))
	}
	if err != nil {
		return types.Entry{}, err
	}

	if err := s.store.AddMembership(ctx, member, lb); err != nil {
		return types.Entry{}, err
	}
	if err := s.ranks.EnsurePresent(ctx, lb, score); err != nil {
		return types.Entry{}, err
	}
	// The new score is normally held by this member, but a concurrent update
	// elsewhere may already have moved off it.
	if _, err := s.ranks.RemoveIfOrphaned(ctx, lb, score, metrics.SourceUpdate); err != nil {
		return types.Entry{}, err
	}
	if prev != score {
		if _, err := s.ranks.RemoveIfOrphaned(ctx, lb, prev, metrics.SourceUpdate); err != nil {
			return types.Entry{}, err
		}
	}

	rank, err := s.rankOf(ctx, lb, score)
	if err != nil {
		return types.Entry{}, err
	}

	s.logger.Debug(ctx, "points updated",
		logger.String("leaderboard", lb),
		logger.String("member", member),
		logger.String("action", action.String()),
		logger.Float64("previous", prev),
		logger.Float64("points", score),
		logger.Int("rank", rank),
	)

	return types.NewEntry(member, lb, score, rank), nil
}

// rankOf returns the 1-based dense rank of score, or 0 for the sentinel. A
// score missing from the index is re-added and then checked for a holder
// before the rank is read, so a score that was moved away is not left behind.
func (s *Service) rankOf(ctx context.Context, lb string, score float64) (int, error) {
	if types.IsSentinel(score) {
		return 0, nil
	}
	r, ok, err := s.store.RevRank(ctx, lb, score)
	if err != nil {
		return 0, err
	}
	if !ok {
		if err := s.ranks.EnsurePresent(ctx, lb, score); err != nil {
			return 0, err
		}
		removed, err := s.ranks.RemoveIfOrphaned(ctx, lb, score, metrics.SourceRead)
		if err != nil {
			return 0, err
		}
		if removed {
			return 0, nil
		}
		metrics.RecordIndexHealed()
		s.logger.Debug(ctx, "healed missing index score",
			logger.String("leaderboard", lb),
			logger.Float64("score", score))
		if r, ok, err = s.store.RevRank(ctx, lb, score); err != nil {
			return 0, err
		}
		if !ok {
			// Removed again by a concurrent cleanup; the holder moved away.
			return 0, nil
		}
	}
	return int(r) + 1, nil
}

func validateKeys(lb, member string) error {
	if err := keys.ValidateLeaderboard(lb); err != nil {
		return err
	}
	return keys.ValidateMember(member)
}

// errorKind labels an error for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, types.ErrUnknownAction):
		return "unknown_action"
	case errors.Is(err, keys.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, repository.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "other"
}
