package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/rankboard/internal/domain/keys"
	"github.com/okian/rankboard/internal/domain/types"
	"github.com/okian/rankboard/pkg/metrics"
)

const defaultPageSize = 10

// GetLeaderboard returns the ranked page [start, end] (1-based, inclusive) of
// lb. Zero bounds select the first ten rows. The tie group at the lowest score
// on the page is always returned whole, so a page may hold more rows than
// requested. When includeMember holds a score and is not on the page it is
// added to its score group.
func (s *Service) GetLeaderboard(ctx context.Context, lb string, start, end int, includeMember string) ([]types.Entry, error) {
	entries, err := s.getLeaderboard(ctx, lb, start, end, includeMember)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard %s: %w", lb, err)
	}
	metrics.RecordRankQuery("leaderboard")
	return entries, nil
}

func (s *Service) getLeaderboard(ctx context.Context, lb string, start, end int, includeMember string) ([]types.Entry, error) {
	if err := keys.ValidateLeaderboard(lb); err != nil {
		return nil, err
	}
	if includeMember != "" {
		if err := keys.ValidateMember(includeMember); err != nil {
			return nil, err
		}
	}
	start, end, err := s.pageBounds(start, end)
	if err != nil {
		return nil, err
	}

	page, err := s.store.RangeDescending(ctx, lb, int64(start-1), int64(end-1))
	if err != nil {
		return nil, err
	}

	groups := make(map[float64][]string)
	onPage := make(map[string]bool, len(page))
	for _, sm := range page {
		groups[sm.Score] = append(groups[sm.Score], sm.Member)
		onPage[sm.Member] = true
	}

	// The page boundary may cut through the lowest tie group.
	if len(page) > 0 {
		lowest := page[len(page)-1].Score
		if !types.IsSentinel(lowest) {
			members, err := s.store.RangeByScore(ctx, lb, lowest)
			if err != nil {
				return nil, err
			}
			groups[lowest] = members
			for _, m := range members {
				onPage[m] = true
			}
		}
	}

	if includeMember != "" && !onPage[includeMember] {
		score, ok, err := s.store.Score(ctx, lb, includeMember)
		if err != nil {
			return nil, err
		}
		if ok {
			groups[score] = append(groups[score], includeMember)
		}
	}

	entries := make([]types.Entry, 0, len(onPage)+1)
	for score, members := range groups {
		rank, err := s.rankOf(ctx, lb, score)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			entries = append(entries, types.NewEntry(m, lb, score, rank))
		}
	}
	sortEntries(entries)
	return entries, nil
}

func (s *Service) pageBounds(start, end int) (int, int, error) {
	if start == 0 && end == 0 {
		return 1, defaultPageSize, nil
	}
	if start == 0 {
		start = 1
	}
	if end == 0 {
		end = start + defaultPageSize - 1
	}
	if start < 1 || end < start {
		return 0, 0, fmt.Errorf("%w: start=%d end=%d", ErrInvalidRange, start, end)
	}
	if end-start+1 > s.maxPageSize {
		return 0, 0, fmt.Errorf("%w: page of %d exceeds %d", ErrInvalidRange, end-start+1, s.maxPageSize)
	}
	return start, end, nil
}

// GetMember returns the member's standing on every leaderboard it belongs to,
// ordered by leaderboard key.
func (s *Service) GetMember(ctx context.Context, member string) ([]types.Entry, error) {
	if err := keys.ValidateMember(member); err != nil {
		return nil, fmt.Errorf("get member %s: %w", member, err)
	}
	lbs, err := s.store.Memberships(ctx, member)
	if err != nil {
		return nil, fmt.Errorf("get member %s: %w", member, err)
	}
	sort.Strings(lbs)

	entries := make([]types.Entry, 0, len(lbs))
	for _, lb := range lbs {
		score, ok, err := s.store.Score(ctx, lb, member)
		if err != nil {
			return nil, fmt.Errorf("get member %s: %w", member, err)
		}
		if !ok {
			// Membership outlived the score entry.
			continue
		}
		rank, err := s.rankOf(ctx, lb, score)
		if err != nil {
			return nil, fmt.Errorf("get member %s: %w", member, err)
		}
		entries = append(entries, types.NewEntry(member, lb, score, rank))
	}
	metrics.RecordRankQuery("member")
	return entries, nil
}

// RemoveMember deletes member from lb and cleans up the score it vacated.
// It reports whether the member held a score.
func (s *Service) RemoveMember(ctx context.Context, lb, member string) (bool, error) {
	if err := validateKeys(lb, member); err != nil {
		return false, fmt.Errorf("remove member %s/%s: %w", lb, member, err)
	}
	prev, had, err := s.store.RemoveMember(ctx, lb, member)
	if err != nil {
		return false, fmt.Errorf("remove member %s/%s: %w", lb, member, err)
	}
	if err := s.store.RemoveMembership(ctx, member, lb); err != nil {
		return had, fmt.Errorf("remove member %s/%s: %w", lb, member, err)
	}
	if had {
		if _, err := s.ranks.RemoveIfOrphaned(ctx, lb, prev, metrics.SourceRemove); err != nil {
			return had, fmt.Errorf("remove member %s/%s: %w", lb, member, err)
		}
	}
	return had, nil
}

// sortEntries orders by ascending rank with unranked entries last; equal
// ranks are ordered by member key.
func sortEntries(entries []types.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.Rank == nil && b.Rank == nil:
			return a.Member < b.Member
		case a.Rank == nil:
			return false
		case b.Rank == nil:
			return true
		case *a.Rank != *b.Rank:
			return *a.Rank < *b.Rank
		}
		return a.Member < b.Member
	})
}
