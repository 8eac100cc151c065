// Package repository stores leaderboard scores, distinct-score indexes and
// member memberships in a sorted-set key-value store.
package repository

import (
	"context"

	"github.com/okian/rankboard/internal/domain/types"
)

// ScoredMember is a member with its score.
type ScoredMember = types.ScoredMember

// Store is the per-leaderboard score store. Each call is atomic on its own;
// nothing spans calls.
type Store interface {
	// Score returns the member's score; ok is false when the member is absent.
	Score(ctx context.Context, lb, member string) (score float64, ok bool, err error)
	// SetScore overwrites the score and returns the previous one.
	SetScore(ctx context.Context, lb, member string, score float64) (prev float64, hadPrev bool, err error)
	// IncrementScore adds delta and returns the new and previous scores. An
	// absent member starts at 0.
	IncrementScore(ctx context.Context, lb, member string, delta float64) (score, prev float64, err error)
	// RemoveMember deletes the score entry and returns what it held.
	RemoveMember(ctx context.Context, lb, member string) (prev float64, had bool, err error)
	// RangeDescending returns members by descending score between the 0-based
	// inclusive offsets lo and hi.
	RangeDescending(ctx context.Context, lb string, lo, hi int64) ([]ScoredMember, error)
	// RangeByScore returns every member holding exactly score.
	RangeByScore(ctx context.Context, lb string, score float64) ([]string, error)
	// HeldScores returns the distinct scores currently held by any member.
	HeldScores(ctx context.Context, lb string) ([]float64, error)

	AddMembership(ctx context.Context, member, lb string) error
	RemoveMembership(ctx context.Context, member, lb string) error
	Memberships(ctx context.Context, member string) ([]string, error)

	// LeaderboardKeys lists every leaderboard with at least one member.
	LeaderboardKeys(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
}

// Index is the distinct-score index of a leaderboard.
type Index interface {
	// AddRank inserts score and always counts as a modification of the index
	// key, so concurrent WatchIndex transactions abort.
	AddRank(ctx context.Context, lb string, score float64) error
	// RevRank returns how many indexed scores are strictly greater than score.
	RevRank(ctx context.Context, lb string, score float64) (rank int64, ok bool, err error)
	// Ranks lists the indexed scores in ascending order.
	Ranks(ctx context.Context, lb string) ([]float64, error)
	// RemoveRank drops score unconditionally.
	RemoveRank(ctx context.Context, lb string, score float64) error
	// WatchIndex runs fn with the index key watched. A RemoveRank issued through
	// the IndexTx commits only if the index key was not modified since the watch
	// began; otherwise WatchIndex returns ErrIndexConflict.
	WatchIndex(ctx context.Context, lb string, fn func(tx IndexTx) error) error
}

// IndexTx is the view of the store inside WatchIndex.
type IndexTx interface {
	// CountByScore counts members of the leaderboard holding exactly score.
	CountByScore(ctx context.Context, score float64) (int64, error)
	// RemoveRank commits the conditional removal of score from the index and
	// reports whether it was there.
	RemoveRank(ctx context.Context, score float64) (bool, error)
}

// ScoreIndexStore bundles both halves; RedisStore implements it.
type ScoreIndexStore interface {
	Store
	Index
}
