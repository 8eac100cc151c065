// Package ranking keeps a leaderboard's distinct-score index in step with the
// scores its members hold.
//
// The index is never locked. Scores are added unconditionally and removed only
// through an optimistic transaction that re-checks, under a watch of the index
// key, that no member holds the score any more.
package ranking

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/rankboard/internal/adapters/repository"
	"github.com/okian/rankboard/internal/domain/types"
	"github.com/okian/rankboard/pkg/logger"
	"github.com/okian/rankboard/pkg/metrics"
)

const (
	defaultMaxAttempts = 8
	defaultBackoffBase = 5 * time.Millisecond
	defaultBackoffMax  = 250 * time.Millisecond
)

// Maintainer runs the index maintenance protocol against an Index.
type Maintainer struct {
	index       repository.Index
	log         logger.Logger
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewMaintainer creates a Maintainer over index.
func NewMaintainer(index repository.Index, opts ...Option) *Maintainer {
	m := &Maintainer{
		index:       index,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Named("ranking")
	}
	return m
}

// EnsurePresent adds score to the index. The zero sentinel is never indexed.
func (m *Maintainer) EnsurePresent(ctx context.Context, lb string, score float64) error {
	if types.IsSentinel(score) {
		return nil
	}
	return m.index.AddRank(ctx, lb, score)
}

// RemoveIfOrphaned removes score from the index when no member of lb holds it.
//
// Lost races are retried with exponential backoff up to the configured number
// of attempts. When attempts run out the score is left in place for the next
// reconciliation pass and removed is false with a nil error.
func (m *Maintainer) RemoveIfOrphaned(ctx context.Context, lb string, score float64, source string) (bool, error) {
	if types.IsSentinel(score) {
		return false, nil
	}

	var removed bool
	attempts := 0
	op := func() error {
		attempts++
		removed = false
		err := m.index.WatchIndex(ctx, lb, func(tx repository.IndexTx) error {
			holders, err := tx.CountByScore(ctx, score)
			if err != nil {
				return err
			}
			if holders > 0 {
				return nil
			}
			// Another caller may have committed the same removal first.
			removed, err = tx.RemoveRank(ctx, score)
			return err
		})
		if err == nil {
			return nil
		}
		removed = false
		if errors.Is(err, repository.ErrIndexConflict) {
			m.log.Debug(ctx, "lost index race, retrying",
				logger.String("leaderboard", lb),
				logger.Float64("score", score),
				logger.Int("attempt", attempts))
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, m.newBackOff(ctx))
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrIndexConflict):
		metrics.RecordCleanupDeferred()
		m.log.Warn(ctx, "orphan cleanup deferred to reconciliation",
			logger.String("leaderboard", lb),
			logger.Float64("score", score),
			logger.Int("attempts", attempts))
		return false, nil
	default:
		return false, err
	}

	if removed {
		metrics.RecordOrphanRemoved(source)
		m.log.Debug(ctx, "orphaned score removed",
			logger.String("leaderboard", lb),
			logger.Float64("score", score),
			logger.String("source", source))
	}
	return removed, nil
}

// PurgeSentinel drops a zero value that slipped into the index.
func (m *Maintainer) PurgeSentinel(ctx context.Context, lb string) error {
	return m.index.RemoveRank(ctx, lb, 0)
}

func (m *Maintainer) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = m.backoffBase
	exp.MaxInterval = m.backoffMax
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(m.maxAttempts-1))
	return backoff.WithContext(b, ctx)
}
