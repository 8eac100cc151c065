package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/rankboard/internal/domain/model"
	"github.com/okian/rankboard/internal/domain/types"
	"github.com/okian/rankboard/pkg/logger"
	"github.com/okian/rankboard/pkg/metrics"
)

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Leaderboards int `json:"leaderboards"`
	Removed      int `json:"removed"`
	Repaired     int `json:"repaired"`
	Failed       int `json:"failed"`
	// Skipped counts leaderboards already being swept by another pass.
	Skipped int `json:"skipped"`
}

// ReconcileOnce sweeps every leaderboard once and blocks until all sweeps of
// this pass have finished. While the service is started the sweeps run on the
// worker pool; otherwise, or when the queue is full, they run inline.
func (s *Service) ReconcileOnce(ctx context.Context) (ReconcileReport, error) {
	start := time.Now()

	lbs, err := s.store.LeaderboardKeys(ctx)
	if err != nil {
		metrics.RecordReconcileError()
		return ReconcileReport{}, err
	}
	metrics.UpdateLeaderboards(len(lbs))

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report = ReconcileReport{Leaderboards: len(lbs)}
	)
	done := func(r model.SweepResult) {
		defer wg.Done()
		s.deduper.Unrecord(context.Background(), r.Leaderboard)

		mu.Lock()
		defer mu.Unlock()
		if r.Err != nil {
			report.Failed++
			metrics.RecordReconcileError()
			return
		}
		report.Removed += r.Removed
		report.Repaired += r.Repaired
	}

	q := s.queue()
	for _, lb := range lbs {
		if err := ctx.Err(); err != nil {
			break
		}
		if s.deduper.SeenAndRecord(ctx, lb) {
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			continue
		}
		wg.Add(1)
		job := model.SweepJob{Leaderboard: lb, Done: done}
		if q != nil {
			if err := q.Enqueue(ctx, job); err == nil {
				continue
			}
		}
		removed, repaired, err := s.Sweep(ctx, lb)
		done(model.SweepResult{Leaderboard: lb, Removed: removed, Repaired: repaired, Err: err})
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		mu.Lock()
		partial := report
		mu.Unlock()
		return partial, ctx.Err()
	}

	elapsed := time.Since(start)
	metrics.RecordReconcileRun(float64(elapsed.Microseconds())/1000, report.Removed, report.Repaired)

	s.lastRunMutex.Lock()
	s.lastRun = report
	s.lastRunAt = time.Now()
	s.lastRunMutex.Unlock()

	s.logger.Info(ctx, "reconciliation pass finished",
		logger.Int("leaderboards", report.Leaderboards),
		logger.Int("removed", report.Removed),
		logger.Int("repaired", report.Repaired),
		logger.Int("failed", report.Failed),
		logger.Int("skipped", report.Skipped),
		logger.Duration("elapsed", elapsed),
	)
	return report, nil
}

// Sweep reconciles one leaderboard's index: optionally re-adds held scores
// that are missing, drops a stray zero, then removes every orphaned score.
func (s *Service) Sweep(ctx context.Context, lb string) (removed, repaired int, err error) {
	if s.repairMissing {
		if repaired, err = s.repair(ctx, lb); err != nil {
			return 0, repaired, err
		}
	}

	if err := s.ranks.PurgeSentinel(ctx, lb); err != nil {
		return 0, repaired, err
	}

	indexed, err := s.store.Ranks(ctx, lb)
	if err != nil {
		return 0, repaired, err
	}
	for _, score := range indexed {
		ok, err := s.ranks.RemoveIfOrphaned(ctx, lb, score, metrics.SourceReconcile)
		if err != nil {
			return removed, repaired, err
		}
		if ok {
			removed++
		}
	}

	if removed > 0 || repaired > 0 {
		s.logger.Info(ctx, "leaderboard index reconciled",
			logger.String("leaderboard", lb),
			logger.Int("removed", removed),
			logger.Int("repaired", repaired),
		)
	}
	return removed, repaired, nil
}

func (s *Service) repair(ctx context.Context, lb string) (int, error) {
	held, err := s.store.HeldScores(ctx, lb)
	if err != nil {
		return 0, err
	}
	indexed, err := s.store.Ranks(ctx, lb)
	if err != nil {
		return 0, err
	}
	present := make(map[float64]struct{}, len(indexed))
	for _, v := range indexed {
		present[v] = struct{}{}
	}

	repaired := 0
	for _, v := range held {
		if types.IsSentinel(v) {
			continue
		}
		if _, ok := present[v]; ok {
			continue
		}
		if err := s.ranks.EnsurePresent(ctx, lb, v); err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

// reconcileLoop runs passes at the configured interval plus jitter until ctx
// is cancelled.
func (s *Service) reconcileLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		timer := time.NewTimer(s.nextReconcileDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := s.ReconcileOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error(ctx, "reconciliation pass failed", logger.Error(err))
		}
	}
}

func (s *Service) nextReconcileDelay() time.Duration {
	if s.reconcileJitter <= 0 {
		return s.reconcileInterval
	}
	return s.reconcileInterval + rand.N(s.reconcileJitter)
}
