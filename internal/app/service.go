// Package service is the leaderboard engine: it applies points updates,
// answers ranked queries and runs the background reconciliation that keeps
// every distinct-score index consistent.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	sweepqueue "github.com/okian/rankboard/internal/adapters/mq/queue"
	workerpool "github.com/okian/rankboard/internal/adapters/mq/worker"
	"github.com/okian/rankboard/internal/adapters/repository"
	"github.com/okian/rankboard/internal/domain/dedupe"
	"github.com/okian/rankboard/internal/domain/ranking"
	"github.com/okian/rankboard/pkg/logger"
	"github.com/okian/rankboard/pkg/metrics"
)

// Service implements the operations required by the HTTP API.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.ScoreIndexStore
	ranks   *ranking.Maintainer
	deduper dedupe.Deduper

	// Present only while started.
	sweepQueue *sweepqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Configuration
	workerCount       int
	queueSize         int
	dedupeSize        int
	reconcileInterval time.Duration
	reconcileJitter   time.Duration
	repairMissing     bool
	maxPageSize       int
	orphanMaxAttempts int
	orphanBackoffBase time.Duration
	orphanBackoffMax  time.Duration

	// State
	started      bool
	stopLoop     context.CancelFunc
	stopWorkers  context.CancelFunc
	loopDone     chan struct{}
	lastRun      ReconcileReport
	lastRunAt    time.Time
	lastRunMutex sync.Mutex

	logger logger.Logger
}

// New constructs a Service over store. Updates and queries work immediately;
// Start is only needed for background reconciliation.
func New(store repository.ScoreIndexStore, opts ...Option) *Service {
	s := &Service{
		store:             store,
		workerCount:       runtime.NumCPU(),
		queueSize:         1024,
		dedupeSize:        50_000,
		reconcileInterval: 5 * time.Minute,
		reconcileJitter:   time.Minute,
		repairMissing:     true,
		maxPageSize:       1000,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.ranks = ranking.NewMaintainer(store,
		ranking.WithLogger(s.logger.Named("ranking")),
		ranking.WithMaxAttempts(s.orphanMaxAttempts),
		ranking.WithBackoff(s.orphanBackoffBase, s.orphanBackoffMax),
	)

	return s
}

// Start launches the sweep workers and the reconciliation schedule.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting leaderboard service...")

	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))

	s.sweepQueue = sweepqueue.NewInMemoryQueue(sweepqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.sweepQueue, s,
		workerpool.WithLogger(s.logger.Named("sweep")))
	s.workerPool.Start(workerCtx)

	s.stopWorkers = stopWorkers
	s.stopLoop = stopLoop
	s.loopDone = make(chan struct{})
	go s.reconcileLoop(loopCtx, s.loopDone)

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("reconcileInterval", s.reconcileInterval),
		logger.Duration("reconcileJitter", s.reconcileJitter),
	)

	return nil
}

// Stop ends the reconciliation schedule, lets queued sweeps finish and stops
// the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	pool := s.workerPool
	stopLoop, stopWorkers, loopDone := s.stopLoop, s.stopWorkers, s.loopDone
	s.workerPool = nil
	s.sweepQueue = nil
	s.started = false
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping leaderboard service...")

	stopLoop()
	select {
	case <-loopDone:
	case <-ctx.Done():
		stopWorkers()
		return fmt.Errorf("stop reconciliation loop: %w", ctx.Err())
	}

	err := pool.Shutdown(ctx)
	stopWorkers()
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "leaderboard service stopped")
	return nil
}

// Healthy pings the backing store.
func (s *Service) Healthy(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	stats := map[string]any{
		"started":           s.started,
		"workerCount":       s.workerCount,
		"queueSize":         s.queueSize,
		"reconcileInterval": s.reconcileInterval.String(),
		"inFlightSweeps":    s.deduper.Size(),
	}
	if s.started {
		queueLen := s.sweepQueue.Len()
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}
	s.mu.RUnlock()

	s.lastRunMutex.Lock()
	if !s.lastRunAt.IsZero() {
		stats["lastReconcile"] = map[string]any{
			"at":           s.lastRunAt.UTC().Format(time.RFC3339),
			"leaderboards": s.lastRun.Leaderboards,
			"removed":      s.lastRun.Removed,
			"repaired":     s.lastRun.Repaired,
			"failed":       s.lastRun.Failed,
		}
	}
	s.lastRunMutex.Unlock()

	return stats
}

// queue returns the sweep queue while started, nil otherwise.
func (s *Service) queue() *sweepqueue.InMemoryQueue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sweepQueue
}
