package service

import (
	"time"

	"github.com/okian/rankboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of sweep workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the sweep queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the number of leaderboards tracked as in flight.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithReconcileInterval sets the base delay between reconciliation passes
// and the upper bound of the random jitter added to it.
func WithReconcileInterval(interval, jitter time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.reconcileInterval = interval
		}
		if jitter >= 0 {
			s.reconcileJitter = jitter
		}
	}
}

// WithRepairMissing toggles re-adding held scores missing from the index
// during a sweep.
func WithRepairMissing(repair bool) Option {
	return func(s *Service) {
		s.repairMissing = repair
	}
}

// WithMaxPageSize caps the number of rows a leaderboard page may request.
func WithMaxPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.maxPageSize = size
		}
	}
}

// WithOrphanRetry bounds the conditional index removal.
func WithOrphanRetry(maxAttempts int, base, maxWait time.Duration) Option {
	return func(s *Service) {
		s.orphanMaxAttempts = maxAttempts
		s.orphanBackoffBase = base
		s.orphanBackoffMax = maxWait
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
