package ranking

import (
	"time"

	"github.com/okian/rankboard/pkg/logger"
)

// Option applies a configuration option to the Maintainer.
type Option func(*Maintainer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Maintainer) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMaxAttempts bounds how many times a conditional removal is tried
// before it is left to reconciliation. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(m *Maintainer) {
		if n >= 1 {
			m.maxAttempts = n
		}
	}
}

// WithBackoff sets the first and the largest wait between attempts.
func WithBackoff(base, maxWait time.Duration) Option {
	return func(m *Maintainer) {
		if base > 0 {
			m.backoffBase = base
		}
		if maxWait >= m.backoffBase {
			m.backoffMax = maxWait
		}
	}
}
