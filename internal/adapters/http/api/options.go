package api

import (
	"golang.org/x/time/rate"

	"github.com/okian/rankboard/pkg/logger"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics exposes GET /metrics.
func WithMetrics(enabled bool) Option {
	return func(s *Server) {
		s.metricsEnabled = enabled
	}
}

// WithRateLimit limits each client IP to rps requests per second with the
// given burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.rateLimiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.rateLimiter = NewIPRateLimiter(rate.Limit(rps), burst)
	}
}
