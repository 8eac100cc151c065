package repository

// Option applies a configuration option to the RedisStore.
type Option func(*RedisStore)

// WithScanCount sets the COUNT hint used when scanning for leaderboards.
func WithScanCount(count int64) Option {
	return func(s *RedisStore) {
		if count > 0 {
			s.scanCount = count
		}
	}
}
