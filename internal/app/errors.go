package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrInvalidRange rejects page bounds outside 1 <= start <= end or pages
	// larger than the configured maximum.
	ErrInvalidRange = errors.New("invalid range")
	// ErrNotStarted is returned when stopping a service that is not running.
	ErrNotStarted = errors.New("service not started")
)
