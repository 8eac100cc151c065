// Package loadcheck drives a running rankboard over HTTP with concurrent
// increments and verifies the dense-rank invariants of the result.
package loadcheck

import (
	"errors"
	"time"
)

// ErrInvalidConfig is returned for a Config that cannot drive a run.
var ErrInvalidConfig = errors.New("invalid loadcheck config")

// ErrVerification is returned when the served leaderboards disagree with the
// locally folded expectation.
var ErrVerification = errors.New("leaderboard verification failed")

// Config holds configuration for a load check.
type Config struct {
	BaseURL      string        // Base URL of the service
	Leaderboards int           // Number of leaderboards to spread ops over
	Members      int           // Number of members per run
	Ops          int           // Number of increment patches to submit
	Workers      int           // Number of concurrent submitters
	PageSize     int           // Rows requested per leaderboard page
	Timeout      time.Duration // HTTP request timeout
	Verbose      bool          // Log progress while submitting
}

func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("url is empty"))
	case c.Leaderboards < 1, c.Members < 1, c.Ops < 1, c.Workers < 1, c.PageSize < 1:
		return errors.Join(ErrInvalidConfig, errors.New("leaderboards, members, ops, workers and page size must be positive"))
	}
	return nil
}

// Entry mirrors the JSON shape of a leaderboard row.
type Entry struct {
	Member      string  `json:"member"`
	Leaderboard string  `json:"leaderboard"`
	Points      float64 `json:"points"`
	Rank        *int    `json:"rank"`
}

// Stats holds run statistics.
type Stats struct {
	OpsGenerated  int
	OpsSubmitted  int
	OpsSuccessful int
	OpsFailed     int
	RowsVerified  int
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}
