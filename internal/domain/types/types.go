// Package types contains common types used across the application
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Entry is the response shape for a member's standing on one leaderboard.
// Rank is nil when the member holds the zero sentinel score.
type Entry struct {
	Member      string  `json:"member"`
	Leaderboard string  `json:"leaderboard"`
	Points      float64 `json:"points"`
	Rank        *int    `json:"rank"`
}

// NewEntry builds an Entry; rank < 1 means unranked.
func NewEntry(member, leaderboard string, points float64, rank int) Entry {
	e := Entry{Member: member, Leaderboard: leaderboard, Points: points}
	if rank >= 1 {
		e.Rank = &rank
	}
	return e
}

// ScoredMember is a member key with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Action selects how a points update combines with the stored score.
type Action int

// Supported actions.
const (
	// ActionIncrement adds the value to the current score.
	ActionIncrement Action = iota + 1
	// ActionAdd sets the score to the value.
	ActionAdd
)

// ParseAction maps the wire name to an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "increment":
		return ActionIncrement, nil
	case "add":
		return ActionAdd, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

func (a Action) String() string {
	switch a {
	case ActionIncrement:
		return "increment"
	case ActionAdd:
		return "add"
	}
	return "unknown"
}

// IsSentinel reports whether score is the unranked zero value.
func IsSentinel(score float64) bool {
	return score == 0
}

// FormatScore renders a score the way it is stored as a distinct-score index
// member. The same float always yields the same string.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// ParseScore is the inverse of FormatScore.
func ParseScore(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
