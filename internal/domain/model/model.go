// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"regexp"

	"github.com/okian/rankboard/internal/domain/types"
)

// Patch is one element of a PATCH request body. Path is only used by the
// bulk routes, where it names the member or leaderboard the patch applies to.
type Patch struct {
	Op     string  `json:"op,omitempty"`
	Path   string  `json:"path,omitempty"`
	Action string  `json:"action"`
	Value  float64 `json:"value"`
}

// Update is a validated points mutation.
type Update struct {
	Leaderboard string
	Member      string
	Action      types.Action
	Value       float64
}

var (
	memberPointsPath      = regexp.MustCompile(`^/member/([0-9a-zA-Z]+)/points$`)
	leaderboardPointsPath = regexp.MustCompile(`^/leaderboard/([^/]+)/points$`)
)

// MemberFromPath extracts the member from "/member/{member}/points".
func MemberFromPath(path string) (string, error) {
	m := memberPointsPath.FindStringSubmatch(path)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return m[1], nil
}

// LeaderboardFromPath extracts the leaderboard from "/leaderboard/{lb}/points".
func LeaderboardFromPath(path string) (string, error) {
	m := leaderboardPointsPath.FindStringSubmatch(path)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return m[1], nil
}

// ToUpdate validates the action and binds the patch to a leaderboard/member.
func (p Patch) ToUpdate(leaderboard, member string) (Update, error) {
	action, err := types.ParseAction(p.Action)
	if err != nil {
		return Update{}, err
	}
	return Update{Leaderboard: leaderboard, Member: member, Action: action, Value: p.Value}, nil
}

// SweepJob asks a worker to reconcile one leaderboard's distinct-score index.
// Done, when set, is called exactly once with the sweep outcome.
type SweepJob struct {
	Leaderboard string
	Done        func(SweepResult)
}

// SweepResult summarises one leaderboard sweep.
type SweepResult struct {
	Leaderboard string
	Removed     int
	Repaired    int
	Err         error
}
