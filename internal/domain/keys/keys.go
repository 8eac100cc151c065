// Package keys derives storage identifiers for leaderboards, their
// distinct-score indexes and member membership sets.
//
// Every identifier has the shape "<namespace>.<kind>[.<key>]".
package keys

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind names one of the three stored structures.
type Kind string

// Known structure kinds.
const (
	// KindLeaderboard is the sorted set of member -> score.
	KindLeaderboard Kind = "leaderboard"
	// KindRanks is the sorted set of distinct held scores.
	KindRanks Kind = "ranks"
	// KindMember is the set of leaderboard keys a member belongs to.
	KindMember Kind = "member"
)

var (
	leaderboardKeyPattern = regexp.MustCompile(`^[^/]+$`)
	memberKeyPattern      = regexp.MustCompile(`^[0-9a-zA-Z]+$`)
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindLeaderboard, KindRanks, KindMember:
		return true
	}
	return false
}

// Scheme derives identifiers under a namespace.
type Scheme struct {
	namespace string
}

// NewScheme returns a Scheme rooted at namespace.
func NewScheme(namespace string) Scheme {
	return Scheme{namespace: namespace}
}

// Namespace returns the root namespace.
func (s Scheme) Namespace() string { return s.namespace }

// Derive returns the identifier for kind and an optional key. An empty key
// yields the kind prefix itself.
func (s Scheme) Derive(kind Kind, key string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKeyType, string(kind))
	}
	id := s.namespace + "." + string(kind)
	if key != "" {
		id += "." + key
	}
	return id, nil
}

// Leaderboard is Derive(KindLeaderboard, lb) for a known-good kind.
func (s Scheme) Leaderboard(lb string) string { return s.must(KindLeaderboard, lb) }

// Ranks is Derive(KindRanks, lb) for a known-good kind.
func (s Scheme) Ranks(lb string) string { return s.must(KindRanks, lb) }

// Member is Derive(KindMember, member) for a known-good kind.
func (s Scheme) Member(member string) string { return s.must(KindMember, member) }

func (s Scheme) must(kind Kind, key string) string {
	id, err := s.Derive(kind, key)
	if err != nil {
		panic(err)
	}
	return id
}

// Pattern returns a glob matching every identifier of kind that carries a key.
func (s Scheme) Pattern(kind Kind) (string, error) {
	prefix, err := s.Derive(kind, "")
	if err != nil {
		return "", err
	}
	return prefix + ".*", nil
}

// Extract strips the namespace and kind from id and returns the key.
func (s Scheme) Extract(kind Kind, id string) (string, bool) {
	prefix, err := s.Derive(kind, "")
	if err != nil {
		return "", false
	}
	key, ok := strings.CutPrefix(id, prefix+".")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// ValidateLeaderboard checks a leaderboard key against the allowed characters.
func ValidateLeaderboard(lb string) error {
	if !leaderboardKeyPattern.MatchString(lb) {
		return fmt.Errorf("%w: leaderboard %q", ErrInvalidKey, lb)
	}
	return nil
}

// ValidateMember checks a member key against the allowed characters.
func ValidateMember(member string) error {
	if !memberKeyPattern.MatchString(member) {
		return fmt.Errorf("%w: member %q", ErrInvalidKey, member)
	}
	return nil
}
