package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/rankboard/internal/domain/keys"
	"github.com/okian/rankboard/internal/domain/types"
	"github.com/okian/rankboard/pkg/metrics"
)

const defaultScanCount = 250

// RedisStore implements Store and Index on Redis sorted sets:
//
//	<ns>.leaderboard.<lb>  ZSET member -> score
//	<ns>.ranks.<lb>        ZSET formatted score -> score (distinct held scores)
//	<ns>.member.<member>   SET of leaderboard keys
type RedisStore struct {
	client    redis.UniversalClient
	keys      keys.Scheme
	scanCount int64
}

var _ ScoreIndexStore = (*RedisStore)(nil)

// NewRedisStore wraps an already connected client. The client's lifecycle
// stays with the caller.
func NewRedisStore(client redis.UniversalClient, scheme keys.Scheme, opts ...Option) *RedisStore {
	s := &RedisStore{
		client:    client,
		keys:      scheme,
		scanCount: defaultScanCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial opens a client and verifies it with PING.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("repository.dial %s: %w: %w", addr, ErrStoreUnavailable, err)
	}
	return client, nil
}

// observe records the latency of op; use as defer s.observe(op, time.Now()).
func (s *RedisStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// fail wraps a backing store error. Context errors pass through unchanged so
// callers can tell cancellation from an outage.
func (s *RedisStore) fail(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("repository.%s: %w", op, err)
	}
	metrics.RecordStoreError(op)
	return fmt.Errorf("repository.%s: %w: %w", op, ErrStoreUnavailable, err)
}

func (s *RedisStore) Score(ctx context.Context, lb, member string) (float64, bool, error) {
	const op = "score"
	defer s.observe(op, time.Now())

	score, err := s.client.ZScore(ctx, s.keys.Leaderboard(lb), member).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, false, nil
	case err != nil:
		return 0, false, s.fail(op, err)
	}
	return score, true, nil
}

func (s *RedisStore) SetScore(ctx context.Context, lb, member string, score float64) (float64, bool, error) {
	const op = "set_score"
	defer s.observe(op, time.Now())

	key := s.keys.Leaderboard(lb)
	var prevCmd *redis.FloatCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		prevCmd = pipe.ZScore(ctx, key, member)
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, false, s.fail(op, err)
	}
	return floatOrAbsent(prevCmd)
}

func (s *RedisStore) IncrementScore(ctx context.Context, lb, member string, delta float64) (float64, float64, error) {
	const op = "increment_score"
	defer s.observe(op, time.Now())

	key := s.keys.Leaderboard(lb)
	var prevCmd, nextCmd *redis.FloatCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		prevCmd = pipe.ZScore(ctx, key, member)
		nextCmd = pipe.ZIncrBy(ctx, key, delta, member)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, s.fail(op, err)
	}
	next, err := nextCmd.Result()
	if err != nil {
		return 0, 0, s.fail(op, err)
	}
	prev, _, err := floatOrAbsent(prevCmd)
	if err != nil {
		return 0, 0, s.fail(op, err)
	}
	return next, prev, nil
}

func (s *RedisStore) RemoveMember(ctx context.Context, lb, member string) (float64, bool, error) {
	const op = "remove_member"
	defer s.observe(op, time.Now())

	key := s.keys.Leaderboard(lb)
	var prevCmd *redis.FloatCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		prevCmd = pipe.ZScore(ctx, key, member)
		pipe.ZRem(ctx, key, member)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, false, s.fail(op, err)
	}
	return floatOrAbsent(prevCmd)
}

func (s *RedisStore) RangeDescending(ctx context.Context, lb string, lo, hi int64) ([]ScoredMember, error) {
	const op = "range_descending"
	defer s.observe(op, time.Now())

	zs, err := s.client.ZRevRangeWithScores(ctx, s.keys.Leaderboard(lb), lo, hi).Result()
	if err != nil {
		return nil, s.fail(op, err)
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		out = append(out, ScoredMember{Member: fmt.Sprint(z.Member), Score: z.Score})
	}
	return out, nil
}

func (s *RedisStore) RangeByScore(ctx context.Context, lb string, score float64) ([]string, error) {
	const op = "range_by_score"
	defer s.observe(op, time.Now())

	v := types.FormatScore(score)
	members, err := s.client.ZRangeByScore(ctx, s.keys.Leaderboard(lb), &redis.ZRangeBy{Min: v, Max: v}).Result()
	if err != nil {
		return nil, s.fail(op, err)
	}
	return members, nil
}

func (s *RedisStore) HeldScores(ctx context.Context, lb string) ([]float64, error) {
	const op = "held_scores"
	defer s.observe(op, time.Now())

	zs, err := s.client.ZRangeWithScores(ctx, s.keys.Leaderboard(lb), 0, -1).Result()
	if err != nil {
		return nil, s.fail(op, err)
	}
	// Ascending by score, so equal scores are adjacent.
	out := make([]float64, 0, len(zs))
	for i, z := range zs {
		if i > 0 && z.Score == zs[i-1].Score {
			continue
		}
		out = append(out, z.Score)
	}
	return out, nil
}

func (s *RedisStore) AddMembership(ctx context.Context, member, lb string) error {
	const op = "add_membership"
	defer s.observe(op, time.Now())

	if err := s.client.SAdd(ctx, s.keys.Member(member), lb).Err(); err != nil {
		return s.fail(op, err)
	}
	return nil
}

func (s *RedisStore) RemoveMembership(ctx context.Context, member, lb string) error {
	const op = "remove_membership"
	defer s.observe(op, time.Now())

	if err := s.client.SRem(ctx, s.keys.Member(member), lb).Err(); err != nil {
		return s.fail(op, err)
	}
	return nil
}

func (s *RedisStore) Memberships(ctx context.Context, member string) ([]string, error) {
	const op = "memberships"
	defer s.observe(op, time.Now())

	lbs, err := s.client.SMembers(ctx, s.keys.Member(member)).Result()
	if err != nil {
		return nil, s.fail(op, err)
	}
	return lbs, nil
}

func (s *RedisStore) LeaderboardKeys(ctx context.Context) ([]string, error) {
	const op = "leaderboard_keys"
	defer s.observe(op, time.Now())

	pattern, err := s.keys.Pattern(keys.KindLeaderboard)
	if err != nil {
		return nil, err
	}

	// SCAN may return a key more than once.
	seen := make(map[string]struct{})
	var out []string
	iter := s.client.Scan(ctx, 0, pattern, s.scanCount).Iterator()
	for iter.Next(ctx) {
		lb, ok := s.keys.Extract(keys.KindLeaderboard, iter.Val())
		if !ok {
			continue
		}
		if _, dup := seen[lb]; dup {
			continue
		}
		seen[lb] = struct{}{}
		out = append(out, lb)
	}
	if err := iter.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	const op = "ping"
	defer s.observe(op, time.Now())

	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.fail(op, err)
	}
	return nil
}

func (s *RedisStore) AddRank(ctx context.Context, lb string, score float64) error {
	const op = "add_rank"
	defer s.observe(op, time.Now())

	key := s.keys.Ranks(lb)
	member := types.FormatScore(score)
	// ZADD of an existing member with the same score does not touch the key,
	// so a watcher about to remove this score would not notice us. Removing and
	// re-adding inside MULTI always modifies the key while never exposing a gap.
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, key, member)
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
		return nil
	})
	if err != nil {
		return s.fail(op, err)
	}
	return nil
}

func (s *RedisStore) RevRank(ctx context.Context, lb string, score float64) (int64, bool, error) {
	const op = "rev_rank"
	defer s.observe(op, time.Now())

	rank, err := s.client.ZRevRank(ctx, s.keys.Ranks(lb), types.FormatScore(score)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, false, nil
	case err != nil:
		return 0, false, s.fail(op, err)
	}
	return rank, true, nil
}

func (s *RedisStore) Ranks(ctx context.Context, lb string) ([]float64, error) {
	const op = "ranks"
	defer s.observe(op, time.Now())

	zs, err := s.client.ZRangeWithScores(ctx, s.keys.Ranks(lb), 0, -1).Result()
	if err != nil {
		return nil, s.fail(op, err)
	}
	out := make([]float64, 0, len(zs))
	for _, z := range zs {
		out = append(out, z.Score)
	}
	return out, nil
}

func (s *RedisStore) RemoveRank(ctx context.Context, lb string, score float64) error {
	const op = "remove_rank"
	defer s.observe(op, time.Now())

	if err := s.client.ZRem(ctx, s.keys.Ranks(lb), types.FormatScore(score)).Err(); err != nil {
		return s.fail(op, err)
	}
	return nil
}

func (s *RedisStore) WatchIndex(ctx context.Context, lb string, fn func(tx IndexTx) error) error {
	const op = "watch_index"
	defer s.observe(op, time.Now())

	ranksKey := s.keys.Ranks(lb)
	var fnErr error
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		fnErr = fn(&redisIndexTx{
			store:          s,
			tx:             tx,
			leaderboardKey: s.keys.Leaderboard(lb),
			ranksKey:       ranksKey,
		})
		return fnErr
	}, ranksKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		metrics.RecordIndexConflict()
		return fmt.Errorf("repository.%s %s: %w", op, lb, ErrIndexConflict)
	case fnErr != nil:
		// Already wrapped by the IndexTx, or a caller error.
		return err
	}
	return s.fail(op, err)
}

type redisIndexTx struct {
	store          *RedisStore
	tx             *redis.Tx
	leaderboardKey string
	ranksKey       string
}

func (t *redisIndexTx) CountByScore(ctx context.Context, score float64) (int64, error) {
	v := types.FormatScore(score)
	n, err := t.tx.ZCount(ctx, t.leaderboardKey, v, v).Result()
	if err != nil {
		return 0, t.store.fail("count_by_score", err)
	}
	return n, nil
}

func (t *redisIndexTx) RemoveRank(ctx context.Context, score float64) (bool, error) {
	var remCmd *redis.IntCmd
	_, err := t.tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		remCmd = pipe.ZRem(ctx, t.ranksKey, types.FormatScore(score))
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		// Surfaced by WatchIndex as ErrIndexConflict.
		return false, err
	}
	if err != nil {
		return false, t.store.fail("commit_remove_rank", err)
	}
	return remCmd.Val() > 0, nil
}

// floatOrAbsent reads a ZSCORE reply queued inside MULTI.
func floatOrAbsent(cmd *redis.FloatCmd) (float64, bool, error) {
	v, err := cmd.Result()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}
	return v, true, nil
}
