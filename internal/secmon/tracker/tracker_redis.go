package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Tracker backed by Redis so blocking and rate decisions stay
// consistent across multiple service instances. Sliding windows are sorted
// sets scored by unix nanoseconds; blocks are plain keys with a TTL.
type Redis struct {
	client redis.Cmdable
	now    func() time.Time
}

// RedisOption customizes the Redis tracker.
type RedisOption func(*Redis)

// WithRedisClock overrides the time source. Test use only.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		r.now = now
	}
}

// NewRedis creates a Redis-backed tracker.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{client: client, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) RecordRequest(ctx context.Context, ip string, window time.Duration) (int, error) {
	return r.record(ctx, requestKey(ip), window)
}

func (r *Redis) RecordFailedLogin(ctx context.Context, ip string, window time.Duration) (int, error) {
	return r.record(ctx, failureKey(ip), window)
}

// record appends a timestamp, drops entries outside the window and returns
// the windowed count in one pipeline so the increment-then-check invariant
// holds across instances.
func (r *Redis) record(ctx context.Context, key string, window time.Duration) (int, error) {
	now := r.now()
	cutoff := now.Add(-window).UnixNano()

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("record %s: %w", key, err)
	}
	return int(card.Val()), nil
}

func (r *Redis) ClearFailedLogins(ctx context.Context, ip string) error {
	if err := r.client.Del(ctx, failureKey(ip)).Err(); err != nil {
		return fmt.Errorf("clear failures for %s: %w", ip, err)
	}
	return nil
}

func (r *Redis) Block(ctx context.Context, ip string, ttl time.Duration) error {
	// ttl zero means no expiry; go-redis maps 0 to a persistent key.
	if err := r.client.Set(ctx, blockKey(ip), 1, ttl).Err(); err != nil {
		return fmt.Errorf("block %s: %w", ip, err)
	}
	return nil
}

func (r *Redis) IsBlocked(ctx context.Context, ip string) (bool, error) {
	n, err := r.client.Exists(ctx, blockKey(ip)).Result()
	if err != nil {
		return false, fmt.Errorf("check block for %s: %w", ip, err)
	}
	return n > 0, nil
}

func requestKey(ip string) string { return "secmon:req:" + ip }
func failureKey(ip string) string { return "secmon:fail:" + ip }
func blockKey(ip string) string   { return "secmon:block:" + ip }
