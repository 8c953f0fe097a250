package core

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vigil/metrics"
)

const (
	failureCounterPrefix = "vigil:login_failures:"
	knownSourcesKey      = "vigil:known_sources"
)

// RedisState holds detector counter state in Redis so concurrent login
// attempts for the same identity are counted atomically (INCR is a single
// server-side read-modify-write) and counters survive process restarts.
type RedisState struct {
	client *redis.Client
	logger *zap.SugaredLogger
	// counterTTL bounds how long a failure streak is remembered
	counterTTL time.Duration
}

// NewRedisState creates a new Redis-backed detector state instance
func NewRedisState(addr, password string, db, poolSize int, counterTTL time.Duration, logger *zap.SugaredLogger) *RedisState {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	return &RedisState{
		client:     client,
		logger:     logger,
		counterTTL: counterTTL,
	}
}

// Ping tests the Redis connection
func (rs *RedisState) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rs *RedisState) Close() error {
	return rs.client.Close()
}

// IncrementFailures atomically increments the consecutive-failure counter
// for an identity and returns the new count.
func (rs *RedisState) IncrementFailures(ctx context.Context, identity string) (int64, error) {
	key := failureCounterPrefix + identity

	count, err := rs.client.Incr(ctx, key).Result()
	if err != nil {
		rs.logger.Errorf("Failed to increment failure counter for %s: %v", identity, err)
		metrics.CounterErrors.WithLabelValues("incr").Inc()
		return 0, fmt.Errorf("failed to increment failure counter: %w", err)
	}

	if rs.counterTTL > 0 {
		// Refresh the window on every failure; best effort
		if err := rs.client.Expire(ctx, key, rs.counterTTL).Err(); err != nil {
			rs.logger.Warnf("Failed to set TTL on failure counter for %s: %v", identity, err)
		}
	}

	return count, nil
}

// ResetFailures clears the consecutive-failure counter for an identity.
// Called on every successful login.
func (rs *RedisState) ResetFailures(ctx context.Context, identity string) error {
	if err := rs.client.Del(ctx, failureCounterPrefix+identity).Err(); err != nil {
		metrics.CounterErrors.WithLabelValues("reset").Inc()
		return fmt.Errorf("failed to reset failure counter: %w", err)
	}
	return nil
}

// AddKnownSource records a login source as known
func (rs *RedisState) AddKnownSource(ctx context.Context, source string) error {
	if err := rs.client.SAdd(ctx, knownSourcesKey, source).Err(); err != nil {
		metrics.CounterErrors.WithLabelValues("sadd").Inc()
		return fmt.Errorf("failed to add known source: %w", err)
	}
	return nil
}

// IsKnownSource reports whether a login source has been seen before
func (rs *RedisState) IsKnownSource(ctx context.Context, source string) (bool, error) {
	known, err := rs.client.SIsMember(ctx, knownSourcesKey, source).Result()
	if err != nil {
		metrics.CounterErrors.WithLabelValues("sismember").Inc()
		return false, fmt.Errorf("failed to check known source: %w", err)
	}
	return known, nil
}
