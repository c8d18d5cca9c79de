package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/metrics"
	"github.com/good-yellow-bee/staleguard/internal/models"
)

const backendRedis = "redis"

// DefaultStateTTL is how long an untouched cooldown state is kept in Redis.
const DefaultStateTTL = 90 * 24 * time.Hour

// RedisStateStore implements alerting.StateStore on Redis. Updates use
// WATCH/MULTI so concurrent writers from several processes cannot lose
// increments.
type RedisStateStore struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxRetries int
	logger     *zap.Logger
}

// RedisStateOptions configures a RedisStateStore.
type RedisStateOptions struct {
	// Prefix is prepended to every key. Defaults to "staleguard:cooldown:".
	Prefix string
	// TTL expires states that are not updated. Zero uses DefaultStateTTL.
	TTL    time.Duration
	Logger *zap.Logger
}

// NewRedisStateStore creates a Redis-backed state store.
func NewRedisStateStore(client *redis.Client, opts RedisStateOptions) *RedisStateStore {
	if opts.Prefix == "" {
		opts.Prefix = "staleguard:cooldown:"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultStateTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &RedisStateStore{
		client:     client,
		prefix:     opts.Prefix,
		ttl:        opts.TTL,
		maxRetries: defaultCASRetries,
		logger:     opts.Logger,
	}
}

func (s *RedisStateStore) key(entityID string) string {
	return s.prefix + entityID
}

// Get returns the state for an entity.
func (s *RedisStateStore) Get(ctx context.Context, entityID string) (*models.CooldownState, error) {
	data, err := s.client.Get(ctx, s.key(entityID)).Result()
	if err == redis.Nil {
		return nil, alerting.ErrStateNotFound
	}
	if err != nil {
		metrics.StorageErrors.WithLabelValues("cooldown_get", backendRedis).Inc()
		return nil, fmt.Errorf("failed to get cooldown state: %w", err)
	}
	return decodeState(data)
}

// Update applies fn inside a WATCH transaction and retries when the key
// changed underneath.
func (s *RedisStateStore) Update(ctx context.Context, entityID string, fn alerting.UpdateFunc) (*models.CooldownState, error) {
	start := time.Now()
	key := s.key(entityID)

	var result *models.CooldownState
	txf := func(tx *redis.Tx) error {
		current := models.NewCooldownState(entityID)
		exists := true

		data, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
			exists = false
		case err != nil:
			return err
		default:
			if current, err = decodeState(data); err != nil {
				return err
			}
		}

		if err := fn(current, exists); err != nil {
			return err
		}

		encoded, err := encodeState(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, stateTTL(current, s.ttl, time.Now()))
			return nil
		})
		if err == nil {
			result = current
		}
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			metrics.StorageQueryDuration.WithLabelValues("cooldown_update", backendRedis).Observe(time.Since(start).Seconds())
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			metrics.StorageConflictsTotal.WithLabelValues(backendRedis).Inc()
			s.logger.Debug("cooldown state conflict, retrying",
				zap.String("entity_id", entityID), zap.Int("attempt", attempt+1))
			continue
		}
		metrics.StorageErrors.WithLabelValues("cooldown_update", backendRedis).Inc()
		return nil, err
	}
	return nil, fmt.Errorf("%w for %s after %d attempts", ErrConflict, entityID, s.maxRetries)
}

// stateTTL keeps a state alive for ttl past the end of its cooldown, so a
// resolved entity's 9999h cooldown is not dropped by a shorter ttl.
func stateTTL(state *models.CooldownState, ttl time.Duration, now time.Time) time.Duration {
	if state.CooldownUntil == nil {
		return ttl
	}
	if d := state.CooldownUntil.Sub(now) + ttl; d > ttl {
		return d
	}
	return ttl
}

// List scans all state keys under the prefix.
func (s *RedisStateStore) List(ctx context.Context) ([]*models.CooldownState, error) {
	var states []*models.CooldownState
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get cooldown state: %w", err)
		}
		state, err := decodeState(data)
		if err != nil {
			s.logger.Warn("skipping undecodable cooldown state", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		states = append(states, state)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cooldown states: %w", err)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].EntityID < states[j].EntityID
	})
	return states, nil
}

// Ping checks the Redis connection.
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
