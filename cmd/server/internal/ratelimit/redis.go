package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "assessmentapi-ratelimit-"
	window    = time.Minute
	timeout   = 500 * time.Millisecond
)

// Fixed window limiter shared by every server replica through redis
type RedisLimiterStore struct {
	db         *redis.Client
	limiterKey string
	perMinute  int64
	failOpen   bool
}

type RedisLimiterConfig struct {
	RedisClient *redis.Client
	LimiterKey  string
	PerMinute   int64
	FailOpen    bool
}

func (store *RedisLimiterStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	key := keyPrefix + store.limiterKey + "-" + identifier

	count, err := store.db.Incr(ctx, key).Result()
	if err != nil {
		return store.failOpen, err
	}

	if count == 1 {
		if err := store.db.Expire(ctx, key, window).Err(); err != nil {
			return store.failOpen, err
		}
	}

	return count <= store.perMinute, nil
}

func NewRedisLimitStore(config RedisLimiterConfig) *RedisLimiterStore {
	return &RedisLimiterStore{
		perMinute:  config.PerMinute,
		db:         config.RedisClient,
		limiterKey: config.LimiterKey,
		failOpen:   config.FailOpen,
	}
}
