package reviews

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gradelens/backend/pkg/logger"
	"github.com/gradelens/backend/pkg/utils"
)

// RedisStore is the Store backed by Redis, for deployments running more
// than one API process. Expiry is delegated to Redis TTLs; recency-based
// eviction is Redis's own maxmemory policy. Store errors degrade to cache
// misses so the review pipeline never fails on the cache.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(host string, port int, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	logger.Info("Redis review store initialized",
		zap.String("addr", fmt.Sprintf("%s:%d", host, port)),
		zap.Duration("ttl", ttl),
	)

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*ProfessorReview, bool) {
	data, err := s.client.Get(ctx, reviewKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn("Review cache read failed", zap.String("professor_id", id), zap.Error(err))
		return nil, false
	}

	var review ProfessorReview
	if err := json.Unmarshal(data, &review); err != nil {
		logger.Warn("Review cache entry corrupt", zap.String("professor_id", id), zap.Error(err))
		return nil, false
	}

	return &review, true
}

func (s *RedisStore) Put(ctx context.Context, id string, review *ProfessorReview) {
	data, err := json.Marshal(review)
	if err != nil {
		logger.Warn("Failed to marshal review", zap.String("professor_id", id), zap.Error(err))
		return
	}

	if err := s.client.Set(ctx, reviewKey(id), data, s.ttl).Err(); err != nil {
		logger.Warn("Review cache write failed", zap.String("professor_id", id), zap.Error(err))
	}
}

func reviewKey(id string) string {
	return "review:" + utils.HashString(id)
}
