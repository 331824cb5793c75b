package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds connection settings for the redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore persists resolution contexts in redis with native key expiry,
// so multiple proxy processes can share one token table and no sweep is
// needed.
type RedisStore struct {
	logger zerolog.Logger
	client *redis.Client
}

func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := log.With().Str("module", "token").Str("submodule", "redis-store").Logger()
	logger.Info().Str("addr", config.Addr).Int("db", config.DB).Msg("connected to redis")

	return &RedisStore{
		logger: logger,
		client: client,
	}, nil
}

// NewRedisStoreWithClient wraps an existing client, used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		logger: zerolog.Nop(),
		client: client,
	}
}

func (s *RedisStore) Put(ctx context.Context, token string, rc ResolutionContext, ttl time.Duration) error {
	data, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("marshal resolution context: %w", err)
	}

	return s.client.Set(ctx, s.key(token), data, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, token string) (ResolutionContext, error) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err == redis.Nil {
		return ResolutionContext{}, ErrNotFound
	}
	if err != nil {
		return ResolutionContext{}, fmt.Errorf("redis get: %w", err)
	}

	var rc ResolutionContext
	if err := json.Unmarshal(data, &rc); err != nil {
		s.logger.Warn().Err(err).Msg("stored context is not valid json")
		return ResolutionContext{}, ErrNotFound
	}

	return rc, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(token string) string {
	return "streamgate:token:" + token
}
