package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/session"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	fieldToken   = "token"
	fieldProfile = "user_info"
)

// NewRedisClient creates a Redis client and checks connectivity
func NewRedisClient(ctx context.Context, cfg *config.StoreConfig, logger *logrus.Logger) (redis.UniversalClient, error) {
	options := &redis.UniversalOptions{
		Addrs:        []string{cfg.RedisAddress},
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDatabase,
		MaxRetries:   3,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,

		// Retry settings
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}

	client := redis.NewUniversalClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"address": cfg.RedisAddress,
		"db":      cfg.RedisDatabase,
	}).Info("Connected to Redis")

	return client, nil
}

// RedisStore keeps each credential in a hash at prefix+username.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(username string) string {
	return s.prefix + username
}

func (s *RedisStore) Put(ctx context.Context, username string, token session.Token, profile json.RawMessage) error {
	key := s.key(username)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fieldToken, token.Encode(), fieldProfile, string(profileOrEmpty(profile)))
	if _, err := pipe.Exec(ctx); err != nil {
		return storageError("redis", "put", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, username string) (Record, bool, error) {
	values, err := s.client.HGetAll(ctx, s.key(username)).Result()
	if err != nil {
		return Record{}, false, storageError("redis", "get", err)
	}
	token, ok := values[fieldToken]
	if !ok {
		return Record{}, false, nil
	}

	rec := Record{Username: username, Token: session.Decode(token)}
	if p := values[fieldProfile]; p != "" {
		rec.Profile = json.RawMessage(p)
	}
	return rec, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, s.key(username)).Err(); err != nil {
		return storageError("redis", "delete", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
