package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
	"genba/pkg/platform/sentinel"
)

const artifactKeyPrefix = "artifact:"

// RedisStore keeps artifacts in Redis with a TTL. Suitable for multi-node
// deployments where feedback audio is replayed shortly after a check and
// does not need durable storage.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, sessionID id.SessionID, checkID id.CheckID, data []byte) (string, error) {
	return s.set(ctx, CheckPath(sessionID, checkID), data)
}

func (s *RedisStore) SaveWelcome(ctx context.Context, sessionID id.SessionID, data []byte) (string, error) {
	return s.set(ctx, WelcomePath(sessionID), data)
}

func (s *RedisStore) set(ctx context.Context, path string, data []byte) (string, error) {
	if err := s.client.Set(ctx, artifactKeyPrefix+path, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}
	return path, nil
}

func (s *RedisStore) Load(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid artifact path")
	}
	data, err := s.client.Get(ctx, artifactKeyPrefix+path).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	return data, nil
}
