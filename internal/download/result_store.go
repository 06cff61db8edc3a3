package download

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const resultKeySuffix = ":zip"

// ResultStore persists packaged archives under a key derived from the task ID.
type ResultStore interface {
	// Save stores the archive with the given TTL.
	Save(ctx context.Context, taskID uuid.UUID, archive []byte, ttl time.Duration) error

	// Get retrieves the archive, or ErrTaskNotFound when it never existed
	// or has expired.
	Get(ctx context.Context, taskID uuid.UUID) ([]byte, error)
}

// RedisResultStore implements ResultStore on a Redis string value per task.
type RedisResultStore struct {
	rdb redis.UniversalClient
}

// Ensure RedisResultStore implements ResultStore interface
var _ ResultStore = (*RedisResultStore)(nil)

// NewRedisResultStore creates a new RedisResultStore.
func NewRedisResultStore(rdb redis.UniversalClient) *RedisResultStore {
	return &RedisResultStore{rdb: rdb}
}

// Save implements ResultStore.Save.
func (s *RedisResultStore) Save(ctx context.Context, taskID uuid.UUID, archive []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, resultKey(taskID), archive, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save packaged result: %w", err)
	}
	return nil
}

// Get implements ResultStore.Get.
func (s *RedisResultStore) Get(ctx context.Context, taskID uuid.UUID) ([]byte, error) {
	data, err := s.rdb.Get(ctx, resultKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read packaged result: %w", err)
	}
	return data, nil
}

func resultKey(taskID uuid.UUID) string {
	return taskKeyPrefix + taskID.String() + resultKeySuffix
}

// ResultTTL computes the lifetime of a packaged result: the configured base
// window plus a random jitter so a burst of tasks does not expire all its
// archives at the same instant.
func ResultTTL(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(jitter)))
}
