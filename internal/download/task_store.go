package download

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/plantwatch/plantdata-api/internal/platform/logger"
)

const taskKeyPrefix = "download:task:"

// setStatusScript enforces monotonic status transitions server-side.
// A terminal status may only be re-affirmed, never replaced, so a worker
// retry after broker redelivery cannot downgrade a finished task.
//
// Returns 1 when the write was applied or re-affirmed, -1 when the write
// was ignored as a regression, and 0 when the task does not exist.
var setStatusScript = redis.NewScript(`
local ranks = {queued=0, processing=1, done=2, error=2}
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return 0
end
local curRank = ranks[cur]
local newRank = ranks[ARGV[1]]
if curRank == nil or newRank == nil then
  return redis.error_reply('unknown status')
end
if curRank >= 2 then
  if cur == ARGV[1] then
    return 1
  end
  return -1
end
if newRank < curRank then
  return -1
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
return 1
`)

// TaskStore defines the persistence operations for download task records.
type TaskStore interface {
	// Create writes a new task record in the queued state and returns its ID.
	Create(ctx context.Context, owner uuid.UUID, itemCount int) (uuid.UUID, error)

	// SetStatus advances the task's status. Regressions from a terminal
	// state are silently ignored; ErrTaskNotFound is returned for unknown
	// or expired tasks.
	SetStatus(ctx context.Context, taskID uuid.UUID, status Status) error

	// Get retrieves a task record, or ErrTaskNotFound when the record
	// never existed or has expired.
	Get(ctx context.Context, taskID uuid.UUID) (*Task, error)

	// ExpireIn rebounds the record's remaining lifetime.
	ExpireIn(ctx context.Context, taskID uuid.UUID, ttl time.Duration) error
}

// RedisTaskStore implements TaskStore on a Redis hash per task.
type RedisTaskStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
	now func() time.Time // Injectable for testing
}

// Ensure RedisTaskStore implements TaskStore interface
var _ TaskStore = (*RedisTaskStore)(nil)

// NewRedisTaskStore creates a task store whose records expire after ttl.
func NewRedisTaskStore(rdb redis.UniversalClient, ttl time.Duration) *RedisTaskStore {
	return &RedisTaskStore{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
	}
}

// Create implements TaskStore.Create.
func (s *RedisTaskStore) Create(ctx context.Context, owner uuid.UUID, itemCount int) (uuid.UUID, error) {
	taskID := uuid.New()
	key := taskKey(taskID)
	createdAt := s.now().UTC()

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(StatusQueued),
		"owner", owner.String(),
		"items", itemCount,
		"created_at", createdAt.Format(time.RFC3339),
	)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create task record: %w", err)
	}

	logger.FromContext(ctx).Debug("task record created",
		"task_id", taskID,
		"owner", owner,
		"item_count", itemCount)

	return taskID, nil
}

// SetStatus implements TaskStore.SetStatus.
func (s *RedisTaskStore) SetStatus(ctx context.Context, taskID uuid.UUID, status Status) error {
	res, err := setStatusScript.Run(ctx, s.rdb, []string{taskKey(taskID)}, string(status)).Int64()
	if err != nil {
		return fmt.Errorf("failed to set task status: %w", err)
	}

	switch res {
	case 0:
		return ErrTaskNotFound
	case -1:
		logger.FromContext(ctx).Debug("ignored status regression on terminal task",
			"task_id", taskID,
			"requested_status", status)
	}
	return nil
}

// Get implements TaskStore.Get.
func (s *RedisTaskStore) Get(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	fields, err := s.rdb.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task record: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrTaskNotFound
	}

	task := &Task{
		ID:     taskID,
		Status: Status(fields["status"]),
	}
	if owner, err := uuid.Parse(fields["owner"]); err == nil {
		task.Owner = owner
	}
	if items, err := strconv.Atoi(fields["items"]); err == nil {
		task.ItemCount = items
	}
	if createdAt, err := time.Parse(time.RFC3339, fields["created_at"]); err == nil {
		task.CreatedAt = createdAt
	}

	return task, nil
}

// ExpireIn implements TaskStore.ExpireIn.
func (s *RedisTaskStore) ExpireIn(ctx context.Context, taskID uuid.UUID, ttl time.Duration) error {
	if err := s.rdb.Expire(ctx, taskKey(taskID), ttl).Err(); err != nil {
		return fmt.Errorf("failed to expire task record: %w", err)
	}
	return nil
}

func taskKey(taskID uuid.UUID) string {
	return taskKeyPrefix + taskID.String()
}
