package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/plantwatch/plantdata-api/internal/download"
	"github.com/plantwatch/plantdata-api/internal/platform/logger"
)

// Config holds the settings of the Redis Streams queue.
type Config struct {
	// Stream is the stream key messages are published to.
	Stream string

	// ConsumerGroup is the group packaging workers join.
	ConsumerGroup string

	// Block is how long a Fetch waits for a message before returning nil.
	// Defaults to 5 seconds.
	Block time.Duration

	// MinIdle is how long a pending entry must sit unacknowledged before
	// another consumer may reclaim it. Defaults to 1 minute.
	MinIdle time.Duration
}

func (c *Config) applyDefaults() {
	if c.Block == 0 {
		c.Block = 5 * time.Second
	}
	if c.MinIdle == 0 {
		c.MinIdle = time.Minute
	}
}

// RedisQueue implements Publisher and Consumer on one Redis stream.
// A single handle may be shared by multiple worker goroutines; the
// autoclaim cursor is the only mutable state and is guarded by mu.
type RedisQueue struct {
	rdb          redis.UniversalClient
	cfg          Config
	consumerName string

	// mu guards autoclaimCursor, which tracks the XAUTOCLAIM scan
	// position between fetches.
	mu              sync.Mutex
	autoclaimCursor string
}

// Ensure RedisQueue satisfies both sides of the queue contract.
var (
	_ download.Publisher = (*RedisQueue)(nil)
	_ Consumer           = (*RedisQueue)(nil)
)

// NewRedisQueue creates a queue handle. Each handle gets a unique consumer
// name so separate processes sharing a group never collide; within one
// process the handle is safe for concurrent use by multiple workers.
func NewRedisQueue(rdb redis.UniversalClient, cfg Config) *RedisQueue {
	cfg.applyDefaults()
	return &RedisQueue{
		rdb:             rdb,
		cfg:             cfg,
		consumerName:    "packager-" + uuid.New().String()[:8],
		autoclaimCursor: "0-0",
	}
}

// EnsureGroup creates the consumer group if it does not exist yet.
// Safe to call from every worker at startup.
func (q *RedisQueue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Publish implements download.Publisher by appending the message to the stream.
func (q *RedisQueue) Publish(ctx context.Context, msg download.TaskMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode task message: %w", err)
	}

	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: map[string]interface{}{
			"task_id": msg.TaskID.String(),
			"payload": string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish task message: %w", err)
	}

	return nil
}

// Fetch implements Consumer.Fetch. Reclaimable pending entries from crashed
// consumers are drained before new messages are read.
func (q *RedisQueue) Fetch(ctx context.Context) (*Delivery, error) {
	if d, err := q.claimStale(ctx); err != nil || d != nil {
		return d, err
	}

	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.ConsumerGroup,
		Consumer: q.consumerName,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    1,
		Block:    q.cfg.Block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // No message within the block timeout.
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return q.parseMessage(ctx, streams[0].Messages[0], false)
}

// Ack implements Consumer.Ack.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.rdb.XAck(ctx, q.cfg.Stream, q.cfg.ConsumerGroup, d.StreamID).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", d.StreamID, err)
	}
	return nil
}

// claimStale reclaims one entry that has been pending longer than MinIdle,
// which happens when a worker died mid-processing. The cursor read and
// update are serialized so concurrent fetchers scan the pending list in
// order instead of racing on the position.
func (q *RedisQueue) claimStale(ctx context.Context) (*Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs, cursor, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.ConsumerGroup,
		Consumer: q.consumerName,
		MinIdle:  q.cfg.MinIdle,
		Start:    q.autoclaimCursor,
		Count:    1,
	}).Result()
	if err != nil {
		// The stream may not exist yet; treat claim failures as "nothing
		// to claim" and let XREADGROUP surface real connection errors.
		return nil, nil
	}
	q.autoclaimCursor = cursor

	if len(msgs) == 0 {
		return nil, nil
	}

	logger.FromContext(ctx).Warn("reclaimed stale queue message",
		"stream_id", msgs[0].ID,
		"consumer", q.consumerName)

	return q.parseMessage(ctx, msgs[0], true)
}

// parseMessage decodes one stream entry into a Delivery. Undecodable
// entries are acknowledged and dropped so they cannot wedge the group.
func (q *RedisQueue) parseMessage(ctx context.Context, msg redis.XMessage, redelivered bool) (*Delivery, error) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		logger.FromContext(ctx).Error("dropping malformed queue message", "stream_id", msg.ID)
		_ = q.rdb.XAck(ctx, q.cfg.Stream, q.cfg.ConsumerGroup, msg.ID).Err()
		return nil, nil
	}

	var task download.TaskMessage
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		logger.FromContext(ctx).Error("dropping undecodable queue message",
			"stream_id", msg.ID,
			"error", err)
		_ = q.rdb.XAck(ctx, q.cfg.Stream, q.cfg.ConsumerGroup, msg.ID).Err()
		return nil, nil
	}

	return &Delivery{
		StreamID:    msg.ID,
		Redelivered: redelivered,
		Message:     task,
	}, nil
}
