package download_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwatch/plantdata-api/internal/download"
)

func setupResultStore(t *testing.T) (*miniredis.Miniredis, *download.RedisResultStore) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, download.NewRedisResultStore(rdb)
}

func TestResultStoreSaveAndGet(t *testing.T) {
	mr, rs := setupResultStore(t)
	ctx := context.Background()
	taskID := uuid.New()

	require.NoError(t, rs.Save(ctx, taskID, []byte{0x50, 0x4b, 0x03, 0x04}, time.Hour))

	data, err := rs.Get(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x50, 0x4b, 0x03, 0x04}, data)

	assert.Greater(t, mr.TTL("download:task:"+taskID.String()+":zip"), time.Duration(0))
}

func TestResultStoreExpiry(t *testing.T) {
	mr, rs := setupResultStore(t)
	ctx := context.Background()
	taskID := uuid.New()

	require.NoError(t, rs.Save(ctx, taskID, []byte("zip"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := rs.Get(ctx, taskID)
	assert.ErrorIs(t, err, download.ErrTaskNotFound)
}

func TestResultStoreGetUnknown(t *testing.T) {
	_, rs := setupResultStore(t)

	_, err := rs.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, download.ErrTaskNotFound)
}

func TestResultTTLStaysWithinJitterWindow(t *testing.T) {
	base := 2 * time.Hour
	jitter := 30 * time.Minute

	for i := 0; i < 100; i++ {
		ttl := download.ResultTTL(base, jitter)
		assert.GreaterOrEqual(t, ttl, base)
		assert.Less(t, ttl, base+jitter)
	}
}

func TestResultTTLNoJitter(t *testing.T) {
	assert.Equal(t, time.Hour, download.ResultTTL(time.Hour, 0))
}
