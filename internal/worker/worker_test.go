package worker_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwatch/plantdata-api/internal/download"
	"github.com/plantwatch/plantdata-api/internal/queue"
	"github.com/plantwatch/plantdata-api/internal/store"
	"github.com/plantwatch/plantdata-api/internal/worker"
)

// stubConsumer feeds deliveries from a channel and records acknowledgements.
type stubConsumer struct {
	deliveries chan *queue.Delivery
	acked      chan string
}

func newStubConsumer() *stubConsumer {
	return &stubConsumer{
		deliveries: make(chan *queue.Delivery, 8),
		acked:      make(chan string, 8),
	}
}

func (c *stubConsumer) Fetch(ctx context.Context) (*queue.Delivery, error) {
	select {
	case d := <-c.deliveries:
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (c *stubConsumer) Ack(_ context.Context, d *queue.Delivery) error {
	c.acked <- d.StreamID
	return nil
}

// stubRecords returns a fixed resolution result regardless of the IDs asked.
type stubRecords struct {
	files []store.DataFile
	err   error
}

func (r *stubRecords) ResolveFiles(_ context.Context, _ []int64) ([]store.DataFile, error) {
	return r.files, r.err
}

type fixture struct {
	mr       *miniredis.Miniredis
	tasks    *download.RedisTaskStore
	results  *download.RedisResultStore
	consumer *stubConsumer
	records  *stubRecords
	pool     *worker.Pool
}

func setup(t *testing.T, records *stubRecords) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		mr:       mr,
		tasks:    download.NewRedisTaskStore(rdb, 2*time.Hour),
		results:  download.NewRedisResultStore(rdb),
		consumer: newStubConsumer(),
		records:  records,
	}

	f.pool = worker.NewPool(
		f.consumer,
		f.tasks,
		f.results,
		f.records,
		worker.PoolConfig{WorkerCount: 1, ResultTTL: time.Hour, ResultTTLJitter: 0},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

// writeDataFile creates a real file on disk and returns its record.
func writeDataFile(t *testing.T, dir, name, content string) store.DataFile {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return store.DataFile{FileName: name, FilePath: path}
}

// waitAck blocks until the consumer acknowledges a delivery.
func waitAck(t *testing.T, c *stubConsumer) {
	t.Helper()
	select {
	case <-c.acked:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery acknowledgement")
	}
}

func entryNames(t *testing.T, archive []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestPoolPackagesTask(t *testing.T) {
	dir := t.TempDir()
	records := &stubRecords{files: []store.DataFile{
		writeDataFile(t, dir, "pump-curve.csv", "rpm,flow\n1450,820\n"),
		writeDataFile(t, dir, "inspection.pdf", "%PDF-1.4 stub"),
	}}
	f := setup(t, records)
	ctx := context.Background()

	owner := uuid.New()
	taskID, err := f.tasks.Create(ctx, owner, 2)
	require.NoError(t, err)

	f.pool.Start(ctx)
	defer f.pool.Stop()

	f.consumer.deliveries <- &queue.Delivery{
		StreamID: "1-0",
		Message:  download.TaskMessage{TaskID: taskID, Owner: owner, ItemIDs: []int64{1, 2}},
	}
	waitAck(t, f.consumer)

	task, err := f.tasks.Get(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, download.StatusDone, task.Status)

	archive, err := f.results.Get(ctx, taskID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pump-curve.csv", "inspection.pdf"}, entryNames(t, archive))

	// The result and the task record both expire on their own.
	resultKey := "download:task:" + taskID.String() + ":zip"
	assert.Greater(t, f.mr.TTL(resultKey), time.Duration(0))
	assert.Greater(t, f.mr.TTL("download:task:"+taskID.String()), time.Duration(0))
}

func TestPoolSkipsMissingFilesInArchive(t *testing.T) {
	dir := t.TempDir()
	records := &stubRecords{files: []store.DataFile{
		writeDataFile(t, dir, "present.csv", "ok"),
		{FileName: "vanished.csv", FilePath: filepath.Join(dir, "vanished.csv")},
	}}
	f := setup(t, records)
	ctx := context.Background()

	taskID, err := f.tasks.Create(ctx, uuid.New(), 2)
	require.NoError(t, err)

	f.pool.Start(ctx)
	defer f.pool.Stop()

	f.consumer.deliveries <- &queue.Delivery{
		StreamID: "1-0",
		Message:  download.TaskMessage{TaskID: taskID, ItemIDs: []int64{1, 2}},
	}
	waitAck(t, f.consumer)

	task, err := f.tasks.Get(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, download.StatusDone, task.Status, "a missing file is skipped, not an error")

	archive, err := f.results.Get(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, []string{"present.csv"}, entryNames(t, archive))
}

func TestPoolMarksTaskErrorWhenResolutionFails(t *testing.T) {
	records := &stubRecords{err: errors.New("records database unavailable")}
	f := setup(t, records)
	ctx := context.Background()

	taskID, err := f.tasks.Create(ctx, uuid.New(), 1)
	require.NoError(t, err)

	f.pool.Start(ctx)
	defer f.pool.Stop()

	f.consumer.deliveries <- &queue.Delivery{
		StreamID: "1-0",
		Message:  download.TaskMessage{TaskID: taskID, ItemIDs: []int64{1}},
	}
	waitAck(t, f.consumer)

	task, err := f.tasks.Get(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, download.StatusError, task.Status)

	_, err = f.results.Get(ctx, taskID)
	assert.ErrorIs(t, err, download.ErrTaskNotFound, "no result blob for a failed task")
}

func TestPoolAcksAndSkipsExpiredTask(t *testing.T) {
	f := setup(t, &stubRecords{})
	ctx := context.Background()

	f.pool.Start(ctx)
	defer f.pool.Stop()

	// No task record was ever created for this ID.
	ghost := uuid.New()
	f.consumer.deliveries <- &queue.Delivery{
		StreamID: "1-0",
		Message:  download.TaskMessage{TaskID: ghost, ItemIDs: []int64{1}},
	}
	waitAck(t, f.consumer)

	_, err := f.results.Get(ctx, ghost)
	assert.ErrorIs(t, err, download.ErrTaskNotFound)
}

func TestPoolRedeliveryCannotRegressTerminalTask(t *testing.T) {
	dir := t.TempDir()
	records := &stubRecords{files: []store.DataFile{
		writeDataFile(t, dir, "report.csv", "x"),
	}}
	f := setup(t, records)
	ctx := context.Background()

	taskID, err := f.tasks.Create(ctx, uuid.New(), 1)
	require.NoError(t, err)

	f.pool.Start(ctx)
	defer f.pool.Stop()

	msg := download.TaskMessage{TaskID: taskID, ItemIDs: []int64{1}}
	f.consumer.deliveries <- &queue.Delivery{StreamID: "1-0", Message: msg}
	waitAck(t, f.consumer)

	// Redelivery of the same message after completion.
	f.consumer.deliveries <- &queue.Delivery{StreamID: "1-0", Redelivered: true, Message: msg}
	waitAck(t, f.consumer)

	task, err := f.tasks.Get(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, download.StatusDone, task.Status, "done must survive a redelivered message")
}
