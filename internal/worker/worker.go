// Package worker runs the packaging consumers of the download pipeline.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/plantwatch/plantdata-api/internal/download"
	"github.com/plantwatch/plantdata-api/internal/queue"
	"github.com/plantwatch/plantdata-api/internal/store"
)

// PoolConfig holds configuration for the packaging worker pool.
type PoolConfig struct {
	// WorkerCount determines how many concurrent consumers to run.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// ResultTTL is the baseline lifetime of a packaged archive.
	ResultTTL time.Duration

	// ResultTTLJitter is the upper bound of the random extension added to
	// ResultTTL.
	ResultTTLJitter time.Duration
}

// Pool consumes queue messages and executes the packaging routine.
// Workers are stateless between messages; each task touches a disjoint
// record/result key, so they need no coordination with each other.
type Pool struct {
	consumer queue.Consumer
	tasks    download.TaskStore
	results  download.ResultStore
	records  store.DataFileStore
	cfg      PoolConfig
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a packaging worker pool.
func NewPool(
	consumer queue.Consumer,
	tasks download.TaskStore,
	results download.ResultStore,
	records store.DataFileStore,
	cfg PoolConfig,
	logger *slog.Logger,
) *Pool {
	if cfg.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", cfg.WorkerCount,
			"default_count", 1)
		cfg.WorkerCount = 1
	}

	return &Pool{
		consumer: consumer,
		tasks:    tasks,
		results:  results,
		records:  records,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start launches the consumer goroutines. They run until Stop is called or
// the parent context is canceled.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	p.logger.Info("packaging worker pool started", "worker_count", p.cfg.WorkerCount)
}

// Stop signals all workers to finish their current message and waits for
// them to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("packaging worker pool stopped")
}

// run is the main loop of one consumer.
func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.logger.With("worker_id", id)
	log.Debug("packaging worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("packaging worker stopping")
			return
		default:
		}

		delivery, err := p.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to fetch from queue", "error", err)
			// Back off briefly so a dead broker does not spin the loop.
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if delivery == nil {
			continue // Block timeout; loop to re-check the context.
		}

		p.handle(ctx, log, delivery)
	}
}

// handle executes the packaging routine for one delivery. The message is
// acknowledged only after a terminal status has been recorded, so a crash
// in the middle leads to broker redelivery instead of a silently lost task.
func (p *Pool) handle(ctx context.Context, log *slog.Logger, d *queue.Delivery) {
	msg := d.Message
	log = log.With("task_id", msg.TaskID)

	err := p.tasks.SetStatus(ctx, msg.TaskID, download.StatusProcessing)
	if errors.Is(err, download.ErrTaskNotFound) {
		// The record expired before we got to it; nobody can observe the
		// outcome anymore, so drop the message.
		log.Warn("skipping expired task")
		p.ack(ctx, log, d)
		return
	}
	if err != nil {
		log.Error("failed to mark task processing", "error", err)
		return // Not acked; the broker will redeliver.
	}

	if perr := p.packageTask(ctx, msg); perr != nil {
		log.Error("packaging failed", "error", perr)
		if serr := p.tasks.SetStatus(ctx, msg.TaskID, download.StatusError); serr != nil {
			log.Error("failed to record task error", "error", serr)
			return // Keep the message pending for redelivery.
		}
		p.ack(ctx, log, d)
		return
	}

	if serr := p.tasks.SetStatus(ctx, msg.TaskID, download.StatusDone); serr != nil {
		log.Error("failed to record task done", "error", serr)
		return
	}

	log.Info("task packaged", "item_count", len(msg.ItemIDs), "redelivered", d.Redelivered)
	p.ack(ctx, log, d)
}

// packageTask resolves the requested items, builds the archive, and persists
// it with a jittered TTL. The task record's lifetime is extended to match so
// the status outlives the blob, never the other way around.
func (p *Pool) packageTask(ctx context.Context, msg download.TaskMessage) error {
	files, err := p.records.ResolveFiles(ctx, msg.ItemIDs)
	if err != nil {
		return err
	}

	// Missing files were dropped by ResolveFiles or will be skipped by
	// BuildArchive; both are the documented silent-skip policy, not errors.
	archive, err := download.BuildArchive(files)
	if err != nil {
		return err
	}

	ttl := download.ResultTTL(p.cfg.ResultTTL, p.cfg.ResultTTLJitter)
	if err := p.results.Save(ctx, msg.TaskID, archive, ttl); err != nil {
		return err
	}
	if err := p.tasks.ExpireIn(ctx, msg.TaskID, ttl); err != nil {
		return err
	}

	return nil
}

func (p *Pool) ack(ctx context.Context, log *slog.Logger, d *queue.Delivery) {
	if err := p.consumer.Ack(ctx, d); err != nil {
		log.Error("failed to ack message", "stream_id", d.StreamID, "error", err)
	}
}
