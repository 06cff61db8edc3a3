// Package queue implements the durable download queue on Redis Streams.
//
// Messages are published with XADD and consumed through a consumer group,
// so each message is delivered to exactly one worker. A message stays in
// the group's pending list until the worker acknowledges it; entries left
// pending by a crashed worker are reclaimed with XAUTOCLAIM and processed
// again, giving at-least-once delivery.
package queue

import (
	"context"

	"github.com/plantwatch/plantdata-api/internal/download"
)

// Delivery is one consumed queue message together with the broker metadata
// needed to acknowledge it.
type Delivery struct {
	// StreamID is the Redis stream entry ID used for acknowledgement.
	StreamID string

	// Redelivered is true when the message was reclaimed from another
	// consumer's pending list rather than read fresh.
	Redelivered bool

	// Message is the decoded task payload.
	Message download.TaskMessage
}

// Consumer is the worker-side interface of the download queue.
type Consumer interface {
	// Fetch blocks until a message is available or the block timeout
	// elapses; it returns (nil, nil) on timeout so callers can re-check
	// their context.
	Fetch(ctx context.Context) (*Delivery, error)

	// Ack marks the delivery as fully processed, removing it from the
	// pending list.
	Ack(ctx context.Context, d *Delivery) error
}
