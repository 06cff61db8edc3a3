// Package download implements the quota-limited bulk-download pipeline:
// task records, packaged results, the archive builder, and the
// submission/query facade shared by the asynchronous and synchronous paths.
package download

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a download task.
type Status string

// Possible task status values. Transitions are monotonic:
// queued -> processing -> (done | error); terminal states never regress.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Task is the durable status record for one asynchronous download request.
type Task struct {
	ID        uuid.UUID
	Owner     uuid.UUID
	Status    Status
	ItemCount int
	CreatedAt time.Time
}

// Pipeline errors surfaced to the API layer.
var (
	// ErrQuotaExceeded signals that the caller's daily budget does not
	// cover the request. Recoverable by the caller the next day.
	ErrQuotaExceeded = errors.New("daily download quota exceeded")

	// ErrDownloadForbidden signals that the caller's role does not permit
	// downloads at all.
	ErrDownloadForbidden = errors.New("caller is not permitted to download")

	// ErrTaskNotFound signals an unknown or expired task identifier.
	// It is deliberately distinct from "still queued".
	ErrTaskNotFound = errors.New("download task not found or expired")

	// ErrTaskNotOwned signals a status or result query against another
	// caller's task.
	ErrTaskNotOwned = errors.New("download task belongs to another caller")

	// ErrResultNotReady signals a result fetch before the task reached done.
	ErrResultNotReady = errors.New("download task result not ready")

	// ErrNoFiles signals a direct download whose IDs resolved to nothing.
	ErrNoFiles = errors.New("no downloadable files for the given IDs")

	// ErrEmptyRequest signals a submission without any item IDs.
	ErrEmptyRequest = errors.New("no item IDs requested")
)
