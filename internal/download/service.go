package download

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/plantwatch/plantdata-api/internal/domain"
	"github.com/plantwatch/plantdata-api/internal/platform/logger"
	"github.com/plantwatch/plantdata-api/internal/quota"
	"github.com/plantwatch/plantdata-api/internal/store"
)

// TaskMessage is the queue payload handed to the packaging workers.
type TaskMessage struct {
	TaskID  uuid.UUID `json:"task_id"`
	Owner   uuid.UUID `json:"owner"`
	ItemIDs []int64   `json:"item_ids"`
}

// Publisher publishes task messages to the download queue.
type Publisher interface {
	Publish(ctx context.Context, msg TaskMessage) error
}

// QuotaLedger is the admission-control collaborator of the facade.
type QuotaLedger interface {
	TryConsume(ctx context.Context, caller domain.Caller, cost int) (bool, int64, error)
	Status(ctx context.Context, caller domain.Caller) (quota.Status, error)
}

// Service is the submission/query facade of the download pipeline. Both the
// asynchronous path (Submit/Status/FetchResult) and the synchronous fallback
// (DownloadDirect) run through the same quota ledger and archive routine.
type Service struct {
	quota     QuotaLedger
	tasks     TaskStore
	results   ResultStore
	records   store.DataFileStore
	publisher Publisher
}

// NewService creates the download facade with its collaborators.
func NewService(
	quota QuotaLedger,
	tasks TaskStore,
	results ResultStore,
	records store.DataFileStore,
	publisher Publisher,
) *Service {
	return &Service{
		quota:     quota,
		tasks:     tasks,
		results:   results,
		records:   records,
		publisher: publisher,
	}
}

// Submit admits a bulk-download request, creates its task record and
// publishes the packaging message. It returns as soon as the message is
// queued; it never waits on packaging. The quota cost is the number of
// requested items (both paths share this rule, see DownloadDirect).
func (s *Service) Submit(ctx context.Context, caller domain.Caller, itemIDs []int64) (uuid.UUID, error) {
	if err := s.admit(ctx, caller, itemIDs); err != nil {
		return uuid.Nil, err
	}

	taskID, err := s.tasks.Create(ctx, caller.ID, len(itemIDs))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create download task: %w", err)
	}

	msg := TaskMessage{TaskID: taskID, Owner: caller.ID, ItemIDs: itemIDs}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		// The task record exists but no worker will ever pick it up.
		// Mark it failed so the caller's poll does not hang on "queued".
		if serr := s.tasks.SetStatus(ctx, taskID, StatusError); serr != nil {
			logger.FromContext(ctx).Error("failed to fail task after publish error",
				"task_id", taskID,
				"error", serr)
		}
		return uuid.Nil, fmt.Errorf("failed to publish download task: %w", err)
	}

	logger.FromContext(ctx).Info("download task submitted",
		"task_id", taskID,
		"owner", caller.ID,
		"item_count", len(itemIDs))

	return taskID, nil
}

// Status returns the task's current lifecycle state. Callers may only query
// their own tasks; admins may query any.
func (s *Service) Status(ctx context.Context, taskID uuid.UUID, caller domain.Caller) (Status, error) {
	task, err := s.ownedTask(ctx, taskID, caller)
	if err != nil {
		return "", err
	}
	return task.Status, nil
}

// FetchResult returns the packaged archive, gated on the task having
// reached done. Anything else yields ErrResultNotReady or ErrTaskNotFound.
func (s *Service) FetchResult(ctx context.Context, taskID uuid.UUID, caller domain.Caller) ([]byte, error) {
	task, err := s.ownedTask(ctx, taskID, caller)
	if err != nil {
		return nil, err
	}

	if task.Status != StatusDone {
		return nil, ErrResultNotReady
	}

	data, err := s.results.Get(ctx, taskID)
	if errors.Is(err, ErrTaskNotFound) {
		// Status says done but the blob has expired underneath it.
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}

	return data, nil
}

// DownloadDirect is the synchronous fallback for small immediate requests:
// the same quota consume and the same archive routine as the asynchronous
// path, run inline with no task record. Both paths share the admit helper,
// so they cannot drift apart on role or quota rules.
func (s *Service) DownloadDirect(ctx context.Context, caller domain.Caller, itemIDs []int64) ([]byte, error) {
	if err := s.admit(ctx, caller, itemIDs); err != nil {
		return nil, err
	}

	files, err := s.records.ResolveFiles(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	archive, err := BuildArchive(files)
	if err != nil {
		return nil, fmt.Errorf("failed to build archive: %w", err)
	}

	return archive, nil
}

// Quota reports the caller's current quota standing.
func (s *Service) Quota(ctx context.Context, caller domain.Caller) (quota.Status, error) {
	return s.quota.Status(ctx, caller)
}

// admit runs the shared role and quota gate for both download paths.
func (s *Service) admit(ctx context.Context, caller domain.Caller, itemIDs []int64) error {
	if caller.Role == domain.RoleGuest {
		return ErrDownloadForbidden
	}
	if len(itemIDs) == 0 {
		return ErrEmptyRequest
	}

	allowed, remaining, err := s.quota.TryConsume(ctx, caller, len(itemIDs))
	if err != nil {
		// Fail closed: an unreachable ledger denies admission.
		return fmt.Errorf("quota check unavailable: %w", err)
	}
	if !allowed {
		logger.FromContext(ctx).Info("download rejected by quota",
			"owner", caller.ID,
			"requested", len(itemIDs),
			"remaining", remaining)
		return ErrQuotaExceeded
	}

	return nil
}

// ownedTask loads a task and enforces the ownership rule.
func (s *Service) ownedTask(ctx context.Context, taskID uuid.UUID, caller domain.Caller) (*Task, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Owner != caller.ID && !caller.Admin() {
		return nil, ErrTaskNotOwned
	}
	return task, nil
}
