package broker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/classify"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/store"
)

// ReasonFileLockHeld is returned by NextForConsumer when every pending task
// is write-typed and the file lock is held by another consumer.
const ReasonFileLockHeld = "file_lock_held"

// defaultBackoff is used when no backoff schedule is configured.
var defaultBackoff = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

// Service orchestrates the task lifecycle: submission, dispatch, claim,
// completion and the failure/retry paths. All status mutations go through
// the store's guarded Transition, so concurrent callers cannot double-apply
// a transition; the loser gets ErrConflictingState.
type Service struct {
	tasks       store.TaskStore
	deadLetters store.DeadLetterStore
	registry    *ConsumerRegistry
	arbiter     *FileLockArbiter
	classifier  classify.Classifier
	publisher   events.Publisher
	backoff     []time.Duration
	db          *sql.DB
	logger      *slog.Logger
}

// ServiceConfig carries the dependencies for NewService.
type ServiceConfig struct {
	Tasks       store.TaskStore
	DeadLetters store.DeadLetterStore
	Registry    *ConsumerRegistry
	Arbiter     *FileLockArbiter
	Classifier  classify.Classifier
	Publisher   events.Publisher

	// Backoff is the retry delay schedule, indexed by retry attempt and
	// clamped to its last entry. Defaults to 30s/60s/120s when empty.
	Backoff []time.Duration

	// DB, when non-nil, lets the dead-letter path commit the status
	// transition and the audit row in one transaction. The in-memory
	// stores run without it.
	DB *sql.DB

	Logger *slog.Logger
}

// NewService creates the broker service.
func NewService(cfg ServiceConfig) *Service {
	backoff := cfg.Backoff
	if len(backoff) == 0 {
		backoff = defaultBackoff
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &Service{
		tasks:       cfg.Tasks,
		deadLetters: cfg.DeadLetters,
		registry:    cfg.Registry,
		arbiter:     cfg.Arbiter,
		classifier:  cfg.Classifier,
		publisher:   publisher,
		backoff:     backoff,
		db:          cfg.DB,
		logger:      cfg.Logger.With("component", "broker_service"),
	}
}

// Submit creates a new pending task. An empty priority defaults to normal;
// a nil explicitType delegates to the classifier.
func (s *Service) Submit(ctx context.Context, content string, priority domain.TaskPriority, explicitType *domain.TaskType) (*domain.Task, error) {
	if priority == "" {
		priority = domain.TaskPriorityNormal
	}

	var taskType domain.TaskType
	if explicitType != nil {
		taskType = *explicitType
	} else {
		taskType = s.classifier.Classify(content)
	}

	task, err := domain.NewTask(content, priority, taskType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("task submitted",
		"task_id", task.ID,
		"priority", task.Priority,
		"task_type", task.Type)
	s.publisher.Publish(events.EventTaskCreated, task)

	return task, nil
}

// GetTask returns a task by id.
func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.tasks.GetByID(ctx, id)
}

// PendingTasks returns pending tasks in dispatch order.
func (s *Service) PendingTasks(ctx context.Context) ([]*domain.Task, error) {
	return s.tasks.ListPending(ctx)
}

// NextForConsumer returns the next task the consumer is eligible to claim,
// honoring the file-lock rule: write tasks are skipped while the lock is
// held by another consumer. When only blocked write tasks remain, the task
// is nil and the reason is ReasonFileLockHeld. An empty queue returns nil
// with an empty reason.
func (s *Service) NextForConsumer(ctx context.Context, consumerID string) (*domain.Task, string, error) {
	pending, err := s.tasks.ListPending(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list pending tasks: %w", err)
	}
	if len(pending) == 0 {
		return nil, "", nil
	}

	lock, err := s.arbiter.Status(ctx)
	if err != nil {
		return nil, "", err
	}

	blocked := false
	for _, task := range pending {
		if task.Type == domain.TaskTypeReadOnly {
			return task, "", nil
		}
		if !lock.IsHeld() {
			return task, "", nil
		}
		if lock.HeldByConsumer(consumerID) {
			busy, err := s.lockTaskProcessing(ctx, lock, task.ID)
			if err != nil {
				return nil, "", err
			}
			if !busy {
				return task, "", nil
			}
		}
		blocked = true
	}

	if blocked {
		return nil, ReasonFileLockHeld, nil
	}
	return nil, "", nil
}

// Claim transitions a pending task to processing on behalf of consumerID.
// Write tasks must win the file lock first; losing it returns
// store.ErrLockUnavailable, as does claiming a second write task while the
// holder's current one is still processing. A concurrent claim loses the
// status CAS and gets store.ErrConflictingState with the task unchanged.
func (s *Service) Claim(ctx context.Context, taskID uuid.UUID, consumerID string) (*domain.Task, error) {
	if consumerID == "" {
		return nil, fmt.Errorf("%w: consumer id is required", store.ErrInvalidEntity)
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusPending {
		return nil, fmt.Errorf("%w: task %s is %s, not pending", store.ErrConflictingState, taskID, task.Status)
	}

	freshLock := false
	if task.Type == domain.TaskTypeWrite {
		prev, err := s.arbiter.Status(ctx)
		if err != nil {
			return nil, err
		}

		// A holder still processing the lock's recorded write task may not
		// take on a second one: only one write task runs at a time, even
		// for the same consumer.
		if prev.HeldByConsumer(consumerID) {
			busy, err := s.lockTaskProcessing(ctx, prev, taskID)
			if err != nil {
				return nil, err
			}
			if busy {
				return nil, fmt.Errorf("%w: consumer %s is still processing write task %s",
					store.ErrLockUnavailable, consumerID, *prev.TaskID)
			}
		}

		acquired, err := s.arbiter.Acquire(ctx, consumerID, taskID)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, fmt.Errorf("%w: file lock held by another consumer", store.ErrLockUnavailable)
		}
		freshLock = !prev.HeldByConsumer(consumerID)
	}

	now := time.Now().UTC()
	task.Status = domain.TaskStatusProcessing
	task.ConsumerID = &consumerID
	task.ProcessingAt = &now
	task.UpdatedAt = now

	if err := s.tasks.Transition(ctx, task, domain.TaskStatusPending); err != nil {
		// Lost the race. Give back a lock we took for this claim; a lock
		// the consumer already held for other work stays put.
		if freshLock {
			if _, relErr := s.arbiter.Release(ctx, consumerID); relErr != nil {
				s.logger.Error("failed to release lock after lost claim",
					"task_id", taskID, "consumer_id", consumerID, "error", relErr)
			}
		}
		return nil, err
	}

	s.registry.recordClaim(ctx, consumerID, taskID)

	s.logger.Info("task claimed",
		"task_id", taskID,
		"consumer_id", consumerID,
		"task_type", task.Type)
	s.publisher.Publish(events.EventTaskClaimed, task)

	return task, nil
}

// Complete records the outcome of a processing task. A nil procErr means
// success: the task becomes completed, the lock is released and the
// consumer credited. A non-nil procErr routes the task through the
// retry/dead-letter path. An empty consumerID trusts the recorded owner;
// a non-empty one must match it.
func (s *Service) Complete(ctx context.Context, taskID uuid.UUID, consumerID string, response, procErr *string) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusProcessing || task.ConsumerID == nil {
		return nil, fmt.Errorf("%w: task %s is %s, not processing", store.ErrConflictingState, taskID, task.Status)
	}

	owner := *task.ConsumerID
	if consumerID != "" && consumerID != owner {
		return nil, fmt.Errorf("%w: task %s is being processed by %s", store.ErrConflictingState, taskID, owner)
	}

	if procErr != nil {
		return s.failFromProcessing(ctx, task, owner, *procErr)
	}

	now := time.Now().UTC()
	task.Status = domain.TaskStatusCompleted
	task.Response = response
	task.Error = nil
	task.ConsumerID = nil
	task.CompletedAt = &now
	task.UpdatedAt = now

	if err := s.tasks.Transition(ctx, task, domain.TaskStatusProcessing); err != nil {
		return nil, err
	}

	s.releaseLockIfWrite(ctx, task, owner)
	s.registry.creditCompletion(ctx, owner)

	s.logger.Info("task completed", "task_id", taskID, "consumer_id", owner)
	s.publisher.Publish(events.EventTaskCompleted, task)

	return task, nil
}

// Respond is the success-only completion path: it completes the task with
// the given response on behalf of whichever consumer holds it.
func (s *Service) Respond(ctx context.Context, taskID uuid.UUID, response string) (*domain.Task, error) {
	return s.Complete(ctx, taskID, "", &response, nil)
}

// Release is cooperative abandonment: the owning consumer returns the task
// to pending without burning a retry. The file lock is released if the
// task held it.
func (s *Service) Release(ctx context.Context, taskID uuid.UUID, consumerID string) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusProcessing || task.ConsumerID == nil {
		return nil, fmt.Errorf("%w: task %s is %s, not processing", store.ErrConflictingState, taskID, task.Status)
	}

	owner := *task.ConsumerID
	if consumerID != "" && consumerID != owner {
		return nil, fmt.Errorf("%w: task %s is being processed by %s", store.ErrConflictingState, taskID, owner)
	}

	now := time.Now().UTC()
	task.Status = domain.TaskStatusPending
	task.ConsumerID = nil
	task.ProcessingAt = nil
	task.UpdatedAt = now

	if err := s.tasks.Transition(ctx, task, domain.TaskStatusProcessing); err != nil {
		return nil, err
	}

	s.releaseLockIfWrite(ctx, task, owner)
	s.registry.clearCurrentTask(ctx, owner)

	s.logger.Info("task released", "task_id", taskID, "consumer_id", owner)
	s.publisher.Publish(events.EventTaskReleased, task)

	return task, nil
}

// rejectionEvent is the payload broadcast for task rejections; the
// documented cause rides alongside the task snapshot.
type rejectionEvent struct {
	Task     *domain.Task `json:"task"`
	Reason   string       `json:"reason"`
	Category string       `json:"category"`
}

// Reject terminates a non-terminal task with a documented cause. The
// reason and category are recorded on the task and carried in the event.
func (s *Service) Reject(ctx context.Context, taskID uuid.UUID, reason, category string) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.IsTerminal() {
		return nil, fmt.Errorf("%w: task %s is already %s", store.ErrConflictingState, taskID, task.Status)
	}

	from := task.Status
	var owner string
	if task.ConsumerID != nil {
		owner = *task.ConsumerID
	}

	now := time.Now().UTC()
	cause := fmt.Sprintf("rejected (%s): %s", category, reason)
	task.Status = domain.TaskStatusRejected
	task.Error = &cause
	task.ConsumerID = nil
	task.CompletedAt = &now
	task.NextRetryAt = nil
	task.UpdatedAt = now

	if err := s.tasks.Transition(ctx, task, from); err != nil {
		return nil, err
	}

	if owner != "" {
		s.releaseLockIfWrite(ctx, task, owner)
		s.registry.clearCurrentTask(ctx, owner)
	}

	s.logger.Info("task rejected",
		"task_id", taskID,
		"category", category,
		"reason", reason)
	s.publisher.Publish(events.EventTaskRejected, rejectionEvent{
		Task:     task,
		Reason:   reason,
		Category: category,
	})

	return task, nil
}

// Review flags a non-terminal task for human attention without
// terminating it.
func (s *Service) Review(ctx context.Context, taskID uuid.UUID, note string) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.IsTerminal() {
		return nil, fmt.Errorf("%w: task %s is already %s", store.ErrConflictingState, taskID, task.Status)
	}

	from := task.Status
	var owner string
	if task.ConsumerID != nil {
		owner = *task.ConsumerID
	}

	now := time.Now().UTC()
	task.Status = domain.TaskStatusNeedsReview
	task.ReviewNote = &note
	task.ConsumerID = nil
	task.ProcessingAt = nil
	task.NextRetryAt = nil
	task.UpdatedAt = now

	if err := s.tasks.Transition(ctx, task, from); err != nil {
		return nil, err
	}

	if owner != "" {
		s.releaseLockIfWrite(ctx, task, owner)
		s.registry.clearCurrentTask(ctx, owner)
	}

	s.logger.Info("task flagged for review", "task_id", taskID)
	s.publisher.Publish(events.EventTaskNeedsReview, task)

	return task, nil
}

// Resubmit resets a failed, needs_review or rejected task back to pending
// with a fresh retry budget. Changed content is re-classified; unchanged
// content keeps the original type.
func (s *Service) Resubmit(ctx context.Context, taskID uuid.UUID, newContent *string, newPriority *domain.TaskPriority) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case domain.TaskStatusFailed, domain.TaskStatusNeedsReview, domain.TaskStatusRejected:
	default:
		return nil, fmt.Errorf("%w: task %s is %s, not resubmittable", store.ErrConflictingState, taskID, task.Status)
	}

	from := task.Status
	now := time.Now().UTC()

	if newContent != nil && *newContent != "" && *newContent != task.Content {
		task.Content = *newContent
		task.Type = s.classifier.Classify(task.Content)
	}
	if newPriority != nil {
		if !domain.IsValidTaskPriority(*newPriority) {
			return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrInvalidPriority)
		}
		task.Priority = *newPriority
	}

	task.Status = domain.TaskStatusPending
	task.RetryCount = 0
	task.ConsumerID = nil
	task.Response = nil
	task.Error = nil
	task.ReviewNote = nil
	task.ProcessingAt = nil
	task.CompletedAt = nil
	task.NextRetryAt = nil
	task.UpdatedAt = now

	if err := s.tasks.Transition(ctx, task, from); err != nil {
		return nil, err
	}

	s.logger.Info("task resubmitted", "task_id", taskID, "task_type", task.Type)
	s.publisher.Publish(events.EventTaskResubmitted, task)

	return task, nil
}

// Delete removes a task. Active tasks (pending, processing, retrying,
// needs_review) are protected unless force is set. Force-deleting a
// processing task also frees its file lock and the consumer's current-task
// marker, so the write queue does not stay blocked behind a vanished task.
func (s *Service) Delete(ctx context.Context, taskID uuid.UUID, force bool) error {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}

	if err := s.tasks.Delete(ctx, taskID, force); err != nil {
		return err
	}

	if task.Status == domain.TaskStatusProcessing && task.ConsumerID != nil {
		owner := *task.ConsumerID
		s.releaseLockIfWrite(ctx, task, owner)
		s.registry.clearCurrentTask(ctx, owner)
	}

	s.logger.Info("task deleted", "task_id", taskID, "force", force)
	s.publisher.Publish(events.EventTaskDeleted, map[string]any{
		"id":    taskID,
		"force": force,
	})
	return nil
}

// Stats is the dashboard snapshot: task counts per status, registered
// consumers and the current lock state.
type Stats struct {
	TasksByStatus map[domain.TaskStatus]int `json:"tasks_by_status"`
	Consumers     int                       `json:"consumers"`
	FileLock      *domain.FileLock          `json:"file_lock"`
}

// GetStats assembles a Stats snapshot.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.tasks.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	consumers, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list consumers: %w", err)
	}

	lock, err := s.arbiter.Status(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		TasksByStatus: counts,
		Consumers:     len(consumers),
		FileLock:      lock,
	}, nil
}

// DeadLetters returns dead letters newest first, paginated.
func (s *Service) DeadLetters(ctx context.Context, limit, offset int) ([]*domain.DeadLetter, error) {
	return s.deadLetters.List(ctx, limit, offset)
}

// DeadLettersForTask returns the dead letters recorded for one task.
func (s *Service) DeadLettersForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.DeadLetter, error) {
	return s.deadLetters.ListByTaskID(ctx, taskID)
}

// RegisterConsumer records a consumer registration.
func (s *Service) RegisterConsumer(ctx context.Context, id, name string) (*domain.Consumer, error) {
	return s.registry.Register(ctx, id, name)
}

// HeartbeatConsumer refreshes a consumer's liveness.
func (s *Service) HeartbeatConsumer(ctx context.Context, id string, currentTaskID *uuid.UUID) error {
	return s.registry.Heartbeat(ctx, id, currentTaskID)
}

// Consumers returns all registered consumers.
func (s *Service) Consumers(ctx context.Context) ([]*domain.Consumer, error) {
	return s.registry.List(ctx)
}

// UnregisterConsumer releases any task the consumer is working back to
// pending, releases the file lock and removes the registration.
func (s *Service) UnregisterConsumer(ctx context.Context, id string) error {
	consumer, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}

	if consumer.CurrentTaskID != nil {
		if _, err := s.Release(ctx, *consumer.CurrentTaskID, id); err != nil && !store.IsConflictError(err) && !store.IsNotFoundError(err) {
			return fmt.Errorf("failed to release task during unregister: %w", err)
		}
	}

	// The consumer may hold the lock without a recorded task.
	if _, err := s.arbiter.Release(ctx, id); err != nil {
		return err
	}

	return s.registry.Remove(ctx, id)
}

// FileLock returns the current lock snapshot.
func (s *Service) FileLock(ctx context.Context) (*domain.FileLock, error) {
	return s.arbiter.Status(ctx)
}

// ReleaseFileLock releases the lock on behalf of consumerID, or
// unconditionally when force is set.
func (s *Service) ReleaseFileLock(ctx context.Context, consumerID string, force bool) error {
	if force {
		return s.arbiter.ForceRelease(ctx)
	}
	if consumerID == "" {
		return fmt.Errorf("%w: consumer id is required unless force is set", store.ErrInvalidEntity)
	}

	released, err := s.arbiter.Release(ctx, consumerID)
	if err != nil {
		return err
	}
	if !released {
		return fmt.Errorf("%w: lock is not held by %s", store.ErrConflictingState, consumerID)
	}
	return nil
}

// failFromProcessing routes a consumer-reported failure: backoff retry
// while budget remains, dead-letter demotion once exhausted.
func (s *Service) failFromProcessing(ctx context.Context, task *domain.Task, owner, reason string) (*domain.Task, error) {
	updated, err := s.retryOrDeadLetter(ctx, task, domain.TaskStatusProcessing, reason, false, events.EventTaskFailed)
	if err != nil {
		return nil, err
	}

	s.releaseLockIfWrite(ctx, updated, owner)
	s.registry.clearCurrentTask(ctx, owner)

	return updated, nil
}

// retryOrDeadLetter applies the shared failure policy. With budget left
// the retry counter increments exactly once and the task either goes to
// retrying with a backoff deadline (direct=false) or straight back to
// pending (direct=true, the supervisor's requeue path). An exhausted
// budget demotes the task to needs_review with one dead-letter row.
func (s *Service) retryOrDeadLetter(ctx context.Context, task *domain.Task, from domain.TaskStatus, reason string, direct bool, eventType string) (*domain.Task, error) {
	now := time.Now().UTC()
	task.ConsumerID = nil
	task.ProcessingAt = nil
	task.Error = &reason
	task.UpdatedAt = now

	if task.RetryCount < task.MaxRetries {
		task.RetryCount++
	}

	if task.RetriesExhausted() {
		return s.deadLetter(ctx, task, from, reason)
	}

	if direct {
		task.Status = domain.TaskStatusPending
		task.NextRetryAt = nil
	} else {
		task.Status = domain.TaskStatusRetrying
		retryAt := now.Add(s.backoffFor(task.RetryCount))
		task.NextRetryAt = &retryAt
	}

	if err := s.tasks.Transition(ctx, task, from); err != nil {
		return nil, err
	}

	s.logger.Info("task scheduled for retry",
		"task_id", task.ID,
		"status", task.Status,
		"retry_count", task.RetryCount,
		"reason", reason)
	s.publisher.Publish(eventType, task)

	return task, nil
}

// deadLetter demotes an exhausted task to needs_review and appends the
// audit record. The guarded transition runs first, so a concurrent sweep
// cannot produce a second dead letter for the same exhaustion; with a
// database handle both writes commit in one transaction.
func (s *Service) deadLetter(ctx context.Context, task *domain.Task, from domain.TaskStatus, reason string) (*domain.Task, error) {
	task.Status = domain.TaskStatusNeedsReview
	task.NextRetryAt = nil

	dl, err := domain.NewDeadLetter(task.ID, reason, task.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if s.db != nil {
		err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
			if err := s.tasks.WithTx(tx).Transition(ctx, task, from); err != nil {
				return err
			}
			return s.deadLetters.WithTx(tx).Create(ctx, dl)
		})
	} else {
		if err = s.tasks.Transition(ctx, task, from); err == nil {
			err = s.deadLetters.Create(ctx, dl)
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Warn("task dead-lettered",
		"task_id", task.ID,
		"retry_count", task.RetryCount,
		"reason", reason)
	s.publisher.Publish(events.EventTaskNeedsReview, task)

	return task, nil
}

// releaseLockIfWrite releases the file lock after a write task leaves
// processing. The release is scoped to the finishing task: a lock the
// holder has since re-pointed at other work stays held. Best effort; a
// failed release is logged and the supervisor's staleness recovery is the
// backstop.
func (s *Service) releaseLockIfWrite(ctx context.Context, task *domain.Task, holder string) {
	if task.Type != domain.TaskTypeWrite || holder == "" {
		return
	}

	lock, err := s.arbiter.Status(ctx)
	if err != nil {
		s.logger.Error("failed to read file lock before release",
			"task_id", task.ID,
			"holder_id", holder,
			"error", err)
		return
	}
	if !lock.HeldByConsumer(holder) {
		return
	}
	if lock.TaskID != nil && *lock.TaskID != task.ID {
		return
	}

	if _, err := s.arbiter.Release(ctx, holder); err != nil {
		s.logger.Error("failed to release file lock",
			"task_id", task.ID,
			"holder_id", holder,
			"error", err)
	}
}

// lockTaskProcessing reports whether the lock's recorded task is still
// processing. A lock with no recorded task, one pointing at the candidate
// itself, or one pointing at a task that no longer exists does not count.
func (s *Service) lockTaskProcessing(ctx context.Context, lock *domain.FileLock, candidate uuid.UUID) (bool, error) {
	if lock.TaskID == nil || *lock.TaskID == candidate {
		return false, nil
	}

	inFlight, err := s.tasks.GetByID(ctx, *lock.TaskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return inFlight.Status == domain.TaskStatusProcessing, nil
}

func (s *Service) backoffFor(retryCount int) time.Duration {
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.backoff) {
		idx = len(s.backoff) - 1
	}
	return s.backoff[idx]
}
