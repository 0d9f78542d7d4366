package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/store"
)

// SupervisorConfig carries the sweep period and the three deadlines the
// supervisor enforces.
type SupervisorConfig struct {
	// Interval is the sweep period.
	Interval time.Duration

	// PendingTimeout is the pickup deadline: how long a task may sit
	// pending (measured from its last update) before the retry path kicks
	// in.
	PendingTimeout time.Duration

	// ProcessingTimeout is how long a claimed task may stay processing
	// before it is reclaimed from its consumer.
	ProcessingTimeout time.Duration

	// HeartbeatTimeout is how long a consumer may go silent while holding
	// a task before it is presumed dead.
	HeartbeatTimeout time.Duration
}

// Supervisor is the broker's only background worker. On a fixed period it
// requeues due retries, times out stuck pending and processing tasks and
// reclaims work from consumers that stopped heartbeating. Timeouts live
// here, server-side, because consumers are external processes that may
// crash or hang without notice.
type Supervisor struct {
	svc       *Service
	tasks     store.TaskStore
	consumers store.ConsumerStore
	cfg       SupervisorConfig
	logger    *slog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool
}

// NewSupervisor creates a supervisor. Call Start to begin sweeping.
func NewSupervisor(
	svc *Service,
	tasks store.TaskStore,
	consumers store.ConsumerStore,
	cfg SupervisorConfig,
	logger *slog.Logger,
) *Supervisor {
	return &Supervisor{
		svc:       svc,
		tasks:     tasks,
		consumers: consumers,
		cfg:       cfg,
		logger:    logger.With("component", "supervisor"),
	}
}

// Start launches the sweep goroutine.
func (s *Supervisor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("supervisor started",
		"interval", s.cfg.Interval,
		"pending_timeout", s.cfg.PendingTimeout,
		"processing_timeout", s.cfg.ProcessingTimeout,
		"heartbeat_timeout", s.cfg.HeartbeatTimeout)
}

// Stop halts the sweep goroutine and waits for an in-progress sweep to
// finish.
func (s *Supervisor) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("supervisor stopped")
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one full pass of the supervisor's sweeps. A sweep already in
// flight makes this call a no-op: sweeps never overlap.
func (s *Supervisor) Sweep(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer s.inFlight.Store(false)

	now := time.Now().UTC()

	if err := s.requeueDueRetries(ctx, now); err != nil {
		return fmt.Errorf("retry-due sweep: %w", err)
	}
	if err := s.sweepPending(ctx, now); err != nil {
		return fmt.Errorf("pending-timeout sweep: %w", err)
	}
	if err := s.sweepProcessing(ctx, now); err != nil {
		return fmt.Errorf("processing-timeout sweep: %w", err)
	}
	if err := s.sweepDeadConsumers(ctx, now); err != nil {
		return fmt.Errorf("dead-consumer sweep: %w", err)
	}

	return nil
}

// requeueDueRetries moves retrying tasks whose backoff deadline has passed
// back into the pending queue. The retry counter does not change here; it
// was spent when the retry was scheduled.
func (s *Supervisor) requeueDueRetries(ctx context.Context, now time.Time) error {
	due, err := s.tasks.ListRetryDue(ctx, now)
	if err != nil {
		return err
	}

	for _, task := range due {
		task.Status = domain.TaskStatusPending
		task.NextRetryAt = nil
		task.UpdatedAt = now

		if err := s.tasks.Transition(ctx, task, domain.TaskStatusRetrying); err != nil {
			if store.IsConflictError(err) || store.IsNotFoundError(err) {
				continue
			}
			s.logger.Error("failed to requeue retry-due task",
				"task_id", task.ID, "error", err)
			continue
		}

		s.logger.Info("retry backoff elapsed, task requeued",
			"task_id", task.ID,
			"retry_count", task.RetryCount)
		s.svc.publisher.Publish(events.EventTaskRequeued, task)
	}

	return nil
}

// sweepPending times out tasks that sat pending past the pickup deadline:
// schedule a backoff retry while budget remains, dead-letter once
// exhausted.
func (s *Supervisor) sweepPending(ctx context.Context, now time.Time) error {
	stuck, err := s.tasks.ListPendingOlderThan(ctx, now.Add(-s.cfg.PendingTimeout))
	if err != nil {
		return err
	}

	for _, task := range stuck {
		s.logger.Warn("pending task exceeded pickup deadline",
			"task_id", task.ID,
			"age", now.Sub(task.UpdatedAt),
			"retry_count", task.RetryCount)

		_, err := s.svc.retryOrDeadLetter(ctx, task, domain.TaskStatusPending,
			"pending pickup deadline exceeded", false, events.EventTaskRetrying)
		if err != nil && !store.IsConflictError(err) && !store.IsNotFoundError(err) {
			s.logger.Error("failed to time out pending task",
				"task_id", task.ID, "error", err)
		}
	}

	return nil
}

// sweepProcessing reclaims tasks whose consumer has been processing past
// the deadline: straight back to pending (no backoff) with the counter
// incremented, or dead-lettered once exhausted. The consumer's lock and
// current-task marker are cleared either way.
func (s *Supervisor) sweepProcessing(ctx context.Context, now time.Time) error {
	stuck, err := s.tasks.ListProcessingOlderThan(ctx, now.Add(-s.cfg.ProcessingTimeout))
	if err != nil {
		return err
	}

	for _, task := range stuck {
		var owner string
		if task.ConsumerID != nil {
			owner = *task.ConsumerID
		}

		s.logger.Warn("processing task exceeded deadline, reclaiming",
			"task_id", task.ID,
			"consumer_id", owner,
			"retry_count", task.RetryCount)

		s.reclaim(ctx, task, owner, "processing deadline exceeded")
	}

	return nil
}

// sweepDeadConsumers treats a silent consumer exactly as a timed-out
// processing task: its task is force-returned to the queue and the
// registration is removed.
func (s *Supervisor) sweepDeadConsumers(ctx context.Context, now time.Time) error {
	stale, err := s.consumers.ListStale(ctx, now.Add(-s.cfg.HeartbeatTimeout))
	if err != nil {
		return err
	}

	for _, consumer := range stale {
		if consumer.CurrentTaskID == nil {
			continue
		}

		s.logger.Warn("consumer stopped heartbeating, reclaiming its task",
			"consumer_id", consumer.ID,
			"task_id", *consumer.CurrentTaskID,
			"last_heartbeat", consumer.LastHeartbeat)

		task, err := s.tasks.GetByID(ctx, *consumer.CurrentTaskID)
		if err != nil {
			if !store.IsNotFoundError(err) {
				s.logger.Error("failed to load task of dead consumer",
					"consumer_id", consumer.ID, "error", err)
				continue
			}
		} else if task.Status == domain.TaskStatusProcessing &&
			task.ConsumerID != nil && *task.ConsumerID == consumer.ID {
			s.reclaim(ctx, task, consumer.ID, "consumer heartbeat lost")
		}

		if err := s.svc.registry.Remove(ctx, consumer.ID); err != nil && !store.IsNotFoundError(err) {
			s.logger.Error("failed to remove dead consumer",
				"consumer_id", consumer.ID, "error", err)
		}
	}

	return nil
}

// reclaim pulls a processing task back from its consumer through the
// shared failure policy and releases whatever the consumer held.
func (s *Supervisor) reclaim(ctx context.Context, task *domain.Task, owner, reason string) {
	updated, err := s.svc.retryOrDeadLetter(ctx, task, domain.TaskStatusProcessing,
		reason, true, events.EventTaskRequeued)
	if err != nil {
		if !store.IsConflictError(err) && !store.IsNotFoundError(err) {
			s.logger.Error("failed to reclaim processing task",
				"task_id", task.ID, "error", err)
		}
		return
	}

	s.svc.releaseLockIfWrite(ctx, updated, owner)
	s.svc.registry.clearCurrentTask(ctx, owner)
}
