package broker_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/taskrelay/internal/broker"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSupervisorFixture(t *testing.T, cfg broker.SupervisorConfig) (*fixture, *broker.Supervisor) {
	t.Helper()

	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sup := broker.NewSupervisor(f.svc, f.tasks, f.consumers, cfg, logger)
	return f, sup
}

func defaultSupervisorConfig() broker.SupervisorConfig {
	return broker.SupervisorConfig{
		Interval:          time.Minute,
		PendingTimeout:    5 * time.Minute,
		ProcessingTimeout: 10 * time.Minute,
		HeartbeatTimeout:  2 * time.Minute,
	}
}

func TestSweepRequeuesDueRetries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, sup := newSupervisorFixture(t, defaultSupervisorConfig())

	dueAt := time.Now().UTC().Add(-time.Second)
	task, err := domain.NewTask("update the config", domain.TaskPriorityNormal, domain.TaskTypeWrite)
	require.NoError(t, err)
	task.Status = domain.TaskStatusRetrying
	task.RetryCount = 1
	task.NextRetryAt = &dueAt
	f.seedTask(t, task)

	require.NoError(t, sup.Sweep(ctx))

	got := f.getTask(t, task.ID)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Nil(t, got.NextRetryAt)
	// The retry was spent when it was scheduled, not when it requeues.
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, 1, f.pub.countOfType(events.EventTaskRequeued))
}

func TestSweepLeavesFutureRetriesAlone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, sup := newSupervisorFixture(t, defaultSupervisorConfig())

	futureAt := time.Now().UTC().Add(time.Hour)
	task, err := domain.NewTask("update the config", domain.TaskPriorityNormal, domain.TaskTypeWrite)
	require.NoError(t, err)
	task.Status = domain.TaskStatusRetrying
	task.RetryCount = 1
	task.NextRetryAt = &futureAt
	f.seedTask(t, task)

	require.NoError(t, sup.Sweep(ctx))

	got := f.getTask(t, task.ID)
	assert.Equal(t, domain.TaskStatusRetrying, got.Status)
	require.NotNil(t, got.NextRetryAt)
}

func TestSweepTimesOutStuckPendingTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, sup := newSupervisorFixture(t, defaultSupervisorConfig())

	task, err := domain.NewTask("update the config", domain.TaskPriorityNormal, domain.TaskTypeWrite)
	require.NoError(t, err)
	task.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	f.seedTask(t, task)

	require.NoError(t, sup.Sweep(ctx))

	got := f.getTask(t, task.ID)
	assert.Equal(t, domain.TaskStatusRetrying, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.NextRetryAt)
	assert.True(t, got.NextRetryAt.After(time.Now().UTC()))
	require.NotNil(t, got.Error)
	assert.Equal(t, "pending pickup deadline exceeded", *got.Error)
	assert.Equal(t, 1, f.pub.countOfType(events.EventTaskRetrying))
}

func TestSweepFreshPendingTaskUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, sup := newSupervisorFixture(t, defaultSupervisorConfig())
	task := f.submit(t, "update the config", "", domain.TaskTypeWrite)

	require.NoError(t, sup.Sweep(ctx))

	got := f.getTask(t, task.ID)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
}

func TestSweepPendingTimeoutExhaustsIntoDeadLetter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, sup := newSupervisorFixture(t, defaultSupervisorConfig())

	task, err := domain.NewTask("update the config", domain.TaskPriorityNormal, domain.TaskTypeWrite)
	require.NoError(t, err)
	task.RetryCount = task.MaxRetries - 1
	task.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	f.seedTask(t, task)

	require.NoError(t, sup.Sweep(ctx))

	got := f.getTask(t, task.ID)
	assert.Equal(t, domain.TaskStatusNeedsReview, got.Status)
	assert.Equal(t, got.MaxRetries, got.RetryCount)

	letters, err := f.deadLetters.ListByTaskID(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "pending pickup deadline exceeded", letters[0].Reason)

	// Sweeping again must not produce a second dead letter.
	require.NoError(t, sup.Sweep(ctx))
	letters, err = f.deadLetters.ListByTaskID(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, letters, 1)
}

func TestSweepReclaimsTimedOutProcessingTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, sup := newSupervisorFixture(t, defaultSupervisorConfig())

	_, err := f.svc.RegisterConsumer(ctx, "worker-1", "build agent")
	require.NoError(t, err)

	consumerID := "worker-1"
	staleAt := time.Now().UTC().Add(-time.Hour)
	task, err := domain.NewTask("update the config", domain.TaskPriorityNormal, domain.TaskTypeWrite)
	require.NoError(t, err)
	task.Status = domain.TaskStatusProcessing
	task.ConsumerID = &consumerID
	task.ProcessingAt = &staleAt
	f.seedTask(t, task)
	f.locks.SetForTest(consumerID, task.ID, staleAt)
	require.NoError(t, f.registry.Heartbeat(ctx, consumerID, &task.ID))

	require.NoError(t, sup.Sweep(ctx))

	got := f.getTask(t, task.ID)
	// Reclaims go straight back to pending, no backoff hold.
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Nil(t, got.NextRetryAt)
	assert.Nil(t, got.ConsumerID)
	require.NotNil(t, got.Error)
	assert.Equal(t, "processing deadline exceeded", *got.Error)

	assert.False(t, f.lockState(t).IsHeld())

	consumer, err := f.registry.Get(ctx, consumerID)
	require.NoError(t, err)
	assert.Nil(t, consumer.CurrentTaskID)

	assert.Equal(t, 1, f.pub.countOfType(events.EventTaskRequeued))
}

func TestSweepReclaimsTasksOfDeadConsumers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, sup := newSupervisorFixture(t, defaultSupervisorConfig())

	consumerID := "worker-1"
	now := time.Now().UTC()
	task, err := domain.NewTask("update the config", domain.TaskPriorityNormal, domain.TaskTypeWrite)
	require.NoError(t, err)
	task.Status = domain.TaskStatusProcessing
	task.ConsumerID = &consumerID
	task.ProcessingAt = &now // fresh: only the heartbeat is stale
	f.seedTask(t, task)
	f.locks.SetForTest(consumerID, task.ID, now)

	silent := &domain.Consumer{
		ID:            consumerID,
		Name:          "build agent",
		LastHeartbeat: now.Add(-time.Hour),
		CurrentTaskID: &task.ID,
		RegisteredAt:  now.Add(-2 * time.Hour),
	}
	require.NoError(t, f.consumers.Upsert(ctx, silent))

	require.NoError(t, sup.Sweep(ctx))

	got := f.getTask(t, task.ID)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.Error)
	assert.Equal(t, "consumer heartbeat lost", *got.Error)

	assert.False(t, f.lockState(t).IsHeld())

	_, err = f.registry.Get(ctx, consumerID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, f.pub.countOfType(events.EventConsumerOffline))
}

func TestSweepIgnoresIdleStaleConsumers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, sup := newSupervisorFixture(t, defaultSupervisorConfig())

	now := time.Now().UTC()
	idle := &domain.Consumer{
		ID:            "worker-1",
		Name:          "build agent",
		LastHeartbeat: now.Add(-time.Hour),
		RegisteredAt:  now.Add(-2 * time.Hour),
	}
	require.NoError(t, f.consumers.Upsert(ctx, idle))

	require.NoError(t, sup.Sweep(ctx))

	// A stale consumer holding no task is left registered; it may simply
	// be between polls.
	_, err := f.registry.Get(ctx, "worker-1")
	assert.NoError(t, err)
}

func TestSweepOrderRequeuesBeforeTimingOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, sup := newSupervisorFixture(t, defaultSupervisorConfig())

	// Due retry whose task also sat around far past the pending timeout:
	// the requeue runs first, and the fresh pending task is not instantly
	// timed out again because requeueing refreshed its update time.
	dueAt := time.Now().UTC().Add(-time.Hour)
	task, err := domain.NewTask("update the config", domain.TaskPriorityNormal, domain.TaskTypeWrite)
	require.NoError(t, err)
	task.Status = domain.TaskStatusRetrying
	task.RetryCount = 1
	task.NextRetryAt = &dueAt
	task.UpdatedAt = dueAt
	f.seedTask(t, task)

	require.NoError(t, sup.Sweep(ctx))

	got := f.getTask(t, task.ID)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestSupervisorStartStop(t *testing.T) {
	t.Parallel()

	_, sup := newSupervisorFixture(t, broker.SupervisorConfig{
		Interval:          10 * time.Millisecond,
		PendingTimeout:    time.Minute,
		ProcessingTimeout: time.Minute,
		HeartbeatTimeout:  time.Minute,
	})

	sup.Start()
	time.Sleep(30 * time.Millisecond)
	sup.Stop()
}

func TestSupervisorStopWithoutStart(t *testing.T) {
	t.Parallel()

	_, sup := newSupervisorFixture(t, defaultSupervisorConfig())
	sup.Stop()
}
