package broker_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/broker"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArbiter(t *testing.T, staleness time.Duration) (*broker.FileLockArbiter, *memstore.FileLockStore, *recordingPublisher) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := &recordingPublisher{}
	locks := memstore.NewFileLockStore()
	return broker.NewFileLockArbiter(locks, pub, staleness, logger), locks, pub
}

func TestArbiterAcquireAndRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	arbiter, _, pub := newArbiter(t, 30*time.Minute)
	taskID := uuid.New()

	acquired, err := arbiter.Acquire(ctx, "worker-1", taskID)
	require.NoError(t, err)
	assert.True(t, acquired)

	lock, err := arbiter.Status(ctx)
	require.NoError(t, err)
	assert.True(t, lock.HeldByConsumer("worker-1"))
	require.NotNil(t, lock.TaskID)
	assert.Equal(t, taskID, *lock.TaskID)

	// Another consumer cannot take a held lock.
	acquired, err = arbiter.Acquire(ctx, "worker-2", uuid.New())
	require.NoError(t, err)
	assert.False(t, acquired)

	// Re-acquisition by the holder is idempotent.
	acquired, err = arbiter.Acquire(ctx, "worker-1", taskID)
	require.NoError(t, err)
	assert.True(t, acquired)

	released, err := arbiter.Release(ctx, "worker-2")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = arbiter.Release(ctx, "worker-1")
	require.NoError(t, err)
	assert.True(t, released)

	lock, err = arbiter.Status(ctx)
	require.NoError(t, err)
	assert.False(t, lock.IsHeld())

	assert.Equal(t, 2, pub.countOfType(events.EventFileLockAcquired))
	assert.Equal(t, 1, pub.countOfType(events.EventFileLockReleased))
}

func TestArbiterForceRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	arbiter, locks, pub := newArbiter(t, 30*time.Minute)
	locks.SetForTest("worker-1", uuid.New(), time.Now().UTC())

	require.NoError(t, arbiter.ForceRelease(ctx))

	lock, err := arbiter.Status(ctx)
	require.NoError(t, err)
	assert.False(t, lock.IsHeld())
	assert.Equal(t, 1, pub.countOfType(events.EventFileLockReleased))

	// Force-releasing an unheld lock is a quiet no-op.
	require.NoError(t, arbiter.ForceRelease(ctx))
	assert.Equal(t, 1, pub.countOfType(events.EventFileLockReleased))
}

func TestArbiterRecoverStaleReleasesAbandonedLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	arbiter, locks, pub := newArbiter(t, 30*time.Minute)
	locks.SetForTest("worker-1", uuid.New(), time.Now().UTC().Add(-time.Hour))

	require.NoError(t, arbiter.RecoverStale(ctx))

	lock, err := arbiter.Status(ctx)
	require.NoError(t, err)
	assert.False(t, lock.IsHeld())
	assert.Equal(t, 1, pub.countOfType(events.EventFileLockReleased))
}

func TestArbiterRecoverStaleKeepsFreshLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	arbiter, locks, _ := newArbiter(t, 30*time.Minute)
	locks.SetForTest("worker-1", uuid.New(), time.Now().UTC().Add(-time.Minute))

	require.NoError(t, arbiter.RecoverStale(ctx))

	lock, err := arbiter.Status(ctx)
	require.NoError(t, err)
	assert.True(t, lock.HeldByConsumer("worker-1"))
}

func TestArbiterRecoverStaleUnheldLock(t *testing.T) {
	t.Parallel()

	arbiter, _, _ := newArbiter(t, 30*time.Minute)
	require.NoError(t, arbiter.RecoverStale(context.Background()))
}
