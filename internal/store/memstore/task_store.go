package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/store"
)

// TaskStore is an in-memory implementation of store.TaskStore. It mirrors
// the Postgres implementation's compare-and-set semantics with a mutex so
// broker logic can be tested without a database.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// Create implements store.TaskStore.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}

	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// GetByID implements store.TaskStore.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// ListPending implements store.TaskStore.
func (s *TaskStore) ListPending(ctx context.Context) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*domain.Task
	for _, task := range s.tasks {
		if task.Status == domain.TaskStatusPending {
			pending = append(pending, cloneTask(task))
		}
	}

	sortForDispatch(pending)
	return pending, nil
}

// ListPendingOlderThan implements store.TaskStore.
func (s *TaskStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Task, error) {
	return s.listByStatus(domain.TaskStatusPending, func(t *domain.Task) bool {
		return t.UpdatedAt.Before(cutoff)
	})
}

// ListProcessingOlderThan implements store.TaskStore.
func (s *TaskStore) ListProcessingOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Task, error) {
	return s.listByStatus(domain.TaskStatusProcessing, func(t *domain.Task) bool {
		return t.ProcessingAt != nil && t.ProcessingAt.Before(cutoff)
	})
}

// ListRetryDue implements store.TaskStore.
func (s *TaskStore) ListRetryDue(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	return s.listByStatus(domain.TaskStatusRetrying, func(t *domain.Task) bool {
		return t.NextRetryAt != nil && !t.NextRetryAt.After(now)
	})
}

func (s *TaskStore) listByStatus(status domain.TaskStatus, match func(*domain.Task) bool) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Task
	for _, task := range s.tasks {
		if task.Status == status && match(task) {
			matched = append(matched, cloneTask(task))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

// Transition implements store.TaskStore. The update is applied only when
// the stored status still matches from.
func (s *TaskStore) Transition(ctx context.Context, task *domain.Task, from domain.TaskStatus) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[task.ID]
	if !ok {
		return store.ErrTaskNotFound
	}

	if current.Status != from {
		return store.ErrConflictingState
	}

	updated := cloneTask(task)
	updated.UpdatedAt = time.Now().UTC()
	s.tasks[task.ID] = updated
	return nil
}

// Delete implements store.TaskStore.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}

	if !force && !task.IsTerminal() {
		return store.ErrProtected
	}

	delete(s.tasks, id)
	return nil
}

// CountByStatus implements store.TaskStore.
func (s *TaskStore) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.TaskStatus]int)
	for _, task := range s.tasks {
		counts[task.Status]++
	}
	return counts, nil
}

// WithTx implements store.TaskStore. The in-memory store has no
// transactions; it returns itself.
func (s *TaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return s
}

// sortForDispatch orders tasks priority band first, then creation time
// ascending (stable FIFO within a band).
func sortForDispatch(tasks []*domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := domain.PriorityRank(tasks[i].Priority), domain.PriorityRank(tasks[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

func cloneTask(t *domain.Task) *domain.Task {
	clone := *t
	clone.ConsumerID = cloneStr(t.ConsumerID)
	clone.Response = cloneStr(t.Response)
	clone.Error = cloneStr(t.Error)
	clone.ReviewNote = cloneStr(t.ReviewNote)
	clone.ProcessingAt = cloneTime(t.ProcessingAt)
	clone.CompletedAt = cloneTime(t.CompletedAt)
	clone.NextRetryAt = cloneTime(t.NextRetryAt)
	return &clone
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
