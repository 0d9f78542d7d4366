package api_test

import (
	"bytes"
	"fmt"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/api"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitTaskEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/tasks", map[string]string{
		"content": "explain the build log",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	task := decodeBody[domain.Task](t, rec)
	assert.Equal(t, "explain the build log", task.Content)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, domain.TaskPriorityNormal, task.Priority)
	assert.Equal(t, domain.TaskTypeReadOnly, task.Type)
}

func TestSubmitTaskExplicitTypeAndPriority(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/tasks", map[string]string{
		"content":  "explain the build log",
		"priority": "high",
		"taskType": "write",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	task := decodeBody[domain.Task](t, rec)
	assert.Equal(t, domain.TaskPriorityHigh, task.Priority)
	assert.Equal(t, domain.TaskTypeWrite, task.Type)
}

func TestSubmitTaskValidation(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/tasks", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/tasks", map[string]string{
		"content":  "do something",
		"priority": "urgent",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTaskMalformedJSON(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "summarize the deploy log", domain.TaskTypeReadOnly)

	rec := e.do(t, http.MethodGet, "/tasks/"+task.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[domain.Task](t, rec)
	assert.Equal(t, task.ID, got.ID)

	rec = e.do(t, http.MethodGet, "/tasks/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/tasks/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPendingReturnsEmptyArray(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/tasks/pending", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListPendingDispatchOrder(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.submitTask(t, "low priority chore", domain.TaskTypeReadOnly)
	high, err := e.svc.Submit(context.Background(), "urgent fix", domain.TaskPriorityHigh, nil)
	require.NoError(t, err)

	rec := e.do(t, http.MethodGet, "/tasks/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decodeBody[[]domain.Task](t, rec)
	require.Len(t, tasks, 2)
	assert.Equal(t, high.ID, tasks[0].ID)
}

func TestNextEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/tasks/next", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "consumerId is required")

	rec = e.do(t, http.MethodGet, "/tasks/next?consumerId=worker-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	next := decodeBody[api.NextTaskResponse](t, rec)
	assert.Nil(t, next.Task)
	assert.Empty(t, next.Reason)

	task := e.submitTask(t, "update the config", domain.TaskTypeWrite)
	rec = e.do(t, http.MethodGet, "/tasks/next?consumerId=worker-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	next = decodeBody[api.NextTaskResponse](t, rec)
	require.NotNil(t, next.Task)
	assert.Equal(t, task.ID, next.Task.ID)
}

func TestNextEndpointReportsLockReason(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.submitTask(t, "update the config", domain.TaskTypeWrite)
	e.locks.SetForTest("worker-1", uuid.New(), time.Now().UTC())

	rec := e.do(t, http.MethodGet, "/tasks/next?consumerId=worker-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	next := decodeBody[api.NextTaskResponse](t, rec)
	assert.Nil(t, next.Task)
	assert.Equal(t, "file_lock_held", next.Reason)
}

func TestClaimEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "summarize the deploy log", domain.TaskTypeReadOnly)

	rec := e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/claim", task.ID), map[string]string{
		"consumerId": "worker-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	claimed := decodeBody[domain.Task](t, rec)
	assert.Equal(t, domain.TaskStatusProcessing, claimed.Status)

	// Claiming again conflicts.
	rec = e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/claim", task.ID), map[string]string{
		"consumerId": "worker-2",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClaimEndpointLockedWrite(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "update the config", domain.TaskTypeWrite)
	e.locks.SetForTest("worker-1", uuid.New(), time.Now().UTC())

	rec := e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/claim", task.ID), map[string]string{
		"consumerId": "worker-2",
	})
	assert.Equal(t, http.StatusLocked, rec.Code)
}

func TestClaimEndpointValidation(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "summarize the deploy log", domain.TaskTypeReadOnly)

	rec := e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/claim", task.ID), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRespondEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "summarize the deploy log", domain.TaskTypeReadOnly)
	e.claimTask(t, task.ID, "worker-1")

	rec := e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/respond", task.ID), map[string]string{
		"response": "three deploys, all green",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	done := decodeBody[domain.Task](t, rec)
	assert.Equal(t, domain.TaskStatusCompleted, done.Status)
	require.NotNil(t, done.Response)
	assert.Equal(t, "three deploys, all green", *done.Response)
}

func TestCompleteEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "update the config", domain.TaskTypeWrite)
	e.claimTask(t, task.ID, "worker-1")

	// Neither response nor error is a client error.
	rec := e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/complete", task.ID), map[string]string{
		"consumerId": "worker-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/complete", task.ID), map[string]string{
		"consumerId": "worker-1",
		"error":      "could not apply",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decodeBody[domain.Task](t, rec)
	assert.Equal(t, domain.TaskStatusRetrying, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
}

func TestCompleteEndpointWrongConsumer(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "summarize the deploy log", domain.TaskTypeReadOnly)
	e.claimTask(t, task.ID, "worker-1")

	rec := e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/complete", task.ID), map[string]string{
		"consumerId": "worker-2",
		"response":   "done",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReleaseEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "update the config", domain.TaskTypeWrite)
	e.claimTask(t, task.ID, "worker-1")

	rec := e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/release", task.ID), map[string]string{
		"consumerId": "worker-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	released := decodeBody[domain.Task](t, rec)
	assert.Equal(t, domain.TaskStatusPending, released.Status)
	assert.Equal(t, 0, released.RetryCount)
}

func TestRejectEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "update the config", domain.TaskTypeWrite)

	rec := e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/reject", task.ID), map[string]string{
		"reason":   "touches production data",
		"category": "out_of_scope",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rejected := decodeBody[domain.Task](t, rec)
	assert.Equal(t, domain.TaskStatusRejected, rejected.Status)
	require.NotNil(t, rejected.Error)
	assert.Equal(t, "rejected (out_of_scope): touches production data", *rejected.Error)
}

func TestReviewEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "update the config", domain.TaskTypeWrite)

	rec := e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/review", task.ID), map[string]string{
		"note": "which config file?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	flagged := decodeBody[domain.Task](t, rec)
	assert.Equal(t, domain.TaskStatusNeedsReview, flagged.Status)
}

func TestResubmitEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "update the config", domain.TaskTypeWrite)

	// Flag it first; pending tasks are not resubmittable.
	rec := e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/resubmit", task.ID), map[string]string{})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/review", task.ID), map[string]string{
		"note": "hold on",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/tasks/%s/resubmit", task.ID), map[string]string{
		"priority": "high",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resubmitted := decodeBody[domain.Task](t, rec)
	assert.Equal(t, domain.TaskStatusPending, resubmitted.Status)
	assert.Equal(t, domain.TaskPriorityHigh, resubmitted.Priority)
}

func TestDeleteEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	task := e.submitTask(t, "summarize the deploy log", domain.TaskTypeReadOnly)

	rec := e.do(t, http.MethodDelete, "/tasks/"+task.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "active tasks are protected")

	rec = e.do(t, http.MethodDelete, "/tasks/"+task.ID.String()+"?force=true", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/tasks/"+task.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeadLetterEndpoints(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/deadletters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	dl, err := domain.NewDeadLetter(uuid.New(), "kept failing", "original content")
	require.NoError(t, err)
	require.NoError(t, e.deadLetters.Create(context.Background(), dl))

	rec = e.do(t, http.MethodGet, "/deadletters?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	letters := decodeBody[[]domain.DeadLetter](t, rec)
	require.Len(t, letters, 1)
	assert.Equal(t, "kept failing", letters[0].Reason)

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/tasks/%s/deadletters", dl.TaskID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	letters = decodeBody[[]domain.DeadLetter](t, rec)
	require.Len(t, letters, 1)
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.submitTask(t, "summarize the deploy log", domain.TaskTypeReadOnly)

	rec := e.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decodeBody[map[string]any](t, rec)
	assert.Contains(t, stats, "tasks_by_status")
	assert.Contains(t, stats, "consumers")
	assert.Contains(t, stats, "file_lock")
}
