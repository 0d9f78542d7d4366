package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/api"
	apimiddleware "github.com/phrazzld/taskrelay/internal/api/middleware"
	"github.com/phrazzld/taskrelay/internal/broker"
	"github.com/phrazzld/taskrelay/internal/classify"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

// env wires a full service over in-memory stores and the real router
// layout so handler tests exercise the same path the server runs.
type env struct {
	svc         *broker.Service
	tasks       *memstore.TaskStore
	consumers   *memstore.ConsumerStore
	deadLetters *memstore.DeadLetterStore
	locks       *memstore.FileLockStore
	broadcaster *events.Broadcaster
	handler     http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tasks := memstore.NewTaskStore()
	consumers := memstore.NewConsumerStore()
	deadLetters := memstore.NewDeadLetterStore()
	locks := memstore.NewFileLockStore()

	broadcaster := events.NewBroadcaster(64, logger)
	arbiter := broker.NewFileLockArbiter(locks, broadcaster, 30*time.Minute, logger)
	registry := broker.NewConsumerRegistry(consumers, broadcaster, logger)

	svc := broker.NewService(broker.ServiceConfig{
		Tasks:       tasks,
		DeadLetters: deadLetters,
		Registry:    registry,
		Arbiter:     arbiter,
		Classifier:  classify.NewKeywordClassifier(domain.TaskTypeWrite),
		Publisher:   broadcaster,
		Logger:      logger,
	})

	e := &env{
		svc:         svc,
		tasks:       tasks,
		consumers:   consumers,
		deadLetters: deadLetters,
		locks:       locks,
		broadcaster: broadcaster,
	}
	e.handler = newTestRouter(svc, broadcaster, logger)
	return e
}

// newTestRouter mirrors the server's route layout.
func newTestRouter(svc *broker.Service, broadcaster *events.Broadcaster, logger *slog.Logger) http.Handler {
	taskHandler := api.NewTaskHandler(svc)
	consumerHandler := api.NewConsumerHandler(svc)
	lockHandler := api.NewLockHandler(svc)
	statsHandler := api.NewStatsHandler(svc)
	eventsHandler := api.NewEventsHandler(broadcaster, logger)

	r := chi.NewRouter()
	r.Use(apimiddleware.TraceMiddleware)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", taskHandler.Submit)
		r.Get("/pending", taskHandler.ListPending)
		r.Get("/next", taskHandler.Next)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", taskHandler.Get)
			r.Delete("/", taskHandler.Delete)
			r.Post("/claim", taskHandler.Claim)
			r.Post("/respond", taskHandler.Respond)
			r.Post("/complete", taskHandler.Complete)
			r.Post("/release", taskHandler.Release)
			r.Post("/reject", taskHandler.Reject)
			r.Post("/review", taskHandler.Review)
			r.Post("/resubmit", taskHandler.Resubmit)
			r.Get("/deadletters", taskHandler.TaskDeadLetters)
		})
	})

	r.Route("/consumers", func(r chi.Router) {
		r.Get("/", consumerHandler.List)
		r.Post("/register", consumerHandler.Register)
		r.Post("/heartbeat", consumerHandler.Heartbeat)
		r.Post("/unregister", consumerHandler.Unregister)
	})

	r.Get("/filelock", lockHandler.Get)
	r.Delete("/filelock", lockHandler.Release)
	r.Get("/deadletters", taskHandler.DeadLetters)
	r.Get("/stats", statsHandler.Get)
	r.Get("/events", eventsHandler.ServeHTTP)

	return r
}

// do performs a request against the env's router. A nil body sends no
// payload; anything else is marshaled as JSON.
func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// submitTask creates a task through the service directly.
func (e *env) submitTask(t *testing.T, content string, taskType domain.TaskType) *domain.Task {
	t.Helper()
	task, err := e.svc.Submit(context.Background(), content, "", &taskType)
	require.NoError(t, err)
	return task
}

// claimTask moves a task to processing through the service directly.
func (e *env) claimTask(t *testing.T, taskID uuid.UUID, consumerID string) {
	t.Helper()
	_, err := e.svc.Claim(context.Background(), taskID, consumerID)
	require.NoError(t, err)
}
