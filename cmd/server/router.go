package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/taskrelay/internal/api"
	apiMiddleware "github.com/phrazzld/taskrelay/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)
	r.Use(apiMiddleware.SharedSecret(app.config.Auth.SharedSecret))

	taskHandler := api.NewTaskHandler(app.service)
	consumerHandler := api.NewConsumerHandler(app.service)
	lockHandler := api.NewLockHandler(app.service)
	statsHandler := api.NewStatsHandler(app.service)
	eventsHandler := api.NewEventsHandler(app.broadcaster, app.logger)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", taskHandler.Submit)
		r.Get("/pending", taskHandler.ListPending)
		// Registered before /{id} so "next" is never parsed as an id.
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

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
