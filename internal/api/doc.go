// Package api contains the HTTP handlers for the broker's JSON surface
// and the WebSocket event stream. Handlers validate input, delegate to the
// broker service and map the error taxonomy onto status codes; they hold
// no business logic of their own.
package api
