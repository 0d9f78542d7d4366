package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/taskrelay/internal/api/shared"
	"github.com/phrazzld/taskrelay/internal/store"
)

// MapErrorToStatusCode maps broker errors to HTTP status codes. Keeping the
// mapping in one place prevents handlers from leaking internal error types
// to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case store.IsNotFoundError(err):
		return http.StatusNotFound

	case errors.Is(err, store.ErrConflictingState):
		return http.StatusConflict

	case errors.Is(err, store.ErrProtected):
		return http.StatusForbidden

	case errors.Is(err, store.ErrLockUnavailable):
		return http.StatusLocked

	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message for
// the given error. Internal details stay in the logs.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrConsumerNotFound):
		return "Consumer not found"

	case store.IsNotFoundError(err):
		return "Not found"

	case errors.Is(err, store.ErrConflictingState):
		return "Operation conflicts with the current task state"

	case errors.Is(err, store.ErrProtected):
		return "Task is protected from deletion; use force to override"

	case errors.Is(err, store.ErrLockUnavailable):
		return "File lock is held by another consumer"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	case errors.Is(err, store.ErrDuplicate):
		return "Entity already exists"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the response for a failed operation: status code
// from the error taxonomy, sanitized message to the client, full (redacted)
// error to the logs. An empty userMessage falls back to the safe message
// for the error type.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, userMessage string) {
	status := MapErrorToStatusCode(err)
	if userMessage == "" {
		userMessage = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, userMessage, err)
}

// SanitizeValidationError turns a validator error into a user-friendly
// message without echoing internal struct names.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	if strings.Contains(errMsg, "Field validation") {
		// Example: "Key: 'SubmitTaskRequest.Content' Error:Field validation
		// for 'Content' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "uuid":
		return "invalid id format"
	default:
		return "validation failed"
	}
}
