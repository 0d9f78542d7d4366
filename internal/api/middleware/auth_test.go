package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/taskrelay/internal/api/middleware"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSharedSecretDisabledWhenEmpty(t *testing.T) {
	t.Parallel()

	handler := middleware.SharedSecret("")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/tasks/pending", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSharedSecretAcceptsMatchingToken(t *testing.T) {
	t.Parallel()

	handler := middleware.SharedSecret("s3cret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/tasks/pending", nil)
	req.Header.Set(middleware.TokenHeader, "s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSharedSecretRejectsBadToken(t *testing.T) {
	t.Parallel()

	handler := middleware.SharedSecret("s3cret")(okHandler())

	for _, token := range []string{"", "wrong", "s3cret "} {
		req := httptest.NewRequest(http.MethodGet, "/tasks/pending", nil)
		if token != "" {
			req.Header.Set(middleware.TokenHeader, token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}
