package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkghttp "github.com/BradenHooton/lockout/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, http.StatusBadRequest, "test_error", "Test message")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decodeError(t, w)
	assert.Equal(t, "test_error", body["error"])
	assert.Equal(t, "Test message", body["message"])
	assert.NotContains(t, body, "remaining_attempts")
	assert.NotContains(t, body, "retry_after_seconds")
}

func TestWriteHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { pkghttp.WriteBadRequest(w, "m") }, http.StatusBadRequest, "bad_request"},
		{"too many requests", func(w http.ResponseWriter) { pkghttp.WriteTooManyRequests(w, "m") }, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"internal", func(w http.ResponseWriter) { pkghttp.WriteInternalError(w, "m") }, http.StatusInternalServerError, "internal_error"},
		{"unavailable", func(w http.ResponseWriter) { pkghttp.WriteServiceUnavailable(w, "m") }, http.StatusServiceUnavailable, "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w)["error"])
		})
	}
}

func TestWriteInvalidCredentials_IncludesZeroRemaining(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteInvalidCredentials(w, "Invalid email or password. 0 attempts remaining.", 0)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "invalid_credentials", body["error"])
	assert.Equal(t, float64(0), body["remaining_attempts"])
}

func TestWriteLocked(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteLocked(w, "locked", 15*time.Minute)

	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))
	body := decodeError(t, w)
	assert.Equal(t, "account_locked", body["error"])
	assert.Equal(t, float64(900), body["retry_after_seconds"])
}

func TestWriteLocked_RoundsUpAndOmitsZero(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteLocked(w, "locked", 1500*time.Millisecond)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	w = httptest.NewRecorder()
	pkghttp.WriteLocked(w, "locked", 0)
	assert.Empty(t, w.Header().Get("Retry-After"))
}
