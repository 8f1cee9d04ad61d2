package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/luvsettle/pkg/httpkit"
	"github.com/screwyprof/luvsettle/pkg/logger"
)

// Error is a test error type that implements httpkit.HTTPError
type Error struct {
	err  error
	code int
}

func (e Error) Error() string { return e.err.Error() }
func (e Error) HTTPCode() int { return e.code }
func (e Error) Cause() error  { return e.err }

// logEntry represents a parsed log entry for testing
type logEntry struct {
	Level     string  `json:"level"`
	RequestID string  `json:"request_id"`
	Msg      string  `json:"msg"`
	Method   string  `json:"method"`
	URI      string  `json:"uri"`
	Status   int     `json:"status"`
	Duration float64 `json:"duration"` // slog logs duration as nanoseconds (number)
	BytesIn  int     `json:"bytes_in"`
	BytesOut int     `json:"bytes_out"`
	Error    string  `json:"error,omitempty"`
}

// parseLogEntry parses a single JSON log line
func parseLogEntry(t *testing.T, logOutput string) logEntry {
	t.Helper()

	// Get the last line (most recent log entry)
	lines := strings.Split(strings.TrimSpace(logOutput), "\n")
	lastLine := lines[len(lines)-1]

	var entry logEntry
	err := json.Unmarshal([]byte(lastLine), &entry)
	require.NoError(t, err, "Should parse log entry as JSON")

	return entry
}

func TestNewMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("it logs successful requests at info level", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var logBuffer bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&logBuffer, &slog.HandlerOptions{Level: slog.LevelInfo}))

		successHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"state": "pending"}`))
		})

		middleware := logger.NewMiddleware(log)(successHandler)
		req := httptest.NewRequest(http.MethodGet, "/claims/abc", nil)
		rec := httptest.NewRecorder()

		// Act
		middleware.ServeHTTP(rec, req)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)

		entry := parseLogEntry(t, logBuffer.String())
		assert.Equal(t, "INFO", entry.Level)
		assert.Equal(t, "HTTP", entry.Msg)
		assert.Equal(t, http.MethodGet, entry.Method)
		assert.Equal(t, "/claims/abc", entry.URI)
		assert.Equal(t, http.StatusOK, entry.Status)
		assert.Greater(t, entry.Duration, 0.0)
		assert.Equal(t, req.ContentLength, int64(entry.BytesIn))
		assert.Equal(t, rec.Body.Len(), entry.BytesOut)
		assert.Empty(t, entry.Error)
	})

	t.Run("it logs client errors at info level with error details", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var logBuffer bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&logBuffer, &slog.HandlerOptions{Level: slog.LevelInfo}))

		badRequestHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			validationErr := errors.New("invalid gesture request: amount must be positive")
			apiErr := Error{err: validationErr, code: http.StatusBadRequest}
			httpkit.JsonError(apiErr)(w, r)
		})

		middleware := logger.NewMiddleware(log)(badRequestHandler)
		req := httptest.NewRequest(http.MethodPost, "/claims/abc/gestures", nil)
		rec := httptest.NewRecorder()

		// Act
		middleware.ServeHTTP(rec, req)

		// Assert
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		entry := parseLogEntry(t, logBuffer.String())
		assert.Equal(t, "INFO", entry.Level)
		assert.Equal(t, "HTTP", entry.Msg)
		assert.Equal(t, http.MethodPost, entry.Method)
		assert.Equal(t, "/claims/abc/gestures", entry.URI)
		assert.Equal(t, 400, entry.Status)
		assert.Equal(t, "invalid gesture request: amount must be positive", entry.Error)
	})

	t.Run("it logs server errors at error level with error details", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var logBuffer bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&logBuffer, &slog.HandlerOptions{Level: slog.LevelInfo}))

		serverErrorHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			internalErr := errors.New("database connection failed: connection refused")
			apiErr := Error{err: internalErr, code: http.StatusInternalServerError}
			httpkit.JsonError(apiErr)(w, r)
		})

		middleware := logger.NewMiddleware(log)(serverErrorHandler)
		req := httptest.NewRequest(http.MethodGet, "/claims/abc/settlement", nil)
		rec := httptest.NewRecorder()

		// Act
		middleware.ServeHTTP(rec, req)

		// Assert
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		entry := parseLogEntry(t, logBuffer.String())
		assert.Equal(t, "ERROR", entry.Level)
		assert.Equal(t, "HTTP", entry.Msg)
		assert.Equal(t, http.MethodGet, entry.Method)
		assert.Equal(t, "/claims/abc/settlement", entry.URI)
		assert.Equal(t, http.StatusInternalServerError, entry.Status)
		assert.Equal(t, "database connection failed: connection refused", entry.Error)
	})

	t.Run("it captures request duration accurately", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var logBuffer bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&logBuffer, &slog.HandlerOptions{Level: slog.LevelInfo}))

		slowHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(10 * time.Millisecond) // Small delay
			w.WriteHeader(http.StatusOK)
		})

		middleware := logger.NewMiddleware(log)(slowHandler)
		req := httptest.NewRequest(http.MethodGet, "/claims/abc/payload", nil)
		rec := httptest.NewRecorder()

		// Act
		start := time.Now()
		middleware.ServeHTTP(rec, req)
		actualDuration := time.Since(start)

		// Assert
		entry := parseLogEntry(t, logBuffer.String())

		// Duration should be at least 10ms (our artificial delay)
		assert.GreaterOrEqual(t, entry.Duration, 10_000_000.0) // 10ms in nanoseconds

		// Duration should be reasonably close to actual duration (within 50ms tolerance)
		toleranceNs := 50_000_000.0 // 50ms in nanoseconds
		assert.InDelta(t, float64(actualDuration.Nanoseconds()), entry.Duration, toleranceNs)
	})

	t.Run("it tracks request and response bytes", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var logBuffer bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&logBuffer, &slog.HandlerOptions{Level: slog.LevelInfo}))

		echoHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("Hello, World!"))
		})

		middleware := logger.NewMiddleware(log)(echoHandler)

		// Create request with body
		reqBody := `{"payer": "dave", "payment_value": 110}`
		req := httptest.NewRequest(http.MethodPost, "/claims", strings.NewReader(reqBody))
		req.Header.Set("Content-Length", strconv.Itoa(len(reqBody)))
		rec := httptest.NewRecorder()

		// Act
		middleware.ServeHTTP(rec, req)

		// Assert
		entry := parseLogEntry(t, logBuffer.String())
		assert.Equal(t, len(reqBody), entry.BytesIn)
		assert.Equal(t, rec.Body.Len(), entry.BytesOut)
	})

	t.Run("it logs conflicts at warn level", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var logBuffer bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&logBuffer, &slog.HandlerOptions{Level: slog.LevelInfo}))

		conflictHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiErr := Error{err: errors.New("claim already settled"), code: http.StatusConflict}
			httpkit.JsonError(apiErr)(w, r)
		})

		middleware := logger.NewMiddleware(log)(conflictHandler)
		req := httptest.NewRequest(http.MethodPost, "/claims/abc/settlement", nil)
		rec := httptest.NewRecorder()

		// Act
		middleware.ServeHTTP(rec, req)

		// Assert
		entry := parseLogEntry(t, logBuffer.String())
		assert.Equal(t, "WARN", entry.Level)
		assert.Equal(t, http.StatusConflict, entry.Status)
		assert.Equal(t, "claim already settled", entry.Error)
	})

	t.Run("it logs an unavailable collaborator at warn level", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var logBuffer bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&logBuffer, &slog.HandlerOptions{Level: slog.LevelInfo}))

		unavailableHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiErr := Error{err: errors.New("treasury request failed: connection refused"), code: http.StatusServiceUnavailable}
			httpkit.JsonError(apiErr)(w, r)
		})

		middleware := logger.NewMiddleware(log)(unavailableHandler)
		req := httptest.NewRequest(http.MethodPost, "/claims/abc/gestures", nil)
		rec := httptest.NewRecorder()

		// Act
		middleware.ServeHTTP(rec, req)

		// Assert
		entry := parseLogEntry(t, logBuffer.String())
		assert.Equal(t, "WARN", entry.Level)
		assert.Equal(t, "treasury request failed: connection refused", entry.Error)
	})

	t.Run("it generates a request id when none is sent", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var logBuffer bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&logBuffer, &slog.HandlerOptions{Level: slog.LevelInfo}))

		middleware := logger.NewMiddleware(log)(http.NotFoundHandler())
		req := httptest.NewRequest(http.MethodGet, "/missing", nil)
		rec := httptest.NewRecorder()

		// Act
		middleware.ServeHTTP(rec, req)

		// Assert
		entry := parseLogEntry(t, logBuffer.String())
		assert.Len(t, entry.RequestID, 36)
		assert.Equal(t, entry.RequestID, rec.Header().Get(logger.RequestIDHeader))
	})

	t.Run("it keeps the request id sent by the caller", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var logBuffer bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&logBuffer, &slog.HandlerOptions{Level: slog.LevelInfo}))

		middleware := logger.NewMiddleware(log)(http.NotFoundHandler())
		req := httptest.NewRequest(http.MethodGet, "/missing", nil)
		req.Header.Set(logger.RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()

		// Act
		middleware.ServeHTTP(rec, req)

		// Assert
		entry := parseLogEntry(t, logBuffer.String())
		assert.Equal(t, "req-42", entry.RequestID)
		assert.Equal(t, "req-42", rec.Header().Get(logger.RequestIDHeader))
	})
}
