// Package middleware holds HTTP middleware shared by the server routes.
package middleware

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/keywordpilot/backend/internal/auth"
)

// RequestRecorder persists one tracked request.
type RequestRecorder interface {
	CreateRequest(ctx context.Context, userID int64, method, endpoint string, statusCode int, responseTimeMs, requestSizeBytes, responseSizeBytes *int, errorMessage *string) error
}

// RequestTracker records per-request metrics in the database. Writes happen
// off the request goroutine so tracking can never slow a response down.
type RequestTracker struct {
	recorder RequestRecorder
}

// NewRequestTracker creates a request tracker backed by the given recorder.
func NewRequestTracker(recorder RequestRecorder) *RequestTracker {
	return &RequestTracker{recorder: recorder}
}

// Middleware returns an HTTP middleware that tracks request metrics.
func (rt *RequestTracker) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			userID := auth.UserIDFromContext(r.Context())

			responseTimeMs := int(time.Since(start).Milliseconds())

			requestSizeBytes := int(r.ContentLength)
			if requestSizeBytes < 0 {
				requestSizeBytes = 0
			}
			responseSizeBytes := rw.size

			method := r.Method
			endpoint := r.URL.Path
			statusCode := rw.statusCode

			// Detached context: the write must survive the request's
			// cancellation.
			go func() {
				err := rt.recorder.CreateRequest(
					context.Background(),
					userID,
					method,
					endpoint,
					statusCode,
					&responseTimeMs,
					&requestSizeBytes,
					&responseSizeBytes,
					nil,
				)
				if err != nil {
					log.Printf("RequestTracker: record %s %s: %v", method, endpoint, err)
				}
			}()
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}
