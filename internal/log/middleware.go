// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// responseWriter wraps http.ResponseWriter to capture the status code and
// response size for access logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	size       int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.written {
		rw.statusCode = statusCode
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Middleware returns an HTTP middleware that assigns a request id (reusing
// an inbound X-Request-ID header when present), attaches it to the request
// context, and logs one structured line per request with method, path,
// status, duration, and size.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ctx := ContextWithRequestID(r.Context(), reqID)
			w.Header().Set("X-Request-ID", reqID)

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rw, r.WithContext(ctx))

			WithContext(ctx, WithComponent("http")).Info().
				Str("method", r.Method).
				Str(FieldPath, r.URL.Path).
				Int("status", rw.statusCode).
				Int("size", rw.size).
				Dur("duration", time.Since(start)).
				Msg("request handled")
		})
	}
}
