package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"cpfleet/internal/metrics"
)

type requestIDKey struct{}

const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestIDFrom returns the id stored by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// RequestLogger logs every request once it completes and counts it in
// metrics.Requests under the label returned by route.
func RequestLogger(logger *slog.Logger, route func(*http.Request) string) func(http.Handler) http.Handler {
	logger = logger.With("component", "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			name := route(r)
			metrics.Requests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()

			attrs := []any{
				"status", rec.status,
				"method", r.Method,
				"path", r.URL.Path,
				"route", name,
				"ip", ClientIP(r),
				"bytes", rec.bytes,
				"latency", time.Since(start).String(),
				"request_id", RequestIDFrom(r.Context()),
			}

			switch {
			case rec.status >= http.StatusInternalServerError:
				logger.Error("HTTP request", attrs...)
			case rec.status >= http.StatusBadRequest:
				logger.Warn("HTTP request", attrs...)
			default:
				logger.Info("HTTP request", attrs...)
			}
		})
	}
}
