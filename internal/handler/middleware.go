package handler

import (
	"log/slog"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"cpfleet/internal/middleware"
	"cpfleet/internal/report"
)

func GzipMiddleware(next http.Handler) http.Handler {
	wrapper, _ := gzhttp.NewWrapper(
		gzhttp.MinSize(1024),
		gzhttp.CompressionLevel(6),
	)
	return wrapper(next)
}

// CORSMiddleware answers preflight requests itself; they carry no
// credentials and must not reach the auth check.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Chain applies mws so that the first one is outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// PublicOptions configures the middleware in front of the fleet handler.
type PublicOptions struct {
	Logger    *slog.Logger
	WorkerKey string
	// Limiter is optional; nil serves without rate limiting.
	Limiter *middleware.RateLimiter
	// TrustProxy takes the client address from forwarding headers.
	TrustProxy bool
}

// NewPublicHandler wraps fleet in the public middleware stack. The bearer
// check runs ahead of the rate limiter: callers without the worker key
// always get 401 and never spend a window's quota.
func NewPublicHandler(fleet http.Handler, opts PublicOptions) http.Handler {
	mws := []func(http.Handler) http.Handler{report.Middleware}
	if opts.TrustProxy {
		mws = append(mws, middleware.RealIP)
	}
	mws = append(mws,
		middleware.RequestID,
		middleware.RequestLogger(opts.Logger, Route),
		CORSMiddleware,
		middleware.BearerAuth(opts.WorkerKey),
	)
	if opts.Limiter != nil {
		mws = append(mws, opts.Limiter.Middleware)
	}
	mws = append(mws, GzipMiddleware)

	return Chain(fleet, mws...)
}
