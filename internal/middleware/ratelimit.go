package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"cpfleet/internal/metrics"
)

// RateLimiter is a fixed-window limiter keyed by client IP.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	rate      int
	window    time.Duration
	whitelist map[string]struct{}
	logger    *slog.Logger
	now       func() time.Time
}

type client struct {
	tokens    int
	lastReset time.Time
}

// NewRateLimiter allows rate requests per window for each IP. IPs in
// whitelist bypass the limiter. Idle entries are dropped until ctx is done.
func NewRateLimiter(ctx context.Context, rate int, window time.Duration, whitelist []string, logger *slog.Logger) *RateLimiter {
	wl := make(map[string]struct{}, len(whitelist))
	for _, ip := range whitelist {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			wl[ip] = struct{}{}
		}
	}

	rl := &RateLimiter{
		clients:   make(map[string]*client),
		rate:      rate,
		window:    window,
		whitelist: wl,
		logger:    logger.With("component", "rate_limiter"),
		now:       time.Now,
	}

	go rl.cleanupLoop(ctx, window*2)

	return rl
}

func (rl *RateLimiter) cleanupLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.prune(every)
		}
	}
}

func (rl *RateLimiter) prune(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, c := range rl.clients {
		if now.Sub(c.lastReset) > idle {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) isWhitelisted(ip string) bool {
	_, ok := rl.whitelist[ip]
	return ok
}

// Allow consumes one token for ip.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, exists := rl.clients[ip]

	if !exists || now.Sub(c.lastReset) > rl.window {
		rl.clients[ip] = &client{
			tokens:    rl.rate - 1,
			lastReset: now,
		}
		return true
	}

	if c.tokens > 0 {
		c.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(rl.window.Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.Allow(ip) {
			metrics.RateLimited.Inc()
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", retryAfter)
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of the socket address. Forwarding headers
// are only honoured once RealIP has rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// RealIP replaces RemoteAddr with the client address reported by a fronting
// proxy: CF-Connecting-IP, then the first X-Forwarded-For hop, then
// X-Real-IP. Install it only when every request arrives through that proxy.
func RealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := forwardedIP(r); ip != "" {
			r.RemoteAddr = net.JoinHostPort(ip, "0")
		}
		next.ServeHTTP(w, r)
	})
}

func forwardedIP(r *http.Request) string {
	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}

	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}

	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}

// Tracked returns the number of IPs currently held.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
