package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is satisfied by cache.RedisCache.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	cache   Pinger
	version string
}

// NewHealthHandler takes a nil cache when Redis is disabled.
func NewHealthHandler(cache Pinger, version string) *HealthHandler {
	return &HealthHandler{cache: cache, version: version}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	Cache      string    `json:"cache"`
	Version    string    `json:"version"`
	ServerTime time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Ready:      true,
		Cache:      "disabled",
		Version:    h.version,
		ServerTime: time.Now(),
	}

	if h.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Cache = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			resp.Ready = false
			resp.Cache = "unreachable"
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}
