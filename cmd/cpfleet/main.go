package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cpfleet/internal/cache"
	"cpfleet/internal/config"
	"cpfleet/internal/handler"
	"cpfleet/internal/metrics"
	"cpfleet/internal/middleware"
	"cpfleet/internal/report"
	"cpfleet/pkg/cpapi"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting cpfleet",
		"version", version,
		"env", cfg.Env,
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"ops_addr", cfg.OpsAddr,
		"redis_enabled", cfg.RedisEnabled,
	)

	if err := report.Setup(cfg.SentryDSN, cfg.Env, version); err != nil {
		logger.Error("failed to initialise sentry", "error", err)
		os.Exit(1)
	}
	defer report.Flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := cpapi.New(cpapi.Config{
		TravelURL:   cfg.TravelAPIURL,
		RealtimeURL: cfg.RealtimeAPIURL,
		Travel: cpapi.Credentials{
			APIKey:        cfg.TravelAPIKey,
			ConnectID:     cfg.TravelConnectID,
			ConnectSecret: cfg.TravelConnectSecret,
		},
		Realtime: cpapi.Credentials{
			APIKey:        cfg.RealtimeAPIKey,
			ConnectID:     cfg.RealtimeConnectID,
			ConnectSecret: cfg.RealtimeConnectSecret,
		},
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.UpstreamTimeout,
		Transport: metrics.InstrumentedTransport(nil),
	})

	var upstream handler.Upstream = client
	var pinger handler.Pinger

	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()

		cached := cache.NewUpstream(client, redisCache, cfg.StaticCacheTTL, logger)
		upstream = cached
		pinger = redisCache

		if cfg.CacheWarmOnStart {
			if err := cache.NewWarmer(cached, logger).WarmAll(ctx); err != nil {
				// requests will fill the cache on demand
				logger.Warn("cache warm incomplete", "error", err)
			}
		}
	}

	fleetHandler := handler.NewFleetHandler(upstream, logger)

	public := handler.PublicOptions{
		Logger:     logger,
		WorkerKey:  cfg.WorkerKey,
		TrustProxy: cfg.TrustProxyHeaders,
	}
	if cfg.RateLimitPerWindow > 0 {
		public.Limiter = middleware.NewRateLimiter(ctx, cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	}

	srv := newServer(cfg, cfg.HTTPAddr, handler.NewPublicHandler(fleetHandler, public), logger)

	healthHandler := handler.NewHealthHandler(pinger, version)

	opsMux := http.NewServeMux()
	opsMux.HandleFunc("GET /healthz", healthHandler.Healthz)
	opsMux.HandleFunc("GET /readyz", healthHandler.Readyz)
	opsMux.Handle("GET /metrics", promhttp.Handler())

	opsSrv := newServer(cfg, cfg.OpsAddr, opsMux, logger)

	for _, s := range []*http.Server{srv, opsSrv} {
		go func(s *http.Server) {
			logger.Info("starting HTTP server", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "addr", s.Addr, "error", err)
				cancel()
			}
		}(s)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	for _, s := range []*http.Server{srv, opsSrv} {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "addr", s.Addr, "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// newServer applies the configured timeouts to both listeners.
func newServer(cfg *config.Config, addr string, h http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}
