package cache

import (
	"context"
	"log/slog"
	"time"

	"cpfleet/internal/domain"
	"cpfleet/internal/metrics"
)

// Source is the uncached operator API.
type Source interface {
	StaticTrains(ctx context.Context) ([]domain.StaticTrain, error)
	Stations(ctx context.Context) ([]domain.Station, error)
	RealtimeDetails(ctx context.Context, trainNumbers []int) (map[int]domain.TrainDetails, error)
}

// Upstream serves the static train list and the station list from Redis for
// up to ttl. Realtime details always go to the source. A failing cache falls
// back to the source instead of failing the request.
type Upstream struct {
	source Source
	cache  *RedisCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewUpstream(source Source, cache *RedisCache, ttl time.Duration, logger *slog.Logger) *Upstream {
	return &Upstream{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "cached_upstream"),
	}
}

func (u *Upstream) StaticTrains(ctx context.Context) ([]domain.StaticTrain, error) {
	return cached(ctx, u, KeyStaticTrains, u.source.StaticTrains)
}

func (u *Upstream) Stations(ctx context.Context) ([]domain.Station, error) {
	return cached(ctx, u, KeyStations, u.source.Stations)
}

func (u *Upstream) RealtimeDetails(ctx context.Context, trainNumbers []int) (map[int]domain.TrainDetails, error) {
	return u.source.RealtimeDetails(ctx, trainNumbers)
}

// RefreshStaticTrains fetches the train list and overwrites the cached copy.
func (u *Upstream) RefreshStaticTrains(ctx context.Context) (int, error) {
	trains, err := refresh(ctx, u, KeyStaticTrains, u.source.StaticTrains)
	return len(trains), err
}

// RefreshStations fetches the station list and overwrites the cached copy.
func (u *Upstream) RefreshStations(ctx context.Context) (int, error) {
	stations, err := refresh(ctx, u, KeyStations, u.source.Stations)
	return len(stations), err
}

func cached[T any](ctx context.Context, u *Upstream, key string, fetch func(context.Context) (T, error)) (T, error) {
	var value T
	hit, err := u.cache.GetJSONCompressed(ctx, key, &value)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues(key, "error").Inc()
		u.logger.Warn("cache read failed, fetching upstream", "key", key, "error", err)
	case hit:
		metrics.CacheLookups.WithLabelValues(key, "hit").Inc()
		return value, nil
	default:
		metrics.CacheLookups.WithLabelValues(key, "miss").Inc()
	}

	return refresh(ctx, u, key, fetch)
}

func refresh[T any](ctx context.Context, u *Upstream, key string, fetch func(context.Context) (T, error)) (T, error) {
	value, err := fetch(ctx)
	if err != nil {
		return value, err
	}
	if err := u.cache.SetJSONCompressed(ctx, key, value, u.ttl); err != nil {
		u.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return value, nil
}
