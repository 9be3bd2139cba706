package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// Warmer fills the static data cache before the first request arrives.
type Warmer struct {
	upstream *Upstream
	logger   *slog.Logger
}

func NewWarmer(upstream *Upstream, logger *slog.Logger) *Warmer {
	return &Warmer{
		upstream: upstream,
		logger:   logger.With("component", "cache_warmer"),
	}
}

// WarmAll refreshes the train list and the station list concurrently. Both
// are attempted even if one fails; their errors are combined.
func (w *Warmer) WarmAll(ctx context.Context) error {
	start := time.Now()
	w.logger.Info("starting cache warming")

	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		return w.warm(ctx, KeyStaticTrains, w.upstream.RefreshStaticTrains)
	})
	p.Go(func(ctx context.Context) error {
		return w.warm(ctx, KeyStations, w.upstream.RefreshStations)
	})
	err := p.Wait()

	w.logger.Info("cache warming completed", "duration_ms", time.Since(start).Milliseconds(), "ok", err == nil)
	return err
}

func (w *Warmer) warm(ctx context.Context, key string, refresh func(context.Context) (int, error)) error {
	start := time.Now()
	n, err := refresh(ctx)
	if err != nil {
		w.logger.Error("failed to warm", "key", key, "error", err)
		return err
	}
	w.logger.Info("warmed", "key", key, "entries", n, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
