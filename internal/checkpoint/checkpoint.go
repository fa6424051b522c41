// Package checkpoint makes run state durable: it snapshots the partial
// record cache and the run counters to the key-value store, periodically
// and once at shutdown. Persistence calls are the only I/O suspension
// points in the state layer; progress is durable only after they return.
package checkpoint

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/consumer-puls/insights-scraper/internal/cache"
	"github.com/consumer-puls/insights-scraper/internal/monitor"
)

// Checkpointer orchestrates durable persistence of the cache and monitor.
type Checkpointer struct {
	cache   *cache.Cache
	monitor *monitor.Monitor
}

// New wires a checkpointer over the run's cache and monitor.
func New(c *cache.Cache, m *monitor.Monitor) *Checkpointer {
	return &Checkpointer{cache: c, monitor: m}
}

// PersistState persists the counters, the details summary and the progress
// report. All three are attempted even when one fails; failures surface
// aggregated.
func (cp *Checkpointer) PersistState(ctx context.Context) error {
	return cp.monitor.PersistState(ctx)
}

// PersistCache writes the full cache snapshot. Kept separate from
// PersistState because its write volume is typically much larger than the
// counters.
func (cp *Checkpointer) PersistCache(ctx context.Context) error {
	return cp.cache.PersistState(ctx)
}

// PersistAll persists cache and counters concurrently. A plain group, not
// WithContext: one failing snapshot must not cancel the other mid-write,
// both are always attempted.
func (cp *Checkpointer) PersistAll(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return cp.PersistState(ctx) })
	g.Go(func() error { return cp.PersistCache(ctx) })
	return g.Wait()
}

// Run persists on the given interval until ctx is cancelled, then takes a
// final snapshot. The interval is owned by the caller; a non-positive one
// falls back to a minute.
func (cp *Checkpointer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	log := zap.L().With(zap.String("component", "checkpoint"))
	log.Info("starting checkpointer", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final snapshot runs on a fresh context: the loop context
			// is already cancelled at shutdown.
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := cp.PersistAll(flushCtx); err != nil {
				log.Error("final checkpoint failed", zap.Error(err))
			}
			cancel()
			log.Info("checkpointer stopped")
			return
		case <-ticker.C:
			if err := cp.PersistAll(ctx); err != nil {
				log.Error("checkpoint failed", zap.Error(err))
			}
		}
	}
}
