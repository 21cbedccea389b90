package reaper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"snapshare/internal/server/database"
	"snapshare/internal/server/metrics"
)

// DefaultInterval is the sweep period used when none is configured.
const DefaultInterval = time.Minute

// Reaper periodically deletes time-expired shares.
type Reaper struct {
	store    database.ShareStore
	metrics  *metrics.Metrics
	interval time.Duration
	now      func() time.Time

	startOnce sync.Once
	done      chan struct{}
}

// New creates a reaper. m may be nil; a non-positive interval falls back to
// DefaultInterval.
func New(store database.ShareStore, interval time.Duration, m *metrics.Metrics) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reaper{
		store:    store,
		metrics:  m,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine. The loop stops when
// ctx is cancelled; Wait blocks until it has.
func (r *Reaper) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		slog.Info("reaper started", "interval", r.interval)

		go func() {
			defer close(r.done)

			ticker := time.NewTicker(r.interval)
			defer ticker.Stop()

			// Run once immediately on start
			r.RunOnce(ctx)

			for {
				select {
				case <-ticker.C:
					r.RunOnce(ctx)
				case <-ctx.Done():
					slog.Info("reaper stopping")
					return
				}
			}
		}()
	})
}

// Wait blocks until the sweep loop has fully stopped.
func (r *Reaper) Wait() {
	<-r.done
}

// RunOnce performs a single sweep and returns how many shares were deleted.
// Errors are logged and returned but never fatal; the next sweep retries.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	deleted, err := r.store.DeleteExpired(ctx, r.now())
	r.metrics.ReaperRun(deleted, err)
	if err != nil {
		slog.Error("failed to delete expired shares", "error", err)
		return 0, err
	}

	if deleted > 0 {
		slog.Info("reaper cycle complete", "deleted", deleted)
	} else {
		slog.Debug("no expired shares to delete")
	}
	return deleted, nil
}
