// ABOUTME: Background sweep that purges expired cache entries on a fixed interval
// ABOUTME: Complements the lazy expiry done on reads

package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reaper periodically calls PurgeExpired on its targets.
type Reaper struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartReaper launches the sweep loop. It stops when ctx is cancelled or Stop is called.
func StartReaper(ctx context.Context, interval time.Duration, logger *slog.Logger, targets ...Purger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Reaper{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, t := range targets {
					n, err := t.PurgeExpired(ctx)
					if err != nil {
						logger.Warn("cache purge failed", "error", err)
						continue
					}
					if n > 0 {
						logger.Debug("purged expired cache entries", "count", n)
					}
				}
			}
		}
	}()
	return r
}

// Stop ends the loop and waits for it to exit.
func (r *Reaper) Stop() {
	r.once.Do(r.cancel)
	<-r.done
}
