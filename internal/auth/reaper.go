// ABOUTME: Background sweep that purges expired tokens on a fixed interval
// ABOUTME: Bounds the memory provider's token table in long-lived processes

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Purger drops expired state and reports how many entries were removed.
type Purger interface {
	PurgeExpired() int
}

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
				total := 0
				for _, t := range targets {
					total += t.PurgeExpired()
				}
				if total > 0 {
					logger.Debug("purged expired tokens", "count", total)
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
