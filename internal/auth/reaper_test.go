// ABOUTME: Tests for the background token reaper
// ABOUTME: Verifies periodic purging and idempotent shutdown

package auth

import (
	"context"
	"testing"
	"time"
)

func TestReaper_PurgesOnInterval(t *testing.T) {
	clock := newFakeClock()
	p := NewMemoryProvider(WithTokenExpiry(time.Minute), WithClock(clock.Now), WithLogger(quietLogger()))
	p.AddUser("admin", "admin123", nil, nil)
	p.Authenticate(context.Background(), adminCreds())
	clock.Advance(time.Hour)

	r := StartReaper(context.Background(), 5*time.Millisecond, quietLogger(), p)
	defer r.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for p.TokenCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("reaper did not purge expired token")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReaper_StopIsIdempotent(t *testing.T) {
	r := StartReaper(context.Background(), time.Hour, nil)
	r.Stop()
	r.Stop()
}
