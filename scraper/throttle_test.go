package scraper

import (
	"context"
	"testing"
	"time"
)

func TestThrottleDurationWithinBounds(t *testing.T) {
	th := newThrottle(2*time.Second, 5*time.Second)

	for i := 0; i < 1000; i++ {
		d := th.duration()
		if d < 2*time.Second || d > 5*time.Second {
			t.Fatalf("duration %v outside [2s, 5s]", d)
		}
	}
}

func TestThrottleDegenerateWindow(t *testing.T) {
	th := newThrottle(3*time.Second, 3*time.Second)
	if d := th.duration(); d != 3*time.Second {
		t.Fatalf("duration = %v, want 3s for a degenerate window", d)
	}
}

func TestThrottleWaitUsesSleepHook(t *testing.T) {
	th := newThrottle(2*time.Second, 5*time.Second)

	var slept time.Duration
	th.sleep = func(ctx context.Context, d time.Duration) {
		slept = d
	}

	th.Wait(context.Background())
	if slept < 2*time.Second || slept > 5*time.Second {
		t.Fatalf("slept %v, want within [2s, 5s]", slept)
	}
}

func TestThrottleWaitHonorsCancellation(t *testing.T) {
	th := newThrottle(2*time.Second, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	th.Wait(ctx)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancelled wait took %v", elapsed)
	}
}
