package scraper

import (
	"context"
	"math/rand"
	"time"
)

// throttle inserts one randomized delay before each term's first request.
// Best effort only: it bounds request rate but does not react to blocking
// signals.
type throttle struct {
	min, max time.Duration
	rand     *rand.Rand
	sleep    func(ctx context.Context, d time.Duration)
}

func newThrottle(min, max time.Duration) *throttle {
	return &throttle{
		min:  min,
		max:  max,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks for a uniformly random duration in [min, max], or until the
// context is cancelled.
func (t *throttle) Wait(ctx context.Context) {
	d := t.duration()
	if t.sleep != nil {
		t.sleep(ctx, d)
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (t *throttle) duration() time.Duration {
	if t.max <= t.min {
		return t.min
	}
	return t.min + time.Duration(t.rand.Int63n(int64(t.max-t.min)+1))
}
