package helpers

import (
	"math/rand"
	"sync"
	"time"
)

// Limited exponential backoff with jitter for retry delays.
// Delay grows by K on each Failure(), capped at Max, and resets on success.
// Jitter stretches each returned delay by up to Jitter fraction so a fleet
// of agents does not hammer a recovering backend in lockstep.
type Backoff struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	next     time.Duration
	failures int

	Min    time.Duration
	Max    time.Duration
	K      float32
	Jitter float32       // 0.2 = up to +20% on top of base delay
	Res    time.Duration // delay resolution for nice logs, default=1ms
}

// Failure records one more consecutive failure and returns the jittered
// delay to wait before the next attempt. First failure waits Min.
func (b *Backoff) Failure() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.next == 0 {
		b.next = b.Min
	} else {
		b.next = b.limit(time.Duration(float32(b.next) * b.K))
	}
	return b.jitter(b.next)
}

// Reset clears the failure streak after a successful operation.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.next = 0
}

func (b *Backoff) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Current returns the base delay for the present failure streak, without
// jitter. Zero while healthy.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

func (b *Backoff) jitter(d time.Duration) time.Duration {
	if b.Jitter <= 0 || d <= 0 {
		return d
	}
	if b.rnd == nil {
		b.rnd = RandUnix()
	}
	j := time.Duration(b.rnd.Float64() * float64(b.Jitter) * float64(d))
	return b.round(d + j)
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	if d < res {
		return d
	}
	return d / res * res
}

// SetRand overrides the jitter randomness source, tests want determinism.
func (b *Backoff) SetRand(r *rand.Rand) {
	b.mu.Lock()
	b.rnd = r
	b.mu.Unlock()
}
