package main

import (
	"context"
	"math/rand"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// pacer spaces out polls: a fixed interval when idle and a doubling backoff,
// capped at maxBackoff, after failed batches.
type pacer struct {
	interval time.Duration
	backoff  time.Duration
	jitter   *rand.Rand
}

func newPacer(interval time.Duration) pacer {
	return pacer{
		interval: interval,
		backoff:  interval,
		jitter:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *pacer) idle() time.Duration {
	p.backoff = p.interval
	return p.withJitter(p.interval)
}

func (p *pacer) failed() time.Duration {
	p.backoff = nextBackoff(p.backoff, p.interval, maxBackoff)
	return p.withJitter(p.backoff)
}

func (p *pacer) reset() {
	p.backoff = p.interval
}

func (p *pacer) withJitter(d time.Duration) time.Duration {
	if d <= 0 || p.jitter == nil {
		return d
	}
	return d + time.Duration(p.jitter.Int63n(int64(jitterWindow)))
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < max {
		return next
	}
	return max
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
