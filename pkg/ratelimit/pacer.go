package ratelimit

import (
	"context"
	"time"
)

// Pacer inserts a fixed pause between listing pages
type Pacer struct {
	delay time.Duration
	sleep func(ctx context.Context, d time.Duration) error
	total time.Duration
	count int
}

// NewPacer creates a Pacer that pauses for delay on every call to Pause
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{delay: delay, sleep: sleepCtx}
}

// Pause waits for the configured delay. It returns early with ctx.Err() on cancellation.
func (p *Pacer) Pause(ctx context.Context) error {
	p.count++
	if p.delay <= 0 {
		return ctx.Err()
	}
	if err := p.sleep(ctx, p.delay); err != nil {
		return err
	}
	p.total += p.delay
	return nil
}

// Slept returns the accumulated pause time
func (p *Pacer) Slept() time.Duration { return p.total }

// Pauses returns how many times Pause was called
func (p *Pacer) Pauses() int { return p.count }

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
