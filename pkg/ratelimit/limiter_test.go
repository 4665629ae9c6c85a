package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestPerMinuteZeroIsUnlimited(t *testing.T) {
	l := PerMinute(0)
	_, ok := l.(Unlimited)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx))
	}
}

func TestPerMinuteBurstOfOne(t *testing.T) {
	l := PerMinute(60)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx), "second request within the same second should have to wait")
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(rate.Every(10*time.Millisecond), 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, tb.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	tb := NewTokenBucket(rate.Every(time.Hour), 1)
	require.NoError(t, tb.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, tb.Wait(ctx))
}

func TestUnlimitedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Unlimited{}.Wait(ctx), context.Canceled)
}

func TestPacer(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(2 * time.Second)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	require.NoError(t, p.Pause(context.Background()))
	require.NoError(t, p.Pause(context.Background()))

	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept)
	assert.Equal(t, 4*time.Second, p.Slept())
	assert.Equal(t, 2, p.Pauses())
}

func TestPacerZeroDelay(t *testing.T) {
	p := NewPacer(0)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("zero delay must not sleep")
		return nil
	}
	assert.NoError(t, p.Pause(context.Background()))
	assert.Equal(t, 1, p.Pauses())
}

func TestPacerCancelled(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.ErrorIs(t, p.Pause(ctx), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, p.Slept())
}
