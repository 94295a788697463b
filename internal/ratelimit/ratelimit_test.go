package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiter_FirstWaitIsImmediate(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)

	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSimpleRateLimiter_SpacesActions(t *testing.T) {
	r := NewSimpleRateLimiter(30*time.Millisecond, 30*time.Millisecond)

	require.NoError(t, r.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestSimpleRateLimiter_Cancel(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimpleRateLimiter_SetDelay(t *testing.T) {
	r := NewSimpleRateLimiter(time.Second, 2*time.Second)

	r.SetDelay(5*time.Second, time.Second)
	min, max := r.Delay()
	assert.Equal(t, 5*time.Second, min)
	assert.Equal(t, 5*time.Second, max)
}

func TestSimpleRateLimiter_JitterWithinBounds(t *testing.T) {
	r := NewSimpleRateLimiter(time.Second, 2*time.Second)

	for i := 0; i < 100; i++ {
		d := r.calculateDelay()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 2*time.Second)
	}
}

func TestAdaptiveRateLimiter_BacksOff(t *testing.T) {
	a := NewAdaptiveRateLimiter(10*time.Second, 20*time.Second)

	a.RecordError()
	a.RecordError()
	min, _ := a.Delay()
	assert.Equal(t, 10*time.Second, min)

	a.RecordError()
	min, max := a.Delay()
	assert.Equal(t, 15*time.Second, min)
	assert.Equal(t, 30*time.Second, max)
}

func TestAdaptiveRateLimiter_Ceiling(t *testing.T) {
	a := NewAdaptiveRateLimiter(50*time.Second, 100*time.Second)

	for i := 0; i < 3; i++ {
		a.RecordError()
	}

	min, max := a.Delay()
	assert.Equal(t, 60*time.Second, min)
	assert.Equal(t, 120*time.Second, max)
}

func TestAdaptiveRateLimiter_SpeedsUp(t *testing.T) {
	a := NewAdaptiveRateLimiter(10*time.Second, 20*time.Second)

	for i := 0; i < 6; i++ {
		a.RecordSuccess()
	}

	min, _ := a.Delay()
	assert.Equal(t, 9*time.Second, min)
}

func TestAdaptiveRateLimiter_Floor(t *testing.T) {
	a := NewAdaptiveRateLimiter(500*time.Millisecond, time.Second)

	for i := 0; i < 6; i++ {
		a.RecordSuccess()
	}

	min, _ := a.Delay()
	assert.Equal(t, 500*time.Millisecond, min)
}

func TestAdaptiveRateLimiter_SuccessResetsErrors(t *testing.T) {
	a := NewAdaptiveRateLimiter(10*time.Second, 20*time.Second)

	a.RecordError()
	a.RecordError()
	a.RecordSuccess()
	a.RecordError()

	min, _ := a.Delay()
	assert.Equal(t, 10*time.Second, min)
}
