package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSample(d time.Duration, calls *int) func() time.Duration {
	return func() time.Duration {
		*calls++
		return d
	}
}

func TestNew(t *testing.T) {
	s := New()
	assert.Equal(t, DefaultOptions, s.Options())

	s = New(func(o *Options) {
		o.DegradationFactor = 0.5
		o.CheckInterval = -1
	})
	assert.Equal(t, 2.0, s.Options().DegradationFactor)
	assert.Equal(t, 256, s.Options().CheckInterval)
}

func TestObserve(t *testing.T) {
	s := New()
	_, ok := s.Baseline()
	assert.False(t, ok)

	s.Observe(100 * time.Millisecond)
	b, ok := s.Baseline()
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, b)

	// Not under half: unchanged.
	s.Observe(60 * time.Millisecond)
	s.Observe(500 * time.Millisecond)
	b, _ = s.Baseline()
	assert.Equal(t, 100*time.Millisecond, b)

	// Under half: lowered.
	s.Observe(40 * time.Millisecond)
	b, _ = s.Baseline()
	assert.Equal(t, 40*time.Millisecond, b)

	s.ResetBaseline()
	_, ok = s.Baseline()
	assert.False(t, ok)
}

func TestObserveConcurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 1; i <= 64; i++ {
		wg.Add(1)
		go func(d time.Duration) {
			defer wg.Done()
			s.Observe(d)
		}(time.Duration(i) * time.Millisecond)
	}
	wg.Wait()

	b, ok := s.Baseline()
	require.True(t, ok)
	assert.LessOrEqual(t, b, 64*time.Millisecond)
}

func TestEvaluate(t *testing.T) {
	s := New()
	calls := 0

	d := s.Evaluate(1999, fixedSample(time.Second, &calls))
	assert.False(t, d.Rebuild)
	assert.Equal(t, ReasonBelowMinimum, d.Reason)

	d = s.Evaluate(2000, fixedSample(time.Second, &calls))
	assert.True(t, d.Rebuild)
	assert.Equal(t, ReasonNoBaseline, d.Reason)
	assert.Equal(t, 0, calls, "no sample without a baseline")

	s.Observe(10 * time.Millisecond)

	d = s.Evaluate(2000, fixedSample(15*time.Millisecond, &calls))
	assert.False(t, d.Rebuild)
	assert.Equal(t, ReasonHealthy, d.Reason)
	assert.Equal(t, 15*time.Millisecond, d.Sample)
	assert.Equal(t, 1, calls)

	// Healthy sample defers the next check by CheckInterval.
	d = s.Evaluate(2255, fixedSample(time.Second, &calls))
	assert.Equal(t, ReasonDeferred, d.Reason)
	assert.Equal(t, 1, calls)

	d = s.Evaluate(2256, fixedSample(25*time.Millisecond, &calls))
	assert.True(t, d.Rebuild)
	assert.Equal(t, ReasonDegraded, d.Reason)
	assert.Equal(t, 2, calls)

	s.Reset()
	d = s.Evaluate(2000, fixedSample(20*time.Millisecond, &calls))
	assert.False(t, d.Rebuild, "exactly factor x baseline is not degraded")
	assert.Equal(t, ReasonHealthy, d.Reason)
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "degraded", ReasonDegraded.String())
	assert.Equal(t, "unknown", Reason(99).String())
}
