package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seconds(n ...int) []time.Duration {
	out := make([]time.Duration, 0, len(n))
	for _, v := range n {
		out = append(out, time.Duration(v)*time.Second)
	}
	return out
}

func TestQuantile(t *testing.T) {
	sorted := seconds(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	vars := []struct {
		name string
		in   float64
		out  time.Duration
	}{
		{name: "P50", in: 0.50, out: 6 * time.Second},
		{name: "P90", in: 0.90, out: 10 * time.Second},
		{name: "P95", in: 0.95, out: 10 * time.Second},
		{name: "Zero", in: 0, out: 1 * time.Second},
		{name: "One", in: 1, out: 10 * time.Second},
	}

	for _, v := range vars {
		t.Run(v.name, func(t *testing.T) {
			assert.Equal(t, v.out, Quantile(sorted, v.in))
		})
	}
}

func TestQuantile_Empty(t *testing.T) {
	for _, p := range []float64{0.5, 0.9, 0.95} {
		assert.Equal(t, time.Duration(0), Quantile(nil, p))
	}
}

func TestQuantile_Single(t *testing.T) {
	assert.Equal(t, time.Second, Quantile(seconds(1), 0.95))
}

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestAggregator_Streaming(t *testing.T) {
	start := time.Unix(0, 0)
	a := NewAggregator(4, start)
	a.now = fixedClock(start, time.Second)

	r := a.Add(true, 2*time.Second)
	assert.Equal(t, 1, r.Success)
	assert.Equal(t, 1, r.Completed)
	assert.Equal(t, 2*time.Second, r.Avg)
	assert.Equal(t, 2*time.Second, r.Min)
	assert.Equal(t, 2*time.Second, r.Max)
	assert.InDelta(t, 1.0, r.RPS, 0.0001)

	r = a.Add(false, 5*time.Second)
	assert.Equal(t, 1, r.Failures)
	assert.Equal(t, 2, r.Completed)
	// streaming average divides by completed, failures included
	assert.Equal(t, time.Second, r.Avg)
	assert.Len(t, r.Durations, 1)

	r = a.Add(true, 4*time.Second)
	assert.Equal(t, 2, r.Success)
	assert.Equal(t, 6*time.Second, r.TotalDuration)
	assert.Equal(t, 2*time.Second, r.Avg)
	assert.Equal(t, 4*time.Second, r.Max)
	assert.Equal(t, r.Completed, r.Success+r.Failures)
	assert.Len(t, r.Durations, r.Success)
	assert.False(t, r.Finished)
}

func TestAggregator_FinishDilutesAverage(t *testing.T) {
	start := time.Unix(0, 0)
	a := NewAggregator(10, start)
	a.now = fixedClock(start, 500*time.Millisecond)

	a.Add(true, 3*time.Second)
	a.Add(true, 1*time.Second)
	for i := 0; i < 3; i++ {
		a.Add(false, time.Second)
	}

	r := a.Finish()
	require.True(t, r.Finished)
	assert.Equal(t, 2, r.Success)
	assert.Equal(t, 3, r.Failures)
	assert.Equal(t, 5, r.Completed)
	// D / N, not D / S
	assert.Equal(t, 400*time.Millisecond, r.Avg)
	assert.Equal(t, seconds(1, 3), r.Durations)
	assert.Equal(t, 3*time.Second, r.P50)
	assert.Equal(t, 3*time.Second, r.P95)
	assert.Equal(t, time.Second, r.Min)
	assert.Equal(t, 3*time.Second, r.Max)
}

func TestAggregator_FinishPercentiles(t *testing.T) {
	a := NewAggregator(10, time.Now())
	for _, d := range seconds(10, 3, 7, 1, 5, 9, 2, 8, 4, 6) {
		a.Add(true, d)
	}

	r := a.Finish()
	assert.Equal(t, 6*time.Second, r.P50)
	assert.Equal(t, 10*time.Second, r.P90)
	assert.Equal(t, 10*time.Second, r.P95)
	assert.Equal(t, 5500*time.Millisecond, r.Avg)
}

func TestAggregator_NoSuccess(t *testing.T) {
	a := NewAggregator(3, time.Now())
	for i := 0; i < 3; i++ {
		a.Add(false, time.Millisecond)
	}

	r := a.Finish()
	assert.Equal(t, 0, r.Success)
	assert.Equal(t, 3, r.Failures)
	assert.Equal(t, time.Duration(0), r.Avg)
	assert.Equal(t, time.Duration(0), r.P50)
	assert.Equal(t, time.Duration(0), r.Min)
	assert.Equal(t, 0.0, r.RPS)
	assert.InDelta(t, 100.0, r.ErrorRate(), 0.0001)
	assert.InDelta(t, 1.0, r.Progress(), 0.0001)
}

func TestSafeHistogram(t *testing.T) {
	h := NewSafeHistogram()
	assert.Equal(t, time.Duration(0), h.ValueAtQuantile(0.5))

	for i := 1; i <= 100; i++ {
		h.RecordDuration(time.Duration(i) * time.Millisecond)
	}
	h.RecordDuration(0)
	h.RecordDuration(time.Hour)

	assert.InDelta(t, float64(50*time.Millisecond), float64(h.ValueAtQuantile(0.5)), float64(time.Millisecond))
	assert.InDelta(t, float64(10*time.Minute), float64(h.ValueAtQuantile(1)), float64(time.Second))
	assert.Equal(t, time.Microsecond, h.ValueAtQuantile(0))
}
