package stats

import (
	"slices"
	"time"
)

// RunResult holds the aggregated metrics of a single run.
//
// While a run is streaming, Avg is TotalDuration divided by Completed and the
// percentiles are histogram estimates. Once Finish has been called, Avg is
// TotalDuration divided by the configured request count and the percentiles
// are exact values taken from the sorted Durations.
type RunResult struct {
	Total     int
	Success   int
	Failures  int
	Completed int

	// TotalDuration is the cumulative duration of successful requests.
	TotalDuration time.Duration
	// Durations of successful requests, in completion order until Finish sorts them.
	Durations []time.Duration

	Avg time.Duration
	Min time.Duration
	Max time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration

	// RPS is successes per second of wall-clock time since the run started.
	RPS     float64
	Elapsed time.Duration

	Finished bool
}

// ErrorRate returns failures as a percentage of completed requests.
func (r RunResult) ErrorRate() float64 {
	if r.Completed == 0 {
		return 0
	}
	return float64(r.Failures) / float64(r.Completed) * 100
}

// Progress returns completed requests as a fraction of the configured total.
func (r RunResult) Progress() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Completed) / float64(r.Total)
}

// Aggregator folds request completions into a RunResult.
// It is not safe for concurrent use; a single consumer owns it.
type Aggregator struct {
	result RunResult
	hist   *SafeHistogram
	start  time.Time
	now    func() time.Time
}

// NewAggregator returns an aggregator for a run of total requests started at start.
func NewAggregator(total int, start time.Time) *Aggregator {
	return &Aggregator{
		result: RunResult{
			Total:     total,
			Durations: make([]time.Duration, 0, total),
		},
		hist:  NewSafeHistogram(),
		start: start,
		now:   time.Now,
	}
}

// Add records one completed request and returns the updated view.
// The returned value shares its Durations backing array with the aggregator
// and must not be retained past the next call.
func (a *Aggregator) Add(success bool, d time.Duration) RunResult {
	r := &a.result
	r.Completed++

	if success {
		r.Success++
		r.TotalDuration += d
		r.Durations = append(r.Durations, d)
		if r.Success == 1 || d < r.Min {
			r.Min = d
		}
		if d > r.Max {
			r.Max = d
		}
		a.hist.RecordDuration(d)
		r.P50 = a.hist.ValueAtQuantile(0.50)
		r.P90 = a.hist.ValueAtQuantile(0.90)
		r.P95 = a.hist.ValueAtQuantile(0.95)
	} else {
		r.Failures++
	}

	r.Avg = r.TotalDuration / time.Duration(r.Completed)
	r.Elapsed = a.now().Sub(a.start)
	r.RPS = rate(r.Success, r.Elapsed)

	return *r
}

// Result returns the current view without modifying it.
func (a *Aggregator) Result() RunResult {
	return a.result
}

// Finish computes the final percentiles, average and rate.
func (a *Aggregator) Finish() RunResult {
	r := &a.result
	slices.Sort(r.Durations)

	r.P50 = Quantile(r.Durations, 0.50)
	r.P90 = Quantile(r.Durations, 0.90)
	r.P95 = Quantile(r.Durations, 0.95)

	if r.Total > 0 {
		r.Avg = r.TotalDuration / time.Duration(r.Total)
	} else {
		r.Avg = 0
	}

	r.Elapsed = a.now().Sub(a.start)
	r.RPS = rate(r.Success, r.Elapsed)
	r.Finished = true

	return *r
}

// Quantile returns the element at floor(len*p) of sorted, clamped to the last
// index. An empty slice yields zero.
func Quantile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func rate(n int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}
