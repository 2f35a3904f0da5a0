package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minTrackable = int64(1)
	maxTrackable = int64(10 * time.Minute / time.Microsecond)
)

// SafeHistogram is a thread-safe wrapper around hdrhistogram.
// Values are tracked in microseconds, 1us to 10min, 3 significant figures.
// An Aggregator records from a single goroutine; the lock allows a histogram
// to be shared with concurrent readers.
type SafeHistogram struct {
	hist *hdrhistogram.Histogram
	mu   sync.Mutex
}

func NewSafeHistogram() *SafeHistogram {
	h := hdrhistogram.New(minTrackable, maxTrackable, 3)
	return &SafeHistogram{hist: h}
}

// RecordDuration records d, clamping it to the trackable range.
func (h *SafeHistogram) RecordDuration(d time.Duration) {
	us := d.Microseconds()
	if us < minTrackable {
		us = minTrackable
	}
	if us > maxTrackable {
		us = maxTrackable
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	// in range by construction
	_ = h.hist.RecordValue(us)
}

// ValueAtQuantile returns the estimate for q, where q is a fraction in [0, 1].
func (h *SafeHistogram) ValueAtQuantile(q float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.hist.ValueAtQuantile(q*100)) * time.Microsecond
}
