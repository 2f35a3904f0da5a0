package storage

import (
	"time"

	"loadq/internal/persist"
	"loadq/internal/stats"
)

// HistoryItem is one finished run as kept in the history database.
type HistoryItem struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	URL         string     `json:"url"`
	Method      string     `json:"method"`
	Body        string     `json:"body,omitempty"`
	Requests    int        `json:"requests"`
	Concurrency int        `json:"concurrency"`
	Summary     RunSummary `json:"summary"`
}

type RunSummary struct {
	Completed    int     `json:"completed"`
	Success      int     `json:"success"`
	Failures     int     `json:"failures"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MinLatencyMs float64 `json:"min_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P90LatencyMs float64 `json:"p90_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	RPS          float64 `json:"rps"`
	ElapsedMs    float64 `json:"elapsed_ms"`
	// Interrupted is set when the run stopped before all requests completed.
	Interrupted bool `json:"interrupted,omitempty"`
}

// SummaryFrom condenses a final run result.
func SummaryFrom(r stats.RunResult) RunSummary {
	return RunSummary{
		Completed:    r.Completed,
		Success:      r.Success,
		Failures:     r.Failures,
		AvgLatencyMs: persist.Milliseconds(r.Avg),
		MinLatencyMs: persist.Milliseconds(r.Min),
		MaxLatencyMs: persist.Milliseconds(r.Max),
		P50LatencyMs: persist.Milliseconds(r.P50),
		P90LatencyMs: persist.Milliseconds(r.P90),
		P95LatencyMs: persist.Milliseconds(r.P95),
		RPS:          r.RPS,
		ElapsedMs:    persist.Milliseconds(r.Elapsed),
		Interrupted:  r.Completed < r.Total,
	}
}

// ErrorRate returns failures as a percentage of completed requests.
func (s RunSummary) ErrorRate() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Completed) * 100
}
