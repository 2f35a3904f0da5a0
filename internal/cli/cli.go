// Package cli renders plain-terminal output: a throttled progress line and
// tabular summaries for non-interactive runs.
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"loadq/internal/runner"
	"loadq/internal/stats"
	"loadq/internal/storage"
)

const progressInterval = 200 * time.Millisecond

func PrintHeader(w io.Writer, cfg runner.Config) {
	fmt.Fprintf(w, "\nSTARTING LOADQ RUN\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Target URL : %s\n", cfg.URL)
	fmt.Fprintf(w, "Method     : %s\n", cfg.Method)
	fmt.Fprintf(w, "Requests   : %d\n", cfg.Requests)
	fmt.Fprintf(w, "Concurrency: %d\n", cfg.Concurrency)
	fmt.Fprintf(w, "Body       : %s\n", cfg.Body)
	if cfg.Timeout > 0 {
		fmt.Fprintf(w, "Timeout    : %s\n", cfg.Timeout)
	}
	if cfg.OutputDir != "" {
		fmt.Fprintf(w, "Output     : %s\n", cfg.OutputDir)
	}
	fmt.Fprintf(w, "======================================================================\n\n")
}

// Progress redraws a single status line, at most once per interval and
// always for the final completion.
type Progress struct {
	w        io.Writer
	interval time.Duration
	last     time.Time
	drawn    bool
}

func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w, interval: progressInterval}
}

// Update has the signature of runner.ProgressFunc.
func (p *Progress) Update(r stats.RunResult) {
	now := time.Now()
	if r.Completed < r.Total && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.drawn = true

	pct := r.Progress()
	fmt.Fprintf(p.w, "\r%s %3.0f%% | %d/%d | RPS: %.1f | OK: %d | Err: %d",
		progressBar(pct, 20), pct*100,
		r.Completed, r.Total,
		r.RPS,
		r.Success,
		r.Failures,
	)
}

// Done terminates the progress line.
func (p *Progress) Done() {
	if p.drawn {
		fmt.Fprintln(p.w)
	}
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

// PrintSummary writes the final statistics as a table.
func PrintSummary(w io.Writer, r stats.RunResult) {
	title := "LOAD TEST RESULTS"
	if r.Completed < r.Total {
		title = "LOAD TEST RESULTS (interrupted)"
	}
	fmt.Fprintf(w, "\n%s\n", title)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.AppendBulk([][]string{
		{"Completed", fmt.Sprintf("%d/%d", r.Completed, r.Total)},
		{"Success", color.GreenString("%d", r.Success)},
		{"Failures", failures(r.Failures)},
		{"Error rate", fmt.Sprintf("%.2f%%", r.ErrorRate())},
		{"Elapsed", r.Elapsed.Round(time.Millisecond).String()},
		{"RPS", fmt.Sprintf("%.2f", r.RPS)},
		{"Avg", ms(r.Avg)},
		{"Min", ms(r.Min)},
		{"P50", ms(r.P50)},
		{"P90", ms(r.P90)},
		{"P95", ms(r.P95)},
		{"Max", ms(r.Max)},
	})
	table.Render()
}

// PrintHistory lists stored runs, newest first.
func PrintHistory(w io.Writer, items []storage.HistoryItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Time", "Method", "URL", "Reqs", "Conc", "Success", "Failures", "RPS", "P95 (ms)"})
	table.SetAutoWrapText(false)
	for _, item := range items {
		s := item.Summary
		table.Append([]string{
			item.ID,
			item.Timestamp.Local().Format(time.DateTime),
			item.Method,
			item.URL,
			fmt.Sprint(item.Requests),
			fmt.Sprint(item.Concurrency),
			fmt.Sprint(s.Success),
			failures(s.Failures),
			fmt.Sprintf("%.2f", s.RPS),
			fmt.Sprintf("%.2f", s.P95LatencyMs),
		})
	}
	table.Render()
}

func failures(n int) string {
	if n == 0 {
		return fmt.Sprint(n)
	}
	return color.RedString("%d", n)
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2f ms", float64(d)/float64(time.Millisecond))
}
